// Package client is the Activity API surface consumed by the feed, the facet
// loader, the terminal browser and the command line.
package client

import (
	"context"
	"errors"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	auditv1 "k8s.io/apiserver/pkg/apis/audit/v1"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
	"go.miloapis.com/activityfeed/pkg/filter"
	"go.miloapis.com/activityfeed/pkg/timerange"
)

const (
	// DefaultPageSize is used when a request leaves PageSize unset.
	DefaultPageSize int32 = 25
	// MaxPageSize is the largest page the query endpoints accept.
	MaxPageSize int32 = 1000
)

// ErrWatchUnavailable is returned by WatchActivities when the server does not
// serve watches for activities.
var ErrWatchUnavailable = errors.New("activity watch is not available on this server")

// Interface is the Activity API as seen by the client side.
type Interface interface {
	// ListActivities returns one page of activities, newest first.
	ListActivities(ctx context.Context, req ListRequest) (*ListResult, error)
	// WatchActivities streams newly created activities. Only fields that map
	// onto field selectors are filtered server-side.
	WatchActivities(ctx context.Context, filters filter.Filters) (watch.Interface, error)
	// GetFacets returns value counts for one field.
	GetFacets(ctx context.Context, field string, filters filter.Filters, tr timerange.TimeRange) ([]v1alpha1.FacetValue, error)
	ListPolicies(ctx context.Context) (*v1alpha1.ActivityPolicyList, error)
	GetAllAPIGroups(ctx context.Context) ([]string, error)
	DiscoverAPIResources(ctx context.Context, apiGroup string) (*metav1.APIResourceList, error)
	ListAuditLogs(ctx context.Context, req AuditLogRequest) (*AuditLogResult, error)
	GetAuditLogFacets(ctx context.Context, field, celFilter string, tr timerange.TimeRange) ([]v1alpha1.FacetValue, error)
}

// ListRequest selects one page of activities.
type ListRequest struct {
	Filters   filter.Filters
	TimeRange timerange.TimeRange
	PageSize  int32
	// Cursor is the continue token of the previous page, empty for the first.
	Cursor string
}

// ListResult is one page of activities.
type ListResult struct {
	Items      []v1alpha1.Activity
	NextCursor string
	HasMore    bool
}

// AuditLogRequest selects one page of audit events.
type AuditLogRequest struct {
	// Filter is a CEL expression over audit event fields.
	Filter    string
	TimeRange timerange.TimeRange
	PageSize  int32
	Cursor    string
}

// AuditLogResult is one page of audit events.
type AuditLogResult struct {
	Items      []auditv1.Event
	NextCursor string
	HasMore    bool
}

func pageSize(n int32) int32 {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	}
	return n
}
