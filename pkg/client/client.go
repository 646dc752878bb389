package client

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/rest"
	"k8s.io/klog/v2"
	ctrlclient "sigs.k8s.io/controller-runtime/pkg/client"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
	"go.miloapis.com/activityfeed/pkg/filter"
	"go.miloapis.com/activityfeed/pkg/timerange"
)

var tracer = otel.Tracer("activity-feed-client")

// Scheme knows the activity.miloapis.com types.
var Scheme = runtime.NewScheme()

func init() {
	if err := v1alpha1.AddToScheme(Scheme); err != nil {
		panic(err)
	}
}

// Client implements Interface on a controller-runtime client and a discovery
// client.
type Client struct {
	kube      ctrlclient.WithWatch
	discovery discovery.DiscoveryInterface
}

var _ Interface = &Client{}

// New wraps existing clients.
func New(kube ctrlclient.WithWatch, disc discovery.DiscoveryInterface) *Client {
	return &Client{kube: kube, discovery: disc}
}

// NewForConfig builds a Client for the cluster described by config.
func NewForConfig(config *rest.Config) (*Client, error) {
	kube, err := ctrlclient.NewWithWatch(config, ctrlclient.Options{Scheme: Scheme})
	if err != nil {
		return nil, fmt.Errorf("failed to create activity client: %w", err)
	}
	disc, err := discovery.NewDiscoveryClientForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery client: %w", err)
	}
	return New(kube, disc), nil
}

func (c *Client) ListActivities(ctx context.Context, req ListRequest) (*ListResult, error) {
	start, end := req.TimeRange.QueryBounds()
	query := &v1alpha1.ActivityQuery{
		ObjectMeta: metav1.ObjectMeta{
			GenerateName: "feed-",
		},
		Spec: v1alpha1.ActivityQuerySpec{
			StartTime: start,
			EndTime:   end,
			Filter:    req.Filters.CEL(),
			Search:    req.Filters.Search,
			Limit:     pageSize(req.PageSize),
			Continue:  req.Cursor,
		},
	}

	ctx, span := tracer.Start(ctx, "activity.list",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("query.start_time", start),
			attribute.String("query.end_time", end),
			attribute.String("query.filter", query.Spec.Filter),
			attribute.Int("query.limit", int(query.Spec.Limit)),
			attribute.Bool("query.continue", req.Cursor != ""),
		),
	)
	defer span.End()

	if err := c.kube.Create(ctx, query); err != nil {
		return nil, spanError(span, fmt.Errorf("activity query failed: %w", err))
	}

	result := &ListResult{
		Items:      query.Status.Results,
		NextCursor: query.Status.Continue,
		HasMore:    query.Status.Continue != "",
	}
	span.SetAttributes(
		attribute.Int("query.results", len(result.Items)),
		attribute.Bool("query.has_more", result.HasMore),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (c *Client) WatchActivities(ctx context.Context, filters filter.Filters) (watch.Interface, error) {
	ctx, span := tracer.Start(ctx, "activity.watch", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var opts []ctrlclient.ListOption
	if sel := filters.FieldSelector(); sel != "" {
		selector, err := fields.ParseSelector(sel)
		if err != nil {
			return nil, spanError(span, fmt.Errorf("invalid field selector %q: %w", sel, err))
		}
		opts = append(opts, ctrlclient.MatchingFieldsSelector{Selector: selector})
		span.SetAttributes(attribute.String("watch.field_selector", sel))
	}

	w, err := c.kube.Watch(ctx, &v1alpha1.ActivityList{}, opts...)
	if err != nil {
		if apierrors.IsNotFound(err) || apierrors.IsMethodNotSupported(err) {
			err = fmt.Errorf("%w: %v", ErrWatchUnavailable, err)
		} else {
			err = fmt.Errorf("failed to start watch: %w", err)
		}
		return nil, spanError(span, err)
	}
	span.SetStatus(codes.Ok, "")
	return w, nil
}

func (c *Client) GetFacets(ctx context.Context, field string, filters filter.Filters, tr timerange.TimeRange) ([]v1alpha1.FacetValue, error) {
	start, end := tr.QueryBounds()
	query := &v1alpha1.ActivityFacetQuery{
		ObjectMeta: metav1.ObjectMeta{GenerateName: "facets-"},
		Spec: v1alpha1.ActivityFacetQuerySpec{
			TimeRange: v1alpha1.FacetTimeRange{Start: start, End: end},
			Filter:    filters.FacetCEL(),
			Facets:    []v1alpha1.FacetSpec{{Field: field}},
		},
	}

	ctx, span := tracer.Start(ctx, "activity.facets",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("facet.field", field),
			attribute.String("query.filter", query.Spec.Filter),
		),
	)
	defer span.End()

	if err := c.kube.Create(ctx, query); err != nil {
		return nil, spanError(span, fmt.Errorf("facet query for %s failed: %w", field, err))
	}
	span.SetStatus(codes.Ok, "")
	return facetValues(query.Status.Facets, field), nil
}

func (c *Client) ListPolicies(ctx context.Context) (*v1alpha1.ActivityPolicyList, error) {
	ctx, span := tracer.Start(ctx, "activity.policies", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	list := &v1alpha1.ActivityPolicyList{}
	if err := c.kube.List(ctx, list); err != nil {
		return nil, spanError(span, fmt.Errorf("failed to list activity policies: %w", err))
	}
	span.SetAttributes(attribute.Int("policies", len(list.Items)))
	span.SetStatus(codes.Ok, "")
	return list, nil
}

// GetAllAPIGroups returns the names of all API groups served by the cluster,
// sorted, with the core group reported as "".
func (c *Client) GetAllAPIGroups(ctx context.Context) ([]string, error) {
	_, span := tracer.Start(ctx, "discovery.groups", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	groups, err := c.discovery.ServerGroups()
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to discover API groups: %w", err))
	}

	names := make([]string, 0, len(groups.Groups))
	for _, g := range groups.Groups {
		names = append(names, g.Name)
	}
	slices.Sort(names)
	span.SetStatus(codes.Ok, "")
	return slices.Compact(names), nil
}

// DiscoverAPIResources lists the top-level resources of the preferred version
// of apiGroup. Subresources are omitted.
func (c *Client) DiscoverAPIResources(ctx context.Context, apiGroup string) (*metav1.APIResourceList, error) {
	_, span := tracer.Start(ctx, "discovery.resources",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("api_group", apiGroup)),
	)
	defer span.End()

	groups, err := c.discovery.ServerGroups()
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to discover API groups: %w", err))
	}

	var gv string
	for _, g := range groups.Groups {
		if g.Name == apiGroup {
			gv = g.PreferredVersion.GroupVersion
			if gv == "" && len(g.Versions) > 0 {
				gv = g.Versions[0].GroupVersion
			}
			break
		}
	}
	if gv == "" {
		err := apierrors.NewNotFound(schema.GroupResource{Group: apiGroup}, apiGroup)
		return nil, spanError(span, fmt.Errorf("API group %q is not served: %w", apiGroup, err))
	}

	resources, err := c.discovery.ServerResourcesForGroupVersion(gv)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to discover resources for %s: %w", gv, err))
	}

	out := &metav1.APIResourceList{GroupVersion: resources.GroupVersion}
	for _, r := range resources.APIResources {
		if strings.Contains(r.Name, "/") {
			continue
		}
		out.APIResources = append(out.APIResources, r)
	}
	klog.V(4).InfoS("Discovered API resources", "groupVersion", gv, "count", len(out.APIResources))
	span.SetStatus(codes.Ok, "")
	return out, nil
}

func (c *Client) ListAuditLogs(ctx context.Context, req AuditLogRequest) (*AuditLogResult, error) {
	start, end := req.TimeRange.QueryBounds()
	query := &v1alpha1.AuditLogQuery{
		ObjectMeta: metav1.ObjectMeta{GenerateName: "audit-"},
		Spec: v1alpha1.AuditLogQuerySpec{
			StartTime: start,
			EndTime:   end,
			Filter:    req.Filter,
			Limit:     pageSize(req.PageSize),
			Continue:  req.Cursor,
		},
	}

	ctx, span := tracer.Start(ctx, "auditlog.list",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("query.start_time", start),
			attribute.String("query.end_time", end),
			attribute.String("query.filter", req.Filter),
			attribute.Int("query.limit", int(query.Spec.Limit)),
		),
	)
	defer span.End()

	if err := c.kube.Create(ctx, query); err != nil {
		return nil, spanError(span, fmt.Errorf("audit log query failed: %w", err))
	}
	span.SetStatus(codes.Ok, "")
	return &AuditLogResult{
		Items:      query.Status.Results,
		NextCursor: query.Status.Continue,
		HasMore:    query.Status.Continue != "",
	}, nil
}

func (c *Client) GetAuditLogFacets(ctx context.Context, field, celFilter string, tr timerange.TimeRange) ([]v1alpha1.FacetValue, error) {
	start, end := tr.QueryBounds()
	query := &v1alpha1.AuditLogFacetsQuery{
		ObjectMeta: metav1.ObjectMeta{GenerateName: "audit-facets-"},
		Spec: v1alpha1.AuditLogFacetsQuerySpec{
			TimeRange: v1alpha1.FacetTimeRange{Start: start, End: end},
			Filter:    celFilter,
			Facets:    []v1alpha1.FacetSpec{{Field: field}},
		},
	}

	ctx, span := tracer.Start(ctx, "auditlog.facets",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("facet.field", field)),
	)
	defer span.End()

	if err := c.kube.Create(ctx, query); err != nil {
		return nil, spanError(span, fmt.Errorf("audit log facet query for %s failed: %w", field, err))
	}
	span.SetStatus(codes.Ok, "")
	return facetValues(query.Status.Facets, field), nil
}

func facetValues(results []v1alpha1.FacetResult, field string) []v1alpha1.FacetValue {
	for _, r := range results {
		if r.Field == field {
			return r.Values
		}
	}
	return nil
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
