package cmd

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/kubectl/pkg/cmd/util"
	clocktesting "k8s.io/utils/clock/testing"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
	"go.miloapis.com/activityfeed/pkg/client"
	"go.miloapis.com/activityfeed/pkg/filter"
	"go.miloapis.com/activityfeed/pkg/timerange"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeClient serves canned responses. Pages are returned in order, one per
// list call.
type fakeClient struct {
	mu sync.Mutex

	pages     []*client.ListResult
	listErr   error
	listReqs  []client.ListRequest
	watcher   *watch.FakeWatcher
	watchErr  error
	watchReqs []filter.Filters

	facets     map[string][]v1alpha1.FacetValue
	facetErrs  map[string]error
	facetCalls []facetCall

	policies    *v1alpha1.ActivityPolicyList
	policiesErr error

	groups       []string
	groupsErr    error
	resources    map[string]*metav1.APIResourceList
	resourceErrs map[string]error

	auditPages   []*client.AuditLogResult
	auditErr     error
	auditReqs    []client.AuditLogRequest
	auditFacets  map[string][]v1alpha1.FacetValue
	auditFilters []string
}

type facetCall struct {
	field   string
	filters filter.Filters
	tr      timerange.TimeRange
}

var _ client.Interface = &fakeClient{}

func (f *fakeClient) ListActivities(ctx context.Context, req client.ListRequest) (*client.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listReqs = append(f.listReqs, req)
	if f.listErr != nil {
		return nil, f.listErr
	}
	i := len(f.listReqs) - 1
	if i >= len(f.pages) {
		return &client.ListResult{}, nil
	}
	return f.pages[i], nil
}

func (f *fakeClient) WatchActivities(ctx context.Context, filters filter.Filters) (watch.Interface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchReqs = append(f.watchReqs, filters)
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	if f.watcher == nil {
		return nil, errors.New("no watcher configured")
	}
	return f.watcher, nil
}

func (f *fakeClient) GetFacets(ctx context.Context, field string, filters filter.Filters, tr timerange.TimeRange) ([]v1alpha1.FacetValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.facetCalls = append(f.facetCalls, facetCall{field: field, filters: filters, tr: tr})
	if err := f.facetErrs[field]; err != nil {
		return nil, err
	}
	return f.facets[field], nil
}

func (f *fakeClient) ListPolicies(ctx context.Context) (*v1alpha1.ActivityPolicyList, error) {
	if f.policiesErr != nil {
		return nil, f.policiesErr
	}
	if f.policies == nil {
		return &v1alpha1.ActivityPolicyList{}, nil
	}
	return f.policies, nil
}

func (f *fakeClient) GetAllAPIGroups(ctx context.Context) ([]string, error) {
	return f.groups, f.groupsErr
}

func (f *fakeClient) DiscoverAPIResources(ctx context.Context, apiGroup string) (*metav1.APIResourceList, error) {
	if err := f.resourceErrs[apiGroup]; err != nil {
		return nil, err
	}
	if l, ok := f.resources[apiGroup]; ok {
		return l, nil
	}
	return &metav1.APIResourceList{}, nil
}

func (f *fakeClient) ListAuditLogs(ctx context.Context, req client.AuditLogRequest) (*client.AuditLogResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auditReqs = append(f.auditReqs, req)
	if f.auditErr != nil {
		return nil, f.auditErr
	}
	i := len(f.auditReqs) - 1
	if i >= len(f.auditPages) {
		return &client.AuditLogResult{}, nil
	}
	return f.auditPages[i], nil
}

func (f *fakeClient) GetAuditLogFacets(ctx context.Context, field, celFilter string, tr timerange.TimeRange) ([]v1alpha1.FacetValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auditFilters = append(f.auditFilters, celFilter)
	return f.auditFacets[field], nil
}

func (f *fakeClient) newClient() ClientFunc {
	return func(util.Factory) (client.Interface, error) { return f, nil }
}

func failingClient(err error) ClientFunc {
	return func(util.Factory) (client.Interface, error) { return nil, err }
}

func testStreams() (genericclioptions.IOStreams, *bytes.Buffer, *bytes.Buffer) {
	streams, _, out, errOut := genericclioptions.NewTestIOStreams()
	return streams, out, errOut
}

func testClock() *clocktesting.FakeClock {
	return clocktesting.NewFakeClock(testNow)
}

func testActivity(name, kind, summary string, created time.Time) v1alpha1.Activity {
	return v1alpha1.Activity{
		ObjectMeta: metav1.ObjectMeta{
			Name:              name,
			UID:               types.UID("uid-" + name),
			CreationTimestamp: metav1.NewTime(created),
		},
		Spec: v1alpha1.ActivitySpec{
			Summary:      summary,
			ChangeSource: v1alpha1.ChangeSourceHuman,
			Actor:        v1alpha1.ActivityActor{Name: "alice", Type: "user"},
			Resource:     v1alpha1.ActivityResource{Kind: kind, Name: name, APIGroup: "networking.datumapis.com"},
		},
	}
}
