package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	fakediscovery "k8s.io/client-go/discovery/fake"
	clienttesting "k8s.io/client-go/testing"
	ctrlclient "sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
	"go.miloapis.com/activityfeed/pkg/filter"
	"go.miloapis.com/activityfeed/pkg/timerange"
)

func newTestClient(funcs interceptor.Funcs, objs ...ctrlclient.Object) *Client {
	kube := fake.NewClientBuilder().
		WithScheme(Scheme).
		WithObjects(objs...).
		WithInterceptorFuncs(funcs).
		Build()
	disc := &fakediscovery.FakeDiscovery{Fake: &clienttesting.Fake{}}
	return New(kube, disc)
}

func TestListActivities(t *testing.T) {
	var captured v1alpha1.ActivityQuerySpec

	c := newTestClient(interceptor.Funcs{
		Create: func(ctx context.Context, _ ctrlclient.WithWatch, obj ctrlclient.Object, _ ...ctrlclient.CreateOption) error {
			q, ok := obj.(*v1alpha1.ActivityQuery)
			require.True(t, ok, "unexpected create of %T", obj)
			captured = q.Spec
			q.Status.Results = []v1alpha1.Activity{
				{ObjectMeta: metav1.ObjectMeta{Name: "a1", UID: "u1"}},
				{ObjectMeta: metav1.ObjectMeta{Name: "a2", UID: "u2"}},
			}
			q.Status.Continue = "cursor-2"
			return nil
		},
	})

	result, err := c.ListActivities(context.Background(), ListRequest{
		Filters:   filter.Filters{ResourceKinds: []string{"HTTPProxy"}, Search: "gateway"},
		TimeRange: timerange.Preset(timerange.Last7Days),
		Cursor:    "cursor-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "now-7d", captured.StartTime)
	assert.Equal(t, "now", captured.EndTime)
	assert.Equal(t, "spec.resource.kind == 'HTTPProxy'", captured.Filter)
	assert.Equal(t, "gateway", captured.Search)
	assert.Equal(t, DefaultPageSize, captured.Limit)
	assert.Equal(t, "cursor-1", captured.Continue)

	require.Len(t, result.Items, 2)
	assert.Equal(t, "cursor-2", result.NextCursor)
	assert.True(t, result.HasMore)
}

func TestListActivities_LastPage(t *testing.T) {
	c := newTestClient(interceptor.Funcs{
		Create: func(ctx context.Context, _ ctrlclient.WithWatch, obj ctrlclient.Object, _ ...ctrlclient.CreateOption) error {
			obj.(*v1alpha1.ActivityQuery).Status.Results = []v1alpha1.Activity{{ObjectMeta: metav1.ObjectMeta{Name: "a1"}}}
			return nil
		},
	})

	result, err := c.ListActivities(context.Background(), ListRequest{PageSize: 5000})
	require.NoError(t, err)
	assert.False(t, result.HasMore)
	assert.Empty(t, result.NextCursor)
}

func TestListActivities_Error(t *testing.T) {
	c := newTestClient(interceptor.Funcs{
		Create: func(ctx context.Context, _ ctrlclient.WithWatch, obj ctrlclient.Object, _ ...ctrlclient.CreateOption) error {
			return apierrors.NewBadRequest("invalid filter")
		},
	})

	_, err := c.ListActivities(context.Background(), ListRequest{})
	require.Error(t, err)
	assert.True(t, apierrors.IsBadRequest(err))
	assert.Contains(t, err.Error(), "activity query failed")
}

func TestPageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, pageSize(0))
	assert.Equal(t, DefaultPageSize, pageSize(-3))
	assert.Equal(t, int32(50), pageSize(50))
	assert.Equal(t, MaxPageSize, pageSize(5000))
}

func TestWatchActivities(t *testing.T) {
	fw := watch.NewFake()
	var captured ctrlclient.ListOptions

	c := newTestClient(interceptor.Funcs{
		Watch: func(ctx context.Context, _ ctrlclient.WithWatch, list ctrlclient.ObjectList, opts ...ctrlclient.ListOption) (watch.Interface, error) {
			captured.ApplyOptions(opts)
			return fw, nil
		},
	})

	w, err := c.WatchActivities(context.Background(), filter.Filters{ChangeSource: "human"})
	require.NoError(t, err)
	assert.Same(t, fw, w)
	require.NotNil(t, captured.FieldSelector)
	assert.Equal(t, "spec.changeSource=human", captured.FieldSelector.String())
}

func TestWatchActivities_Unavailable(t *testing.T) {
	c := newTestClient(interceptor.Funcs{
		Watch: func(ctx context.Context, _ ctrlclient.WithWatch, list ctrlclient.ObjectList, opts ...ctrlclient.ListOption) (watch.Interface, error) {
			return nil, apierrors.NewMethodNotSupported(v1alpha1.Resource("activities"), "watch")
		},
	})

	_, err := c.WatchActivities(context.Background(), filter.Filters{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWatchUnavailable))
}

func TestGetFacets(t *testing.T) {
	var captured v1alpha1.ActivityFacetQuerySpec

	c := newTestClient(interceptor.Funcs{
		Create: func(ctx context.Context, _ ctrlclient.WithWatch, obj ctrlclient.Object, _ ...ctrlclient.CreateOption) error {
			q := obj.(*v1alpha1.ActivityFacetQuery)
			captured = q.Spec
			q.Status.Facets = []v1alpha1.FacetResult{{
				Field:  v1alpha1.FacetFieldResourceKind,
				Values: []v1alpha1.FacetValue{{Value: "HTTPProxy", Count: 4}, {Value: "Gateway", Count: 1}},
			}}
			return nil
		},
	})

	values, err := c.GetFacets(context.Background(), v1alpha1.FacetFieldResourceKind,
		filter.Filters{ActorNames: []string{"alice"}}, timerange.Preset(timerange.LastHour))
	require.NoError(t, err)

	assert.Equal(t, []v1alpha1.FacetSpec{{Field: v1alpha1.FacetFieldResourceKind}}, captured.Facets)
	assert.Equal(t, "now-1h", captured.TimeRange.Start)
	assert.Equal(t, "spec.actor.name == 'alice'", captured.Filter)
	require.Len(t, values, 2)
	assert.Equal(t, int64(4), values[0].Count)
}

func TestGetFacets_IncludesSearch(t *testing.T) {
	var captured string
	c := newTestClient(interceptor.Funcs{
		Create: func(ctx context.Context, _ ctrlclient.WithWatch, obj ctrlclient.Object, _ ...ctrlclient.CreateOption) error {
			captured = obj.(*v1alpha1.ActivityFacetQuery).Spec.Filter
			return nil
		},
	})

	_, err := c.GetFacets(context.Background(), v1alpha1.FacetFieldResourceKind,
		filter.Filters{ActorNames: []string{"alice"}, Search: "deleted"}, timerange.Default())
	require.NoError(t, err)

	assert.Contains(t, captured, "spec.summary.contains('deleted')")
	assert.Contains(t, captured, "(spec.actor.name == 'alice')")
}

func TestListPolicies(t *testing.T) {
	policy := &v1alpha1.ActivityPolicy{
		ObjectMeta: metav1.ObjectMeta{Name: "httpproxy"},
		Spec: v1alpha1.ActivityPolicySpec{
			Resource: v1alpha1.ActivityPolicyResource{APIGroup: "networking.datumapis.com", Kind: "HTTPProxy"},
		},
	}
	c := newTestClient(interceptor.Funcs{}, policy)

	list, err := c.ListPolicies(context.Background())
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "HTTPProxy", list.Items[0].Spec.Resource.Kind)
}

func TestDiscovery(t *testing.T) {
	disc := &fakediscovery.FakeDiscovery{Fake: &clienttesting.Fake{
		Resources: []*metav1.APIResourceList{
			{
				GroupVersion: "networking.datumapis.com/v1alpha",
				APIResources: []metav1.APIResource{
					{Name: "httpproxies", Kind: "HTTPProxy", Namespaced: true},
					{Name: "httpproxies/status", Kind: "HTTPProxy", Namespaced: true},
					{Name: "gateways", Kind: "Gateway", Namespaced: true},
				},
			},
			{
				GroupVersion: "apps/v1",
				APIResources: []metav1.APIResource{{Name: "deployments", Kind: "Deployment", Namespaced: true}},
			},
		},
	}}
	c := New(fake.NewClientBuilder().WithScheme(Scheme).Build(), disc)

	groups, err := c.GetAllAPIGroups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"apps", "networking.datumapis.com"}, groups)

	resources, err := c.DiscoverAPIResources(context.Background(), "networking.datumapis.com")
	require.NoError(t, err)
	require.Len(t, resources.APIResources, 2)
	assert.Equal(t, "httpproxies", resources.APIResources[0].Name)
	assert.Equal(t, "gateways", resources.APIResources[1].Name)

	_, err = c.DiscoverAPIResources(context.Background(), "missing.example.com")
	require.Error(t, err)
	assert.True(t, apierrors.IsNotFound(err))
}

func TestDiscovery_Error(t *testing.T) {
	fakeClient := &clienttesting.Fake{}
	fakeClient.AddReactor("get", "group", func(action clienttesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewServiceUnavailable("discovery down")
	})
	c := New(fake.NewClientBuilder().WithScheme(Scheme).Build(), &fakediscovery.FakeDiscovery{Fake: fakeClient})

	_, err := c.GetAllAPIGroups(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to discover API groups")
}

func TestListAuditLogs(t *testing.T) {
	var captured v1alpha1.AuditLogQuerySpec
	c := newTestClient(interceptor.Funcs{
		Create: func(ctx context.Context, _ ctrlclient.WithWatch, obj ctrlclient.Object, _ ...ctrlclient.CreateOption) error {
			switch q := obj.(type) {
			case *v1alpha1.AuditLogQuery:
				captured = q.Spec
				q.Status.Continue = "next"
			case *v1alpha1.AuditLogFacetsQuery:
				q.Status.Facets = []v1alpha1.FacetResult{{Field: "verb", Values: []v1alpha1.FacetValue{{Value: "create", Count: 2}}}}
			default:
				return apierrors.NewBadRequest("unexpected type")
			}
			return nil
		},
	})

	result, err := c.ListAuditLogs(context.Background(), AuditLogRequest{
		Filter:    "verb == 'delete'",
		TimeRange: timerange.Default(),
		PageSize:  10,
	})
	require.NoError(t, err)
	assert.Equal(t, "verb == 'delete'", captured.Filter)
	assert.Equal(t, int32(10), captured.Limit)
	assert.True(t, result.HasMore)

	values, err := c.GetAuditLogFacets(context.Background(), "verb", "", timerange.Default())
	require.NoError(t, err)
	assert.Equal(t, []v1alpha1.FacetValue{{Value: "create", Count: 2}}, values)

}
