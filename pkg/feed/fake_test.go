package feed

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	compbasemetrics "k8s.io/component-base/metrics"
	"k8s.io/component-base/metrics/testutil"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
	"go.miloapis.com/activityfeed/pkg/client"
	"go.miloapis.com/activityfeed/pkg/filter"
)

type listResponse struct {
	result *client.ListResult
	err    error
}

// listCall is one ListActivities call waiting for the test to answer it.
type listCall struct {
	req  client.ListRequest
	resp chan listResponse
}

func (c *listCall) reply(result *client.ListResult, err error) {
	c.resp <- listResponse{result: result, err: err}
}

// fakeClient answers list calls either through respond or, when respond is
// nil, by handing each call to the test through calls.
type fakeClient struct {
	respond func(req client.ListRequest) (*client.ListResult, error)
	calls   chan *listCall

	mu         sync.Mutex
	listReqs   []client.ListRequest
	watchers   []*watch.FakeWatcher
	watchReqs  []filter.Filters
	watchError error
}

func newFakeClient() *fakeClient {
	return &fakeClient{calls: make(chan *listCall, 16)}
}

func (f *fakeClient) ListActivities(ctx context.Context, req client.ListRequest) (*client.ListResult, error) {
	f.mu.Lock()
	f.listReqs = append(f.listReqs, req)
	respond := f.respond
	f.mu.Unlock()

	if respond != nil {
		return respond(req)
	}

	call := &listCall{req: req, resp: make(chan listResponse, 1)}
	f.calls <- call
	select {
	case r := <-call.resp:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeClient) WatchActivities(ctx context.Context, filters filter.Filters) (watch.Interface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchReqs = append(f.watchReqs, filters)
	if f.watchError != nil {
		return nil, f.watchError
	}
	w := watch.NewFakeWithChanSize(16, false)
	f.watchers = append(f.watchers, w)
	return w, nil
}

func (f *fakeClient) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listReqs)
}

func (f *fakeClient) lastListRequest() client.ListRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listReqs[len(f.listReqs)-1]
}

func (f *fakeClient) watcher(i int) *watch.FakeWatcher {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watchers[i]
}

func (f *fakeClient) watchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchers)
}

// nextCall waits for the next list call issued by the controller.
func (f *fakeClient) nextCall(t *testing.T) *listCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for list call")
		return nil
	}
}

func (f *fakeClient) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected list call: %+v", c.req)
	case <-time.After(50 * time.Millisecond):
	}
}

func act(name, kind string) v1alpha1.Activity {
	return v1alpha1.Activity{
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
			UID:  types.UID("uid-" + name),
		},
		Spec: v1alpha1.ActivitySpec{
			Summary:      fmt.Sprintf("alice updated %s %s", kind, name),
			ChangeSource: v1alpha1.ChangeSourceHuman,
			Actor:        v1alpha1.ActivityActor{Name: "alice", Type: "user"},
			Resource:     v1alpha1.ActivityResource{Kind: kind, Name: name},
		},
	}
}

func page(cursor string, items ...v1alpha1.Activity) *client.ListResult {
	return &client.ListResult{Items: items, NextCursor: cursor, HasMore: cursor != ""}
}

func names(items []v1alpha1.Activity) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		out = append(out, a.Name)
	}
	return out
}

// async runs fn in a goroutine and returns a channel closed when it returns.
func async(fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return done
}

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for controller call to return")
	}
}

func requireEventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

// counter reads the current value of a registered counter.
func counter(t *testing.T, m compbasemetrics.CounterMetric) float64 {
	t.Helper()
	v, err := testutil.GetCounterMetricValue(m)
	require.NoError(t, err)
	return v
}
