package natswatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
	"go.miloapis.com/activityfeed/pkg/filter"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("k8s.io/klog/v2.(*flushDaemon).run.func1"))
}

func TestBuildSubject(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		filters filter.Filters
		want    string
	}{
		{
			name:   "all tenants",
			config: Config{SubjectPrefix: "activities"},
			want:   "activities.>",
		},
		{
			name:   "project scope without filters",
			config: Config{SubjectPrefix: "activities", TenantType: "project", TenantName: "p1"},
			want:   "activities.project.p1.*.*.*.*.>",
		},
		{
			name:   "single values narrow the subject",
			config: Config{SubjectPrefix: "activities", TenantType: "project", TenantName: "p1"},
			filters: filter.Filters{
				APIGroups:     []string{"networking.datumapis.com"},
				ResourceKinds: []string{"HTTPProxy"},
				Namespaces:    []string{"default"},
			},
			want: "activities.project.p1.networking_datumapis_com.*.HTTPProxy.default.>",
		},
		{
			name:    "multiple values stay wildcards",
			config:  Config{SubjectPrefix: "activities", TenantType: "organization"},
			filters: filter.Filters{ResourceKinds: []string{"HTTPProxy", "Gateway"}},
			want:    "activities.organization.*.*.*.*.*.>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildSubject(tt.config, tt.filters))
		})
	}
}

func TestConfigComplete(t *testing.T) {
	c := Config{URL: "nats://localhost:4222"}
	c.complete()
	assert.Equal(t, "ACTIVITIES", c.StreamName)
	assert.Equal(t, "activities", c.SubjectPrefix)

	_, err := New(Config{})
	require.Error(t, err)
}

// feedMsgs returns a nextMsgFunc that serves messages from ch until the
// context is cancelled.
func feedMsgs(ch <-chan *nats.Msg, errs <-chan error) nextMsgFunc {
	return func(ctx context.Context) (*nats.Msg, error) {
		select {
		case m := <-ch:
			return m, nil
		case err := <-errs:
			return nil, err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func activityMsg(t *testing.T, name, kind string) *nats.Msg {
	t.Helper()
	data, err := json.Marshal(v1alpha1.Activity{
		ObjectMeta: metav1.ObjectMeta{Name: name, UID: types.UID("uid-" + name)},
		Spec: v1alpha1.ActivitySpec{
			ChangeSource: v1alpha1.ChangeSourceHuman,
			Resource:     v1alpha1.ActivityResource{Kind: kind},
		},
	})
	require.NoError(t, err)
	return &nats.Msg{Subject: "activities.x", Data: data}
}

func startWatch(t *testing.T, filters filter.Filters, msgs chan *nats.Msg, errs chan error) *activityWatch {
	t.Helper()
	predicate, err := filters.Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cleaned := false
	w := newActivityWatch(ctx, cancel, feedMsgs(msgs, errs), predicate)
	w.cleanup = func() { cleaned = true }
	go w.run()
	t.Cleanup(func() {
		w.Stop()
		assert.True(t, cleaned, "cleanup should run when the watch ends")
	})
	return w
}

func nextEvent(t *testing.T, w watch.Interface) watch.Event {
	t.Helper()
	select {
	case ev, ok := <-w.ResultChan():
		require.True(t, ok, "result channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watch event")
	}
	return watch.Event{}
}

func TestActivityWatch_FiltersMessages(t *testing.T) {
	msgs := make(chan *nats.Msg, 4)
	w := startWatch(t, filter.Filters{ResourceKinds: []string{"HTTPProxy", "Gateway"}}, msgs, make(chan error))

	msgs <- activityMsg(t, "skip", "Deployment")
	msgs <- &nats.Msg{Data: []byte("{not json")}
	msgs <- &nats.Msg{Header: nats.Header{"Status": []string{"100"}}}
	msgs <- activityMsg(t, "keep", "Gateway")

	ev := nextEvent(t, w)
	assert.Equal(t, watch.Added, ev.Type)
	a, ok := ev.Object.(*v1alpha1.Activity)
	require.True(t, ok)
	assert.Equal(t, "keep", a.Name)
}

func TestActivityWatch_TransportError(t *testing.T) {
	errs := make(chan error, 1)
	w := startWatch(t, filter.Filters{}, make(chan *nats.Msg), errs)

	errs <- errors.New("connection reset")

	ev := nextEvent(t, w)
	assert.Equal(t, watch.Error, ev.Type)
	status, ok := ev.Object.(*metav1.Status)
	require.True(t, ok)
	assert.Contains(t, status.Message, "connection reset")

	_, open := <-w.ResultChan()
	assert.False(t, open, "result channel closes after a transport error")
}

func TestActivityWatch_StopClosesChannel(t *testing.T) {
	predicate, err := filter.Filters{}.Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	w := newActivityWatch(ctx, cancel, feedMsgs(make(chan *nats.Msg), make(chan error)), predicate)
	go w.run()

	w.Stop()
	w.Stop()

	_, open := <-w.ResultChan()
	assert.False(t, open)
}
