// Package feed keeps a paginated, deduplicated view of activities under a
// mutable filter and time range, optionally merged with a live stream of new
// activities.
//
// The Controller is the single source of truth for a feed. Renderers dispatch
// intents (SetFilters, LoadMore, StartStreaming) and re-render from Snapshot
// whenever a Subscribe channel fires. Network calls run without the lock;
// their results are applied only while the generation captured at issue time
// is still current, so superseded responses are dropped rather than merged.
package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"go.miloapis.com/activityfeed/internal/metrics"
	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
	"go.miloapis.com/activityfeed/pkg/client"
	"go.miloapis.com/activityfeed/pkg/filter"
	"go.miloapis.com/activityfeed/pkg/timerange"
)

// ErrClosed is reported when an intent reaches a closed controller.
var ErrClosed = errors.New("feed controller is closed")

// errStreamClosed is recorded when the server ends a stream on its own.
var errStreamClosed = errors.New("activity stream closed by server")

// Lister fetches pages of activities.
type Lister interface {
	ListActivities(ctx context.Context, req client.ListRequest) (*client.ListResult, error)
}

// Streamer opens a live subscription of newly created activities.
type Streamer interface {
	WatchActivities(ctx context.Context, filters filter.Filters) (watch.Interface, error)
}

// Client is what the controller needs from the API.
type Client interface {
	Lister
	Streamer
}

// Options configures a Controller.
type Options struct {
	// PageSize is the number of activities per page. Zero uses the client
	// default.
	PageSize int32
	// Filters and TimeRange are the initial query.
	Filters   filter.Filters
	TimeRange timerange.TimeRange
	// AutoStartStreaming starts the stream after the first load and
	// re-establishes it after every filter or time range switch.
	AutoStartStreaming bool
	// Streamer replaces the client as the stream source, e.g. a JetStream
	// watcher.
	Streamer Streamer
	// Clock stamps LastUpdated. Defaults to the real clock.
	Clock clock.PassiveClock
}

// Snapshot is an immutable view of the controller state.
type Snapshot struct {
	Activities []v1alpha1.Activity
	Filters    filter.Filters
	TimeRange  timerange.TimeRange

	HasMore     bool
	Loading     bool
	LoadingMore bool

	Streaming          bool
	NewActivitiesCount int

	// Error is the last list failure. Loaded pages are kept.
	Error error
	// WatchError is the last stream failure. Loaded pages are kept.
	WatchError error

	LastUpdated time.Time
}

// Controller owns one activity feed. It is safe for concurrent use.
type Controller struct {
	lister    Lister
	streamer  Streamer
	pageSize  int32
	autoStart bool
	clock     clock.PassiveClock

	mu        sync.Mutex
	filters   filter.Filters
	predicate *filter.Predicate
	timeRange timerange.TimeRange

	items  []v1alpha1.Activity
	keys   map[string]struct{}
	cursor string

	// filterErr is set while the filters do not compile. No query or stream
	// is issued until SetFilters replaces them.
	filterErr error

	// streamedDuringRefresh holds activities streamed while a refresh of
	// the current query generation is in flight, oldest first.
	streamedDuringRefresh []v1alpha1.Activity

	hasMore     bool
	loading     bool
	loadingMore bool
	newCount    int
	err         error
	watchErr    error
	lastUpdated time.Time

	// queryGen is bumped whenever a base query is issued; loadMore and
	// refresh results from an older generation are dropped.
	queryGen uint64
	// streamGen is bumped whenever a stream is started or torn down;
	// events from an older generation are dropped.
	streamGen    uint64
	streaming    bool
	stream       watch.Interface
	streamCancel context.CancelFunc

	subscribers map[int]chan struct{}
	nextSubID   int
	closed      bool
	wg          sync.WaitGroup
}

// NewController returns an idle controller. Call Refresh (or Start) to load
// the first page.
func NewController(c Client, opts Options) *Controller {
	tr := opts.TimeRange
	if tr.IsZero() {
		tr = timerange.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	streamer := opts.Streamer
	if streamer == nil {
		streamer = c
	}

	ctrl := &Controller{
		lister:      c,
		streamer:    streamer,
		pageSize:    opts.PageSize,
		autoStart:   opts.AutoStartStreaming,
		clock:       clk,
		timeRange:   tr,
		keys:        map[string]struct{}{},
		subscribers: map[int]chan struct{}{},
	}

	ctrl.filters = opts.Filters.Clone()
	predicate, err := opts.Filters.Compile()
	if err != nil {
		ctrl.filterErr = fmt.Errorf("invalid filters: %w", err)
		ctrl.err = ctrl.filterErr
	}
	ctrl.predicate = predicate
	return ctrl
}

// Start loads the first page and, with AutoStartStreaming, opens the stream.
func (c *Controller) Start(ctx context.Context) {
	c.Refresh(ctx)
	if c.autoStart {
		c.StartStreaming(ctx)
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Activities:         slices.Clone(c.items),
		Filters:            c.filters.Clone(),
		TimeRange:          c.timeRange,
		HasMore:            c.hasMore,
		Loading:            c.loading,
		LoadingMore:        c.loadingMore,
		Streaming:          c.streaming,
		NewActivitiesCount: c.newCount,
		Error:              c.err,
		WatchError:         c.watchErr,
		LastUpdated:        c.lastUpdated,
	}
}

// Subscribe returns a channel that receives a value after each state change.
// Notifications are coalesced: a slow reader sees at most one pending value.
// The channel is closed by the returned cancel func or by Close.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan struct{}, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
	}
}

// notifyLocked wakes every subscriber. Callers hold c.mu.
func (c *Controller) notifyLocked() {
	for _, ch := range c.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Refresh re-issues the base query with the current filters and time range
// and replaces the held activities. The current list stays visible until the
// response arrives. If another Refresh (or a filter switch) is issued before
// this one completes, this response is dropped.
func (c *Controller) Refresh(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.rejectInvalidLocked() {
		c.mu.Unlock()
		return
	}
	gen, req := c.issueRefreshLocked()
	c.mu.Unlock()

	c.runRefresh(ctx, gen, req)
}

// rejectInvalidLocked reports whether the filters do not compile, recording
// the compile error as the current error.
func (c *Controller) rejectInvalidLocked() bool {
	if c.filterErr == nil {
		return false
	}
	c.err = c.filterErr
	c.notifyLocked()
	return true
}

// issueRefreshLocked starts a new query generation. Any loadMore in flight
// becomes stale.
func (c *Controller) issueRefreshLocked() (uint64, client.ListRequest) {
	c.queryGen++
	c.loading = true
	c.loadingMore = false
	c.streamedDuringRefresh = nil
	c.notifyLocked()
	return c.queryGen, client.ListRequest{
		Filters:   c.filters.Clone(),
		TimeRange: c.timeRange,
		PageSize:  c.pageSize,
	}
}

func (c *Controller) runRefresh(ctx context.Context, gen uint64, req client.ListRequest) {
	result, err := c.list(ctx, "refresh", req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.queryGen || c.closed {
		metrics.FeedStaleResponses.WithLabelValues("refresh").Inc()
		klog.V(4).InfoS("Dropping superseded refresh response", "generation", gen, "current", c.queryGen)
		return
	}
	c.loading = false

	if err != nil {
		c.err = err
		klog.ErrorS(err, "Failed to refresh activity feed")
		c.notifyLocked()
		return
	}

	c.err = nil
	c.items = make([]v1alpha1.Activity, 0, len(result.Items))
	c.keys = make(map[string]struct{}, len(result.Items))
	c.appendLocked(result.Items, "refresh")
	c.cursor = result.NextCursor
	c.hasMore = result.HasMore
	c.newCount = 0
	c.restoreStreamedLocked()
	c.lastUpdated = c.clock.Now()
	klog.V(3).InfoS("Refreshed activity feed", "activities", len(c.items), "hasMore", c.hasMore)
	c.notifyLocked()
}

// restoreStreamedLocked prepends activities streamed while the refresh was
// in flight that its response does not contain. They count as new.
func (c *Controller) restoreStreamedLocked() {
	for _, a := range c.streamedDuringRefresh {
		key := a.Key()
		if _, ok := c.keys[key]; ok {
			continue
		}
		c.keys[key] = struct{}{}
		c.items = slices.Insert(c.items, 0, a)
		c.newCount++
	}
	c.streamedDuringRefresh = nil
}

// LoadMore fetches the next page and appends it. It is a no-op when there is
// no next page or when any load is already in flight. Activities already held
// are skipped.
func (c *Controller) LoadMore(ctx context.Context) {
	c.mu.Lock()
	if c.closed || !c.hasMore || c.loading || c.loadingMore || c.filterErr != nil {
		c.mu.Unlock()
		return
	}
	c.loadingMore = true
	gen := c.queryGen
	req := client.ListRequest{
		Filters:   c.filters.Clone(),
		TimeRange: c.timeRange,
		PageSize:  c.pageSize,
		Cursor:    c.cursor,
	}
	c.notifyLocked()
	c.mu.Unlock()

	result, err := c.list(ctx, "load_more", req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.queryGen || c.closed {
		metrics.FeedStaleResponses.WithLabelValues("load_more").Inc()
		klog.V(4).InfoS("Dropping superseded page", "generation", gen, "current", c.queryGen)
		return
	}
	c.loadingMore = false

	if err != nil {
		c.err = err
		klog.ErrorS(err, "Failed to load more activities")
		c.notifyLocked()
		return
	}

	c.err = nil
	added := c.appendLocked(result.Items, "load_more")
	c.cursor = result.NextCursor
	c.hasMore = result.HasMore
	c.lastUpdated = c.clock.Now()
	klog.V(3).InfoS("Loaded more activities", "added", added, "total", len(c.items), "hasMore", c.hasMore)
	c.notifyLocked()
}

// appendLocked appends activities not already held and returns how many were
// added.
func (c *Controller) appendLocked(items []v1alpha1.Activity, source string) int {
	added := 0
	for i := range items {
		key := items[i].Key()
		if _, ok := c.keys[key]; ok {
			metrics.FeedDuplicatesSkipped.WithLabelValues(source).Inc()
			continue
		}
		c.keys[key] = struct{}{}
		c.items = append(c.items, items[i])
		added++
	}
	return added
}

func (c *Controller) list(ctx context.Context, operation string, req client.ListRequest) (*client.ListResult, error) {
	start := time.Now()
	result, err := c.lister.ListActivities(ctx, req)
	metrics.FeedQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "error"
	} else if result == nil {
		result = &client.ListResult{}
	}
	metrics.FeedQueryTotal.WithLabelValues(operation, status).Inc()
	return result, err
}

// SetFilters replaces the filters, clears the held activities and issues
// exactly one base query. A running stream is torn down; with
// AutoStartStreaming a new stream is opened for the new filters.
func (c *Controller) SetFilters(ctx context.Context, f filter.Filters) {
	predicate, err := f.Compile()
	if err != nil {
		c.mu.Lock()
		c.err = fmt.Errorf("invalid filters: %w", err)
		c.notifyLocked()
		c.mu.Unlock()
		return
	}

	c.switchQuery(ctx, func() {
		c.filters = f.Clone()
		c.predicate = predicate
		c.filterErr = nil
	})
}

// SetTimeRange replaces the time range with the same semantics as
// SetFilters.
func (c *Controller) SetTimeRange(ctx context.Context, tr timerange.TimeRange) {
	if tr.IsZero() {
		tr = timerange.Default()
	}
	c.switchQuery(ctx, func() {
		c.timeRange = tr
	})
}

// switchQuery applies a query change and everything that must happen with it
// in one critical section: the list and cursor are cleared, the stream is
// detached and a new query generation is issued.
func (c *Controller) switchQuery(ctx context.Context, apply func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	apply()
	c.items = nil
	c.keys = map[string]struct{}{}
	c.cursor = ""
	c.hasMore = false
	c.newCount = 0
	c.err = nil
	teardown := c.detachStreamLocked()
	if c.rejectInvalidLocked() {
		c.mu.Unlock()
		teardown()
		return
	}
	gen, req := c.issueRefreshLocked()
	c.mu.Unlock()

	teardown()
	c.runRefresh(ctx, gen, req)

	if c.autoStart {
		c.StartStreaming(ctx)
	}
}

// StartStreaming opens the live stream. It is a no-op while a stream is open
// or being opened.
func (c *Controller) StartStreaming(ctx context.Context) {
	c.mu.Lock()
	if c.closed || c.streaming || c.rejectInvalidLocked() {
		c.mu.Unlock()
		return
	}
	c.streamGen++
	gen := c.streamGen
	c.streaming = true
	c.watchErr = nil
	filters := c.filters.Clone()
	streamCtx, cancel := context.WithCancel(ctx)
	c.streamCancel = cancel
	c.notifyLocked()
	c.mu.Unlock()

	w, err := c.streamer.WatchActivities(streamCtx, filters)

	c.mu.Lock()
	if gen != c.streamGen || c.closed {
		// Stopped or switched while the watch was being opened.
		c.mu.Unlock()
		cancel()
		if w != nil {
			w.Stop()
		}
		return
	}
	defer c.mu.Unlock()

	if err != nil {
		metrics.StreamErrors.Inc()
		klog.ErrorS(err, "Failed to start activity stream")
		c.watchErr = err
		c.streaming = false
		c.streamCancel = nil
		cancel()
		c.notifyLocked()
		return
	}

	c.stream = w
	c.wg.Add(1)
	go c.consume(gen, w)
	klog.V(2).InfoS("Started activity stream", "generation", gen)
}

// StopStreaming closes the live stream. It is a no-op when not streaming.
func (c *Controller) StopStreaming() {
	c.mu.Lock()
	teardown := c.detachStreamLocked()
	c.mu.Unlock()
	teardown()
}

// RetryStreaming restarts only the stream. Loaded pages are untouched.
func (c *Controller) RetryStreaming(ctx context.Context) {
	c.StopStreaming()
	c.StartStreaming(ctx)
}

// AcknowledgeNew resets NewActivitiesCount, e.g. when the user scrolls to the
// top of the feed.
func (c *Controller) AcknowledgeNew() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.newCount != 0 {
		c.newCount = 0
		c.notifyLocked()
	}
}

// detachStreamLocked bumps the stream generation and returns a func that
// stops the detached watch. Callers run it after releasing c.mu.
func (c *Controller) detachStreamLocked() func() {
	if !c.streaming {
		return func() {}
	}
	c.streamGen++
	c.streaming = false
	w, cancel := c.stream, c.streamCancel
	c.stream, c.streamCancel = nil, nil
	c.notifyLocked()
	klog.V(2).InfoS("Stopped activity stream", "generation", c.streamGen)

	return func() {
		if cancel != nil {
			cancel()
		}
		if w != nil {
			w.Stop()
		}
	}
}

func (c *Controller) consume(gen uint64, w watch.Interface) {
	defer c.wg.Done()

	for event := range w.ResultChan() {
		switch event.Type {
		case watch.Added:
			activity, ok := event.Object.(*v1alpha1.Activity)
			if !ok {
				klog.V(4).InfoS("Ignoring unexpected stream object", "type", fmt.Sprintf("%T", event.Object))
				continue
			}
			c.applyStreamed(gen, activity)
		case watch.Error:
			c.streamFailed(gen, w, apierrors.FromObject(event.Object))
			return
		}
	}
	c.streamFailed(gen, w, errStreamClosed)
}

// applyStreamed prepends a streamed activity if it belongs to the current
// stream generation, matches the current predicate and time range, and is
// not already held.
func (c *Controller) applyStreamed(gen uint64, a *v1alpha1.Activity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case gen != c.streamGen:
		metrics.StreamEvents.WithLabelValues("stale").Inc()
		return
	case !c.predicate.Matches(a) || !c.inTimeRangeLocked(a):
		metrics.StreamEvents.WithLabelValues("filtered").Inc()
		return
	}
	key := a.Key()
	if _, ok := c.keys[key]; ok {
		metrics.StreamEvents.WithLabelValues("duplicate").Inc()
		metrics.FeedDuplicatesSkipped.WithLabelValues("stream").Inc()
		return
	}

	c.keys[key] = struct{}{}
	c.items = slices.Insert(c.items, 0, *a)
	c.newCount++
	if c.loading {
		c.streamedDuringRefresh = append(c.streamedDuringRefresh, *a)
	}
	metrics.StreamEvents.WithLabelValues("delivered").Inc()
	c.notifyLocked()
}

// inTimeRangeLocked drops streamed activities created after the end of an
// explicit time range. Presets always end at now.
func (c *Controller) inTimeRangeLocked(a *v1alpha1.Activity) bool {
	_, end, ok := c.timeRange.Bounds()
	if !ok || a.CreationTimestamp.IsZero() {
		return true
	}
	return !a.CreationTimestamp.Time.After(end)
}

func (c *Controller) streamFailed(gen uint64, w watch.Interface, err error) {
	c.mu.Lock()
	if gen != c.streamGen {
		c.mu.Unlock()
		return
	}
	metrics.StreamErrors.Inc()
	klog.ErrorS(err, "Activity stream failed", "generation", gen)
	c.streamGen++
	c.streaming = false
	c.watchErr = err
	cancel := c.streamCancel
	c.stream, c.streamCancel = nil, nil
	c.notifyLocked()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.Stop()
}

// Close stops the stream, closes subscriber channels and waits for the
// stream reader to exit. Later intents are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	teardown := c.detachStreamLocked()
	c.closed = true
	c.err = ErrClosed
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
	c.mu.Unlock()

	teardown()
	c.wg.Wait()
}
