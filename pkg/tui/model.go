// Package tui is the interactive terminal browser of the activity feed.
//
// The model renders a feed.Controller snapshot and dispatches user intents
// back to it. Network calls run inside tea.Cmds; the controller's
// subscription channel wakes the model whenever the snapshot changes.
package tui

import (
	"context"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"go.miloapis.com/activityfeed/pkg/facets"
	"go.miloapis.com/activityfeed/pkg/feed"
	"go.miloapis.com/activityfeed/pkg/filter"
	"go.miloapis.com/activityfeed/pkg/timerange"
	"go.miloapis.com/activityfeed/pkg/ui"
)

// Feed is the part of feed.Controller the browser drives.
type Feed interface {
	Start(ctx context.Context)
	Snapshot() feed.Snapshot
	Subscribe() (<-chan struct{}, func())
	Refresh(ctx context.Context)
	LoadMore(ctx context.Context)
	SetFilters(ctx context.Context, f filter.Filters)
	SetTimeRange(ctx context.Context, tr timerange.TimeRange)
	StartStreaming(ctx context.Context)
	StopStreaming()
	RetryStreaming(ctx context.Context)
	AcknowledgeNew()
}

// Facets is the part of facets.Tracker the browser drives.
type Facets interface {
	Reload(ctx context.Context, filters filter.Filters, tr timerange.TimeRange)
	State() (facets.Result, bool)
}

// Config configures the browser.
type Config struct {
	Feed   Feed
	Facets Facets
	// Resolver renders summary links. Defaults to kubectl references.
	Resolver ui.LinkResolver
	// Filters and TimeRange must match the feed's initial query.
	Filters   filter.Filters
	TimeRange timerange.TimeRange
	// Clock drives search debouncing. Defaults to the real clock.
	Clock         clock.WithDelayedExecution
	DebounceDelay time.Duration
}

type mode int

const (
	modeList mode = iota
	modeSearch
	modePicker
	modeDetail
)

type (
	feedChangedMsg  struct{}
	feedClosedMsg   struct{}
	facetsLoadedMsg struct{}
	searchMsg       struct{ value string }
)

// Model is the bubbletea model of the browser.
type Model struct {
	ctx       context.Context
	feed      Feed
	facets    Facets
	resolver  ui.LinkResolver
	debouncer *ui.Debouncer
	intents   *intentQueue
	events    chan tea.Msg
	updates   <-chan struct{}
	unsub     func()

	keys   keyMap
	mode   mode
	width  int
	height int

	filters   filter.Filters
	timeRange *ui.TimeRangeSelector
	source    *ui.ToggleGroup
	pickers   []*ui.MultiSelect
	field     int
	option    int
	search    textinput.Model

	snap          feed.Snapshot
	facetErr      error
	facetsLoading bool
	cursor        int
	offset        int

	detail   *ui.Detail
	viewport viewport.Model
}

// New builds the model and subscribes to the feed.
func New(ctx context.Context, cfg Config) Model {
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = ui.KubectlResolver{}
	}
	source, err := ui.NewChangeSourceToggle(cfg.Filters.ChangeSource, nil)
	if err != nil {
		klog.ErrorS(err, "Ignoring initial change source")
		source, _ = ui.NewChangeSourceToggle("", nil)
	}

	pickers := make([]*ui.MultiSelect, 0, len(facets.DefaultFields))
	for _, field := range facets.DefaultFields {
		pickers = append(pickers, ui.NewMultiSelect(field, nil, cfg.Filters.Values(field), nil))
	}

	search := textinput.New()
	search.Prompt = "search: "
	search.Placeholder = "summary, actor, resource"
	search.SetValue(cfg.Filters.Search)

	updates, unsub := cfg.Feed.Subscribe()

	return Model{
		ctx:       ctx,
		feed:      cfg.Feed,
		facets:    cfg.Facets,
		resolver:  resolver,
		debouncer: ui.NewDebouncer(cfg.DebounceDelay, cfg.Clock),
		intents:   &intentQueue{},
		events:    make(chan tea.Msg, 16),
		updates:   updates,
		unsub:     unsub,
		keys:      defaultKeyMap(),
		filters:   cfg.Filters.Clone(),
		timeRange: ui.NewTimeRangeSelector(cfg.TimeRange, nil, nil),
		source:    source,
		pickers:   pickers,
		search:    search,
		snap:      cfg.Feed.Snapshot(),
		viewport:  viewport.New(80, 20),
	}
}

// Init starts the feed and the first facet load.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.feedCmd(func(ctx context.Context) { m.feed.Start(ctx) }),
		m.waitForChange(),
		m.waitForEvent(),
		m.reloadFacets(),
	)
}

// Update handles a message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-2, 1)
		return m, m.maybeLoadMore()

	case feedChangedMsg:
		m.snap = m.feed.Snapshot()
		m.clampCursor()
		return m, tea.Batch(m.waitForChange(), m.maybeLoadMore())

	case feedClosedMsg:
		return m, nil

	case facetsLoadedMsg:
		m.applyFacets()
		return m, nil

	case searchMsg:
		return m, tea.Batch(m.waitForEvent(), m.applySearch(msg.value))

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || (key.Matches(msg, m.keys.Quit) && m.mode != modeSearch) {
			m.shutdown()
			return m, tea.Quit
		}
		switch m.mode {
		case modeSearch:
			return m.updateSearch(msg)
		case modePicker:
			return m.updatePicker(msg)
		case modeDetail:
			return m.updateDetail(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		m.scroll()
		if m.cursor == 0 && m.snap.NewActivitiesCount > 0 {
			m.feed.AcknowledgeNew()
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.snap.Activities)-1 {
			m.cursor++
		}
		m.scroll()
		return m, m.maybeLoadMore()
	case key.Matches(msg, m.keys.Open):
		return m.openDetail()
	case key.Matches(msg, m.keys.Search):
		m.mode = modeSearch
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.Filters):
		m.mode = modePicker
		m.option = 0
	case key.Matches(msg, m.keys.Source):
		m.source.Next()
		f := m.filters.Clone()
		f.ChangeSource = m.source.FilterValue()
		return m, m.setFilters(f)
	case key.Matches(msg, m.keys.TimeRange):
		return m, m.nextTimeRange()
	case key.Matches(msg, m.keys.Clear):
		if m.filters.IsEmpty() {
			return m, nil
		}
		for _, p := range m.pickers {
			p.Clear()
		}
		_ = m.source.Select(ui.All)
		m.search.SetValue("")
		m.debouncer.Cancel(filter.FieldSearch)
		return m, m.setFilters(filter.Filters{})
	case key.Matches(msg, m.keys.ShowNew):
		m.feed.AcknowledgeNew()
		m.cursor, m.offset = 0, 0
	case key.Matches(msg, m.keys.Stream):
		if m.snap.Streaming {
			return m, m.feedCmd(func(context.Context) { m.feed.StopStreaming() })
		}
		return m, m.feedCmd(m.feed.StartStreaming)
	case key.Matches(msg, m.keys.Retry):
		return m, m.retry()
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.debouncer.Cancel(filter.FieldSearch)
		m.search.Blur()
		m.mode = modeList
		return m, m.applySearch(m.search.Value())
	case tea.KeyEsc:
		m.search.Blur()
		m.mode = modeList
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	value := m.search.Value()
	events, ctx := m.events, m.ctx
	m.debouncer.Trigger(filter.FieldSearch, func() {
		select {
		case events <- searchMsg{value: value}:
		case <-ctx.Done():
		}
	})
	return m, cmd
}

func (m Model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	picker := m.pickers[m.field]
	options := picker.Options()

	switch {
	case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.Open):
		m.mode = modeList
	case key.Matches(msg, m.keys.NextField):
		m.field = (m.field + 1) % len(m.pickers)
		m.option = 0
	case key.Matches(msg, m.keys.Up):
		if m.option > 0 {
			m.option--
		}
	case key.Matches(msg, m.keys.Down):
		if m.option < len(options)-1 {
			m.option++
		}
	case key.Matches(msg, m.keys.Toggle):
		if m.option < len(options) {
			picker.Toggle(options[m.option].Value)
			return m, m.setFilters(m.filters.WithValues(picker.Name, picker.Selected()))
		}
	case key.Matches(msg, m.keys.Clear):
		picker.Clear()
		return m, m.setFilters(m.filters.WithValues(picker.Name, nil))
	}
	return m, nil
}

func (m Model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.mode = modeList
		m.detail = nil
		return m, nil
	case key.Matches(msg, m.keys.Advanced):
		m.detail.Toggle(ui.SectionAdvanced)
		m.viewport.SetContent(m.detail.Render())
		return m, nil
	case key.Matches(msg, m.keys.Raw):
		m.detail.Toggle(ui.SectionRaw)
		m.viewport.SetContent(m.detail.Render())
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) openDetail() (tea.Model, tea.Cmd) {
	if m.cursor >= len(m.snap.Activities) {
		return m, nil
	}
	d, err := ui.ActivityDetail(&m.snap.Activities[m.cursor], m.resolver)
	if err != nil {
		klog.ErrorS(err, "Failed to build activity detail")
		return m, nil
	}
	m.detail = d
	m.mode = modeDetail
	m.viewport.SetContent(d.Render())
	m.viewport.GotoTop()
	return m, nil
}

func (m Model) nextTimeRange() tea.Cmd {
	opts := timerange.Presets
	i := slices.IndexFunc(opts, func(p timerange.PresetOption) bool { return p.Key == m.timeRange.PresetKey() })
	next := opts[(i+1)%len(opts)].Key
	if err := m.timeRange.SelectPreset(next); err != nil {
		return nil
	}
	tr := m.timeRange.Range()
	f := m.filters.Clone()
	return tea.Batch(
		m.feedCmd(func(ctx context.Context) { m.feed.SetTimeRange(ctx, tr) }),
		m.reloadFacetsFor(f, tr),
	)
}

func (m Model) retry() tea.Cmd {
	var cmds []tea.Cmd
	if m.snap.Error != nil || m.snap.WatchError == nil {
		cmds = append(cmds, m.feedCmd(m.feed.Refresh))
	}
	if m.snap.WatchError != nil {
		cmds = append(cmds, m.feedCmd(m.feed.RetryStreaming))
	}
	if m.facetErr != nil {
		cmds = append(cmds, m.reloadFacets())
	}
	return tea.Batch(cmds...)
}

func (m *Model) applySearch(value string) tea.Cmd {
	if value == m.filters.Search {
		return nil
	}
	f := m.filters.Clone()
	f.Search = value
	return m.setFilters(f)
}

// setFilters records f and dispatches it with a facet reload.
func (m *Model) setFilters(f filter.Filters) tea.Cmd {
	m.filters = f
	m.cursor, m.offset = 0, 0
	tr := m.timeRange.Range()
	return tea.Batch(
		m.feedCmd(func(ctx context.Context) { m.feed.SetFilters(ctx, f) }),
		m.reloadFacetsFor(f, tr),
	)
}

// maybeLoadMore requests the next page once the last row is on screen.
func (m Model) maybeLoadMore() tea.Cmd {
	s := m.snap
	if !s.HasMore || s.Loading || s.LoadingMore || s.Error != nil || m.mode != modeList {
		return nil
	}
	if m.offset+m.listHeight() < len(s.Activities) {
		return nil
	}
	return m.feedCmd(m.feed.LoadMore)
}

// feedCmd queues fn behind the feed intents issued before it.
func (m Model) feedCmd(fn func(ctx context.Context)) tea.Cmd {
	return m.intents.push(m.ctx, fn)
}

func (m Model) waitForChange() tea.Cmd {
	ch := m.updates
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return feedClosedMsg{}
		}
		return feedChangedMsg{}
	}
}

func (m Model) waitForEvent() tea.Cmd {
	ch, ctx := m.events, m.ctx
	return func() tea.Msg {
		select {
		case msg := <-ch:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) reloadFacets() tea.Cmd {
	return m.reloadFacetsFor(m.filters.Clone(), m.timeRange.Range())
}

func (m Model) reloadFacetsFor(f filter.Filters, tr timerange.TimeRange) tea.Cmd {
	if m.facets == nil {
		return nil
	}
	tracker, ctx := m.facets, m.ctx
	return func() tea.Msg {
		tracker.Reload(ctx, f, tr)
		return facetsLoadedMsg{}
	}
}

func (m *Model) applyFacets() {
	if m.facets == nil {
		return
	}
	result, loading := m.facets.State()
	m.facetsLoading = loading
	m.facetErr = result.Err
	for _, p := range m.pickers {
		labelFn := func(v string) string { return v }
		if p.Name == filter.FieldKind {
			labelFn = ui.DeriveKindLabel
		}
		p.SetOptions(ui.OptionsFromFacets(result.Options(p.Name), labelFn))
	}
}

func (m *Model) clampCursor() {
	if n := len(m.snap.Activities); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
	m.scroll()
}

func (m *Model) scroll() {
	h := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+h {
		m.offset = m.cursor - h + 1
	}
}

func (m *Model) shutdown() {
	m.debouncer.Stop()
	if m.unsub != nil {
		m.unsub()
	}
}
