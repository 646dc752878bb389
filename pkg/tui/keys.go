package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Open      key.Binding
	Back      key.Binding
	Search    key.Binding
	Filters   key.Binding
	NextField key.Binding
	Toggle    key.Binding
	Clear     key.Binding
	Source    key.Binding
	TimeRange key.Binding
	ShowNew   key.Binding
	Stream    key.Binding
	Retry     key.Binding
	Advanced  key.Binding
	Raw       key.Binding
	Quit      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Open:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
		Back:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Search:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Filters:   key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "filters")),
		NextField: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next filter")),
		Toggle:    key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "select")),
		Clear:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear")),
		Source:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "source")),
		TimeRange: key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "time range")),
		ShowNew:   key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "show new")),
		Stream:    key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "live")),
		Retry:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry")),
		Advanced:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "advanced")),
		Raw:       key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "raw")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) listHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Open, k.Search, k.Filters, k.Source, k.TimeRange, k.Stream, k.Retry, k.Quit}
}
