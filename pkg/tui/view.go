package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go.miloapis.com/activityfeed/pkg/filter"
	"go.miloapis.com/activityfeed/pkg/ui"
)

var fieldLabels = map[string]string{
	filter.FieldKind:      "Kind",
	filter.FieldActor:     "Actor",
	filter.FieldNamespace: "Namespace",
	filter.FieldAPIGroup:  "API group",
}

// chrome is the number of lines around the list: title, filter bar, search
// and footer.
const chrome = 5

// View renders the current mode.
func (m Model) View() string {
	if m.mode == modeDetail && m.detail != nil {
		return m.viewport.View() + "\n" + ui.LabelStyle.Render("esc back · a advanced · y raw · q quit")
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.filterBarView())
	b.WriteString("\n")
	if m.mode == modeSearch || m.search.Value() != "" {
		b.WriteString(m.search.View())
		b.WriteString("\n")
	}
	if n := m.snap.NewActivitiesCount; n > 0 {
		b.WriteString(ui.BannerStyle.Render(fmt.Sprintf("%d new %s · press n to show", n, plural(n, "activity", "activities"))))
		b.WriteString("\n")
	}
	for _, a := range m.alerts() {
		b.WriteString(a.Render(m.width, "r"))
		b.WriteString("\n")
	}
	if m.mode == modePicker {
		b.WriteString(m.pickerView())
	} else {
		b.WriteString(m.listView())
	}
	b.WriteString("\n")
	b.WriteString(m.footerView())
	return b.String()
}

func (m Model) alerts() []*ui.ErrorAlert {
	return ui.AlertsFor(m.snap, m.facetErr, nil)
}

func (m Model) headerView() string {
	live := ui.LabelStyle.Render("paused")
	if m.snap.Streaming {
		live = lipgloss.NewStyle().Foreground(ui.Success).Render("● live")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		ui.TitleStyle.Render("Activity"),
		"  ",
		m.timeRange.Label(),
		"  ",
		live,
	)
}

func (m Model) filterBarView() string {
	parts := []string{ui.LabelStyle.Render("Source:") + " " + m.source.Selected()}
	for i, p := range m.pickers {
		label := ui.LabelStyle.Render(fieldLabels[p.Name]+":") + " " + p.Label()
		if m.mode == modePicker && i == m.field {
			label = ui.SelectedStyle.Render(fieldLabels[p.Name]+": "+p.Label())
		}
		parts = append(parts, label)
	}
	if m.facetsLoading {
		parts = append(parts, ui.LabelStyle.Render("loading filters…"))
	}
	return strings.Join(parts, " | ")
}

func (m Model) pickerView() string {
	p := m.pickers[m.field]
	options := p.Options()
	if len(options) == 0 {
		return ui.LabelStyle.Render("  no values in this time range")
	}
	var b strings.Builder
	for i, o := range options {
		check := "[ ]"
		if p.IsSelected(o.Value) {
			check = "[x]"
		}
		line := fmt.Sprintf("%s %s", check, o.DisplayLabel())
		if i == m.option {
			line = ui.SelectedStyle.Render(line)
		}
		b.WriteString("  " + line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) listView() string {
	items := m.snap.Activities
	if len(items) == 0 {
		if m.snap.Loading {
			return ui.LabelStyle.Render("  Loading activities…")
		}
		return ui.LabelStyle.Render("  No activity in this time range.")
	}

	end := min(m.offset+m.listHeight(), len(items))
	var b strings.Builder
	for i := m.offset; i < end; i++ {
		a := &items[i]
		row := fmt.Sprintf("%s %s %s",
			ui.LabelStyle.Render(a.CreationTimestamp.Local().Format("Jan 02 15:04:05")),
			ui.ChangeSourceBadge(a.Spec.ChangeSource).Render(),
			ui.RenderSummary(a, m.resolver, true),
		)
		if i == m.cursor {
			row = ui.SelectedStyle.Render(">") + " " + row
		} else {
			row = "  " + row
		}
		b.WriteString(row)
		if i < end-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) footerView() string {
	var status string
	switch {
	case m.snap.Loading:
		status = "Loading…"
	case m.snap.LoadingMore:
		status = "Loading more…"
	case m.snap.HasMore:
		status = fmt.Sprintf("%d shown · more below", len(m.snap.Activities))
	default:
		status = fmt.Sprintf("%d shown · end of feed", len(m.snap.Activities))
	}
	var help []string
	for _, k := range m.keys.listHelp() {
		h := k.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	return ui.LabelStyle.Render(status + " · " + strings.Join(help, " · "))
}

// listHeight is the number of rows the list can show.
func (m Model) listHeight() int {
	if m.height == 0 {
		return 20
	}
	used := chrome + 4*len(m.alerts())
	if m.snap.NewActivitiesCount > 0 {
		used++
	}
	return max(m.height-used, 1)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
