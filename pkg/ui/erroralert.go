package ui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/lipgloss"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	statusfmt "go.miloapis.com/activityfeed/internal/apierrors"
	"go.miloapis.com/activityfeed/pkg/feed"
)

// ErrorCategory tells which request an error came from.
type ErrorCategory string

const (
	CategoryBaseQuery ErrorCategory = "base-query"
	CategoryWatch     ErrorCategory = "watch"
	CategoryFacet     ErrorCategory = "facet"
)

// ErrorFormatter overrides the message of an alert. Returning "" falls back
// to the default message.
type ErrorFormatter func(category ErrorCategory, err error) string

// ErrorAlert is the shared error affordance of the feed views.
type ErrorAlert struct {
	Category  ErrorCategory
	Err       error
	Formatter ErrorFormatter
}

// NewErrorAlert returns nil for a nil error.
func NewErrorAlert(category ErrorCategory, err error, formatter ErrorFormatter) *ErrorAlert {
	if err == nil {
		return nil
	}
	return &ErrorAlert{Category: category, Err: err, Formatter: formatter}
}

// AlertsFor collects the alerts of a feed snapshot and a facet load.
func AlertsFor(snap feed.Snapshot, facetErr error, formatter ErrorFormatter) []*ErrorAlert {
	var out []*ErrorAlert
	if errors.Is(snap.Error, feed.ErrClosed) {
		return nil
	}
	for _, a := range []*ErrorAlert{
		NewErrorAlert(CategoryBaseQuery, snap.Error, formatter),
		NewErrorAlert(CategoryWatch, snap.WatchError, formatter),
		NewErrorAlert(CategoryFacet, facetErr, formatter),
	} {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}

// Title is the one-line heading of the alert.
func (a *ErrorAlert) Title() string {
	switch a.Category {
	case CategoryWatch:
		return "Live updates interrupted"
	case CategoryFacet:
		return "Some filter options could not be loaded"
	}
	return "Failed to load activities"
}

// Message is the error detail shown under the title.
func (a *ErrorAlert) Message() string {
	if a.Formatter != nil {
		if msg := a.Formatter(a.Category, a.Err); msg != "" {
			return msg
		}
	}
	return errorMessage(a.Err)
}

// Retryable reports whether the view offers a retry action. Facet failures
// degrade to empty options and are retried with the next filter change.
func (a *ErrorAlert) Retryable() bool {
	return a.Category == CategoryBaseQuery || a.Category == CategoryWatch
}

func errorMessage(err error) string {
	var status apierrors.APIStatus
	if errors.As(err, &status) {
		if msg := statusfmt.FormatStatus(status.Status()); msg != "" {
			return msg
		}
	}
	var agg utilerrors.Aggregate
	if errors.As(err, &agg) {
		msgs := make([]string, 0, len(agg.Errors()))
		for _, e := range agg.Errors() {
			msgs = append(msgs, e.Error())
		}
		return strings.Join(msgs, "\n")
	}
	return err.Error()
}

var (
	alertStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Destructive).
			Padding(0, 1)
	alertTitleStyle = lipgloss.NewStyle().Foreground(Destructive).Bold(true)
	alertHintStyle  = lipgloss.NewStyle().Foreground(Muted).Italic(true)
)

// Render draws the alert box. retryKey is shown as a hint when the alert is
// retryable.
func (a *ErrorAlert) Render(width int, retryKey string) string {
	var b strings.Builder
	b.WriteString(alertTitleStyle.Render(a.Title()))
	b.WriteString("\n")
	b.WriteString(a.Message())
	if a.Retryable() && retryKey != "" {
		b.WriteString("\n")
		b.WriteString(alertHintStyle.Render("press " + retryKey + " to retry"))
	}
	style := alertStyle
	if width > 4 {
		style = style.Width(width - 2)
	}
	return style.Render(b.String())
}
