package ui

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
)

// Tone selects the badge color.
type Tone int

const (
	ToneNeutral Tone = iota
	ToneInfo
	ToneSuccess
	ToneWarning
	ToneDanger
)

// Badge is a short colored label.
type Badge struct {
	Text string
	Tone Tone
}

var toneColors = map[Tone]lipgloss.Color{
	ToneNeutral: Muted,
	ToneInfo:    Primary,
	ToneSuccess: Success,
	ToneWarning: Warning,
	ToneDanger:  Destructive,
}

// Render draws the badge.
func (b Badge) Render() string {
	return lipgloss.NewStyle().
		Foreground(toneColors[b.Tone]).
		Bold(b.Tone != ToneNeutral).
		Render("[" + b.Text + "]")
}

func (b Badge) String() string {
	return b.Text
}

// ChangeSourceBadge labels human and system changes.
func ChangeSourceBadge(source string) Badge {
	switch source {
	case v1alpha1.ChangeSourceHuman:
		return Badge{Text: "human", Tone: ToneInfo}
	case v1alpha1.ChangeSourceSystem:
		return Badge{Text: "system", Tone: ToneNeutral}
	}
	if source == "" {
		source = "unknown"
	}
	return Badge{Text: source, Tone: ToneNeutral}
}

// ActorTypeBadge labels the actor type.
func ActorTypeBadge(actorType string) Badge {
	switch strings.ToLower(actorType) {
	case "user":
		return Badge{Text: "user", Tone: ToneInfo}
	case "serviceaccount":
		return Badge{Text: "service account", Tone: ToneWarning}
	case "controller":
		return Badge{Text: "controller", Tone: ToneNeutral}
	}
	if actorType == "" {
		actorType = "unknown"
	}
	return Badge{Text: actorType, Tone: ToneNeutral}
}

// VerbBadge labels an audit verb.
func VerbBadge(verb string) Badge {
	switch strings.ToLower(verb) {
	case "create":
		return Badge{Text: "create", Tone: ToneSuccess}
	case "update", "patch":
		return Badge{Text: strings.ToLower(verb), Tone: ToneWarning}
	case "delete", "deletecollection":
		return Badge{Text: strings.ToLower(verb), Tone: ToneDanger}
	}
	return Badge{Text: verb, Tone: ToneNeutral}
}

// StatusBadge labels an HTTP response code. Zero means the response is
// unknown.
func StatusBadge(code int32) Badge {
	if code == 0 {
		return Badge{Text: "-", Tone: ToneNeutral}
	}
	text := strconv.Itoa(int(code))
	switch {
	case code >= 500:
		return Badge{Text: text, Tone: ToneDanger}
	case code >= 400:
		return Badge{Text: text, Tone: ToneWarning}
	case code >= 200 && code < 300:
		return Badge{Text: text, Tone: ToneSuccess}
	}
	return Badge{Text: text, Tone: ToneNeutral}
}
