package ui

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	auditv1 "k8s.io/apiserver/pkg/apis/audit/v1"
	"sigs.k8s.io/yaml"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
)

const (
	SectionAdvanced = "Advanced"
	SectionRaw      = "Raw object"
)

// Field is one labeled value of a detail section.
type Field struct {
	Label string
	Value string
}

// Section is a titled block of a detail view. Collapsible sections start
// collapsed.
type Section struct {
	Title       string
	Fields      []Field
	Body        string
	Collapsible bool
	Expanded    bool
}

// Visible reports whether the section content is shown.
func (s Section) Visible() bool {
	return !s.Collapsible || s.Expanded
}

// Detail is the full view of one record.
type Detail struct {
	Title    string
	Sections []Section
}

// Section returns the section titled title.
func (d *Detail) Section(title string) (*Section, bool) {
	for i := range d.Sections {
		if d.Sections[i].Title == title {
			return &d.Sections[i], true
		}
	}
	return nil, false
}

// Toggle expands or collapses a collapsible section.
func (d *Detail) Toggle(title string) {
	if s, ok := d.Section(title); ok && s.Collapsible {
		s.Expanded = !s.Expanded
	}
}

// Render draws the detail as plain text with styled headings.
func (d *Detail) Render() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(d.Title))
	b.WriteString("\n")
	for _, s := range d.Sections {
		b.WriteString("\n")
		heading := s.Title
		if s.Collapsible {
			marker := "▸"
			if s.Expanded {
				marker = "▾"
			}
			heading = marker + " " + heading
		}
		b.WriteString(TitleStyle.Render(heading))
		b.WriteString("\n")
		if !s.Visible() {
			continue
		}
		for _, f := range s.Fields {
			fmt.Fprintf(&b, "  %s %s\n", LabelStyle.Render(f.Label+":"), f.Value)
		}
		if s.Body != "" {
			b.WriteString(indent(s.Body, "  "))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ActivityDetail builds the detail view of an activity.
func ActivityDetail(a *v1alpha1.Activity, resolver LinkResolver) (*Detail, error) {
	spec := a.Spec
	d := &Detail{Title: RenderSummary(a, resolver, false)}

	d.Sections = append(d.Sections,
		Section{Title: "Overview", Fields: nonEmpty(
			Field{"Summary", spec.Summary},
			Field{"Source", ChangeSourceBadge(spec.ChangeSource).Text},
			Field{"Time", formatTime(a.CreationTimestamp.Time)},
		)},
		Section{Title: "Actor", Fields: nonEmpty(
			Field{"Name", spec.Actor.Name},
			Field{"Type", ActorTypeBadge(spec.Actor.Type).Text},
			Field{"Email", spec.Actor.Email},
		)},
		Section{Title: "Resource", Fields: resourceFields(spec.Resource)},
	)
	if spec.Tenant.Type != "" {
		d.Sections = append(d.Sections, Section{Title: "Tenant", Fields: nonEmpty(
			Field{"Type", spec.Tenant.Type},
			Field{"Name", spec.Tenant.Name},
		)})
	}
	if len(spec.Changes) > 0 {
		body, err := ChangesDiff(spec.Changes)
		if err != nil {
			return nil, err
		}
		d.Sections = append(d.Sections, Section{Title: "Changes", Body: body})
	}

	advanced := nonEmpty(
		Field{"Name", a.Name},
		Field{"UID", string(a.UID)},
		Field{"Resource version", a.ResourceVersion},
		Field{"Origin", strings.TrimSpace(spec.Origin.Type + " " + spec.Origin.ID)},
		Field{"Actor UID", spec.Actor.UID},
		Field{"Resource UID", spec.Resource.UID},
	)
	for _, l := range spec.Links {
		target := KubectlResolver{}.ResolveLink(l.Resource)
		advanced = append(advanced, Field{"Link", fmt.Sprintf("%q → %s", l.Marker, target)})
	}
	d.Sections = append(d.Sections, Section{Title: SectionAdvanced, Fields: advanced, Collapsible: true})

	raw, err := rawSection(a)
	if err != nil {
		return nil, err
	}
	d.Sections = append(d.Sections, raw)
	return d, nil
}

// AuditLogDetail builds the detail view of an audit event.
func AuditLogDetail(e *auditv1.Event) (*Detail, error) {
	d := &Detail{Title: strings.TrimSpace(e.Verb + " " + e.RequestURI)}

	d.Sections = append(d.Sections, Section{Title: "Request", Fields: nonEmpty(
		Field{"Verb", VerbBadge(e.Verb).Text},
		Field{"URI", e.RequestURI},
		Field{"Stage", string(e.Stage)},
		Field{"Received", formatTime(e.RequestReceivedTimestamp.Time)},
	)})

	user := nonEmpty(
		Field{"Username", e.User.Username},
		Field{"UID", e.User.UID},
		Field{"Groups", strings.Join(e.User.Groups, ", ")},
	)
	if e.ImpersonatedUser != nil {
		user = append(user, Field{"Impersonating", e.ImpersonatedUser.Username})
	}
	d.Sections = append(d.Sections, Section{Title: "User", Fields: user})

	if ref := e.ObjectRef; ref != nil {
		d.Sections = append(d.Sections, Section{Title: "Object", Fields: nonEmpty(
			Field{"Resource", ref.Resource},
			Field{"Subresource", ref.Subresource},
			Field{"Name", ref.Name},
			Field{"Namespace", ref.Namespace},
			Field{"Group", groupVersion(ref.APIGroup, ref.APIVersion)},
		)})
	}
	if st := e.ResponseStatus; st != nil {
		d.Sections = append(d.Sections, Section{Title: "Response", Fields: nonEmpty(
			Field{"Code", StatusBadge(st.Code).Text},
			Field{"Reason", string(st.Reason)},
			Field{"Message", st.Message},
		)})
	}

	advanced := nonEmpty(
		Field{"Audit ID", string(e.AuditID)},
		Field{"Level", string(e.Level)},
		Field{"Source IPs", strings.Join(e.SourceIPs, ", ")},
		Field{"User agent", e.UserAgent},
	)
	keys := make([]string, 0, len(e.Annotations))
	for k := range e.Annotations {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		advanced = append(advanced, Field{k, e.Annotations[k]})
	}
	d.Sections = append(d.Sections, Section{Title: SectionAdvanced, Fields: advanced, Collapsible: true})

	raw, err := rawSection(e)
	if err != nil {
		return nil, err
	}
	d.Sections = append(d.Sections, raw)
	return d, nil
}

// ChangesDiff renders field-level changes as one unified diff per field.
func ChangesDiff(changes []v1alpha1.ActivityChange) (string, error) {
	var b strings.Builder
	for _, c := range changes {
		diff := difflib.UnifiedDiff{
			A:        difflib.SplitLines(c.Old + "\n"),
			B:        difflib.SplitLines(c.New + "\n"),
			FromFile: c.Field + " (old)",
			ToFile:   c.Field + " (new)",
			Context:  1,
		}
		text, err := difflib.GetUnifiedDiffString(diff)
		if err != nil {
			return "", fmt.Errorf("failed to diff %s: %w", c.Field, err)
		}
		if text == "" {
			text = fmt.Sprintf("%s: unchanged\n", c.Field)
		}
		b.WriteString(text)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// ObjectDiff renders a unified diff between two versions of an object, each
// serialized as indented JSON. It returns "" when they are equal.
func ObjectDiff(prev, curr map[string]any) (string, error) {
	prevJSON, err := json.MarshalIndent(prev, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal previous object: %w", err)
	}
	currJSON, err := json.MarshalIndent(curr, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal current object: %w", err)
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(prevJSON) + "\n"),
		B:        difflib.SplitLines(string(currJSON) + "\n"),
		FromFile: "Previous",
		ToFile:   "Current",
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate diff: %w", err)
	}
	return text, nil
}

func rawSection(obj any) (Section, error) {
	raw, err := yaml.Marshal(obj)
	if err != nil {
		return Section{}, fmt.Errorf("failed to marshal raw object: %w", err)
	}
	return Section{Title: SectionRaw, Body: strings.TrimRight(string(raw), "\n"), Collapsible: true}, nil
}

func resourceFields(r v1alpha1.ActivityResource) []Field {
	kind := r.Kind
	if label := DeriveKindLabel(kind); label != kind {
		kind = fmt.Sprintf("%s (%s)", label, r.Kind)
	}
	return nonEmpty(
		Field{"Kind", kind},
		Field{"Name", r.Name},
		Field{"Namespace", r.Namespace},
		Field{"Group", groupVersion(r.APIGroup, r.APIVersion)},
	)
}

func groupVersion(group, version string) string {
	switch {
	case group == "" && version == "":
		return ""
	case group == "":
		return "core/" + version
	case version == "":
		return group
	}
	return group + "/" + version
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func nonEmpty(fields ...Field) []Field {
	out := fields[:0]
	for _, f := range fields {
		if f.Value != "" {
			out = append(out, f)
		}
	}
	return out
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}
