package ui

import (
	"sort"
	"strings"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
)

// LinkResolver turns a linked resource into a navigation target. Returning ""
// renders the marker as plain text.
type LinkResolver interface {
	ResolveLink(resource v1alpha1.ActivityResource) string
}

// LinkResolverFunc adapts a function to LinkResolver.
type LinkResolverFunc func(v1alpha1.ActivityResource) string

func (f LinkResolverFunc) ResolveLink(r v1alpha1.ActivityResource) string { return f(r) }

// KubectlResolver renders links as kubectl resource references, e.g.
// "httpproxy.networking.datumapis.com/api -n default".
type KubectlResolver struct{}

func (KubectlResolver) ResolveLink(r v1alpha1.ActivityResource) string {
	if r.Kind == "" || r.Name == "" {
		return ""
	}
	ref := strings.ToLower(r.Kind)
	if r.APIGroup != "" {
		ref += "." + r.APIGroup
	}
	ref += "/" + r.Name
	if r.Namespace != "" {
		ref += " -n " + r.Namespace
	}
	return ref
}

// Segment is a run of summary text, linked when Target is set.
type Segment struct {
	Text   string
	Target string
}

// SummarySegments splits the summary at its link markers. Each marker links
// its first occurrence; overlapping and missing markers are left as text.
func SummarySegments(a *v1alpha1.Activity, resolver LinkResolver) []Segment {
	summary := a.Spec.Summary
	type span struct {
		start, end int
		target     string
	}
	var spans []span
	for _, link := range a.Spec.Links {
		if link.Marker == "" {
			continue
		}
		i := strings.Index(summary, link.Marker)
		if i < 0 {
			continue
		}
		target := ""
		if resolver != nil {
			target = resolver.ResolveLink(link.Resource)
		}
		spans = append(spans, span{start: i, end: i + len(link.Marker), target: target})
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var out []Segment
	pos := 0
	for _, s := range spans {
		if s.start < pos {
			continue
		}
		if s.start > pos {
			out = append(out, Segment{Text: summary[pos:s.start]})
		}
		out = append(out, Segment{Text: summary[s.start:s.end], Target: s.target})
		pos = s.end
	}
	if pos < len(summary) {
		out = append(out, Segment{Text: summary[pos:]})
	}
	return out
}

// RenderSummary joins the segments, styling linked ones with LinkStyle.
func RenderSummary(a *v1alpha1.Activity, resolver LinkResolver, styled bool) string {
	var b strings.Builder
	for _, s := range SummarySegments(a, resolver) {
		if s.Target != "" && styled {
			b.WriteString(LinkStyle.Render(s.Text))
			continue
		}
		b.WriteString(s.Text)
	}
	return b.String()
}
