package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
)

func TestBadges(t *testing.T) {
	tests := []struct {
		name  string
		badge Badge
		text  string
		tone  Tone
	}{
		{"human", ChangeSourceBadge("human"), "human", ToneInfo},
		{"system", ChangeSourceBadge("system"), "system", ToneNeutral},
		{"empty source", ChangeSourceBadge(""), "unknown", ToneNeutral},
		{"user", ActorTypeBadge("user"), "user", ToneInfo},
		{"service account", ActorTypeBadge("ServiceAccount"), "service account", ToneWarning},
		{"create", VerbBadge("create"), "create", ToneSuccess},
		{"patch", VerbBadge("PATCH"), "patch", ToneWarning},
		{"delete", VerbBadge("delete"), "delete", ToneDanger},
		{"get", VerbBadge("get"), "get", ToneNeutral},
		{"200", StatusBadge(200), "200", ToneSuccess},
		{"404", StatusBadge(404), "404", ToneWarning},
		{"503", StatusBadge(503), "503", ToneDanger},
		{"unknown status", StatusBadge(0), "-", ToneNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.text, tt.badge.String())
			assert.Equal(t, tt.tone, tt.badge.Tone)
			assert.Contains(t, tt.badge.Render(), tt.text)
		})
	}
}

func TestSummarySegments(t *testing.T) {
	proxy := v1alpha1.ActivityResource{APIGroup: "networking.datumapis.com", Kind: "HTTPProxy", Name: "api", Namespace: "default"}
	a := &v1alpha1.Activity{Spec: v1alpha1.ActivitySpec{
		Summary: "alice created HTTPProxy api in default",
		Links: []v1alpha1.ActivityLink{
			{Marker: "HTTPProxy api", Resource: proxy},
			{Marker: "missing", Resource: proxy},
			{Marker: "api", Resource: proxy},
		},
	}}

	segs := SummarySegments(a, KubectlResolver{})
	assert.Equal(t, []Segment{
		{Text: "alice created "},
		{Text: "HTTPProxy api", Target: "httpproxy.networking.datumapis.com/api -n default"},
		{Text: " in default"},
	}, segs)

	noTarget := LinkResolverFunc(func(v1alpha1.ActivityResource) string { return "" })
	assert.Equal(t, a.Spec.Summary, RenderSummary(a, noTarget, true))
	assert.Equal(t, a.Spec.Summary, RenderSummary(a, nil, false))
}

func TestKubectlResolver(t *testing.T) {
	r := KubectlResolver{}
	assert.Equal(t, "configmap/settings -n prod", r.ResolveLink(v1alpha1.ActivityResource{Kind: "ConfigMap", Name: "settings", Namespace: "prod"}))
	assert.Empty(t, r.ResolveLink(v1alpha1.ActivityResource{Kind: "ConfigMap"}))
}
