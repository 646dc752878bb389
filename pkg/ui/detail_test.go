package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	authnv1 "k8s.io/api/authentication/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	auditv1 "k8s.io/apiserver/pkg/apis/audit/v1"

	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
)

func testActivity() *v1alpha1.Activity {
	return &v1alpha1.Activity{
		ObjectMeta: metav1.ObjectMeta{
			Name:              "act-1",
			UID:               "uid-1",
			CreationTimestamp: metav1.NewTime(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)),
		},
		Spec: v1alpha1.ActivitySpec{
			Summary:      "alice scaled Deployment web",
			ChangeSource: v1alpha1.ChangeSourceHuman,
			Actor:        v1alpha1.ActivityActor{Type: "user", Name: "alice", Email: "alice@example.com"},
			Resource:     v1alpha1.ActivityResource{APIGroup: "apps", APIVersion: "v1", Kind: "Deployment", Name: "web", Namespace: "prod"},
			Origin:       v1alpha1.ActivityOrigin{Type: "audit", ID: "audit-1"},
			Changes: []v1alpha1.ActivityChange{
				{Field: "spec.replicas", Old: "2", New: "5"},
			},
			Links: []v1alpha1.ActivityLink{{
				Marker:   "Deployment web",
				Resource: v1alpha1.ActivityResource{APIGroup: "apps", Kind: "Deployment", Name: "web", Namespace: "prod"},
			}},
		},
	}
}

func fieldValue(t *testing.T, d *Detail, section, label string) string {
	t.Helper()
	s, ok := d.Section(section)
	require.True(t, ok, "section %q", section)
	for _, f := range s.Fields {
		if f.Label == label {
			return f.Value
		}
	}
	return ""
}

func TestActivityDetail(t *testing.T) {
	d, err := ActivityDetail(testActivity(), KubectlResolver{})
	require.NoError(t, err)

	assert.Equal(t, "alice scaled Deployment web", d.Title)
	assert.Equal(t, "human", fieldValue(t, d, "Overview", "Source"))
	assert.Equal(t, "2025-03-10T12:00:00Z", fieldValue(t, d, "Overview", "Time"))
	assert.Equal(t, "alice@example.com", fieldValue(t, d, "Actor", "Email"))
	assert.Equal(t, "apps/v1", fieldValue(t, d, "Resource", "Group"))
	assert.Equal(t, "audit audit-1", fieldValue(t, d, SectionAdvanced, "Origin"))
	assert.Contains(t, fieldValue(t, d, SectionAdvanced, "Link"), "deployment.apps/web -n prod")

	_, ok := d.Section("Tenant")
	assert.False(t, ok, "tenant section only when set")

	changes, ok := d.Section("Changes")
	require.True(t, ok)
	assert.Contains(t, changes.Body, "-2")
	assert.Contains(t, changes.Body, "+5")

	raw, ok := d.Section(SectionRaw)
	require.True(t, ok)
	assert.True(t, raw.Collapsible)
	assert.False(t, raw.Visible())
	assert.Contains(t, raw.Body, "summary: alice scaled Deployment web")

	assert.NotContains(t, d.Render(), "summary: alice")
	d.Toggle(SectionRaw)
	assert.True(t, raw.Visible())
	assert.Contains(t, d.Render(), "summary: alice")

	d.Toggle("Overview")
	overview, _ := d.Section("Overview")
	assert.False(t, overview.Expanded, "non-collapsible sections ignore toggles")
}

func TestActivityDetail_DerivedKindLabel(t *testing.T) {
	a := testActivity()
	a.Spec.Resource.Kind = "HTTPProxy"
	a.Spec.Tenant = v1alpha1.ActivityTenant{Type: "project", Name: "p1"}
	a.Spec.Changes = nil

	d, err := ActivityDetail(a, nil)
	require.NoError(t, err)
	assert.Equal(t, "HTTP Proxy (HTTPProxy)", fieldValue(t, d, "Resource", "Kind"))
	assert.Equal(t, "p1", fieldValue(t, d, "Tenant", "Name"))
	_, ok := d.Section("Changes")
	assert.False(t, ok)
}

func TestAuditLogDetail(t *testing.T) {
	e := &auditv1.Event{
		AuditID:    "a-1",
		Level:      auditv1.LevelRequestResponse,
		Stage:      auditv1.StageResponseComplete,
		Verb:       "delete",
		RequestURI: "/apis/apps/v1/namespaces/prod/deployments/web",
		User:       authnv1.UserInfo{Username: "alice", Groups: []string{"admins", "devs"}},
		ImpersonatedUser: &authnv1.UserInfo{
			Username: "system:serviceaccount:prod:deployer",
		},
		SourceIPs: []string{"10.0.0.1"},
		ObjectRef: &auditv1.ObjectReference{
			Resource: "deployments", Namespace: "prod", Name: "web", APIGroup: "apps", APIVersion: "v1",
		},
		ResponseStatus: &metav1.Status{Code: 403, Message: "forbidden"},
		Annotations:    map[string]string{"b": "2", "a": "1"},
	}

	d, err := AuditLogDetail(e)
	require.NoError(t, err)
	assert.Equal(t, "delete /apis/apps/v1/namespaces/prod/deployments/web", d.Title)
	assert.Equal(t, "admins, devs", fieldValue(t, d, "User", "Groups"))
	assert.Equal(t, "system:serviceaccount:prod:deployer", fieldValue(t, d, "User", "Impersonating"))
	assert.Equal(t, "apps/v1", fieldValue(t, d, "Object", "Group"))
	assert.Equal(t, "403", fieldValue(t, d, "Response", "Code"))
	assert.Equal(t, "10.0.0.1", fieldValue(t, d, SectionAdvanced, "Source IPs"))

	adv, _ := d.Section(SectionAdvanced)
	var labels []string
	for _, f := range adv.Fields {
		labels = append(labels, f.Label)
	}
	assert.Equal(t, []string{"Audit ID", "Level", "Source IPs", "a", "b"}, labels)

	raw, ok := d.Section(SectionRaw)
	require.True(t, ok)
	assert.Contains(t, raw.Body, "auditID: a-1")
}

func TestChangesDiff_Unchanged(t *testing.T) {
	body, err := ChangesDiff([]v1alpha1.ActivityChange{{Field: "metadata.labels", Old: "x", New: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "metadata.labels: unchanged", body)
}

func TestObjectDiff(t *testing.T) {
	tests := []struct {
		name      string
		prev      map[string]any
		curr      map[string]any
		want      []string
		wantEmpty bool
	}{
		{
			name: "changed value",
			prev: map[string]any{"spec": map[string]any{"replicas": 1}},
			curr: map[string]any{"spec": map[string]any{"replicas": 3}},
			want: []string{"--- Previous", "+++ Current", `-    "replicas": 1`, `+    "replicas": 3`},
		},
		{
			name: "added field",
			prev: map[string]any{"data": map[string]any{"a": "1"}},
			curr: map[string]any{"data": map[string]any{"a": "1", "b": "2"}},
			want: []string{`+    "b": "2"`},
		},
		{
			name:      "equal",
			prev:      map[string]any{"data": map[string]any{"a": "1"}},
			curr:      map[string]any{"data": map[string]any{"a": "1"}},
			wantEmpty: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ObjectDiff(tt.prev, tt.curr)
			require.NoError(t, err)
			if tt.wantEmpty {
				assert.Empty(t, got)
				return
			}
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
		})
	}
}
