// +k8s:openapi-gen=true
package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Facet fields supported by ActivityFacetQuery.
const (
	FacetFieldActorName         = "spec.actor.name"
	FacetFieldActorType         = "spec.actor.type"
	FacetFieldAPIGroup          = "spec.resource.apiGroup"
	FacetFieldResourceKind      = "spec.resource.kind"
	FacetFieldResourceNamespace = "spec.resource.namespace"
	FacetFieldChangeSource      = "spec.changeSource"
)

// FacetTimeRange is the window facets are aggregated over. Both bounds accept
// relative and RFC3339 values; End defaults to "now".
type FacetTimeRange struct {
	// +optional
	Start string `json:"start,omitempty"`
	// +optional
	End string `json:"end,omitempty"`
}

// FacetSpec requests the distinct values of one field.
type FacetSpec struct {
	Field string `json:"field"`

	// Limit caps the number of values. Default 20, maximum 100.
	// +optional
	Limit int32 `json:"limit,omitempty"`
}

// FacetResult holds the distinct values for one requested field.
type FacetResult struct {
	Field string `json:"field"`

	// +optional
	// +listType=atomic
	Values []FacetValue `json:"values,omitempty"`
}

// FacetValue is a distinct field value and the number of matching records.
type FacetValue struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// ActivityFacetQuery returns distinct activity field values with counts,
// used to populate filter dropdowns.
type ActivityFacetQuery struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ActivityFacetQuerySpec   `json:"spec"`
	Status ActivityFacetQueryStatus `json:"status,omitempty"`
}

// ActivityFacetQuerySpec narrows the activities facets are computed over.
type ActivityFacetQuerySpec struct {
	// +optional
	TimeRange FacetTimeRange `json:"timeRange,omitempty"`
	// +optional
	Filter string `json:"filter,omitempty"`
	// +listType=atomic
	Facets []FacetSpec `json:"facets"`
}

// ActivityFacetQueryStatus contains one result per requested facet.
type ActivityFacetQueryStatus struct {
	// +optional
	// +listType=atomic
	Facets []FacetResult `json:"facets,omitempty"`
}

// AuditLogFacetsQuery is the audit log counterpart of ActivityFacetQuery.
// Supported fields are verb, user.username, user.uid, responseStatus.code,
// objectRef.namespace, objectRef.resource and objectRef.apiGroup.
type AuditLogFacetsQuery struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   AuditLogFacetsQuerySpec   `json:"spec"`
	Status AuditLogFacetsQueryStatus `json:"status,omitempty"`
}

// AuditLogFacetsQuerySpec narrows the audit events facets are computed over.
type AuditLogFacetsQuerySpec struct {
	// +optional
	TimeRange FacetTimeRange `json:"timeRange,omitempty"`
	// +optional
	Filter string `json:"filter,omitempty"`
	// +listType=atomic
	Facets []FacetSpec `json:"facets"`
}

// AuditLogFacetsQueryStatus contains one result per requested facet.
type AuditLogFacetsQueryStatus struct {
	// +optional
	// +listType=atomic
	Facets []FacetResult `json:"facets,omitempty"`
}
