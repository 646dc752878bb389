// +k8s:openapi-gen=true
package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	auditv1 "k8s.io/apiserver/pkg/apis/audit/v1"
)

// ActivityQuery is an ephemeral, create-only resource. The server evaluates
// Spec on create and returns one page of activities in Status.
//
//	apiVersion: activity.miloapis.com/v1alpha1
//	kind: ActivityQuery
//	spec:
//	  startTime: "now-7d"
//	  endTime: "now"
//	  changeSource: "human"
//	  limit: 50
type ActivityQuery struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ActivityQuerySpec   `json:"spec"`
	Status ActivityQueryStatus `json:"status,omitempty"`
}

// ActivityQuerySpec defines the search window, filters and page.
//
// StartTime and EndTime accept relative ("now-7d") or RFC3339 values.
type ActivityQuerySpec struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`

	// +optional
	Namespace string `json:"namespace,omitempty"`
	// +optional
	ChangeSource string `json:"changeSource,omitempty"`
	// Search is a full-text match on summaries.
	// +optional
	Search string `json:"search,omitempty"`
	// Filter is a CEL expression over spec.* and metadata.* fields.
	// +optional
	Filter string `json:"filter,omitempty"`
	// +optional
	ResourceKind string `json:"resourceKind,omitempty"`
	// +optional
	ResourceUID string `json:"resourceUID,omitempty"`
	// +optional
	APIGroup string `json:"apiGroup,omitempty"`
	// +optional
	ActorName string `json:"actorName,omitempty"`

	// Limit is the page size. Default 100, maximum 1000.
	// +optional
	Limit int32 `json:"limit,omitempty"`

	// Continue is the cursor returned in a previous status. All other spec
	// fields must be identical across pages.
	// +optional
	Continue string `json:"continue,omitempty"`
}

// ActivityQueryStatus holds one page of results, newest first.
type ActivityQueryStatus struct {
	// +listType=atomic
	Results []Activity `json:"results,omitempty"`

	// Continue is non-empty when more results are available.
	Continue string `json:"continue,omitempty"`

	// +optional
	EffectiveStartTime string `json:"effectiveStartTime,omitempty"`
	// +optional
	EffectiveEndTime string `json:"effectiveEndTime,omitempty"`
}

// AuditLogQuery searches raw audit events. Like ActivityQuery it is
// create-only and returns its page in Status.
type AuditLogQuery struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   AuditLogQuerySpec   `json:"spec"`
	Status AuditLogQueryStatus `json:"status,omitempty"`
}

// AuditLogQuerySpec defines the audit log search window and page.
type AuditLogQuerySpec struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`

	// Filter is a CEL expression over verb, user.*, objectRef.* and
	// responseStatus.code.
	// +optional
	Filter string `json:"filter,omitempty"`
	// +optional
	Limit int32 `json:"limit,omitempty"`
	// +optional
	Continue string `json:"continue,omitempty"`
}

// AuditLogQueryStatus holds one page of audit events, newest first.
type AuditLogQueryStatus struct {
	// +listType=atomic
	Results []auditv1.Event `json:"results,omitempty"`

	Continue string `json:"continue,omitempty"`

	// +optional
	EffectiveStartTime string `json:"effectiveStartTime,omitempty"`
	// +optional
	EffectiveEndTime string `json:"effectiveEndTime,omitempty"`
}
