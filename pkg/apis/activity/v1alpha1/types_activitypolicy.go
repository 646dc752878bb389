// +k8s:openapi-gen=true
package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ActivityPolicy holds the translation rules for one resource kind.
//
//	apiVersion: activity.miloapis.com/v1alpha1
//	kind: ActivityPolicy
//	metadata:
//	  name: networking-httpproxy
//	spec:
//	  resource:
//	    apiGroup: networking.datumapis.com
//	    kind: HTTPProxy
//	  auditRules:
//	    - match: "audit.verb == 'create'"
//	      summary: "{{ actor }} created {{ link(kind + ' ' + audit.objectRef.name, audit.responseObject) }}"
type ActivityPolicy struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ActivityPolicySpec   `json:"spec"`
	Status ActivityPolicyStatus `json:"status,omitempty"`
}

// ActivityPolicySpec targets a resource and lists its rules in evaluation order.
type ActivityPolicySpec struct {
	Resource ActivityPolicyResource `json:"resource"`

	// +optional
	// +listType=atomic
	AuditRules []ActivityPolicyRule `json:"auditRules,omitempty"`

	// +optional
	// +listType=atomic
	EventRules []ActivityPolicyRule `json:"eventRules,omitempty"`
}

// ActivityPolicyResource identifies the target resource. APIGroup is empty
// for the core group.
type ActivityPolicyResource struct {
	APIGroup string `json:"apiGroup"`
	Kind     string `json:"kind"`
}

// ActivityPolicyRule is a CEL match expression and a summary template.
type ActivityPolicyRule struct {
	Match   string `json:"match"`
	Summary string `json:"summary"`
}

// ActivityPolicyStatus reports whether the policy's rules compiled.
type ActivityPolicyStatus struct {
	// +optional
	// +listType=map
	// +listMapKey=type
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// +optional
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`
}

// ActivityPolicyList is a list of ActivityPolicy objects.
type ActivityPolicyList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`

	Items []ActivityPolicy `json:"items"`
}
