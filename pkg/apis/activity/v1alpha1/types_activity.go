// +k8s:openapi-gen=true
package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Change sources reported in ActivitySpec.ChangeSource.
const (
	ChangeSourceHuman  = "human"
	ChangeSourceSystem = "system"
)

// Activity is a human-readable summary of one detected change to a resource.
//
// Activities are append-only: the server never mutates a published activity,
// newer activities supersede older ones in a feed.
type Activity struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec ActivitySpec `json:"spec"`
}

// Key returns the identifier used to deduplicate activities in a feed.
// The UID is preferred; activities served without one fall back to the name.
func (a *Activity) Key() string {
	if a.UID != "" {
		return string(a.UID)
	}
	return a.Name
}

// ActivitySpec describes what changed, who changed it and where it came from.
type ActivitySpec struct {
	// Summary is the rendered sentence, e.g. "alice created HTTPProxy api".
	Summary string `json:"summary"`

	// ChangeSource is "human" or "system".
	ChangeSource string `json:"changeSource"`

	Actor    ActivityActor    `json:"actor"`
	Resource ActivityResource `json:"resource"`

	// Links maps substrings of Summary to resources they refer to.
	//
	// +optional
	// +listType=atomic
	Links []ActivityLink `json:"links,omitempty"`

	// Tenant is the scope the change happened in.
	//
	// +optional
	Tenant ActivityTenant `json:"tenant,omitempty"`

	// Changes lists field-level modifications in the order they were detected.
	//
	// +optional
	// +listType=atomic
	Changes []ActivityChange `json:"changes,omitempty"`

	Origin ActivityOrigin `json:"origin"`
}

// ActivityActor identifies who performed the change.
type ActivityActor struct {
	// Type is "user", "serviceaccount" or "controller".
	Type string `json:"type"`
	Name string `json:"name"`

	// +optional
	UID string `json:"uid,omitempty"`
	// +optional
	Email string `json:"email,omitempty"`
}

// ActivityResource identifies the resource that changed.
type ActivityResource struct {
	APIGroup string `json:"apiGroup"`
	// +optional
	APIVersion string `json:"apiVersion,omitempty"`
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	// +optional
	Namespace string `json:"namespace,omitempty"`
	// +optional
	UID string `json:"uid,omitempty"`
}

// ActivityLink ties a marker in the summary to a resource reference.
type ActivityLink struct {
	// Marker is the exact summary substring to render as a link.
	Marker   string           `json:"marker"`
	Resource ActivityResource `json:"resource"`
}

// ActivityTenant is the tenancy scope of an activity.
type ActivityTenant struct {
	// Type is "platform", "organization", "project" or "user".
	Type string `json:"type"`
	// +optional
	Name string `json:"name,omitempty"`
}

// ActivityOrigin correlates an activity with the record it was generated from.
type ActivityOrigin struct {
	// Type is "audit" or "event".
	Type string `json:"type"`
	// ID is the audit ID or event UID.
	ID string `json:"id"`
}

// ActivityChange is a single field-level modification.
type ActivityChange struct {
	// Field is the dotted path of the changed field, e.g. "spec.replicas".
	Field string `json:"field"`
	// +optional
	Old string `json:"old,omitempty"`
	// +optional
	New string `json:"new,omitempty"`
}

// ActivityList is a list of Activity objects.
type ActivityList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`

	Items []Activity `json:"items"`
}
