package v1alpha1

import (
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// GroupName is the group name for the activity API
const GroupName = "activity.miloapis.com"

// SchemeGroupVersion is group version used to register these objects
var SchemeGroupVersion = schema.GroupVersion{Group: GroupName, Version: "v1alpha1"}

var (
	// SchemeBuilder is the scheme builder for this API group
	SchemeBuilder = runtime.NewSchemeBuilder(addKnownTypes)
	// AddToScheme adds the types in this group-version to the given scheme
	AddToScheme = SchemeBuilder.AddToScheme
)

// Resource takes an unqualified resource and returns a Group qualified GroupResource
func Resource(resource string) schema.GroupResource {
	return SchemeGroupVersion.WithResource(resource).GroupResource()
}

// addKnownTypes adds the set of types defined in this package to the supplied scheme
func addKnownTypes(scheme *runtime.Scheme) error {
	scheme.AddKnownTypes(SchemeGroupVersion,
		&Activity{},
		&ActivityList{},
		&ActivityQuery{},
		&ActivityFacetQuery{},
		&AuditLogQuery{},
		&AuditLogFacetsQuery{},
		&ActivityPolicy{},
		&ActivityPolicyList{},
	)
	metav1.AddToGroupVersion(scheme, SchemeGroupVersion)

	// Field selectors accepted by the Activity watch endpoint.
	activityGVK := SchemeGroupVersion.WithKind("Activity")
	return scheme.AddFieldLabelConversionFunc(activityGVK, ActivityFieldLabelConversionFunc)
}

// ActivityFieldLabelConversionFunc validates field selector labels for
// Activity list and watch requests.
func ActivityFieldLabelConversionFunc(label, value string) (string, string, error) {
	for _, supported := range SupportedActivityFieldSelectors {
		if label == supported {
			return label, value, nil
		}
	}
	return "", "", fmt.Errorf("%q is not a known field selector: only %q",
		label, SupportedActivityFieldSelectors)
}

// SupportedActivityFieldSelectors lists all supported field selectors for Activities
var SupportedActivityFieldSelectors = []string{
	"metadata.name",
	"metadata.namespace",
	"spec.changeSource",
	"spec.resource.apiGroup",
	"spec.resource.kind",
	"spec.resource.name",
	"spec.resource.namespace",
	"spec.resource.uid",
	"spec.actor.name",
	"spec.actor.type",
	"spec.actor.uid",
	"spec.actor.email",
}
