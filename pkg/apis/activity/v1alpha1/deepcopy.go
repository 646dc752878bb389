package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	auditv1 "k8s.io/apiserver/pkg/apis/audit/v1"
)

// DeepCopyInto copies the receiver into out.
func (in *ActivitySpec) DeepCopyInto(out *ActivitySpec) {
	*out = *in
	if in.Links != nil {
		out.Links = make([]ActivityLink, len(in.Links))
		copy(out.Links, in.Links)
	}
	if in.Changes != nil {
		out.Changes = make([]ActivityChange, len(in.Changes))
		copy(out.Changes, in.Changes)
	}
}

// DeepCopyInto copies the receiver into out.
func (in *Activity) DeepCopyInto(out *Activity) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
}

// DeepCopy returns a deep copy of the Activity.
func (in *Activity) DeepCopy() *Activity {
	if in == nil {
		return nil
	}
	out := new(Activity)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *Activity) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

func deepCopyActivities(in []Activity) []Activity {
	if in == nil {
		return nil
	}
	out := make([]Activity, len(in))
	for i := range in {
		in[i].DeepCopyInto(&out[i])
	}
	return out
}

// DeepCopyInto copies the receiver into out.
func (in *ActivityList) DeepCopyInto(out *ActivityList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	out.Items = deepCopyActivities(in.Items)
}

// DeepCopy returns a deep copy of the ActivityList.
func (in *ActivityList) DeepCopy() *ActivityList {
	if in == nil {
		return nil
	}
	out := new(ActivityList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *ActivityList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies the receiver into out.
func (in *ActivityQuery) DeepCopyInto(out *ActivityQuery) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	out.Spec = in.Spec
	out.Status = in.Status
	out.Status.Results = deepCopyActivities(in.Status.Results)
}

// DeepCopy returns a deep copy of the ActivityQuery.
func (in *ActivityQuery) DeepCopy() *ActivityQuery {
	if in == nil {
		return nil
	}
	out := new(ActivityQuery)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *ActivityQuery) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

func deepCopyFacetSpecs(in []FacetSpec) []FacetSpec {
	if in == nil {
		return nil
	}
	out := make([]FacetSpec, len(in))
	copy(out, in)
	return out
}

func deepCopyFacetResults(in []FacetResult) []FacetResult {
	if in == nil {
		return nil
	}
	out := make([]FacetResult, len(in))
	for i := range in {
		out[i].Field = in[i].Field
		if in[i].Values != nil {
			out[i].Values = make([]FacetValue, len(in[i].Values))
			copy(out[i].Values, in[i].Values)
		}
	}
	return out
}

// DeepCopyInto copies the receiver into out.
func (in *ActivityFacetQuery) DeepCopyInto(out *ActivityFacetQuery) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	out.Spec.Facets = deepCopyFacetSpecs(in.Spec.Facets)
	out.Status.Facets = deepCopyFacetResults(in.Status.Facets)
}

// DeepCopy returns a deep copy of the ActivityFacetQuery.
func (in *ActivityFacetQuery) DeepCopy() *ActivityFacetQuery {
	if in == nil {
		return nil
	}
	out := new(ActivityFacetQuery)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *ActivityFacetQuery) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies the receiver into out.
func (in *AuditLogQuery) DeepCopyInto(out *AuditLogQuery) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	if in.Status.Results != nil {
		out.Status.Results = make([]auditv1.Event, len(in.Status.Results))
		for i := range in.Status.Results {
			in.Status.Results[i].DeepCopyInto(&out.Status.Results[i])
		}
	}
}

// DeepCopy returns a deep copy of the AuditLogQuery.
func (in *AuditLogQuery) DeepCopy() *AuditLogQuery {
	if in == nil {
		return nil
	}
	out := new(AuditLogQuery)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *AuditLogQuery) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies the receiver into out.
func (in *AuditLogFacetsQuery) DeepCopyInto(out *AuditLogFacetsQuery) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	out.Spec.Facets = deepCopyFacetSpecs(in.Spec.Facets)
	out.Status.Facets = deepCopyFacetResults(in.Status.Facets)
}

// DeepCopy returns a deep copy of the AuditLogFacetsQuery.
func (in *AuditLogFacetsQuery) DeepCopy() *AuditLogFacetsQuery {
	if in == nil {
		return nil
	}
	out := new(AuditLogFacetsQuery)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *AuditLogFacetsQuery) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies the receiver into out.
func (in *ActivityPolicy) DeepCopyInto(out *ActivityPolicy) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	if in.Spec.AuditRules != nil {
		out.Spec.AuditRules = make([]ActivityPolicyRule, len(in.Spec.AuditRules))
		copy(out.Spec.AuditRules, in.Spec.AuditRules)
	}
	if in.Spec.EventRules != nil {
		out.Spec.EventRules = make([]ActivityPolicyRule, len(in.Spec.EventRules))
		copy(out.Spec.EventRules, in.Spec.EventRules)
	}
	if in.Status.Conditions != nil {
		out.Status.Conditions = make([]metav1.Condition, len(in.Status.Conditions))
		for i := range in.Status.Conditions {
			in.Status.Conditions[i].DeepCopyInto(&out.Status.Conditions[i])
		}
	}
}

// DeepCopy returns a deep copy of the ActivityPolicy.
func (in *ActivityPolicy) DeepCopy() *ActivityPolicy {
	if in == nil {
		return nil
	}
	out := new(ActivityPolicy)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *ActivityPolicy) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies the receiver into out.
func (in *ActivityPolicyList) DeepCopyInto(out *ActivityPolicyList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]ActivityPolicy, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

// DeepCopy returns a deep copy of the ActivityPolicyList.
func (in *ActivityPolicyList) DeepCopy() *ActivityPolicyList {
	if in == nil {
		return nil
	}
	out := new(ActivityPolicyList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *ActivityPolicyList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}
