package cel

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"go.miloapis.com/activityfeed/internal/metrics"
	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
)

// ActivityEnvironment creates a CEL environment for activity filtering.
//
// Available fields:
//   - spec.changeSource - "human" or "system"
//   - spec.actor.name, spec.actor.type, spec.actor.uid, spec.actor.email
//   - spec.resource.apiGroup, spec.resource.kind, spec.resource.name
//   - spec.resource.namespace, spec.resource.uid
//   - spec.summary - activity summary text
//   - spec.origin.type - origin type (audit/event)
//   - metadata.namespace, metadata.name
//
// Supports standard CEL operators (==, !=, &&, ||, !, in) and string methods
// (startsWith, endsWith, contains).
func ActivityEnvironment() (*cel.Env, error) {
	specType := cel.MapType(cel.StringType, cel.DynType)
	metadataType := cel.MapType(cel.StringType, cel.DynType)

	return cel.NewEnv(
		cel.Variable("spec", specType),
		cel.Variable("metadata", metadataType),
	)
}

// activityValidFields defines the allowed fields for activity filtering
var activityValidFields = map[string]map[string]bool{
	"spec": {
		"changeSource": true,
		"summary":      true,
		"actor":        true,
		"resource":     true,
		"origin":       true,
	},
	"spec.actor": {
		"name":  true,
		"type":  true,
		"uid":   true,
		"email": true,
	},
	"spec.resource": {
		"apiGroup":  true,
		"kind":      true,
		"name":      true,
		"namespace": true,
		"uid":       true,
	},
	"spec.origin": {
		"type": true,
	},
	"metadata": {
		"namespace": true,
		"name":      true,
	},
}

// ActivityFilter is a compiled CEL program that evaluates Activity objects
// on the client, e.g. to drop live stream events outside the current filter.
type ActivityFilter struct {
	expression string
	program    cel.Program
}

// CompileActivityFilter compiles and validates a CEL filter expression.
// Rejected expressions are reported as a 422 ActivityQuery Status listing
// the filterable fields.
func CompileActivityFilter(filterExpr string) (*ActivityFilter, error) {
	if strings.TrimSpace(filterExpr) == "" {
		metrics.CELFilterErrors.WithLabelValues("empty").Inc()
		return nil, fmt.Errorf("filter expression cannot be empty")
	}

	env, err := ActivityEnvironment()
	if err != nil {
		metrics.CELFilterErrors.WithLabelValues("environment").Inc()
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(filterExpr)
	if issues != nil && issues.Err() != nil {
		metrics.CELFilterErrors.WithLabelValues("compilation").Inc()
		return nil, activitySurface.invalid(filterExpr, issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		metrics.CELFilterErrors.WithLabelValues("type_mismatch").Inc()
		typeErr := fmt.Errorf("filter expression must return a boolean, got %v", ast.OutputType())
		return nil, activitySurface.invalid(filterExpr, typeErr)
	}

	checked, err := cel.AstToCheckedExpr(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect CEL expression: %w", err)
	}
	if err := ValidateFieldAccess(checked.GetExpr(), activityFieldValidator{}); err != nil {
		metrics.CELFilterErrors.WithLabelValues("invalid_field").Inc()
		return nil, activitySurface.invalid(filterExpr, err)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &ActivityFilter{expression: filterExpr, program: program}, nil
}

// Expression returns the source expression the filter was compiled from.
func (f *ActivityFilter) Expression() string {
	if f == nil {
		return ""
	}
	return f.expression
}

// Matches evaluates the filter against an activity. A nil filter matches
// everything.
func (f *ActivityFilter) Matches(activity *v1alpha1.Activity) (bool, error) {
	if f == nil || f.program == nil {
		return true, nil
	}

	result, _, err := f.program.Eval(ActivityToMap(activity))
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL result is not a boolean: %T", result.Value())
	}
	return boolVal, nil
}

// ActivityToMap converts an Activity struct to a map format for CEL evaluation.
// The map structure matches the CEL variables defined in ActivityEnvironment.
func ActivityToMap(activity *v1alpha1.Activity) map[string]interface{} {
	return map[string]interface{}{
		"spec": map[string]interface{}{
			"changeSource": activity.Spec.ChangeSource,
			"summary":      activity.Spec.Summary,
			"actor": map[string]interface{}{
				"name":  activity.Spec.Actor.Name,
				"type":  activity.Spec.Actor.Type,
				"uid":   activity.Spec.Actor.UID,
				"email": activity.Spec.Actor.Email,
			},
			"resource": map[string]interface{}{
				"apiGroup":  activity.Spec.Resource.APIGroup,
				"kind":      activity.Spec.Resource.Kind,
				"name":      activity.Spec.Resource.Name,
				"namespace": activity.Spec.Resource.Namespace,
				"uid":       activity.Spec.Resource.UID,
			},
			"origin": map[string]interface{}{
				"type": activity.Spec.Origin.Type,
			},
		},
		"metadata": map[string]interface{}{
			"namespace": activity.Namespace,
			"name":      activity.Name,
		},
	}
}

// activityFieldValidator rejects field paths that are not part of the
// filterable surface.
type activityFieldValidator struct{}

func (activityFieldValidator) ValidateSelectExpr(sel *expr.Expr_Select) error {
	base, ok := selectPath(sel.GetOperand())
	if !ok {
		return nil
	}
	if allowed, known := activityValidFields[base]; known && !allowed[sel.GetField()] {
		return fmt.Errorf("field '%s.%s' is not available for filtering", base, sel.GetField())
	}
	return nil
}
