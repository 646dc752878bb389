package cel

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/cel-go/cel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"

	"go.miloapis.com/activityfeed/internal/metrics"
)

var tracer = otel.Tracer("activity-cel-filter")

// AuditEnvironment creates a CEL environment for audit event filtering.
//
// Available fields: auditID, verb, requestReceivedTimestamp,
// objectRef.{namespace,resource,name,apiGroup}, user.{username,uid}, responseStatus.code
//
// Supports standard CEL operators (==, !=, <, >, <=, >=, &&, ||, !, in) and string methods
// (startsWith, endsWith, contains).
func AuditEnvironment() (*cel.Env, error) {
	objectRefType := cel.MapType(cel.StringType, cel.DynType)
	userType := cel.MapType(cel.StringType, cel.DynType)
	responseStatusType := cel.MapType(cel.StringType, cel.DynType)

	return cel.NewEnv(
		cel.Variable("auditID", cel.StringType),
		cel.Variable("verb", cel.StringType),
		cel.Variable("requestReceivedTimestamp", cel.TimestampType),

		cel.Variable("objectRef", objectRefType),
		cel.Variable("user", userType),
		cel.Variable("responseStatus", responseStatusType),
	)
}

// auditValidFields defines the allowed fields for each structured type
var auditValidFields = map[string]map[string]bool{
	"objectRef": {
		"apiGroup":  true,
		"namespace": true,
		"resource":  true,
		"name":      true,
	},
	"user": {
		"username": true,
		"uid":      true,
	},
	"responseStatus": {
		"code": true,
	},
}

type auditFieldValidator struct{}

func (auditFieldValidator) ValidateSelectExpr(sel *expr.Expr_Select) error {
	base := sel.GetOperand().GetIdentExpr().GetName()
	allowed, ok := auditValidFields[base]
	if !ok || allowed[sel.GetField()] {
		return nil
	}

	available := make([]string, 0, len(allowed))
	for f := range allowed {
		available = append(available, base+"."+f)
	}
	sort.Strings(available)
	return fmt.Errorf("field '%s.%s' is not available for filtering. Available fields for %s: %s",
		base, sel.GetField(), base, strings.Join(available, ", "))
}

// CompileAuditFilter compiles and validates an audit log filter expression,
// ensuring it returns a boolean and only reads filterable fields. Rejected
// expressions are reported as a 422 AuditLogQuery Status.
func CompileAuditFilter(ctx context.Context, filterExpr string) (*cel.Ast, error) {
	_, span := tracer.Start(ctx, "cel.filter.compile",
		trace.WithAttributes(attribute.String("cel.expression", filterExpr)),
	)
	defer span.End()

	ast, err := compileAuditFilter(filterExpr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compilation failed")
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return ast, nil
}

func compileAuditFilter(filterExpr string) (*cel.Ast, error) {
	if strings.TrimSpace(filterExpr) == "" {
		metrics.CELFilterErrors.WithLabelValues("empty").Inc()
		return nil, fmt.Errorf("filter expression cannot be empty")
	}

	env, err := AuditEnvironment()
	if err != nil {
		metrics.CELFilterErrors.WithLabelValues("environment").Inc()
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(filterExpr)
	if issues != nil && issues.Err() != nil {
		metrics.CELFilterErrors.WithLabelValues("compilation").Inc()
		return nil, auditSurface.invalid(filterExpr, issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		metrics.CELFilterErrors.WithLabelValues("type_mismatch").Inc()
		typeErr := fmt.Errorf("filter expression must return a boolean, got %v", ast.OutputType())
		return nil, auditSurface.invalid(filterExpr, typeErr)
	}

	checked, err := cel.AstToCheckedExpr(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect CEL expression: %w", err)
	}
	if err := ValidateFieldAccess(checked.GetExpr(), auditFieldValidator{}); err != nil {
		metrics.CELFilterErrors.WithLabelValues("invalid_field").Inc()
		return nil, auditSurface.invalid(filterExpr, err)
	}

	return ast, nil
}
