// Package cel compiles and validates the CEL filter expressions accepted by the
// activity and audit log query endpoints.
//
// Expressions are checked on the client before a query is sent so that typos
// and unsupported fields are reported with the list of filterable fields
// instead of a bare server rejection. Compiled activity filters also evaluate
// live stream events locally.
package cel

import (
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// FieldValidator defines the interface for validating CEL field access.
// Each domain implements this to define which fields are allowed in filter expressions.
type FieldValidator interface {
	// ValidateSelectExpr validates a field selection expression.
	// Returns nil if the field access is valid, or an error describing the issue.
	ValidateSelectExpr(sel *expr.Expr_Select) error
}

// ValidateFieldAccess recursively validates that only allowed fields are accessed
// in a CEL expression.
func ValidateFieldAccess(e *expr.Expr, validator FieldValidator) error {
	if e == nil {
		return nil
	}

	switch exprKind := e.ExprKind.(type) {
	case *expr.Expr_SelectExpr:
		sel := exprKind.SelectExpr
		if err := validator.ValidateSelectExpr(sel); err != nil {
			return err
		}
		return ValidateFieldAccess(sel.GetOperand(), validator)

	case *expr.Expr_CallExpr:
		call := exprKind.CallExpr
		if err := ValidateFieldAccess(call.Target, validator); err != nil {
			return err
		}
		for _, arg := range call.Args {
			if err := ValidateFieldAccess(arg, validator); err != nil {
				return err
			}
		}

	case *expr.Expr_ListExpr:
		for _, elem := range exprKind.ListExpr.Elements {
			if err := ValidateFieldAccess(elem, validator); err != nil {
				return err
			}
		}

	case *expr.Expr_StructExpr:
		for _, entry := range exprKind.StructExpr.Entries {
			if err := ValidateFieldAccess(entry.GetValue(), validator); err != nil {
				return err
			}
		}

	case *expr.Expr_ComprehensionExpr:
		comp := exprKind.ComprehensionExpr
		for _, sub := range []*expr.Expr{comp.IterRange, comp.AccuInit, comp.LoopCondition, comp.LoopStep, comp.Result} {
			if err := ValidateFieldAccess(sub, validator); err != nil {
				return err
			}
		}
	}

	return nil
}

// selectPath returns the dotted path of the operand of sel when it is a chain
// of selects rooted at an identifier, e.g. "spec.actor" for spec.actor.name.
func selectPath(operand *expr.Expr) (string, bool) {
	switch kind := operand.GetExprKind().(type) {
	case *expr.Expr_IdentExpr:
		return kind.IdentExpr.GetName(), true
	case *expr.Expr_SelectExpr:
		base, ok := selectPath(kind.SelectExpr.GetOperand())
		if !ok {
			return "", false
		}
		return base + "." + kind.SelectExpr.GetField(), true
	}
	return "", false
}
