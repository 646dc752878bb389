// Package apierrors renders the Status errors returned by the activity query
// endpoints.
package apierrors

import (
	"fmt"
	"net/http"
	"strings"
	"unicode"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// capitalizeFirst capitalizes the first letter of a string.
func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// NewValidationError builds the 422 Status the query endpoints return for
// invalid requests. The summary message gives an overview; the causes carry
// one entry per field.
func NewValidationError(gk schema.GroupKind, name string, errs field.ErrorList) *metav1.Status {
	causes := make([]metav1.StatusCause, 0, len(errs))
	for _, err := range errs {
		causes = append(causes, metav1.StatusCause{
			Type:    metav1.CauseType(err.Type),
			Message: err.Detail,
			Field:   err.Field,
		})
	}

	var message string
	if len(errs) == 1 {
		message = fmt.Sprintf("%s. Please correct this and try again.", capitalizeFirst(errs[0].Detail))
	} else {
		message = "Some fields are missing or invalid. See the error details for what needs to be corrected."
	}

	return &metav1.Status{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "v1",
			Kind:       "Status",
		},
		Status:  metav1.StatusFailure,
		Code:    http.StatusUnprocessableEntity,
		Reason:  metav1.StatusReasonInvalid,
		Message: message,
		Details: &metav1.StatusDetails{
			Group:  gk.Group,
			Kind:   gk.Kind,
			Name:   name,
			Causes: causes,
		},
	}
}

// StatusError wraps a Status as an error.
type StatusError struct {
	ErrStatus metav1.Status
}

func (e *StatusError) Error() string {
	return e.ErrStatus.Message
}

// Status returns the Status object.
func (e *StatusError) Status() metav1.Status {
	return e.ErrStatus
}

// NewValidationStatusError creates a StatusError with a user-friendly validation message.
func NewValidationStatusError(gk schema.GroupKind, name string, errs field.ErrorList) *StatusError {
	return &StatusError{ErrStatus: *NewValidationError(gk, name, errs)}
}

// FormatStatus returns the status message followed by one line per cause.
// Causes already spelled out by the message are skipped.
func FormatStatus(status metav1.Status) string {
	lines := make([]string, 0, 1)
	if status.Message != "" {
		lines = append(lines, status.Message)
	}
	if status.Details == nil {
		return strings.Join(lines, "\n")
	}

	summary := strings.ToLower(status.Message)
	for _, cause := range status.Details.Causes {
		if cause.Message == "" || strings.Contains(summary, strings.ToLower(cause.Message)) {
			continue
		}
		if cause.Field != "" {
			lines = append(lines, "  "+cause.Field+": "+cause.Message)
		} else {
			lines = append(lines, "  "+cause.Message)
		}
	}
	return strings.Join(lines, "\n")
}
