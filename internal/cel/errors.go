package cel

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"go.miloapis.com/activityfeed/internal/apierrors"
	"go.miloapis.com/activityfeed/pkg/apis/activity/v1alpha1"
)

// celErrorRegex extracts the position from a cel-go issue.
var celErrorRegex = regexp.MustCompile(`ERROR:\s+<input>:(\d+):(\d+):\s+(.+)`)

// filterPath is where the query resources carry their filter expression.
var filterPath = field.NewPath("spec", "filter")

// filterSurface is the set of fields one query kind can filter on.
type filterSurface struct {
	kind    schema.GroupKind
	fields  []string
	example string
}

var (
	activitySurface = filterSurface{
		kind: v1alpha1.SchemeGroupVersion.WithKind("ActivityQuery").GroupKind(),
		fields: []string{
			"spec.changeSource", "spec.summary",
			"spec.actor.name", "spec.actor.type", "spec.actor.uid", "spec.actor.email",
			"spec.resource.apiGroup", "spec.resource.kind", "spec.resource.name",
			"spec.resource.namespace", "spec.resource.uid",
			"spec.origin.type", "metadata.namespace", "metadata.name",
		},
		example: `spec.changeSource == "human" && spec.resource.kind == "Deployment"`,
	}

	auditSurface = filterSurface{
		kind: v1alpha1.SchemeGroupVersion.WithKind("AuditLogQuery").GroupKind(),
		fields: []string{
			"auditID", "verb", "requestReceivedTimestamp",
			"objectRef.apiGroup", "objectRef.namespace", "objectRef.resource", "objectRef.name",
			"user.username", "user.uid", "responseStatus.code",
		},
		example: `verb == "delete" && objectRef.namespace == "production"`,
	}
)

// invalid rejects expression the way the query endpoint does: a 422 Status
// with one spec.filter cause. The detail carries the error position and the
// filterable fields.
func (s filterSurface) invalid(expression string, err error) *apierrors.StatusError {
	line, column := extractErrorPosition(err)
	detail := simplifyErrorMessage(err.Error())

	var msg strings.Builder
	if column > 0 {
		fmt.Fprintf(&msg, "invalid filter at line %d, column %d: %s", line, column, detail)
	} else {
		fmt.Fprintf(&msg, "invalid filter: %s", detail)
	}
	fmt.Fprintf(&msg, ". Available fields: %s. Example: %s. See https://cel.dev for CEL syntax",
		strings.Join(s.fields, ", "), s.example)

	return apierrors.NewValidationStatusError(s.kind, "", field.ErrorList{
		field.Invalid(filterPath, expression, msg.String()),
	})
}

// extractErrorPosition returns the 1-based line and column of a cel-go
// issue, or zeros when the error carries no position.
func extractErrorPosition(err error) (line, column int) {
	matches := celErrorRegex.FindStringSubmatch(err.Error())
	if len(matches) < 4 {
		return 0, 0
	}
	line, _ = strconv.Atoi(matches[1])
	column, _ = strconv.Atoi(matches[2])
	return line, column
}

// simplifyErrorMessage keeps the first line of a cel-go issue without its
// "ERROR: <input>:L:C:" prefix.
func simplifyErrorMessage(celError string) string {
	msg := strings.ReplaceAll(celError, "ERROR: <input>:", "")

	if idx := strings.Index(msg, ": "); idx != -1 && idx < 10 {
		msg = msg[idx+2:]
	}
	if idx := strings.Index(msg, "\n"); idx != -1 {
		msg = msg[:idx]
	}
	return strings.TrimSpace(msg)
}
