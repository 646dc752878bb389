package filter

import "strings"

// EscapeCELString escapes backslashes and single quotes so s is safe inside a
// single-quoted CEL string literal.
//
// Example:
//
//	EscapeCELString("prod' || true || '") -> "prod\\' || true || \\'"
func EscapeCELString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}
