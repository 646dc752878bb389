package ui

import (
	"strings"
	"unicode"
)

// DeriveKindLabel turns a PascalCase kind into words. Runs of capitals are
// kept together as an acronym; the last capital of a run starts the next word
// when a lowercase letter follows it.
//
//	DeriveKindLabel("HTTPProxy")            == "HTTP Proxy"
//	DeriveKindLabel("NetworkEndpointGroup") == "Network Endpoint Group"
//
// This is a display heuristic, not a linguistic guarantee.
func DeriveKindLabel(kind string) string {
	runes := []rune(kind)
	var b strings.Builder
	b.Grow(len(kind) + 4)

	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteRune(' ')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DerivePluralLabel returns the plural of the kind label:
// consonant+y becomes "ies", s/x/z/ch/sh endings take "es", others take "s".
//
//	DerivePluralLabel("Policy")  == "Policies"
//	DerivePluralLabel("Class")   == "Classes"
//	DerivePluralLabel("Gateway") == "Gateways"
func DerivePluralLabel(kind string) string {
	label := DeriveKindLabel(kind)
	if label == "" {
		return ""
	}
	lower := strings.ToLower(label)

	switch {
	case strings.HasSuffix(lower, "y") && len(lower) > 1 && !isVowel(rune(lower[len(lower)-2])):
		return label[:len(label)-1] + "ies"
	case strings.HasSuffix(lower, "s"), strings.HasSuffix(lower, "x"), strings.HasSuffix(lower, "z"),
		strings.HasSuffix(lower, "ch"), strings.HasSuffix(lower, "sh"):
		return label + "es"
	}
	return label + "s"
}

func isVowel(r rune) bool {
	return strings.ContainsRune("aeiou", r)
}
