// File: internal/taint/match.go
package taint

import (
	"strings"
	"unicode"
)

// interpolationTokens mark string construction that splices values into
// text: concatenation, template literals and f-string style formatting.
var interpolationTokens = []string{"+", "${", "`", `f"`, "f'", ".format(", ".concat("}

// MatchExact reports whether identifier matches any pattern exactly or as a
// module-qualified dotted suffix. A pattern never matches as an arbitrary
// substring of a longer identifier: "open" matches "open" and "fs.open" but
// not "openSgIpv4.addIngressRule". This is the single callee-matching
// primitive used by every callee-keyed sink category.
func MatchExact(identifier string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if identifier == pattern || strings.HasSuffix(identifier, "."+pattern) {
			return true
		}
	}
	return false
}

// hasInterpolation reports whether an expression splices values into a
// string through concatenation or template interpolation.
func hasInterpolation(expr string) bool {
	for _, token := range interpolationTokens {
		if strings.Contains(expr, token) {
			return true
		}
	}
	return false
}

// isLiteral reports whether an expression is a plain quoted string or a
// bare numeric literal, carrying no variable data.
func isLiteral(expr string) bool {
	trimmed := strings.TrimSpace(expr)
	if len(trimmed) < 2 {
		return trimmed != "" && isNumeric(trimmed)
	}
	first, last := trimmed[0], trimmed[len(trimmed)-1]
	if (first == '\'' || first == '"') && first == last {
		return true
	}
	if first == '`' && last == '`' {
		// Template literals are literal only when nothing is spliced in.
		return !strings.Contains(trimmed, "${")
	}
	return isNumeric(trimmed)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' && r != '-' {
			return false
		}
	}
	return true
}

// containsFold reports case-insensitive substring containment.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// containsAnyFold reports whether s contains any of the given fragments,
// case-insensitively.
func containsAnyFold(s string, fragments []string) bool {
	for _, fragment := range fragments {
		if fragment != "" && containsFold(s, fragment) {
			return true
		}
	}
	return false
}
