// File: internal/taint/sqlrisk.go
package taint

import "strings"

var (
	// Concatenation and interpolation tokens inside query text.
	sqlConcatTokens = []string{"+", "${", `f"`, "f'", "`${", `".`, "'."}
	// Positional formatting markers without bound-parameter evidence.
	sqlFormatTokens = []string{"%s", "%d"}
	// Explicit bound-parameter markers.
	sqlParamTokens = []string{"?", "$1", ":param", "@param"}
)

// AssessSQLRisk classifies a query text deterministically: critical when the
// text concatenates or interpolates values, high when it uses positional
// format markers without bound parameters, low when it carries explicit
// parameter markers, medium when indeterminate.
func AssessSQLRisk(text string) Risk {
	for _, token := range sqlConcatTokens {
		if strings.Contains(text, token) {
			return RiskCritical
		}
	}
	hasParam := false
	for _, token := range sqlParamTokens {
		if strings.Contains(text, token) {
			hasParam = true
			break
		}
	}
	for _, token := range sqlFormatTokens {
		if strings.Contains(text, token) && !hasParam {
			return RiskHigh
		}
	}
	if hasParam {
		return RiskLow
	}
	return RiskMedium
}
