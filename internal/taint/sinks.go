// File: internal/taint/sinks.go
package taint

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/faultline-sec/faultline/internal/factstore"
)

// htmlContentProps are the DOM properties whose assignment injects raw HTML.
var htmlContentProps = []string{"innerHTML", "outerHTML"}

// requestDataMarkers flag call arguments that carry request payload data.
var requestDataMarkers = []string{"body", "data", "params", "headers", "query"}

// httpVerbMethods are callee segments that are request invocations on their
// own, payload argument or not.
var httpVerbMethods = map[string]bool{
	"get": true, "post": true, "put": true, "patch": true, "delete": true,
	"request": true, "fetch": true,
}

// DiscoverSinks scans the fact snapshot for taint destinations, including
// the frontend api_call bridge sinks consumed by the cross-boundary
// connector.
func (e *Engine) DiscoverSinks(ctx context.Context) ([]Sink, error) {
	var sinks []Sink

	sqlSinks, err := e.discoverSQLQuerySinks(ctx)
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, sqlSinks...)

	calls, err := e.store.CallArgs(ctx)
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, e.discoverCallSinks(calls)...)

	xssSinks, err := e.discoverXSSSinks(ctx, calls)
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, xssSinks...)

	e.log.Debug("Sink discovery complete.", zap.Int("count", len(sinks)))
	return sinks, nil
}

// discoverSQLQuerySinks emits the query-result form of sql sinks: the
// variable receiving a query result at the same file and line. A query whose
// result is never assigned cannot be traced and is skipped.
func (e *Engine) discoverSQLQuerySinks(ctx context.Context) ([]Sink, error) {
	queries, err := e.store.SQLQueries(ctx)
	if err != nil {
		return nil, err
	}

	var sinks []Sink
	seen := make(map[string]bool)
	for _, query := range queries {
		assign, ok, err := e.store.AssignmentAt(ctx, query.File, query.Line)
		if err != nil {
			return nil, err
		}
		if !ok || assign.TargetVar == "" {
			continue
		}
		key := fmt.Sprintf("%s:%d:%s", query.File, query.Line, assign.TargetVar)
		if seen[key] {
			continue
		}
		seen[key] = true
		// The propagation engine matches on variable identity, so the
		// pattern is the bare result variable, not the query text.
		sinks = append(sinks, Sink{
			Category:         CategorySQL,
			Name:             assign.TargetVar,
			File:             query.File,
			Line:             query.Line,
			Pattern:          assign.TargetVar,
			Risk:             AssessSQLRisk(query.Text),
			IsParameterized:  query.IsParameterized,
			HasInterpolation: hasInterpolation(query.Text),
			Meta:             map[string]any{"fact": "sql_queries", "query": query.Text},
		})
	}
	return sinks, nil
}

// discoverCallSinks emits every callee-keyed sink category from the call
// argument facts: raw sql calls, orm writes, command execution, path and
// ldap operations, and the frontend api_call bridge.
func (e *Engine) discoverCallSinks(calls []factstore.CallArg) []Sink {
	sqlPatterns := e.registry.Patterns(CategorySQL)
	ormPatterns := e.registry.Patterns(CategoryORM)
	cmdPatterns := e.registry.Patterns(CategoryCommand)
	pathPatterns := e.registry.Patterns(CategoryPath)
	ldapPatterns := e.registry.Patterns(CategoryLDAP)
	apiPatterns := e.registry.Patterns(CategoryAPICall)

	var sinks []Sink
	seen := make(map[string]bool)
	add := func(s Sink) {
		key := fmt.Sprintf("%s:%s:%d:%s", s.Category, s.File, s.Line, s.Pattern)
		if !seen[key] {
			seen[key] = true
			sinks = append(sinks, s)
		}
	}

	for _, call := range calls {
		meta := map[string]any{"fact": "function_call_args", "caller": call.Caller}

		// One row exists per argument. The sql, orm, command and path
		// forms are defined by the call's first argument, so later rows
		// (callbacks, option objects) must not emit sinks of their own.
		// api_call below stays per-row: the request payload may sit at
		// any argument position.
		firstArg := call.ArgIndex == 0

		if firstArg && MatchExact(call.Callee, sqlPatterns) && call.ArgExpr != "" {
			risk := RiskHigh
			if hasInterpolation(call.ArgExpr) {
				risk = RiskCritical
			}
			add(Sink{
				Category:         CategorySQL,
				Name:             call.Callee,
				File:             call.File,
				Line:             call.Line,
				Pattern:          call.ArgExpr,
				Risk:             risk,
				HasInterpolation: hasInterpolation(call.ArgExpr),
				Meta:             meta,
			})
		}

		if firstArg && call.ArgExpr != "" && MatchExact(call.Callee, ormPatterns) && capitalizedReceiver(call.Callee) {
			interpolated := hasInterpolation(call.ArgExpr)
			risk := RiskMedium
			if interpolated {
				risk = RiskHigh
			}
			// An argument that passes raw request data straight through is
			// not parameterization evidence, interpolated or not.
			add(Sink{
				Category:         CategoryORM,
				Name:             call.Callee,
				File:             call.File,
				Line:             call.Line,
				Pattern:          call.ArgExpr,
				Risk:             risk,
				IsParameterized:  !interpolated && !referencesRawRequest(call.ArgExpr),
				HasInterpolation: interpolated,
				Meta:             meta,
			})
		}

		if firstArg && MatchExact(call.Callee, cmdPatterns) {
			pattern := call.ArgExpr
			if pattern == "" {
				pattern = call.Callee
			}
			add(Sink{
				Category:         CategoryCommand,
				Name:             call.Callee,
				File:             call.File,
				Line:             call.Line,
				Pattern:          pattern,
				Risk:             RiskCritical,
				HasInterpolation: hasInterpolation(call.ArgExpr),
				Meta:             meta,
			})
		}

		if firstArg && MatchExact(call.Callee, pathPatterns) && call.ArgExpr != "" && !isLiteral(call.ArgExpr) {
			add(Sink{
				Category: CategoryPath,
				Name:     call.Callee,
				File:     call.File,
				Line:     call.Line,
				Pattern:  call.Callee,
				Risk:     RiskMedium,
				Meta:     meta,
			})
		}

		if MatchExact(call.Callee, ldapPatterns) && containsFold(call.Callee, "ldap") {
			add(Sink{
				Category: CategoryLDAP,
				Name:     call.Callee,
				File:     call.File,
				Line:     call.Line,
				Pattern:  call.Callee,
				Risk:     RiskMedium,
				Meta:     meta,
			})
		}

		if e.isClientFile(call.File) && e.looksLikeAPICall(call.Callee, apiPatterns) {
			if carriesRequestData(call.ArgExpr) || isRequestPrimitive(call.Callee) {
				add(Sink{
					Category:         CategoryAPICall,
					Name:             call.Callee,
					File:             call.File,
					Line:             call.Line,
					Pattern:          call.ArgExpr,
					Risk:             RiskMedium,
					HasInterpolation: hasInterpolation(call.ArgExpr),
					Meta:             meta,
				})
			}
		}
	}
	return sinks
}

// discoverXSSSinks emits the three xss forms: dangerous-HTML hooks, raw
// HTML property assignments and xss-pattern call sites.
func (e *Engine) discoverXSSSinks(ctx context.Context, calls []factstore.CallArg) ([]Sink, error) {
	var sinks []Sink
	seen := make(map[string]bool)
	add := func(s Sink) {
		key := fmt.Sprintf("%s:%d:%s", s.File, s.Line, s.Pattern)
		if !seen[key] {
			seen[key] = true
			sinks = append(sinks, s)
		}
	}

	hooks, err := e.store.HTMLHooks(ctx)
	if err != nil {
		return nil, err
	}
	for _, hook := range hooks {
		add(Sink{
			Category: CategoryXSS,
			Name:     hook.Name,
			File:     hook.File,
			Line:     hook.Line,
			Pattern:  hook.Name,
			Risk:     RiskHigh,
			Meta:     map[string]any{"fact": "html_hooks"},
		})
	}

	assigns, err := e.store.Assignments(ctx)
	if err != nil {
		return nil, err
	}
	for _, assign := range assigns {
		if !referencesHTMLContent(assign.TargetVar) {
			continue
		}
		add(Sink{
			Category:         CategoryXSS,
			Name:             assign.TargetVar,
			File:             assign.File,
			Line:             assign.Line,
			Pattern:          assign.TargetVar,
			Risk:             RiskHigh,
			HasInterpolation: hasInterpolation(assign.SourceExpr),
			Meta:             map[string]any{"fact": "assignments"},
		})
	}

	xssPatterns := e.registry.Patterns(CategoryXSS)
	for _, call := range calls {
		if call.ArgIndex != 0 || !MatchExact(call.Callee, xssPatterns) || call.ArgExpr == "" {
			continue
		}
		risk := RiskHigh
		if hasInterpolation(call.ArgExpr) {
			risk = RiskCritical
		}
		add(Sink{
			Category:         CategoryXSS,
			Name:             call.Callee,
			File:             call.File,
			Line:             call.Line,
			Pattern:          call.ArgExpr,
			Risk:             risk,
			HasInterpolation: hasInterpolation(call.ArgExpr),
			Meta:             map[string]any{"fact": "function_call_args"},
		})
	}
	return sinks, nil
}

// capitalizedReceiver reports whether a qualified callee has a model-style
// capitalized receiver. Lowercase receivers are excluded so the propagation
// engine can trace into them as ordinary functions instead.
func capitalizedReceiver(callee string) bool {
	receiver, _, found := strings.Cut(callee, ".")
	if !found || receiver == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(receiver)
	return unicode.IsUpper(r)
}

// referencesHTMLContent reports whether an assignment target touches a raw
// HTML content property.
func referencesHTMLContent(target string) bool {
	for _, prop := range htmlContentProps {
		if strings.Contains(target, prop) {
			return true
		}
	}
	return false
}

// rawRequestRefs are access paths that feed request payloads into a call
// unmediated.
var rawRequestRefs = []string{"req.body", "req.query", "req.params", "request.body", "request.query", "request.params"}

// referencesRawRequest reports whether an expression reads request data
// directly.
func referencesRawRequest(expr string) bool {
	for _, ref := range rawRequestRefs {
		if strings.Contains(expr, ref) {
			return true
		}
	}
	return false
}

// carriesRequestData reports whether an argument expression references
// request payload fields.
func carriesRequestData(argExpr string) bool {
	if argExpr == "" {
		return false
	}
	return containsAnyFold(argExpr, requestDataMarkers)
}

// looksLikeAPICall recognizes the HTTP-client invocation shapes that feed
// the cross-boundary connector: a registry-matched callee, a call through a
// wrapper-shaped receiver, or a verb-prefixed method name. Unresolvable
// candidates are discarded later by the connector, never turned into flows.
func (e *Engine) looksLikeAPICall(callee string, apiPatterns []string) bool {
	if MatchExact(callee, apiPatterns) {
		return true
	}
	if receiver, _, found := strings.Cut(callee, "."); found {
		for _, suffix := range e.cfg.WrapperSuffixes {
			if suffix != "" && strings.HasSuffix(receiver, suffix) {
				return true
			}
		}
	}
	segment := callee
	if idx := strings.LastIndex(callee, "."); idx >= 0 {
		segment = callee[idx+1:]
	}
	lower := strings.ToLower(segment)
	for verb := range httpVerbMethods {
		if strings.HasPrefix(lower, verb) {
			return true
		}
	}
	return false
}

// isRequestPrimitive reports whether the callee's final segment is itself a
// request invocation, regardless of arguments.
func isRequestPrimitive(callee string) bool {
	segment := callee
	if idx := strings.LastIndex(callee, "."); idx >= 0 {
		segment = callee[idx+1:]
	}
	return httpVerbMethods[strings.ToLower(segment)]
}
