// File: internal/taint/sources.go
package taint

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// excludedParams are framework and internal parameter names that carry
// plumbing rather than user data.
var excludedParams = map[string]bool{
	"req": true, "request": true, "res": true, "response": true,
	"next": true, "ctx": true, "cb": true, "callback": true, "done": true,
	"options": true, "opts": true, "t": true, "tx": true, "transaction": true,
	"self": true, "this": true,
}

// DiscoverSources scans the fact snapshot for taint origins. Categories run
// independently and results are concatenated; a registry category with no
// patterns simply discovers nothing.
func (e *Engine) DiscoverSources(ctx context.Context) ([]Source, error) {
	var sources []Source

	httpSources, err := e.discoverVariableSources(ctx)
	if err != nil {
		return nil, err
	}
	sources = append(sources, httpSources...)

	propSources, err := e.discoverPropertySources(ctx)
	if err != nil {
		return nil, err
	}
	sources = append(sources, propSources...)

	paramSources, err := e.discoverParameterSources(ctx)
	if err != nil {
		return nil, err
	}
	sources = append(sources, paramSources...)

	envSources, err := e.discoverEnvironmentSources(ctx)
	if err != nil {
		return nil, err
	}
	sources = append(sources, envSources...)

	dbSources, err := e.discoverDatabaseReadSources(ctx)
	if err != nil {
		return nil, err
	}
	sources = append(sources, dbSources...)

	e.log.Debug("Source discovery complete.", zap.Int("count", len(sources)))
	return sources, nil
}

// discoverVariableSources covers http_request and frontend_input: variable
// accesses whose name contains a registry pattern. http_request dedups by
// variable name to avoid flooding from repeated accesses; frontend_input is
// restricted to client-side files and dedups by (file, variable).
func (e *Engine) discoverVariableSources(ctx context.Context) ([]Source, error) {
	httpPatterns := e.registry.Patterns(CategoryHTTPRequest)
	frontendPatterns := e.registry.Patterns(CategoryFrontendInput)
	if len(httpPatterns) == 0 && len(frontendPatterns) == 0 {
		return nil, nil
	}

	accesses, err := e.store.VariableAccesses(ctx)
	if err != nil {
		return nil, err
	}

	var sources []Source
	seenByName := make(map[string]bool)
	seenByFileVar := make(map[string]bool)

	for _, access := range accesses {
		if containsAnyFold(access.Name, httpPatterns) && !seenByName[access.Name] {
			seenByName[access.Name] = true
			sources = append(sources, Source{
				Category: CategoryHTTPRequest,
				Name:     access.Name,
				File:     access.File,
				Line:     access.Line,
				Pattern:  access.Name,
				Risk:     RiskHigh,
				Meta:     map[string]any{"fact": "variable_usage"},
			})
		}

		if len(frontendPatterns) > 0 && e.isClientFile(access.File) &&
			containsAnyFold(access.Name, frontendPatterns) {
			key := access.File + "\x00" + access.Name
			if !seenByFileVar[key] {
				seenByFileVar[key] = true
				sources = append(sources, Source{
					Category: CategoryFrontendInput,
					Name:     access.Name,
					File:     access.File,
					Line:     access.Line,
					Pattern:  access.Name,
					Risk:     RiskHigh,
					Meta:     map[string]any{"fact": "variable_usage"},
				})
			}
		}
	}
	return sources, nil
}

// discoverPropertySources covers user_input: property symbols whose access
// path contains a registry pattern.
func (e *Engine) discoverPropertySources(ctx context.Context) ([]Source, error) {
	patterns := e.registry.Patterns(CategoryUserInput)
	if len(patterns) == 0 {
		return nil, nil
	}

	props, err := e.store.Symbols(ctx, "property")
	if err != nil {
		return nil, err
	}

	var sources []Source
	seen := make(map[string]bool)
	for _, prop := range props {
		if !containsAnyFold(prop.Name, patterns) {
			continue
		}
		key := fmt.Sprintf("%s:%d:%s", prop.File, prop.Line, prop.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		sources = append(sources, Source{
			Category: CategoryUserInput,
			Name:     prop.Name,
			File:     prop.File,
			Line:     prop.Line,
			Pattern:  prop.Name,
			Risk:     RiskHigh,
			Meta:     map[string]any{"fact": "symbols", "kind": "property"},
		})
	}
	return sources, nil
}

// discoverParameterSources covers parameter: each named parameter of a
// function symbol, excluding framework plumbing names. Malformed parameter
// serializations skip the record, never abort the category.
func (e *Engine) discoverParameterSources(ctx context.Context) ([]Source, error) {
	funcs, err := e.store.Symbols(ctx, "function")
	if err != nil {
		return nil, err
	}

	var sources []Source
	seen := make(map[string]bool)
	for _, fn := range funcs {
		if fn.Params == "" {
			continue
		}
		var params []string
		if err := jsoniter.UnmarshalFromString(fn.Params, &params); err != nil {
			e.log.Debug("Skipping function with malformed parameter list.",
				zap.String("function", fn.Name), zap.String("file", fn.File))
			continue
		}
		for _, param := range params {
			param = strings.TrimSpace(param)
			if param == "" || excludedParams[strings.ToLower(param)] {
				continue
			}
			key := fmt.Sprintf("%s:%d:%s", fn.File, fn.Line, param)
			if seen[key] {
				continue
			}
			seen[key] = true
			sources = append(sources, Source{
				Category: CategoryParameter,
				Name:     param,
				File:     fn.File,
				Line:     fn.Line,
				Pattern:  param,
				Risk:     RiskMedium,
				Meta:     map[string]any{"fact": "symbols", "function": fn.Name},
			})
		}
	}
	return sources, nil
}

// discoverEnvironmentSources covers environment: one low-risk source per
// environment variable usage.
func (e *Engine) discoverEnvironmentSources(ctx context.Context) ([]Source, error) {
	usages, err := e.store.EnvAccesses(ctx)
	if err != nil {
		return nil, err
	}

	var sources []Source
	seen := make(map[string]bool)
	for _, usage := range usages {
		pattern := "process.env." + usage.Key
		key := fmt.Sprintf("%s:%d:%s", usage.File, usage.Line, pattern)
		if seen[key] {
			continue
		}
		seen[key] = true
		sources = append(sources, Source{
			Category: CategoryEnvironment,
			Name:     usage.Key,
			File:     usage.File,
			Line:     usage.Line,
			Pattern:  pattern,
			Risk:     RiskLow,
			Meta:     map[string]any{"fact": "env_var_usage"},
		})
	}
	return sources, nil
}

// discoverDatabaseReadSources covers database_read: queries whose text
// contains a read verb become low-risk second-order sources.
func (e *Engine) discoverDatabaseReadSources(ctx context.Context) ([]Source, error) {
	queries, err := e.store.SQLQueries(ctx)
	if err != nil {
		return nil, err
	}

	var sources []Source
	seen := make(map[string]bool)
	for _, query := range queries {
		if !strings.Contains(strings.ToUpper(query.Text), "SELECT") {
			continue
		}
		key := fmt.Sprintf("%s:%d:%s", query.File, query.Line, query.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		sources = append(sources, Source{
			Category: CategoryDatabaseRead,
			Name:     "db_result",
			File:     query.File,
			Line:     query.Line,
			Pattern:  query.Text,
			Risk:     RiskLow,
			Meta:     map[string]any{"fact": "sql_queries"},
		})
	}
	return sources, nil
}

// isClientFile reports whether a path sits in a configured client-side area.
func (e *Engine) isClientFile(path string) bool {
	lower := strings.ToLower(path)
	for _, marker := range e.cfg.ClientMarkers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
