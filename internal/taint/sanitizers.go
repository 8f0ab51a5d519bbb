// File: internal/taint/sanitizers.go
package taint

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// DiscoverSanitizers collects the constructs the propagation engine treats
// as taint-clearing: validation framework call sites and ORM model
// registrations (whose generated accessors parameterize queries).
func (e *Engine) DiscoverSanitizers(ctx context.Context) ([]Sanitizer, error) {
	var sanitizers []Sanitizer
	seen := make(map[string]bool)

	validators, err := e.store.Validators(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range validators {
		if v.Framework == "" && v.Method == "" {
			continue
		}
		pattern := v.Method
		if v.Framework != "" && v.Method != "" {
			pattern = v.Framework + "." + v.Method
		} else if pattern == "" {
			pattern = v.Framework
		}
		key := fmt.Sprintf("%s:%d:%s", v.File, v.Line, pattern)
		if seen[key] {
			continue
		}
		seen[key] = true
		sanitizers = append(sanitizers, Sanitizer{
			Category: CategoryValidator,
			Name:     v.Method,
			File:     v.File,
			Line:     v.Line,
			Pattern:  pattern,
			Risk:     RiskLow,
			Meta: map[string]any{
				"fact":      "validation_framework_usage",
				"framework": v.Framework,
				"kind":      v.Kind,
			},
		})
	}

	models, err := e.store.ORMModels(ctx)
	if err != nil {
		return nil, err
	}
	for _, model := range models {
		if model.Name == "" {
			continue
		}
		key := "model:" + model.Framework + ":" + model.Name
		if seen[key] {
			continue
		}
		seen[key] = true
		sanitizers = append(sanitizers, Sanitizer{
			Category: CategoryORMModel,
			Name:     model.Name,
			Pattern:  model.Name,
			Risk:     RiskLow,
			Meta: map[string]any{
				"fact":      "orm_models",
				"framework": model.Framework,
				"language":  model.Language,
				"table":     model.Table,
			},
		})
	}

	e.log.Debug("Sanitizer discovery complete.", zap.Int("count", len(sanitizers)))
	return sanitizers, nil
}
