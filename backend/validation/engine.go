// Package validation checks extracted termsheet data against business rules.
//
// The engine is pure apart from a single duplicate lookup made before the rules
// run. Every rule is evaluated on every pass so a caller sees all problems at once.
package validation

import (
	"context"
	"errors"
	"fmt"

	"github.com/bluebridge/termsheet-ingest/backend/model"
)

// DuplicateChecker answers whether a product with the given ISIN is already stored.
type DuplicateChecker interface {
	ExistsByISIN(ctx context.Context, isin string) (bool, error)
}

// DuplicateCheckerFunc adapts a function to DuplicateChecker.
type DuplicateCheckerFunc func(ctx context.Context, isin string) (bool, error)

func (f DuplicateCheckerFunc) ExistsByISIN(ctx context.Context, isin string) (bool, error) {
	return f(ctx, isin)
}

// Engine evaluates a rule table. It holds no state between calls.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine over the given rules, or DefaultRules when none are given.
func NewEngine(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Engine{rules: rules}
}

// Rules returns the rule names in evaluation order.
func (e *Engine) Rules() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name
	}
	return names
}

// Validate runs every rule against doc. The returned error is only ever a
// failure of the duplicate checker; rule violations are reported as issues.
func (e *Engine) Validate(ctx context.Context, doc *model.TermsheetData, checker DuplicateChecker) (model.ValidationResult, error) {
	var result model.ValidationResult
	if doc == nil {
		return result, errors.New("validation: nil document")
	}

	var facts Facts
	if checker != nil {
		dup, err := checker.ExistsByISIN(ctx, doc.Product.ISIN)
		if err != nil {
			return result, fmt.Errorf("duplicate check: %w", err)
		}
		facts.Duplicate = dup
	}

	for _, rule := range e.rules {
		for _, subject := range rule.Select(doc) {
			if !rule.Violated(subject, facts) {
				continue
			}
			result.Issues = append(result.Issues, model.ValidationIssue{
				Field:    subject.Field,
				Rule:     rule.Name,
				Message:  rule.Message(subject),
				Severity: rule.Severity,
			})
		}
	}

	return result, nil
}

var defaultEngine = NewEngine()

// Validate runs the default rule table.
func Validate(ctx context.Context, doc *model.TermsheetData, checker DuplicateChecker) (model.ValidationResult, error) {
	return defaultEngine.Validate(ctx, doc, checker)
}
