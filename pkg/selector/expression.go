package selector

import (
	"fmt"

	"github.com/hashicorp/go-bexpr"

	"github.com/speedrun-hq/rerunner/pkg/logger"
	"github.com/speedrun-hq/rerunner/pkg/models"
)

// ExpressionFilter matches combinations against a boolean expression over axis names,
// e.g. `(axis1 == "1" and axis2 == "2") or axis1 == "3"`.
type ExpressionFilter struct {
	expression string
	evaluator  *bexpr.Evaluator
	logger     logger.Logger
}

var _ CombinationFilter = (*ExpressionFilter)(nil)

// NewExpressionFilter compiles expression. A malformed expression is a configuration error.
func NewExpressionFilter(expression string, log logger.Logger) (*ExpressionFilter, error) {
	evaluator, err := bexpr.CreateEvaluator(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid combination filter %q: %w", expression, err)
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &ExpressionFilter{
		expression: expression,
		evaluator:  evaluator,
		logger:     log,
	}, nil
}

// Expression returns the source expression
func (f *ExpressionFilter) Expression() string {
	return f.expression
}

// Matches evaluates the expression for c. An evaluation error counts as no match.
func (f *ExpressionFilter) Matches(c models.Combination) bool {
	ok, err := f.evaluator.Evaluate(map[string]string(c))
	if err != nil {
		f.logger.Error("Failed to evaluate combination filter %q for %s: %v", f.expression, c, err)
		return false
	}
	return ok
}
