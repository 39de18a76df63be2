package critic

import (
	"fmt"

	"github.com/Knetic/govaluate"
)

// EvalThresholdExpr evaluates an operator-supplied boolean expression
// over a claim's test scores, for ad-hoc threshold tuning without a
// redeploy (e.g. "entailment >= 0.7 && contradiction <= 0.2"). This is
// a diagnostic helper, not part of the accept/reject decision the
// Verifier itself makes. Adapted from the teacher's math tool
// evaluate(), which does the same govaluate.NewEvaluableExpression /
// Evaluate(parameters) dance for operator-supplied expressions.
func EvalThresholdExpr(expr string, groundEntailment, groundContradiction, relevanceEntailment, lexicalOverlap float64) (bool, error) {
	if expr == "" {
		return false, fmt.Errorf("critic: threshold expression is required")
	}

	evaluable, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return false, fmt.Errorf("critic: invalid threshold expression: %w", err)
	}

	parameters := map[string]interface{}{
		"entailment":    groundEntailment,
		"contradiction": groundContradiction,
		"relevance":     relevanceEntailment,
		"overlap":       lexicalOverlap,
	}

	result, err := evaluable.Evaluate(parameters)
	if err != nil {
		return false, fmt.Errorf("critic: evaluate threshold expression: %w", err)
	}

	pass, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("critic: threshold expression must evaluate to a boolean, got %T", result)
	}
	return pass, nil
}
