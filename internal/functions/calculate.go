package functions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"

	"github.com/expr-lang/expr"

	"agentgate/internal/core"
)

var arithmeticOnly = regexp.MustCompile(`^[0-9+\-*/(). ]*$`)

var errInvalidExpression = errors.New("invalid characters in expression")

func init() {
	registerBuiltin(NewCalculate)
}

// NewCalculate returns the built-in arithmetic function.
func NewCalculate() core.Function {
	return New(
		"calculate",
		"Evaluate an arithmetic expression",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "The arithmetic expression to evaluate",
				},
			},
			"required": []string{"expression"},
		},
		calculate,
	)
}

func calculate(_ context.Context, args map[string]any) (any, error) {
	raw, ok := args["expression"]
	if !ok {
		return nil, errors.New("expression is required")
	}
	expression, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("expression must be a string, got %T", raw)
	}
	if !arithmeticOnly.MatchString(expression) {
		return nil, errInvalidExpression
	}

	out, err := expr.Eval(expression, nil)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression: %w", err)
	}
	if f, ok := out.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
		return nil, errors.New("division by zero")
	}
	return map[string]any{"result": out}, nil
}
