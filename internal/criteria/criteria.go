// Package criteria evaluates small boolean/arithmetic expressions that gate
// trade entry and exit, e.g. {"expr": "price > 245", "operation": "or"}.
package criteria

import (
	"encoding/json"
	"fmt"

	"github.com/Knetic/govaluate"
)

// Combination operations between a criterion and the running result.
const (
	OpAnd = "and"
	OpOr  = "or"
)

// Criterion is a single gating expression. Operation controls how its
// result combines with the running result of the preceding criteria;
// it defaults to "and".
type Criterion struct {
	Expr      string `json:"expr"`
	Operation string `json:"operation,omitempty"`
}

// Error reports a malformed or unevaluable criterion expression.
type Error struct {
	Expr string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("criteria: evaluating %q: %v", e.Expr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Evaluate runs each criterion against the variable context and folds the
// results left to right. The first criterion seeds the result; each
// subsequent one combines with the running result using its own operation.
// This is deliberately a left fold, not operator-precedence parsing:
// [A, B, or C] evaluates as (A and B) or C.
func Evaluate(criteria []Criterion, params map[string]interface{}) (bool, error) {
	if len(criteria) == 0 {
		return true, nil
	}

	var result bool
	for i, c := range criteria {
		v, err := evalOne(c, params)
		if err != nil {
			return false, err
		}
		if i == 0 {
			result = v
			continue
		}
		switch c.Operation {
		case OpOr:
			result = result || v
		case OpAnd, "":
			result = result && v
		default:
			return false, &Error{Expr: c.Expr, Err: fmt.Errorf("unknown operation %q", c.Operation)}
		}
	}
	return result, nil
}

func evalOne(c Criterion, params map[string]interface{}) (bool, error) {
	expr, err := govaluate.NewEvaluableExpression(c.Expr)
	if err != nil {
		return false, &Error{Expr: c.Expr, Err: err}
	}
	out, err := expr.Evaluate(params)
	if err != nil {
		return false, &Error{Expr: c.Expr, Err: err}
	}
	switch v := out.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	default:
		return false, &Error{Expr: c.Expr, Err: fmt.Errorf("expression result %T is not boolean or numeric", out)}
	}
}

// EvaluateExpr evaluates a single bare expression and returns its numeric
// value, used by leg-selection filters that sort on a computed quantity.
func EvaluateExpr(expr string, params map[string]interface{}) (float64, error) {
	ev, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return 0, &Error{Expr: expr, Err: err}
	}
	out, err := ev.Evaluate(params)
	if err != nil {
		return 0, &Error{Expr: expr, Err: err}
	}
	switch v := out.(type) {
	case float64:
		return v, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, &Error{Expr: expr, Err: fmt.Errorf("expression result %T is not numeric", out)}
	}
}

// ParseList decodes a JSON array of criteria, as persisted alongside a
// position's close_criteria field.
func ParseList(raw string) ([]Criterion, error) {
	if raw == "" {
		return nil, nil
	}
	var out []Criterion
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decoding criteria list: %w", err)
	}
	return out, nil
}

// MarshalList encodes criteria for persistence. An empty list encodes to
// the empty string so absent criteria round-trip as absent.
func MarshalList(criteria []Criterion) (string, error) {
	if len(criteria) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(criteria)
	if err != nil {
		return "", fmt.Errorf("encoding criteria list: %w", err)
	}
	return string(raw), nil
}
