package agent

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ValidationError reports a candidate result that failed coercion. It
// is recoverable: the turn loop feeds the detail back to the acting
// agent instead of propagating it.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return "result validation failed: " + e.Detail
}

// Coercer is the coerce-and-validate capability. Given a raw candidate
// value and the task's result contract it returns the typed value, or a
// *ValidationError when the candidate does not satisfy the contract.
// A nil contract accepts anything, including nil.
type Coercer interface {
	Coerce(raw any, contract any) (any, error)
}

// Shape names a JSON-ish value kind. It is the contract vocabulary of
// the built-in coercer; richer schema systems plug in behind the
// Coercer interface.
type Shape string

const (
	ShapeString Shape = "string"
	ShapeNumber Shape = "number"
	ShapeBool   Shape = "bool"
	ShapeObject Shape = "object"
	ShapeList   Shape = "list"
)

// ShapeCoercer validates candidates against a Shape contract, with
// lenient string-to-scalar conversion since generation backends tend to
// return everything as text.
type ShapeCoercer struct{}

func (ShapeCoercer) Coerce(raw any, contract any) (any, error) {
	if contract == nil {
		return raw, nil
	}

	shape, ok := contract.(Shape)
	if !ok {
		return nil, &ValidationError{Detail: fmt.Sprintf("unsupported contract type %T", contract)}
	}
	if raw == nil {
		return nil, &ValidationError{Detail: fmt.Sprintf("contract %q requires a value, got nil", shape)}
	}

	switch shape {
	case ShapeString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return nil, shapeMismatch(shape, raw)

	case ShapeNumber:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, &ValidationError{Detail: fmt.Sprintf("%q is not a number", v)}
			}
			return f, nil
		}
		return nil, shapeMismatch(shape, raw)

	case ShapeBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, &ValidationError{Detail: fmt.Sprintf("%q is not a bool", v)}
			}
			return b, nil
		}
		return nil, shapeMismatch(shape, raw)

	case ShapeObject:
		if m, ok := raw.(map[string]any); ok {
			return m, nil
		}
		if s, ok := raw.(string); ok {
			var m map[string]any
			if err := json.Unmarshal([]byte(s), &m); err != nil {
				return nil, &ValidationError{Detail: "string is not a JSON object: " + err.Error()}
			}
			return m, nil
		}
		return nil, shapeMismatch(shape, raw)

	case ShapeList:
		if l, ok := raw.([]any); ok {
			return l, nil
		}
		if s, ok := raw.(string); ok {
			var l []any
			if err := json.Unmarshal([]byte(s), &l); err != nil {
				return nil, &ValidationError{Detail: "string is not a JSON list: " + err.Error()}
			}
			return l, nil
		}
		return nil, shapeMismatch(shape, raw)
	}

	return nil, &ValidationError{Detail: fmt.Sprintf("unknown shape %q", shape)}
}

func shapeMismatch(shape Shape, raw any) *ValidationError {
	return &ValidationError{Detail: fmt.Sprintf("expected %s, got %T", shape, raw)}
}
