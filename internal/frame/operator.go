package frame

import (
	"fmt"

	"github.com/purc-go/purc/internal/variant"
	"github.com/purc-go/purc/internal/vdom"
)

// Combine applies op to (current, operand) and returns a new owned
// variant, the "tokenwise-combine function" spec §4.4 names for every
// attribute operator except plain `=`, which ref-s and returns operand
// directly. current may be nil (attribute not previously set).
func Combine(op vdom.Operator, current, operand *variant.Value) (*variant.Value, error) {
	if op == vdom.OpAssign {
		return operand.Ref(), nil
	}
	if current == nil {
		current = variant.Null
	}

	switch op {
	case vdom.OpAdd:
		return numericCombine(current, operand, func(a, b float64) float64 { return a + b })
	case vdom.OpSubtract:
		return numericCombine(current, operand, func(a, b float64) float64 { return a - b })
	case vdom.OpMultiply:
		return numericCombine(current, operand, func(a, b float64) float64 { return a * b })
	case vdom.OpDivide:
		return numericCombine(current, operand, func(a, b float64) float64 { return a / b })
	case vdom.OpXor:
		return numericCombine(current, operand, func(a, b float64) float64 {
			return float64(int64(a) ^ int64(b))
		})
	case vdom.OpSuffix:
		// string concatenation, current ++ operand
		return stringCombine(current, operand, func(a, b string) string { return a + b })
	case vdom.OpOverwrite:
		// operand replaces current entirely, same as assign but named
		// distinctly because callers may want to distinguish "assigned
		// fresh" from "overwritten" for diagnostics.
		return operand.Ref(), nil
	case vdom.OpDisplace:
		// displace: operand is appended to a copy of current if current
		// is an array or set, otherwise behaves like overwrite.
		return displaceCombine(current, operand)
	default:
		return nil, fmt.Errorf("frame: unknown attribute operator %s", op)
	}
}

func numericCombine(current, operand *variant.Value, fn func(a, b float64) float64) (*variant.Value, error) {
	a, err := coerceNumber(current)
	if err != nil {
		return nil, err
	}
	b, err := coerceNumber(operand)
	if err != nil {
		return nil, err
	}
	return variant.MakeNumber(fn(a, b)), nil
}

func stringCombine(current, operand *variant.Value, fn func(a, b string) string) (*variant.Value, error) {
	a, err := coerceString(current)
	if err != nil {
		return nil, err
	}
	b, err := coerceString(operand)
	if err != nil {
		return nil, err
	}
	return variant.MakeString(fn(a, b)), nil
}

func displaceCombine(current, operand *variant.Value) (*variant.Value, error) {
	switch current.Kind() {
	case variant.KindArray:
		n := variant.MakeArray()
		for i := 0; i < current.Len(); i++ {
			n.ArrayAppend(current.ArrayGet(i))
		}
		n.ArrayAppend(operand)
		return n, nil
	case variant.KindSet:
		n := variant.MakeSet()
		for _, m := range current.SetMembers() {
			n.SetAdd(m)
		}
		n.SetAdd(operand)
		return n, nil
	default:
		return operand.Ref(), nil
	}
}

func coerceNumber(v *variant.Value) (float64, error) {
	switch v.Kind() {
	case variant.KindNumber:
		return v.Number(), nil
	case variant.KindNull:
		return 0, nil
	case variant.KindBool:
		if v.Bool() {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("frame: cannot coerce %s to number", v.Kind())
	}
}

func coerceString(v *variant.Value) (string, error) {
	switch v.Kind() {
	case variant.KindString:
		return v.String(), nil
	case variant.KindNull:
		return "", nil
	default:
		return "", fmt.Errorf("frame: cannot coerce %s to string", v.Kind())
	}
}
