package xasio

import "math"

// Value is either a scalar or an array. Binary operators broadcast a
// scalar against an array; two arrays must share length.
type Value struct {
	Scalar   float64
	Array    []float64
	IsScalar bool
}

func ScalarValue(v float64) Value  { return Value{Scalar: v, IsScalar: true} }
func ArrayValue(v []float64) Value { return Value{Array: v} }

func (v Value) Len() int {
	if v.IsScalar {
		return 1
	}
	return len(v.Array)
}

func (v Value) At(i int) float64 {
	if v.IsScalar {
		return v.Scalar
	}
	return v.Array[i]
}

func binary(a, b Value, op func(x, y float64) float64) (Value, error) {
	if a.IsScalar && b.IsScalar {
		return ScalarValue(op(a.Scalar, b.Scalar)), nil
	}
	n := a.Len()
	if !a.IsScalar && !b.IsScalar {
		if len(a.Array) != len(b.Array) {
			return Value{}, &ShapeError{LenA: len(a.Array), LenB: len(b.Array)}
		}
	}
	if a.IsScalar {
		n = b.Len()
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = op(a.At(i), b.At(i))
	}
	return ArrayValue(out), nil
}

// ShapeError reports mismatched array lengths in a binary expression
// operator.
type ShapeError struct {
	LenA, LenB int
}

func (e *ShapeError) Error() string {
	return "operand length mismatch"
}

func unary(a Value, op func(x float64) float64) Value {
	if a.IsScalar {
		return ScalarValue(op(a.Scalar))
	}
	out := make([]float64, len(a.Array))
	for i, x := range a.Array {
		out[i] = op(x)
	}
	return ArrayValue(out)
}

func addV(a, b Value) (Value, error) {
	return binary(a, b, func(x, y float64) float64 { return x + y })
}
func subV(a, b Value) (Value, error) {
	return binary(a, b, func(x, y float64) float64 { return x - y })
}
func mulV(a, b Value) (Value, error) {
	return binary(a, b, func(x, y float64) float64 { return x * y })
}
func divV(a, b Value) (Value, error) {
	return binary(a, b, func(x, y float64) float64 { return x / y })
}
func powV(a, b Value) (Value, error) { return binary(a, b, math.Pow) }
func negV(a Value) Value             { return unary(a, func(x float64) float64 { return -x }) }
