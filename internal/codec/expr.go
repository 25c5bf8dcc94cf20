package codec

import "fmt"

// Expr is the restricted expression algebra fields use to reference prior
// field values: arithmetic, length-of, and a handful of helpers
// (assertEqual, min/max, intsize/uintsize from the original catalog). It is
// a closed Go AST rather than a string-eval sandbox — there is no way to
// construct an Expr that reaches outside its own State.
type Expr func(State) any

// Const always yields v, ignoring state.
func Const(v any) Expr {
	return func(State) any { return v }
}

// Ref looks up a previously-read field or virtual field by name.
func Ref(name string) Expr {
	return func(st State) any { return st[name] }
}

// Len evaluates inner and returns the length of the resulting byte slice,
// string, array, or set — used for "len(payload)"-style virtual fields.
func Len(inner Expr) Expr {
	return func(st State) any {
		switch v := inner(st).(type) {
		case []byte:
			return len(v)
		case string:
			return len(v)
		case []any:
			return len(v)
		case map[int]struct{}:
			return len(v)
		case nil:
			return 0
		default:
			panic(fmt.Sprintf("codec: len() of unsupported type %T", v))
		}
	}
}

// Add sums the integer value of every operand.
func Add(es ...Expr) Expr {
	return func(st State) any {
		sum := 0
		for _, e := range es {
			sum += AsInt(e(st))
		}
		return sum
	}
}

// Sub returns a - b as integers.
func Sub(a, b Expr) Expr {
	return func(st State) any { return AsInt(a(st)) - AsInt(b(st)) }
}

// Max returns the larger of a and b as integers.
func Max(a, b Expr) Expr {
	return func(st State) any {
		x, y := AsInt(a(st)), AsInt(b(st))
		if x > y {
			return x
		}
		return y
	}
}

// GT returns a > b.
func GT(a, b Expr) Expr {
	return func(st State) any { return AsInt(a(st)) > AsInt(b(st)) }
}

// Present reports whether the state holds a non-nil value under name — the
// common "optional(present=...)" test for a field the caller may omit.
func Present(name string) Expr {
	return func(st State) any { return st[name] != nil }
}

// NotZero reports whether e evaluates to a non-zero int.
func NotZero(e Expr) Expr {
	return func(st State) any { return AsInt(e(st)) != 0 }
}

// IntSize returns the fewest bytes a two's-complement encoding of e needs,
// used by virtualfield size prefixes ahead of a variable-width Int field.
func IntSize(e Expr) Expr {
	return func(st State) any {
		x := int64(AsInt(e(st)))
		size := 1
		if x < 0 {
			x = -x - 1
			for x >= 128 {
				size++
				x >>= 8
			}
		} else {
			for x >= 128 {
				size++
				x >>= 8
			}
		}
		return size
	}
}

// AsInt coerces a decoded/caller-supplied value to int. Field values that
// round-trip through the codec are always one of the small set of Go types
// the primitives in this package produce or accept.
func AsInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int8:
		return int(x)
	case int64:
		return int(x)
	case uint8:
		return int(x)
	case uint16:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	case nil:
		return 0
	default:
		panic(fmt.Sprintf("codec: not an int: %#v", v))
	}
}

// AsUint coerces a decoded value to uint64, for callers that want the
// field's native unsigned width rather than AsInt's int truncation.
func AsUint(v any) uint64 {
	switch x := v.(type) {
	case uint64:
		return x
	case uint32:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint8:
		return uint64(x)
	case int:
		return uint64(x)
	case nil:
		return 0
	default:
		panic(fmt.Sprintf("codec: not a uint: %#v", v))
	}
}

// AsBool coerces v to bool; a nil or missing value is false.
func AsBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// AsBytes coerces v to a byte slice; nil yields an empty slice.
func AsBytes(v any) []byte {
	b, _ := v.([]byte)
	return b
}

// AsString coerces v to a string.
func AsString(v any) string {
	s, _ := v.(string)
	return s
}

// AsSet coerces v to an integer set (the result type of Bitset).
func AsSet(v any) map[int]struct{} {
	s, _ := v.(map[int]struct{})
	return s
}

// AsSlice coerces v to a []any (the result type of Array).
func AsSlice(v any) []any {
	s, _ := v.([]any)
	return s
}
