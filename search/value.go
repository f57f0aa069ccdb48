// Package search implements the s-expression search dialect used to
// filter folder summaries: a small Lisp-style interpreter with typed
// values, lexically scoped symbols, and folder-aware predicates.
package search

import (
	"fmt"
	"time"
)

// Kind identifies the dynamic type of a Value.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindTime
	KindFloat
	KindString
	KindArray
	KindList
	KindVoid
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindTime:
		return "time"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindList:
		return "list"
	default:
		return "void"
	}
}

// Value is a dynamically typed result produced by evaluating a term.
// Array holds opaque IDs (in practice, message UIDs).
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Time  time.Time
	Str   string
	Array []string
	List  []Value
}

func Bool(b bool) Value              { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value              { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value          { return Value{Kind: KindFloat, Float: f} }
func String(s string) Value          { return Value{Kind: KindString, Str: s} }
func TimeValue(t time.Time) Value    { return Value{Kind: KindTime, Time: t} }
func Array(ids []string) Value       { return Value{Kind: KindArray, Array: ids} }
func List(items []Value) Value       { return Value{Kind: KindList, List: items} }
func Void() Value                    { return Value{Kind: KindVoid} }

// Error is thrown by the evaluator on any argument-shape or type
// mismatch, modeling the non-local "throw" described in the design:
// the interpreter returns it rather than unwinding a call stack.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

func throwf(format string, args ...any) error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// asFloat promotes an Int/Float/Time value to float64, or throws. Time
// promotes to its Unix epoch seconds, so a Time value compares against
// another Time or a plain epoch-seconds Int/Float with the same `<`/
// `>`/`=` operators used for numeric comparisons.
func asFloat(v Value) (float64, error) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), nil
	case KindFloat:
		return v.Float, nil
	case KindTime:
		return float64(v.Time.Unix()), nil
	default:
		return 0, throwf("expected numeric value, got %s", v.Kind)
	}
}

// asBool coerces a value to Bool the way cast-bool does.
func asBool(v Value) (bool, error) {
	switch v.Kind {
	case KindBool:
		return v.Bool, nil
	case KindInt:
		return v.Int != 0, nil
	case KindFloat:
		return v.Float != 0, nil
	case KindString:
		return v.Str == "true" || v.Str == "#t", nil
	default:
		return false, throwf("cannot coerce %s to bool", v.Kind)
	}
}
