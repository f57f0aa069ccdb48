package search

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/infodancer/sprucemail/summary"
)

func evalString(t *testing.T, expr string) Value {
	t.Helper()
	term, err := Parse(expr)
	if err != nil {
		t.Fatalf("parse %q: %v", expr, err)
	}
	v, err := Eval(term, newGlobalScope(nil))
	if err != nil {
		t.Fatalf("eval %q: %v", expr, err)
	}
	return v
}

func TestArithmeticPromotion(t *testing.T) {
	v := evalString(t, "(+ 1 2 3)")
	if v.Kind != KindInt || v.Int != 6 {
		t.Fatalf("got %v", v)
	}

	v = evalString(t, "(+ 1.0 2)")
	if v.Kind != KindFloat || v.Float != 3.0 {
		t.Fatalf("got %v", v)
	}
}

func TestDivisionByZeroThrows(t *testing.T) {
	term, err := Parse("(/ 10 0)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err = Eval(term, newGlobalScope(nil))
	if err == nil {
		t.Fatalf("expected division by zero to throw")
	}
	if _, ok := err.(*Error); !ok {
		t.Fatalf("expected *search.Error, got %T", err)
	}
}

func TestIfBranching(t *testing.T) {
	v := evalString(t, `(if (> 3 2) "yes" "no")`)
	if v.Kind != KindString || v.Str != "yes" {
		t.Fatalf("got %v", v)
	}
}

func TestOrEvaluatesEveryBooleanOperand(t *testing.T) {
	v := evalString(t, `(or (and true false) (and true true))`)
	if v.Kind != KindBool || !v.Bool {
		t.Fatalf("expected or to evaluate every operand, got %v", v)
	}
}

// fakeFolder is a minimal FolderContext for exercising match-all.
type fakeFolder struct {
	sum *summary.Summary
}

func (f *fakeFolder) Summary() *summary.Summary { return f.sum }
func (f *fakeFolder) GetMessage(ctx context.Context, uid string) (io.ReadCloser, error) {
	return nil, io.EOF
}

func TestMatchAllIntersection(t *testing.T) {
	sum := summary.New()

	r1 := summary.NewRecord("1")
	r1.Flags = r1.Flags.Set(summary.FlagSeen | summary.FlagAnswered)
	sum.Add(r1)

	r2 := summary.NewRecord("2")
	r2.Flags = r2.Flags.Set(summary.FlagSeen)
	sum.Add(r2)

	r3 := summary.NewRecord("3")
	r3.Flags = r3.Flags.Set(summary.FlagAnswered)
	sum.Add(r3)

	fs := NewFolderSearch(&fakeFolder{sum: sum})
	v, err := fs.Eval(context.Background(), nil,
		`(and (match-all (system-flag "seen")) (match-all (system-flag "answered")))`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if v.Kind != KindArray {
		t.Fatalf("expected array, got %v", v.Kind)
	}
	if len(v.Array) != 1 || v.Array[0] != "1" {
		t.Fatalf("expected [1], got %v", v.Array)
	}
}

func TestMatchAllUsesSentDate(t *testing.T) {
	sum := summary.New()
	r1 := summary.NewRecord("a")
	r1.DateSent = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	sum.Add(r1)
	r2 := summary.NewRecord("b")
	r2.DateSent = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sum.Add(r2)

	fs := NewFolderSearch(&fakeFolder{sum: sum})
	v, err := fs.Eval(context.Background(), nil, `(match-all (> (sent-date) 1000000000))`)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if len(v.Array) != 2 {
		t.Fatalf("expected both records matched, got %v", v.Array)
	}
}

func TestPrettyRoundTrip(t *testing.T) {
	exprs := []string{
		`(+ 1 2 3)`,
		`(if (> 3 2) "yes" "no")`,
		`(and true false)`,
		`(header-contains "subject" "hi")`,
	}
	for _, expr := range exprs {
		term, err := Parse(expr)
		if err != nil {
			t.Fatalf("parse %q: %v", expr, err)
		}
		reparsed, err := Parse(Pretty(term))
		if err != nil {
			t.Fatalf("parse pretty(%q) = %q: %v", expr, Pretty(term), err)
		}

		v1, err1 := Eval(term, newGlobalScope(nil))
		v2, err2 := Eval(reparsed, newGlobalScope(nil))
		if (err1 == nil) != (err2 == nil) {
			t.Fatalf("round-trip error mismatch for %q: %v vs %v", expr, err1, err2)
		}
		if err1 == nil && !valuesEqual(v1, v2) {
			t.Fatalf("round-trip value mismatch for %q: %v vs %v", expr, v1, v2)
		}
	}
}

func valuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindBool:
		return a.Bool == b.Bool
	case KindInt:
		return a.Int == b.Int
	case KindFloat:
		return a.Float == b.Float
	case KindString:
		return a.Str == b.Str
	case KindTime:
		return a.Time.Equal(b.Time)
	case KindArray:
		if len(a.Array) != len(b.Array) {
			return false
		}
		for i := range a.Array {
			if a.Array[i] != b.Array[i] {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func TestAndCommutesOverBooleans(t *testing.T) {
	a := evalString(t, "(and true false)")
	b := evalString(t, "(and false true)")
	if a.Bool != b.Bool {
		t.Fatalf("and should commute over booleans: %v vs %v", a, b)
	}
}
