package search

import "strconv"

func registerBuiltins(s *Scope) {
	s.define("and", Binding{IFunc: builtinAnd})
	s.define("or", Binding{IFunc: builtinOr})
	s.define("not", Binding{Func: builtinNot})
	s.define("<", Binding{IFunc: builtinCompare("<")})
	s.define(">", Binding{IFunc: builtinCompare(">")})
	s.define("=", Binding{IFunc: builtinCompare("=")})
	s.define("+", Binding{Func: builtinArith("+")})
	s.define("-", Binding{Func: builtinArith("-")})
	s.define("*", Binding{Func: builtinArith("*")})
	s.define("/", Binding{Func: builtinArith("/")})
	s.define("if", Binding{IFunc: builtinIf})
	s.define("begin", Binding{IFunc: builtinBegin})
	s.define("cast-bool", Binding{Func: builtinCastBool})
	s.define("cast-int", Binding{Func: builtinCastInt})
	s.define("cast-float", Binding{Func: builtinCastFloat})
	s.define("cast-string", Binding{Func: builtinCastString})
}

// builtinAnd: over Bool, short-circuiting logical AND (it never needs
// to look past the first false since no i-func laziness is observable
// once every argument shares the Array-vs-Bool type). Over Array, set
// intersection in order-of-first-occurrence; all operands must be
// evaluated since every one narrows the result.
func builtinAnd(scope *Scope, args []*Term) (Value, error) {
	if len(args) == 0 {
		return Value{}, throwf("and: requires at least one argument")
	}
	first, err := Eval(args[0], scope)
	if err != nil {
		return Value{}, err
	}
	switch first.Kind {
	case KindBool:
		result := first.Bool
		for _, a := range args[1:] {
			if !result {
				break
			}
			v, err := Eval(a, scope)
			if err != nil {
				return Value{}, err
			}
			if v.Kind != KindBool {
				return Value{}, throwf("and: cannot mix bool and %s", v.Kind)
			}
			result = result && v.Bool
		}
		return Bool(result), nil
	case KindArray:
		acc := append([]string(nil), first.Array...)
		for _, a := range args[1:] {
			v, err := Eval(a, scope)
			if err != nil {
				return Value{}, err
			}
			if v.Kind != KindArray {
				return Value{}, throwf("and: cannot mix array and %s", v.Kind)
			}
			acc = intersect(acc, v.Array)
		}
		return Array(acc), nil
	default:
		return Value{}, throwf("and: unsupported operand type %s", first.Kind)
	}
}

// builtinOr evaluates every argument (no short-circuit) and unions
// the results: every operand contributes regardless of any earlier
// truthy/array value.
func builtinOr(scope *Scope, args []*Term) (Value, error) {
	if len(args) == 0 {
		return Value{}, throwf("or: requires at least one argument")
	}
	var mode Kind
	boolResult := false
	var arrResult []string
	for i, a := range args {
		v, err := Eval(a, scope)
		if err != nil {
			return Value{}, err
		}
		if i == 0 {
			mode = v.Kind
		} else if v.Kind != mode {
			return Value{}, throwf("or: cannot mix %s and %s", mode, v.Kind)
		}
		switch mode {
		case KindBool:
			boolResult = boolResult || v.Bool
		case KindArray:
			arrResult = union(arrResult, v.Array)
		default:
			return Value{}, throwf("or: unsupported operand type %s", v.Kind)
		}
	}
	if mode == KindArray {
		return Array(arrResult), nil
	}
	return Bool(boolResult), nil
}

func builtinNot(scope *Scope, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, throwf("not: requires exactly one argument")
	}
	switch args[0].Kind {
	case KindBool:
		return Bool(!args[0].Bool), nil
	case KindArray:
		return Void(), nil
	default:
		return Value{}, throwf("not: unsupported operand type %s", args[0].Kind)
	}
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(b))
	for _, x := range b {
		set[x] = struct{}{}
	}
	var out []string
	for _, x := range a {
		if _, ok := set[x]; ok {
			out = append(out, x)
		}
	}
	return out
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, x := range append(append([]string{}, a...), b...) {
		if _, ok := seen[x]; !ok {
			seen[x] = struct{}{}
			out = append(out, x)
		}
	}
	return out
}

func builtinCompare(op string) func(*Scope, []*Term) (Value, error) {
	return func(scope *Scope, args []*Term) (Value, error) {
		if len(args) != 2 {
			return Value{}, throwf("%s: requires exactly two arguments", op)
		}
		a, err := Eval(args[0], scope)
		if err != nil {
			return Value{}, err
		}
		b, err := Eval(args[1], scope)
		if err != nil {
			return Value{}, err
		}
		if a.Kind == KindString || b.Kind == KindString {
			if a.Kind != KindString || b.Kind != KindString {
				return Value{}, throwf("%s: cannot compare %s and %s", op, a.Kind, b.Kind)
			}
			switch op {
			case "<":
				return Bool(a.Str < b.Str), nil
			case ">":
				return Bool(a.Str > b.Str), nil
			default:
				return Bool(a.Str == b.Str), nil
			}
		}
		af, err := asFloat(a)
		if err != nil {
			return Value{}, err
		}
		bf, err := asFloat(b)
		if err != nil {
			return Value{}, err
		}
		switch op {
		case "<":
			return Bool(af < bf), nil
		case ">":
			return Bool(af > bf), nil
		default:
			return Bool(af == bf), nil
		}
	}
}

func builtinArith(op string) func(*Scope, []Value) (Value, error) {
	return func(scope *Scope, args []Value) (Value, error) {
		if len(args) == 0 {
			return Value{}, throwf("%s: requires at least one argument", op)
		}
		allInt := true
		for _, v := range args {
			if v.Kind != KindInt && v.Kind != KindFloat {
				return Value{}, throwf("%s: non-numeric operand %s", op, v.Kind)
			}
			if v.Kind != KindInt {
				allInt = false
			}
		}
		if allInt {
			result := args[0].Int
			for _, v := range args[1:] {
				switch op {
				case "+":
					result += v.Int
				case "-":
					result -= v.Int
				case "*":
					result *= v.Int
				case "/":
					if v.Int == 0 {
						return Value{}, throwf("/: division by zero")
					}
					result /= v.Int
				}
			}
			if len(args) == 1 && op == "-" {
				result = -args[0].Int
			}
			return Int(result), nil
		}

		result, _ := asFloat(args[0])
		if len(args) == 1 && op == "-" {
			return Float(-result), nil
		}
		for _, v := range args[1:] {
			f, _ := asFloat(v)
			switch op {
			case "+":
				result += f
			case "-":
				result -= f
			case "*":
				result *= f
			case "/":
				if f == 0 {
					return Value{}, throwf("/: division by zero")
				}
				result /= f
			}
		}
		return Float(result), nil
	}
}

func builtinIf(scope *Scope, args []*Term) (Value, error) {
	if len(args) != 2 && len(args) != 3 {
		return Value{}, throwf("if: requires (if c t) or (if c t e)")
	}
	cv, err := Eval(args[0], scope)
	if err != nil {
		return Value{}, err
	}
	cond, err := asBool(cv)
	if err != nil {
		return Value{}, err
	}
	if cond {
		return Eval(args[1], scope)
	}
	if len(args) == 3 {
		return Eval(args[2], scope)
	}
	return Void(), nil
}

func builtinBegin(scope *Scope, args []*Term) (Value, error) {
	result := Void()
	for _, a := range args {
		v, err := Eval(a, scope)
		if err != nil {
			return Value{}, err
		}
		result = v
	}
	return result, nil
}

func builtinCastBool(scope *Scope, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, throwf("cast-bool: requires exactly one argument")
	}
	b, err := asBool(args[0])
	if err != nil {
		return Value{}, err
	}
	return Bool(b), nil
}

func builtinCastInt(scope *Scope, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, throwf("cast-int: requires exactly one argument")
	}
	v := args[0]
	switch v.Kind {
	case KindInt:
		return v, nil
	case KindFloat:
		return Int(int64(v.Float)), nil
	case KindBool:
		if v.Bool {
			return Int(1), nil
		}
		return Int(0), nil
	case KindString:
		i, err := strconv.ParseInt(v.Str, 10, 64)
		if err != nil {
			return Value{}, throwf("cast-int: cannot parse %q", v.Str)
		}
		return Int(i), nil
	default:
		return Value{}, throwf("cast-int: cannot cast %s", v.Kind)
	}
}

func builtinCastFloat(scope *Scope, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, throwf("cast-float: requires exactly one argument")
	}
	v := args[0]
	switch v.Kind {
	case KindFloat:
		return v, nil
	case KindInt:
		return Float(float64(v.Int)), nil
	case KindBool:
		if v.Bool {
			return Float(1), nil
		}
		return Float(0), nil
	case KindString:
		f, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return Value{}, throwf("cast-float: cannot parse %q", v.Str)
		}
		return Float(f), nil
	default:
		return Value{}, throwf("cast-float: cannot cast %s", v.Kind)
	}
}

func builtinCastString(scope *Scope, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, throwf("cast-string: requires exactly one argument")
	}
	v := args[0]
	switch v.Kind {
	case KindString:
		return v, nil
	case KindInt:
		return String(strconv.FormatInt(v.Int, 10)), nil
	case KindFloat:
		return String(strconv.FormatFloat(v.Float, 'g', -1, 64)), nil
	case KindBool:
		if v.Bool {
			return String("true"), nil
		}
		return String("false"), nil
	case KindTime:
		return String(v.Time.Format("2006-01-02T15:04:05Z07:00")), nil
	default:
		return Value{}, throwf("cast-string: cannot cast %s", v.Kind)
	}
}
