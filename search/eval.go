package search

// Eval evaluates a parsed term in scope. Any argument-shape or type
// error throws (returns a non-nil error); the caller that initiated
// evaluation is responsible for surfacing it as a SearchError.
func Eval(term *Term, scope *Scope) (Value, error) {
	switch term.Kind {
	case TermBool:
		return Bool(term.BoolVal), nil
	case TermInt:
		return Int(term.IntVal), nil
	case TermFloat:
		return Float(term.FloatVal), nil
	case TermString:
		return String(term.StringVal), nil
	case TermSymbol:
		b, ok := scope.lookup(term.Symbol)
		if !ok {
			return Value{}, throwf("unbound symbol %q", term.Symbol)
		}
		if b.Var != nil {
			return *b.Var, nil
		}
		return Value{}, throwf("%q is a function, not a variable", term.Symbol)
	case TermList:
		return evalList(term, scope)
	default:
		return Value{}, throwf("unknown term kind")
	}
}

func evalList(term *Term, scope *Scope) (Value, error) {
	if len(term.List) == 0 {
		return Value{}, throwf("empty expression")
	}
	head := term.List[0]
	if head.Kind != TermSymbol {
		return Value{}, throwf("expression must begin with an operator symbol")
	}
	b, ok := scope.lookup(head.Symbol)
	if !ok {
		return Value{}, throwf("unbound operator %q", head.Symbol)
	}
	args := term.List[1:]

	if b.IFunc != nil {
		return b.IFunc(scope, args)
	}
	if b.Func != nil {
		frame := scope.child(nil)
		vals := make([]Value, 0, len(args))
		for _, a := range args {
			v, err := Eval(a, frame)
			if err != nil {
				return Value{}, err
			}
			vals = append(vals, v)
		}
		return b.Func(frame, vals)
	}
	return Value{}, throwf("%q is not callable", head.Symbol)
}
