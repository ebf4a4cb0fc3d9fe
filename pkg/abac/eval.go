package abac

import "fmt"

// Environment is the set of attribute values an Expression is evaluated
// against — the subject's attribute map plus any resource/action
// constants the caller chooses to expose under their own identifier
// names, letting a policy read as a first-order predicate over
// attribute maps plus subject/resource/action triples.
type Environment map[string]Value

// Eval evaluates expr against env, returning its boolean value. An
// ExprIdentifier naming an attribute absent from env makes the
// comparison reading it fail; a Not over a failed or non-bool operand
// fails too; And and Or count a failed or non-bool operand as false;
// and a failed or non-bool result evaluates to false rather than
// erroring — ABAC soundness requires that missing attributes default
// to deny, not a crash.
func Eval(expr *Expression, env Environment) bool {
	v, ok := evalValue(expr, env)
	if !ok {
		return false
	}
	return v.Kind == KindBool && v.Bool
}

func evalValue(expr *Expression, env Environment) (Value, bool) {
	if expr == nil {
		return Value{}, false
	}
	switch expr.Kind {
	case ExprConst:
		return expr.Const, true
	case ExprIdentifier:
		v, ok := env[expr.Ident]
		return v, ok
	case ExprEq:
		a, aok := evalValue(expr.Children[0], env)
		b, bok := evalValue(expr.Children[1], env)
		if !aok || !bok {
			return Value{}, false
		}
		return BoolValue(a.Equal(b)), true
	case ExprLt:
		a, aok := evalValue(expr.Children[0], env)
		b, bok := evalValue(expr.Children[1], env)
		if !aok || !bok {
			return Value{}, false
		}
		return BoolValue(a.Less(b)), true
	case ExprGt:
		a, aok := evalValue(expr.Children[0], env)
		b, bok := evalValue(expr.Children[1], env)
		if !aok || !bok {
			return Value{}, false
		}
		return BoolValue(b.Less(a)), true
	case ExprNot:
		a, aok := evalValue(expr.Children[0], env)
		if !aok || a.Kind != KindBool {
			return Value{}, false
		}
		return BoolValue(!a.Bool), true
	case ExprAnd:
		a, aok := evalValue(expr.Children[0], env)
		if !aok || a.Kind != KindBool || !a.Bool {
			return BoolValue(false), true
		}
		b, bok := evalValue(expr.Children[1], env)
		if !bok || b.Kind != KindBool {
			return BoolValue(false), true
		}
		return BoolValue(b.Bool), true
	case ExprOr:
		a, aok := evalValue(expr.Children[0], env)
		if aok && a.Kind == KindBool && a.Bool {
			return BoolValue(true), true
		}
		b, bok := evalValue(expr.Children[1], env)
		if !bok || b.Kind != KindBool {
			return BoolValue(false), true
		}
		return BoolValue(b.Bool), true
	default:
		panic(fmt.Sprintf("abac: unknown expression kind %d", expr.Kind))
	}
}

// EnvironmentFromAttributes builds an Environment from a raw attribute
// map (as stored by the identity attributes repository), interpreting
// every value as a string. Callers needing typed attributes build their
// own Environment and merge in IntValue/BoolValue entries as needed.
func EnvironmentFromAttributes(attrs map[string][]byte) Environment {
	env := make(Environment, len(attrs))
	for k, v := range attrs {
		env[k] = StringValue(string(v))
	}
	return env
}
