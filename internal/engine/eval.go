package engine

import (
	"math"
	"strings"
	"time"

	"github.com/roach88/tessera/internal/aql"
)

// scoreBinding is the reserved environment key carrying the per-row
// fulltext score consumed by FULLTEXT_SCORE().
const scoreBinding = "__fulltext_score"

// callHook lets a caller intercept function calls the generic evaluator
// cannot resolve, e.g. PATH.ALL/ANY/NONE during traversals. It returns
// handled=false to fall through to the built-in function set.
type callHook func(call *aql.FunctionCallExpr, env map[string]any) (value any, handled bool, err error)

// evalExpr evaluates an expression against variable bindings. env maps
// FOR/LET variables to row documents or computed values.
func evalExpr(env map[string]any, expr aql.Expr, hook callHook) (any, error) {
	switch e := expr.(type) {
	case *aql.LiteralExpr:
		return e.Value, nil
	case *aql.VariableExpr:
		v, ok := env[e.Name]
		if !ok {
			return nil, NewExecutionError("undefined variable %q", e.Name)
		}
		return v, nil
	case *aql.FieldAccessExpr:
		obj, err := evalExpr(env, e.Object, hook)
		if err != nil {
			return nil, err
		}
		m, ok := obj.(map[string]any)
		if !ok {
			return nil, nil
		}
		return m[e.Field], nil
	case *aql.BinaryExpr:
		return evalBinary(env, e, hook)
	case *aql.UnaryExpr:
		return evalUnary(env, e, hook)
	case *aql.FunctionCallExpr:
		return evalCall(env, e, hook)
	case *aql.ArrayExpr:
		arr := make([]any, 0, len(e.Elements))
		for _, el := range e.Elements {
			v, err := evalExpr(env, el, hook)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case *aql.ObjectExpr:
		obj := make(map[string]any, len(e.Fields))
		for _, f := range e.Fields {
			v, err := evalExpr(env, f.Value, hook)
			if err != nil {
				return nil, err
			}
			obj[f.Key] = v
		}
		return obj, nil
	case *aql.SimilarityExpr:
		return nil, NewExecutionError("SIMILARITY is only valid in SORT or LET of a vector query")
	case *aql.WindowExpr:
		if vals, ok := env[windowBinding].(map[*aql.WindowExpr]any); ok {
			if v, ok := vals[e]; ok {
				return v, nil
			}
		}
		return nil, NewExecutionError("window function %s has no computed value for this row", e.Func)
	}
	return nil, NewExecutionError("unsupported expression node in evaluation")
}

func evalBinary(env map[string]any, e *aql.BinaryExpr, hook callHook) (any, error) {
	// Boolean operators short-circuit on the left operand.
	switch e.Op {
	case aql.OpAnd:
		left, err := evalExpr(env, e.Left, hook)
		if err != nil {
			return nil, err
		}
		if !truthy(left) {
			return false, nil
		}
		right, err := evalExpr(env, e.Right, hook)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	case aql.OpOr:
		left, err := evalExpr(env, e.Left, hook)
		if err != nil {
			return nil, err
		}
		if truthy(left) {
			return true, nil
		}
		right, err := evalExpr(env, e.Right, hook)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	case aql.OpXor:
		left, err := evalExpr(env, e.Left, hook)
		if err != nil {
			return nil, err
		}
		right, err := evalExpr(env, e.Right, hook)
		if err != nil {
			return nil, err
		}
		return truthy(left) != truthy(right), nil
	}

	left, err := evalExpr(env, e.Left, hook)
	if err != nil {
		return nil, err
	}
	right, err := evalExpr(env, e.Right, hook)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case aql.OpEq:
		return looseEqual(left, right), nil
	case aql.OpNe:
		return !looseEqual(left, right), nil
	case aql.OpLt, aql.OpLe, aql.OpGt, aql.OpGe:
		cmp, err := orderValues(left, right)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case aql.OpLt:
			return cmp < 0, nil
		case aql.OpLe:
			return cmp <= 0, nil
		case aql.OpGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	case aql.OpIn:
		arr, ok := right.([]any)
		if !ok {
			return nil, NewExecutionError("right side of IN must be an array")
		}
		for _, el := range arr {
			if looseEqual(left, el) {
				return true, nil
			}
		}
		return false, nil
	case aql.OpAdd, aql.OpSub, aql.OpMul, aql.OpDiv, aql.OpMod:
		return arithmetic(e.Op, left, right)
	}
	return nil, NewExecutionError("unsupported binary operator %s", e.Op)
}

func evalUnary(env map[string]any, e *aql.UnaryExpr, hook callHook) (any, error) {
	v, err := evalExpr(env, e.Operand, hook)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case aql.OpNot:
		return !truthy(v), nil
	case aql.OpNegate:
		f, ok := asFloat(v)
		if !ok {
			return nil, NewExecutionError("unary minus requires a number")
		}
		if i, isInt := v.(int64); isInt {
			return -i, nil
		}
		return -f, nil
	case aql.OpPosit:
		return v, nil
	}
	return nil, NewExecutionError("unsupported unary operator %s", e.Op)
}

func evalCall(env map[string]any, call *aql.FunctionCallExpr, hook callHook) (any, error) {
	if hook != nil {
		v, handled, err := hook(call, env)
		if err != nil {
			return nil, err
		}
		if handled {
			return v, nil
		}
	}

	name := strings.ToUpper(call.Name)

	if name == "FULLTEXT_SCORE" {
		if score, ok := env[scoreBinding]; ok {
			return score, nil
		}
		return nil, NewUsageError("FULLTEXT_SCORE() requires a FULLTEXT filter in the same query")
	}
	if name == "NOW" {
		return time.Now().UTC().Format(time.RFC3339), nil
	}

	args := make([]any, 0, len(call.Args))
	for _, a := range call.Args {
		v, err := evalExpr(env, a, hook)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	switch name {
	case "ABS", "CEIL", "FLOOR", "ROUND":
		if len(args) != 1 {
			return nil, NewExecutionError("%s expects 1 argument", name)
		}
		f, ok := asFloat(args[0])
		if !ok {
			return nil, NewExecutionError("%s expects a numeric argument", name)
		}
		switch name {
		case "ABS":
			return math.Abs(f), nil
		case "CEIL":
			return math.Ceil(f), nil
		case "FLOOR":
			return math.Floor(f), nil
		default:
			return math.Round(f), nil
		}
	case "POW":
		if len(args) != 2 {
			return nil, NewExecutionError("POW expects 2 arguments")
		}
		base, ok1 := asFloat(args[0])
		exp, ok2 := asFloat(args[1])
		if !ok1 || !ok2 {
			return nil, NewExecutionError("POW expects numeric arguments")
		}
		return math.Pow(base, exp), nil
	case "DATE_TRUNC":
		if len(args) != 2 {
			return nil, NewExecutionError("DATE_TRUNC expects (unit, date)")
		}
		return dateTrunc(args[0], args[1])
	case "DATE_ADD", "DATE_SUB":
		if len(args) != 3 {
			return nil, NewExecutionError("%s expects (date, amount, unit)", name)
		}
		return dateShift(name, args[0], args[1], args[2])
	case "CONCAT":
		var sb strings.Builder
		for _, a := range args {
			sb.WriteString(stringify(a))
		}
		return sb.String(), nil
	case "LENGTH":
		if len(args) != 1 {
			return nil, NewExecutionError("LENGTH expects 1 argument")
		}
		switch v := args[0].(type) {
		case string:
			return int64(len([]rune(v))), nil
		case []any:
			return int64(len(v)), nil
		case map[string]any:
			return int64(len(v)), nil
		}
		return int64(0), nil
	case "UPPER":
		if len(args) != 1 {
			return nil, NewExecutionError("UPPER expects 1 argument")
		}
		return strings.ToUpper(stringify(args[0])), nil
	case "LOWER":
		if len(args) != 1 {
			return nil, NewExecutionError("LOWER expects 1 argument")
		}
		return strings.ToLower(stringify(args[0])), nil
	}
	return nil, NewExecutionError("unknown function %s", call.Name)
}

// Date helpers operate on RFC 3339 timestamps, accepting bare dates.

func parseDate(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, NewExecutionError("expected a date string")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, NewExecutionError("invalid date %q", s)
}

func dateTrunc(unitArg, dateArg any) (any, error) {
	unit, ok := unitArg.(string)
	if !ok {
		return nil, NewExecutionError("DATE_TRUNC unit must be a string")
	}
	t, err := parseDate(dateArg)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(unit) {
	case "year":
		t = time.Date(t.Year(), 1, 1, 0, 0, 0, 0, t.Location())
	case "month":
		t = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	case "day":
		t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	case "hour":
		t = t.Truncate(time.Hour)
	case "minute":
		t = t.Truncate(time.Minute)
	case "second":
		t = t.Truncate(time.Second)
	default:
		return nil, NewExecutionError("unknown DATE_TRUNC unit %q", unit)
	}
	return t.Format(time.RFC3339), nil
}

func dateShift(name string, dateArg, amountArg, unitArg any) (any, error) {
	t, err := parseDate(dateArg)
	if err != nil {
		return nil, err
	}
	amount, ok := asFloat(amountArg)
	if !ok {
		return nil, NewExecutionError("%s amount must be a number", name)
	}
	unit, ok := unitArg.(string)
	if !ok {
		return nil, NewExecutionError("%s unit must be a string", name)
	}
	n := int(amount)
	if name == "DATE_SUB" {
		n = -n
	}
	switch strings.ToLower(unit) {
	case "year":
		t = t.AddDate(n, 0, 0)
	case "month":
		t = t.AddDate(0, n, 0)
	case "day":
		t = t.AddDate(0, 0, n)
	case "hour":
		t = t.Add(time.Duration(n) * time.Hour)
	case "minute":
		t = t.Add(time.Duration(n) * time.Minute)
	case "second":
		t = t.Add(time.Duration(n) * time.Second)
	default:
		return nil, NewExecutionError("unknown %s unit %q", name, unit)
	}
	return t.Format(time.RFC3339), nil
}

func arithmetic(op aql.BinaryOp, left, right any) (any, error) {
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if !lok || !rok {
		if op == aql.OpAdd {
			// String concatenation only when both sides are strings.
			ls, lsok := left.(string)
			rs, rsok := right.(string)
			if lsok && rsok {
				return ls + rs, nil
			}
		}
		return nil, NewExecutionError("arithmetic requires numeric operands")
	}

	li, lInt := left.(int64)
	ri, rInt := right.(int64)
	bothInt := lInt && rInt

	switch op {
	case aql.OpAdd:
		if bothInt {
			return li + ri, nil
		}
		return lf + rf, nil
	case aql.OpSub:
		if bothInt {
			return li - ri, nil
		}
		return lf - rf, nil
	case aql.OpMul:
		if bothInt {
			return li * ri, nil
		}
		return lf * rf, nil
	case aql.OpDiv:
		if rf == 0 {
			return nil, NewExecutionError("division by zero")
		}
		return lf / rf, nil
	case aql.OpMod:
		if !bothInt {
			return nil, NewExecutionError("%% requires integer operands")
		}
		if ri == 0 {
			return nil, NewExecutionError("division by zero")
		}
		return li % ri, nil
	}
	return nil, NewExecutionError("unsupported arithmetic operator %s", op)
}

// looseEqual compares with numeric coercion so 2 == 2.0 holds across
// int64/float64 representations; containers compare canonically.
func looseEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bs, ok := b.(string)
		return ok && av == bs
	case bool:
		bb, ok := b.(bool)
		return ok && av == bb
	}
	return canonicalKey(a) == canonicalKey(b)
}

// orderValues compares numerically when both sides are numbers, else by
// string order.
func orderValues(a, b any) (int, error) {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			}
			return 0, nil
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), nil
	}
	return 0, NewExecutionError("cannot order values of mismatched types")
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case int64:
		return val != 0
	case float64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	}
	return true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	}
	return canonicalKey(v)
}
