package gridcalc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Function is a named formula function. Arguments coming from a range
// reference arrive as a single []any. Returning an *EvalError (directly or
// wrapped) sets the cell's error code; any other error becomes #VALUE!.
type Function func(args ...any) (any, error)

// truthyFunc is the internal condition wrapper used when IF is rewritten into
// a lazy conditional. Lower-case so formulas cannot call it.
const truthyFunc = "truthy"

func builtinFunctions() map[string]Function {
	return map[string]Function{
		"SUM":         fnSum,
		"ADD":         binaryMath("ADD", func(a, b float64) (float64, error) { return a + b, nil }),
		"MINUS":       binaryMath("MINUS", func(a, b float64) (float64, error) { return a - b, nil }),
		"MULTIPLY":    binaryMath("MULTIPLY", func(a, b float64) (float64, error) { return a * b, nil }),
		"DIVIDE":      binaryMath("DIVIDE", divide),
		"POWER":       binaryMath("POWER", power),
		"MOD":         binaryMath("MOD", mod),
		"AVERAGE":     fnAverage,
		"MIN":         fnMin,
		"MAX":         fnMax,
		"COUNT":       fnCount,
		"ABS":         unaryMath("ABS", func(x float64) (float64, error) { return math.Abs(x), nil }),
		"INT":         unaryMath("INT", func(x float64) (float64, error) { return math.Floor(x), nil }),
		"SQRT":        unaryMath("SQRT", sqrt),
		"ROUND":       fnRound,
		"IF":          fnIf,
		"AND":         fnAnd,
		"OR":          fnOr,
		"NOT":         fnNot,
		"CONCATENATE": fnConcatenate,
		"LEN":         unaryText("LEN", func(s string) any { return float64(len([]rune(s))) }),
		"UPPER":       unaryText("UPPER", func(s string) any { return strings.ToUpper(s) }),
		"LOWER":       unaryText("LOWER", func(s string) any { return strings.ToLower(s) }),
		"TRIM":        unaryText("TRIM", func(s string) any { return strings.Join(strings.Fields(s), " ") }),
		truthyFunc:    fnTruthy,
	}
}

func arity(name string, args []any, minArgs, maxArgs int) error {
	if len(args) < minArgs || (maxArgs >= 0 && len(args) > maxArgs) {
		return valueError(fmt.Sprintf("%s: wrong number of arguments (%d)", name, len(args)))
	}
	return nil
}

func binaryMath(name string, op func(a, b float64) (float64, error)) Function {
	return func(args ...any) (any, error) {
		if err := arity(name, args, 2, 2); err != nil {
			return nil, err
		}
		a, err := toNumber(args[0])
		if err != nil {
			return nil, err
		}
		b, err := toNumber(args[1])
		if err != nil {
			return nil, err
		}
		return op(a, b)
	}
}

func unaryMath(name string, op func(x float64) (float64, error)) Function {
	return func(args ...any) (any, error) {
		if err := arity(name, args, 1, 1); err != nil {
			return nil, err
		}
		x, err := toNumber(args[0])
		if err != nil {
			return nil, err
		}
		return op(x)
	}
}

func unaryText(name string, op func(s string) any) Function {
	return func(args ...any) (any, error) {
		if err := arity(name, args, 1, 1); err != nil {
			return nil, err
		}
		if _, ok := args[0].([]any); ok {
			return nil, valueError(name + ": range used where a single value is expected")
		}
		return op(toText(args[0])), nil
	}
}

func divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, divZeroError()
	}
	return a / b, nil
}

func power(a, b float64) (float64, error) {
	r := math.Pow(a, b)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, numError(fmt.Sprintf("POWER(%g, %g) is not a finite number", a, b))
	}
	return r, nil
}

// mod follows the sign of the divisor.
func mod(a, b float64) (float64, error) {
	if b == 0 {
		return 0, divZeroError()
	}
	return a - b*math.Floor(a/b), nil
}

func sqrt(x float64) (float64, error) {
	if x < 0 {
		return 0, numError("SQRT of a negative number")
	}
	return math.Sqrt(x), nil
}

func fnSum(args ...any) (any, error) {
	nums, err := numbers(args)
	if err != nil {
		return nil, err
	}
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return total, nil
}

func fnAverage(args ...any) (any, error) {
	nums, err := numbers(args)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return nil, divZeroError()
	}
	total := 0.0
	for _, n := range nums {
		total += n
	}
	return total / float64(len(nums)), nil
}

func fnMin(args ...any) (any, error) {
	nums, err := numbers(args)
	if err != nil || len(nums) == 0 {
		return 0.0, err
	}
	m := nums[0]
	for _, n := range nums[1:] {
		m = math.Min(m, n)
	}
	return m, nil
}

func fnMax(args ...any) (any, error) {
	nums, err := numbers(args)
	if err != nil || len(nums) == 0 {
		return 0.0, err
	}
	m := nums[0]
	for _, n := range nums[1:] {
		m = math.Max(m, n)
	}
	return m, nil
}

func fnCount(args ...any) (any, error) {
	count := 0
	for _, v := range flatten(args) {
		if _, ok := numeric(v); ok {
			count++
		}
	}
	return float64(count), nil
}

func fnRound(args ...any) (any, error) {
	if err := arity("ROUND", args, 1, 2); err != nil {
		return nil, err
	}
	x, err := toNumber(args[0])
	if err != nil {
		return nil, err
	}
	digits := 0.0
	if len(args) == 2 {
		if digits, err = toNumber(args[1]); err != nil {
			return nil, err
		}
	}
	scale := math.Pow(10, math.Trunc(digits))
	return math.Round(x*scale) / scale, nil
}

// fnIf only runs for calls that could not be rewritten into a conditional.
func fnIf(args ...any) (any, error) {
	if err := arity("IF", args, 2, 3); err != nil {
		return nil, err
	}
	cond, err := toBool(args[0])
	if err != nil {
		return nil, err
	}
	if cond {
		return args[1], nil
	}
	if len(args) == 3 {
		return args[2], nil
	}
	return false, nil
}

func fnAnd(args ...any) (any, error) {
	if err := arity("AND", args, 1, -1); err != nil {
		return nil, err
	}
	for _, v := range flatten(args) {
		b, err := toBool(v)
		if err != nil {
			return nil, err
		}
		if !b {
			return false, nil
		}
	}
	return true, nil
}

func fnOr(args ...any) (any, error) {
	if err := arity("OR", args, 1, -1); err != nil {
		return nil, err
	}
	for _, v := range flatten(args) {
		b, err := toBool(v)
		if err != nil {
			return nil, err
		}
		if b {
			return true, nil
		}
	}
	return false, nil
}

func fnNot(args ...any) (any, error) {
	if err := arity("NOT", args, 1, 1); err != nil {
		return nil, err
	}
	b, err := toBool(args[0])
	if err != nil {
		return nil, err
	}
	return !b, nil
}

func fnTruthy(args ...any) (any, error) {
	if err := arity("IF", args, 1, 1); err != nil {
		return nil, err
	}
	return toBool(args[0])
}

func fnConcatenate(args ...any) (any, error) {
	var b strings.Builder
	for _, v := range flatten(args) {
		b.WriteString(toText(v))
	}
	return b.String(), nil
}

// flatten expands range arguments in place.
func flatten(args []any) []any {
	out := make([]any, 0, len(args))
	for _, a := range args {
		if list, ok := a.([]any); ok {
			out = append(out, list...)
			continue
		}
		out = append(out, a)
	}
	return out
}

// numbers collects numeric arguments. Values inside ranges that are not
// numbers are skipped; a direct argument must convert to a number.
func numbers(args []any) ([]float64, error) {
	var nums []float64
	for _, a := range args {
		if list, ok := a.([]any); ok {
			for _, v := range list {
				if n, ok := numeric(v); ok {
					nums = append(nums, n)
				}
			}
			continue
		}
		n, err := toNumber(a)
		if err != nil {
			return nil, err
		}
		nums = append(nums, n)
	}
	return nums, nil
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toNumber(v any) (float64, error) {
	if n, ok := numeric(v); ok {
		return n, nil
	}
	switch val := v.(type) {
	case nil:
		return 0, nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, valueError(fmt.Sprintf("%q is not a number", val))
		}
		return n, nil
	case []any:
		return 0, valueError("range used where a single value is expected")
	default:
		return 0, valueError(fmt.Sprintf("unsupported value %T", v))
	}
}

func toBool(v any) (bool, error) {
	if n, ok := numeric(v); ok {
		return n != 0, nil
	}
	switch val := v.(type) {
	case nil:
		return false, nil
	case bool:
		return val, nil
	case string:
		switch strings.ToUpper(strings.TrimSpace(val)) {
		case "TRUE":
			return true, nil
		case "FALSE":
			return false, nil
		}
		return false, valueError(fmt.Sprintf("%q is not a logical value", val))
	default:
		return false, valueError(fmt.Sprintf("unsupported value %T", v))
	}
}

func toText(v any) string {
	if n, ok := numeric(v); ok {
		return formatValue(n)
	}
	return formatValue(v)
}
