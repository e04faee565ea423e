package eval

import (
	"math"
	"strings"
	"time"

	"github.com/joeandaverde/tinydb/internal/document"
	"github.com/joeandaverde/tinydb/internal/qeir"
	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// evalFunction dispatches a call by its target's runtime kind: a
// string target reaches the string table, an array target the
// collection table, a datetime target the datetime table, and the
// absence of a target (a free function) reaches the math table. This
// mirrors the receiver-based overload resolution the function tables
// describe without needing static types.
func evalFunction(fn *qeir.Function, record *document.Document) (document.Value, error) {
	var target document.Value
	hasTarget := fn.Target != nil
	if hasTarget {
		v, err := Evaluate(fn.Target, record)
		if err != nil {
			return document.Null, err
		}
		target = v
	}

	args := make([]document.Value, len(fn.Arguments))
	for i, a := range fn.Arguments {
		v, err := Evaluate(a, record)
		if err != nil {
			return document.Null, err
		}
		args[i] = v
	}

	if !hasTarget {
		return mathFunction(fn.Name, args)
	}

	switch target.Kind() {
	case document.KindNull:
		return document.Null, nil
	case document.KindString:
		return stringFunction(fn.Name, target, args)
	case document.KindArray:
		return collectionFunction(fn.Name, target, args)
	case document.KindDateTime:
		return dateTimeFunction(fn.Name, target, args)
	default:
		return document.Null, tinyerr.New(tinyerr.BadArgument, "function target has no members named "+fn.Name)
	}
}

func argString(args []document.Value, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	return args[i].AsString()
}

func argInt(args []document.Value, i int) (int, bool) {
	if i >= len(args) {
		return 0, false
	}
	if v, ok := args[i].AsInt32(); ok {
		return int(v), true
	}
	if v, ok := args[i].AsInt64(); ok {
		return int(v), true
	}
	return 0, false
}

func argFloat(args []document.Value, i int) (float64, bool) {
	if i >= len(args) {
		return 0, false
	}
	return args[i].AsFloat64()
}

// stringFunction implements the string function table. Predicates
// return false and transforms return the receiver unchanged when an
// argument has the wrong shape; only a missing required argument is
// fatal.
func stringFunction(name string, target document.Value, args []document.Value) (document.Value, error) {
	s, _ := target.AsString()
	switch strings.ToLower(name) {
	case "contains":
		needle, ok := argString(args, 0)
		if !ok {
			return document.NewBool(false), nil
		}
		return document.NewBool(strings.Contains(s, needle)), nil
	case "startswith":
		prefix, ok := argString(args, 0)
		if !ok {
			return document.NewBool(false), nil
		}
		return document.NewBool(strings.HasPrefix(s, prefix)), nil
	case "endswith":
		suffix, ok := argString(args, 0)
		if !ok {
			return document.NewBool(false), nil
		}
		return document.NewBool(strings.HasSuffix(s, suffix)), nil
	case "tolower":
		return document.NewString(strings.ToLower(s)), nil
	case "toupper":
		return document.NewString(strings.ToUpper(s)), nil
	case "trim":
		return document.NewString(strings.TrimSpace(s)), nil
	case "substring":
		if len(args) == 0 {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "Substring requires a start argument")
		}
		start, ok := argInt(args, 0)
		if !ok {
			return target, nil
		}
		runes := []rune(s)
		if start < 0 || start > len(runes) {
			return document.NewString(""), nil
		}
		end := len(runes)
		if length, ok := argInt(args, 1); ok && start+length < end {
			end = start + length
		}
		if end < start {
			end = start
		}
		return document.NewString(string(runes[start:end])), nil
	case "replace":
		if len(args) < 2 {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "Replace requires two arguments")
		}
		old, ok1 := argString(args, 0)
		repl, ok2 := argString(args, 1)
		if !ok1 || !ok2 {
			return target, nil
		}
		return document.NewString(strings.ReplaceAll(s, old, repl)), nil
	default:
		return document.Null, tinyerr.New(tinyerr.Unsupported, "unknown string function: "+name)
	}
}

// mathFunction implements the free-function math table.
func mathFunction(name string, args []document.Value) (document.Value, error) {
	for _, a := range args {
		if a.IsNull() {
			return document.Null, nil
		}
	}
	switch strings.ToLower(name) {
	case "abs":
		f, ok := argFloat(args, 0)
		if !ok {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "Abs requires one numeric argument")
		}
		return document.NewDouble(math.Abs(f)), nil
	case "ceiling":
		f, ok := argFloat(args, 0)
		if !ok {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "Ceiling requires one numeric argument")
		}
		return document.NewDouble(math.Ceil(f)), nil
	case "floor":
		f, ok := argFloat(args, 0)
		if !ok {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "Floor requires one numeric argument")
		}
		return document.NewDouble(math.Floor(f)), nil
	case "sqrt":
		f, ok := argFloat(args, 0)
		if !ok {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "Sqrt requires one numeric argument")
		}
		return document.NewDouble(math.Sqrt(f)), nil
	case "pow":
		base, ok1 := argFloat(args, 0)
		exp, ok2 := argFloat(args, 1)
		if !ok1 || !ok2 {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "Pow requires two numeric arguments")
		}
		return document.NewDouble(math.Pow(base, exp)), nil
	case "min":
		a, ok1 := argFloat(args, 0)
		b, ok2 := argFloat(args, 1)
		if !ok1 || !ok2 {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "Min requires two numeric arguments")
		}
		return document.NewDouble(math.Min(a, b)), nil
	case "max":
		a, ok1 := argFloat(args, 0)
		b, ok2 := argFloat(args, 1)
		if !ok1 || !ok2 {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "Max requires two numeric arguments")
		}
		return document.NewDouble(math.Max(a, b)), nil
	case "round":
		f, ok := argFloat(args, 0)
		if !ok {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "Round requires one numeric argument")
		}
		digits, _ := argInt(args, 1)
		mult := math.Pow(10, float64(digits))
		return document.NewDouble(math.Round(f*mult) / mult), nil
	default:
		return document.Null, tinyerr.New(tinyerr.Unsupported, "unknown math function: "+name)
	}
}

// collectionFunction implements the array function table. Sum over an
// empty or all-null sequence is 0; Average, Min, and Max over one are
// null, there being no element to report.
func collectionFunction(name string, target document.Value, args []document.Value) (document.Value, error) {
	arr, _ := target.AsArray()
	switch strings.ToLower(name) {
	case "count":
		return document.NewInt32(int32(len(arr))), nil
	case "contains":
		if len(args) < 1 {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "Contains requires one argument")
		}
		for _, v := range arr {
			if v.Equal(args[0]) {
				return document.NewBool(true), nil
			}
		}
		return document.NewBool(false), nil
	case "sum":
		return collectionSum(arr), nil
	case "average":
		return collectionAverage(arr), nil
	case "min":
		return collectionExtreme(arr, true), nil
	case "max":
		return collectionExtreme(arr, false), nil
	default:
		return document.Null, tinyerr.New(tinyerr.Unsupported, "unknown collection function: "+name)
	}
}

func collectionSum(arr []document.Value) document.Value {
	var sum float64
	any := false
	for _, v := range arr {
		f, ok := v.AsFloat64()
		if !ok {
			continue
		}
		sum += f
		any = true
	}
	if !any {
		return document.NewInt32(0)
	}
	return document.NewDouble(sum)
}

func collectionAverage(arr []document.Value) document.Value {
	var sum float64
	count := 0
	for _, v := range arr {
		f, ok := v.AsFloat64()
		if !ok {
			continue
		}
		sum += f
		count++
	}
	if count == 0 {
		return document.Null
	}
	return document.NewDouble(sum / float64(count))
}

func collectionExtreme(arr []document.Value, wantMin bool) document.Value {
	var best document.Value
	found := false
	for _, v := range arr {
		if v.IsNull() {
			continue
		}
		if !found {
			best = v
			found = true
			continue
		}
		c := comparePredicate(v, best)
		if (wantMin && c < 0) || (!wantMin && c > 0) {
			best = v
		}
	}
	if !found {
		return document.Null
	}
	return best
}

// dateTimeFunction implements the datetime function table.
func dateTimeFunction(name string, target document.Value, args []document.Value) (document.Value, error) {
	t, _ := target.AsDateTime()
	switch strings.ToLower(name) {
	case "adddays":
		n, ok := argFloat(args, 0)
		if !ok {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "AddDays requires one numeric argument")
		}
		return document.NewDateTime(t.Add(time.Duration(n * float64(24*time.Hour)))), nil
	case "addhours":
		n, ok := argFloat(args, 0)
		if !ok {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "AddHours requires one numeric argument")
		}
		return document.NewDateTime(t.Add(time.Duration(n * float64(time.Hour)))), nil
	case "addminutes":
		n, ok := argFloat(args, 0)
		if !ok {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "AddMinutes requires one numeric argument")
		}
		return document.NewDateTime(t.Add(time.Duration(n * float64(time.Minute)))), nil
	case "addseconds":
		n, ok := argFloat(args, 0)
		if !ok {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "AddSeconds requires one numeric argument")
		}
		return document.NewDateTime(t.Add(time.Duration(n * float64(time.Second)))), nil
	case "addmonths":
		n, ok := argInt(args, 0)
		if !ok {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "AddMonths requires one numeric argument")
		}
		return document.NewDateTime(t.AddDate(0, n, 0)), nil
	case "addyears":
		n, ok := argInt(args, 0)
		if !ok {
			return document.Null, tinyerr.New(tinyerr.BadArgument, "AddYears requires one numeric argument")
		}
		return document.NewDateTime(t.AddDate(n, 0, 0)), nil
	case "tostring":
		return document.NewString(t.Format(time.RFC3339Nano)), nil
	default:
		return document.Null, tinyerr.New(tinyerr.Unsupported, "unknown datetime function: "+name)
	}
}
