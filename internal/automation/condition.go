package automation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/unclebandit/wacrm-backend/internal/model"
)

// undefinedValue marks a path that does not resolve. It is distinct from a
// JSON null and only equals itself.
type undefinedValue struct{}

var undefined = undefinedValue{}

var (
	errNotArray        = errors.New("condition value must be an array")
	errUnknownOperator = errors.New("unknown operator")
)

// Evaluate reports whether every condition holds against data. An empty list
// matches. A condition that cannot be evaluated counts as a non-match.
func Evaluate(conditions []model.Condition, data map[string]any) bool {
	for _, c := range conditions {
		ok, err := EvaluateCondition(c, data)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// EvaluateCondition checks a single condition. The error explains why a
// condition could not be evaluated; callers treat it as a non-match.
func EvaluateCondition(c model.Condition, data map[string]any) (bool, error) {
	actual := resolvePath(data, c.Field)

	switch c.Operator {
	case model.OperatorEquals:
		return strictEqual(actual, c.Value), nil
	case model.OperatorNotEquals:
		return !strictEqual(actual, c.Value), nil
	case model.OperatorContains:
		haystack := strings.ToLower(toString(actual))
		needle := strings.ToLower(toString(c.Value))
		return strings.Contains(haystack, needle), nil
	case model.OperatorGreaterThan:
		return toNumber(actual) > toNumber(c.Value), nil
	case model.OperatorLessThan:
		return toNumber(actual) < toNumber(c.Value), nil
	case model.OperatorIn, model.OperatorNotIn:
		list, ok := asList(c.Value)
		if !ok {
			return false, fmt.Errorf("%s on %q: %w", c.Operator, c.Field, errNotArray)
		}
		found := contains(list, toString(actual))
		if c.Operator == model.OperatorIn {
			return found, nil
		}
		return !found, nil
	default:
		return false, fmt.Errorf("%q: %w", c.Operator, errUnknownOperator)
	}
}

// resolvePath walks a dot separated path. Array elements are addressed by
// numeric segments ("items.0.name").
func resolvePath(data map[string]any, path string) any {
	if path == "" {
		return undefined
	}
	var cur any = data
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return undefined
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return undefined
			}
			cur = node[i]
		default:
			return undefined
		}
	}
	return cur
}

func strictEqual(a, b any) bool {
	_, aUndef := a.(undefinedValue)
	_, bUndef := b.(undefinedValue)
	if aUndef || bUndef {
		return aUndef && bUndef
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	af, aNum := numeric(a)
	bf, bNum := numeric(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return reflect.DeepEqual(a, b)
}

// numeric unwraps Go and JSON number types. Strings are not numbers here.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// toString follows the usual JSON-world string coercion: null -> "null",
// arrays join their elements with commas, objects become "[object Object]".
func toString(v any) string {
	switch s := v.(type) {
	case undefinedValue:
		return "undefined"
	case nil:
		return "null"
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case map[string]any:
		return "[object Object]"
	}
	if f, ok := numeric(v); ok {
		return formatNumber(f)
	}
	if list, ok := asList(v); ok {
		parts := make([]string, len(list))
		for i, item := range list {
			if item == nil {
				continue
			}
			parts[i] = toString(item)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(v)
}

// toNumber coerces a value to a float. Values with no numeric reading give NaN,
// which makes every ordered comparison false.
func toNumber(v any) float64 {
	switch n := v.(type) {
	case undefinedValue:
		return math.NaN()
	case nil:
		return 0
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case map[string]any:
		return math.NaN()
	}
	if f, ok := numeric(v); ok {
		return f
	}
	if list, ok := asList(v); ok {
		switch len(list) {
		case 0:
			return 0
		case 1:
			return toNumber(toString(list[0]))
		}
	}
	return math.NaN()
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func asList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil, false
	}
	list := make([]any, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}
	return list, true
}

func contains(list []any, needle string) bool {
	for _, item := range list {
		if toString(item) == needle {
			return true
		}
	}
	return false
}
