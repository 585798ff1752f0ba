package automation

import (
	"fmt"
	"strconv"
	"strings"

	appErrors "github.com/unclebandit/wacrm-backend/internal/errors"
)

// Params are the user-supplied parameters of one action.
type Params map[string]any

// String returns a required, non-blank string param.
func (p Params) String(key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", appErrors.InvalidParam(key, "missing")
	}
	s, ok := v.(string)
	if !ok {
		return "", appErrors.InvalidParam(key, fmt.Sprintf("expected string, got %T", v))
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", appErrors.InvalidParam(key, "empty")
	}
	return s, nil
}

// OptionalString returns the param or "" when absent.
func (p Params) OptionalString(key string) string {
	s, _ := p[key].(string)
	return strings.TrimSpace(s)
}

// Number reads a numeric param that may arrive as a JSON number or a string.
func (p Params) Number(key string) (float64, bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	if f, ok := numeric(v); ok {
		return f, true, nil
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false, appErrors.InvalidParam(key, "not a number")
		}
		return f, true, nil
	}
	return 0, false, appErrors.InvalidParam(key, fmt.Sprintf("expected number, got %T", v))
}
