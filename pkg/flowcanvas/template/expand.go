package template

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholder matches ${path} where path is dot-separated identifiers.
var placeholder = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_-]*(?:\.[a-zA-Z0-9_-]+)*)\}`)

// Expander expands placeholders. It is safe for concurrent use.
type Expander struct {
	missingAction MissingAction
}

// NewExpander creates an Expander. Default: MissingKeep.
func NewExpander(opts ...Option) *Expander {
	e := &Expander{missingAction: MissingKeep}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Lookup resolves a dotted path in vars.
func Lookup(vars map[string]any, path string) (any, bool) {
	var cur any = vars
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Expand replaces every placeholder in s with its formatted value.
func (e *Expander) Expand(s string, vars map[string]any) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}

	var missing []string
	result := placeholder.ReplaceAllStringFunc(s, func(match string) string {
		path := match[2 : len(match)-1]
		if v, ok := Lookup(vars, path); ok {
			return format(v)
		}
		switch e.missingAction {
		case MissingEmpty:
			return ""
		case MissingError:
			missing = append(missing, path)
		}
		return match
	})

	if len(missing) > 0 {
		return result, &UndefinedVariableError{Names: missing}
	}
	return result, nil
}

// ExpandValue expands strings, and recurses into maps and slices. A string
// that is exactly one placeholder is replaced by the raw value.
func (e *Expander) ExpandValue(v any, vars map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		if m := placeholder.FindStringSubmatch(val); m != nil && m[0] == val {
			if raw, ok := Lookup(vars, m[1]); ok {
				return raw, nil
			}
		}
		return e.Expand(val, vars)
	case map[string]any:
		return e.ExpandMap(val, vars)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			expanded, err := e.ExpandValue(item, vars)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return v, nil
	}
}

// ExpandMap returns a copy of m with every value expanded.
func (e *Expander) ExpandMap(m map[string]any, vars map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		expanded, err := e.ExpandValue(v, vars)
		if err != nil {
			return nil, err
		}
		out[k] = expanded
	}
	return out, nil
}

func format(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

// UndefinedVariableError lists placeholders with no value.
type UndefinedVariableError struct {
	Names []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return "undefined variable: " + e.Names[0]
	}
	return "undefined variables: " + strings.Join(e.Names, ", ")
}

var defaultExpander = NewExpander()

// Expand expands s with the default expander, keeping missing placeholders.
func Expand(s string, vars map[string]any) string {
	out, _ := defaultExpander.Expand(s, vars)
	return out
}

// ExpandValue expands v with the default expander.
func ExpandValue(v any, vars map[string]any) any {
	out, _ := defaultExpander.ExpandValue(v, vars)
	return out
}

// ExpandMap expands m with the default expander.
func ExpandMap(m map[string]any, vars map[string]any) map[string]any {
	out, _ := defaultExpander.ExpandMap(m, vars)
	return out
}
