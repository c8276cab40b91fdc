package eval

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/groundwork-io/groundwork/internal/ir"
)

var varPattern = regexp.MustCompile(`\$\{var\.([A-Za-z_][A-Za-z0-9_-]*)\}`)

// resolveVariables substitutes ${var.name} occurrences throughout resource
// attributes and outputs. Values come from the supplied per-run vars, falling
// back to declared defaults. Resolution happens once, before graph
// construction; resources never see an unsubstituted variable.
func resolveVariables(cfg *ir.Config, supplied map[string]string) error {
	scope, err := newVarScope(cfg.Variables, supplied)
	if err != nil {
		return err
	}

	for _, r := range cfg.Resources {
		attrs, err := substituteValue(r.Attributes, scope)
		if err != nil {
			return err
		}
		if m, ok := attrs.(map[string]any); ok {
			r.Attributes = m
		}
	}

	outputs, err := substituteValue(cfg.Outputs, scope)
	if err != nil {
		return err
	}
	if m, ok := outputs.(map[string]any); ok {
		cfg.Outputs = m
	}
	return nil
}

type varScope struct {
	values   map[string]any
	declared map[string]bool
}

func newVarScope(decls map[string]*ir.Variable, supplied map[string]string) (*varScope, error) {
	scope := &varScope{
		values:   make(map[string]any, len(decls)),
		declared: make(map[string]bool, len(decls)),
	}
	for name, decl := range decls {
		scope.declared[name] = true

		if raw, ok := supplied[name]; ok {
			v, err := coerce(name, raw, decl.Type)
			if err != nil {
				return nil, err
			}
			scope.values[name] = v
			continue
		}
		if decl.Default != nil {
			if ir.IsRef(decl.Default) {
				return nil, fmt.Errorf("variable %q: default must be a scalar, not a reference", name)
			}
			scope.values[name] = decl.Default
		}
	}
	return scope, nil
}

func (sc *varScope) lookup(name string) (any, error) {
	if v, ok := sc.values[name]; ok {
		return v, nil
	}
	if sc.declared[name] {
		return nil, &UnknownVariableError{Name: name, Reason: "has no default and no value was supplied"}
	}
	return nil, &UnknownVariableError{Name: name, Reason: "is not declared"}
}

func substituteValue(v any, scope *varScope) (any, error) {
	switch t := v.(type) {
	case string:
		return substituteString(t, scope)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			nv, err := substituteValue(vv, scope)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			nv, err := substituteValue(vv, scope)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	default:
		return v, nil
	}
}

func substituteString(s string, scope *varScope) (any, error) {
	// a whole-value occurrence keeps the variable's declared type
	if m := varPattern.FindStringSubmatch(s); m != nil && m[0] == s {
		return scope.lookup(m[1])
	}

	var substErr error
	out := varPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := varPattern.FindStringSubmatch(match)[1]
		v, err := scope.lookup(name)
		if err != nil {
			if substErr == nil {
				substErr = err
			}
			return match
		}
		return fmt.Sprintf("%v", v)
	})
	if substErr != nil {
		return nil, substErr
	}
	return out, nil
}

func coerce(name, raw, typ string) (any, error) {
	switch typ {
	case "", "string":
		return raw, nil
	case "number":
		if i, err := strconv.Atoi(raw); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %q is not a number", name, raw)
		}
		return f, nil
	case "bool":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %q is not a bool", name, raw)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("variable %q: unsupported type %q", name, typ)
	}
}
