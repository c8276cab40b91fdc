package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/groundwork-io/groundwork/internal/ir"
)

// ExpandForEach flattens count and forEach resources into individual
// instances. It runs before graph construction so every instance gets its
// own address.
func ExpandForEach(resources []*ir.Resource) ([]*ir.Resource, error) {
	var expanded []*ir.Resource

	for _, res := range resources {
		switch {
		case res.Count != nil && len(res.ForEach) > 0:
			return nil, fmt.Errorf("resource %s declares both count and forEach", res.Addr())

		case res.Count != nil:
			if *res.Count < 0 {
				return nil, fmt.Errorf("resource %s: count must not be negative", res.Addr())
			}
			for i := 0; i < *res.Count; i++ {
				clone := cloneResource(res)
				clone.Name = fmt.Sprintf("%s[%d]", res.Name, i)
				clone.Attributes = substituteIndex(clone.Attributes, i)
				expanded = append(expanded, clone)
			}

		case len(res.ForEach) > 0:
			keys := make([]string, 0, len(res.ForEach))
			for key := range res.ForEach {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				clone := cloneResource(res)
				clone.Name = fmt.Sprintf("%s[%q]", res.Name, key)
				clone.Attributes = substituteEach(clone.Attributes, key, res.ForEach[key])
				expanded = append(expanded, clone)
			}

		default:
			expanded = append(expanded, res)
		}
	}

	return expanded, nil
}

func cloneResource(res *ir.Resource) *ir.Resource {
	clone := &ir.Resource{
		Type:     res.Type,
		Name:     res.Name,
		Provider: res.Provider,
		Timeout:  res.Timeout,
	}
	if res.Lifecycle != nil {
		clone.Lifecycle = &ir.Lifecycle{
			PreventDestroy: res.Lifecycle.PreventDestroy,
			IgnoreChanges:  append([]string{}, res.Lifecycle.IgnoreChanges...),
		}
	}
	clone.DependsOn = append([]string{}, res.DependsOn...)
	clone.Attributes = deepCopyMap(res.Attributes)
	return clone
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = deepCopyValue(v)
	}
	return result
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		clone := make([]any, len(val))
		for i, item := range val {
			clone[i] = deepCopyValue(item)
		}
		return clone
	default:
		return v
	}
}

func substituteIndex(attrs map[string]any, index int) map[string]any {
	return substituteAll(attrs, map[string]string{
		"${count.index}": fmt.Sprintf("%d", index),
	})
}

func substituteEach(attrs map[string]any, key string, value any) map[string]any {
	return substituteAll(attrs, map[string]string{
		"${each.key}":   key,
		"${each.value}": fmt.Sprintf("%v", value),
	})
}

func substituteAll(attrs map[string]any, replacements map[string]string) map[string]any {
	result := make(map[string]any, len(attrs))
	for k, v := range attrs {
		result[k] = substituteExpansion(v, replacements)
	}
	return result
}

func substituteExpansion(v any, replacements map[string]string) any {
	switch val := v.(type) {
	case string:
		result := val
		for old, newVal := range replacements {
			result = strings.ReplaceAll(result, old, newVal)
		}
		return result
	case map[string]any:
		return substituteAll(val, replacements)
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = substituteExpansion(item, replacements)
		}
		return result
	default:
		return v
	}
}
