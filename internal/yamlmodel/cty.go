package yamlmodel

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// ToCtyObject converts decoded handler arguments into cty values.
func ToCtyObject(args map[string]any) (map[string]cty.Value, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make(map[string]cty.Value, len(args))
	for k, v := range args {
		cv, err := ToCtyValue(v)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", k, err)
		}
		out[k] = cv
	}
	return out, nil
}

// ToCtyValue converts a value produced by the YAML decoder. Sequences become
// tuples and mappings become objects, matching what HCL produces for list
// and object literals.
func ToCtyValue(v any) (cty.Value, error) {
	switch t := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(t), nil
	case bool:
		return cty.BoolVal(t), nil
	case int:
		return cty.NumberIntVal(int64(t)), nil
	case int64:
		return cty.NumberIntVal(t), nil
	case uint64:
		return cty.NumberUIntVal(t), nil
	case float64:
		return cty.NumberFloatVal(t), nil
	case []any:
		if len(t) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(t))
		for i, e := range t {
			cv, err := ToCtyValue(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("element %d: %w", i, err)
			}
			elems[i] = cv
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if len(t) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(t))
		for k, e := range t {
			cv, err := ToCtyValue(e)
			if err != nil {
				return cty.NilVal, fmt.Errorf("key %q: %w", k, err)
			}
			attrs[k] = cv
		}
		return cty.ObjectVal(attrs), nil
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = e
		}
		return ToCtyValue(m)
	}
	return cty.NilVal, fmt.Errorf("unsupported value of type %T", v)
}
