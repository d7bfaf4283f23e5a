package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/vk/setupgrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

var ctyValueType = reflect.TypeOf(cty.Value{})

// inputField is one bindable field of an input struct.
type inputField struct {
	name     string
	optional bool
	index    int
}

// inputFields lists the fields of a struct bound by cty tags.
func inputFields(t reflect.Type) ([]inputField, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("input must be a struct, got %s", t)
	}
	var fields []inputField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("cty")
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		fields = append(fields, inputField{name: name, optional: opts == "optional", index: i})
	}
	return fields, nil
}

// decodeArguments populates the struct behind input from args. Arguments
// without a matching field and missing required arguments are errors; all
// of them are reported together.
func decodeArguments(ctx context.Context, input any, args map[string]cty.Value) error {
	logger := ctxlog.FromContext(ctx)

	ptr := reflect.ValueOf(input)
	if ptr.Kind() != reflect.Ptr || ptr.IsNil() {
		return fmt.Errorf("input must be a non-nil pointer, got %T", input)
	}
	structVal := ptr.Elem()
	fields, err := inputFields(structVal.Type())
	if err != nil {
		return err
	}

	var errs []error
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.name] = true
		val, ok := args[f.name]
		if !ok || val.IsNull() {
			if !f.optional {
				errs = append(errs, fmt.Errorf("missing required argument %q", f.name))
			}
			continue
		}
		if err := decodeValue(val, structVal.Field(f.index).Addr().Interface()); err != nil {
			errs = append(errs, fmt.Errorf("argument %q: %w", f.name, err))
			continue
		}
		logger.Debug("Decoded handler argument.", "argument", f.name, "type", val.Type().FriendlyName())
	}

	var unknown []string
	for name := range args {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		errs = append(errs, fmt.Errorf("unsupported argument %q", name))
	}
	return errors.Join(errs...)
}

// decodeValue converts val to the cty type implied by the Go target and
// decodes it. A cty.Value target receives the value unchanged.
func decodeValue(val cty.Value, goVal any) error {
	target := reflect.ValueOf(goVal).Elem()
	if target.Type() == ctyValueType {
		target.Set(reflect.ValueOf(val))
		return nil
	}
	if target.Kind() == reflect.Interface {
		return fmt.Errorf("interface targets are not supported, use cty.Value")
	}
	if !val.IsWhollyKnown() {
		return fmt.Errorf("value is not known")
	}

	impliedType, err := gocty.ImpliedType(target.Interface())
	if err != nil {
		return gocty.FromCtyValue(val, goVal)
	}
	converted, err := convert.Convert(val, impliedType)
	if err != nil {
		return fmt.Errorf("cannot convert %s to required type %s: %w", val.Type().FriendlyName(), impliedType.FriendlyName(), err)
	}
	return gocty.FromCtyValue(converted, goVal)
}
