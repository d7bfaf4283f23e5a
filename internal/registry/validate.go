package registry

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/vk/setupgrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty/gocty"
)

// ValidateRegistry checks that the input struct of every registered handler
// can be bound to cty arguments. A failure here is a programming error in a
// module, found before any model is loaded.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, name := range r.Names() {
		handler := r.handlers[name]
		if handler.NewInput == nil {
			continue
		}
		input := handler.NewInput()
		ptr := reflect.ValueOf(input)
		if ptr.Kind() != reflect.Ptr || ptr.IsNil() {
			errs = append(errs, fmt.Sprintf("handler '%s': NewInput must return a non-nil pointer, got %T", name, input))
			continue
		}
		structType := ptr.Elem().Type()
		fields, err := inputFields(structType)
		if err != nil {
			errs = append(errs, fmt.Sprintf("handler '%s': %v", name, err))
			continue
		}
		if len(fields) == 0 {
			logger.Warn("Handler input struct has no cty-tagged fields; every argument will be rejected.", "handler", name)
		}

		for _, f := range fields {
			field := structType.Field(f.index)
			if field.Type == ctyValueType {
				continue
			}
			if field.Type.Kind() == reflect.Interface {
				errs = append(errs, fmt.Sprintf("handler '%s', argument '%s': interface field %s cannot be decoded, use cty.Value", name, f.name, field.Type))
				continue
			}
			if _, err := gocty.ImpliedType(reflect.Zero(field.Type).Interface()); err != nil {
				errs = append(errs, fmt.Sprintf("handler '%s', argument '%s': could not imply cty type from Go field type %s: %v", name, f.name, field.Type, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
