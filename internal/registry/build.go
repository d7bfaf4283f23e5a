package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/setupgrid/internal/config"
	"github.com/vk/setupgrid/internal/ctxlog"
	"github.com/vk/setupgrid/internal/driver"
	"github.com/vk/setupgrid/internal/item"
)

// namedHandler gives a built handler the name it was declared with so that
// step errors and logs point at it.
type namedHandler struct {
	driver.Handler
	name string
}

func (h namedHandler) HandlerName() string { return h.name }

// BuildHandler decodes the declared arguments and builds the handler.
func (r *Registry) BuildHandler(ctx context.Context, decl *config.HandlerDecl) (driver.Handler, error) {
	reg, ok := r.handlers[decl.Name]
	if !ok {
		return nil, fmt.Errorf("handler %q is not registered", decl.Name)
	}

	var input any
	if reg.NewInput != nil {
		input = reg.NewInput()
		if err := decodeArguments(ctx, input, decl.Arguments); err != nil {
			return nil, fmt.Errorf("handler %q: %w", decl.Name, err)
		}
	} else if len(decl.Arguments) > 0 {
		return nil, fmt.Errorf("handler %q takes no arguments", decl.Name)
	}

	h, err := reg.Build(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("handler %q: %w", decl.Name, err)
	}
	if h == nil {
		return nil, fmt.Errorf("handler %q: build returned no handler", decl.Name)
	}
	return namedHandler{Handler: h, name: decl.Name}, nil
}

// Factory returns a driver factory that creates drivers with next and
// attaches the handlers declared in the item's payload, in declaration
// order. Items without a *config.ItemDecl payload get no handlers.
func (r *Registry) Factory(ctx context.Context, next driver.Factory) driver.Factory {
	if next == nil {
		next = driver.DefaultFactory{}
	}
	return driver.FactoryFunc(func(kind item.Kind, info driver.BuildInfo) (*driver.Driver, error) {
		d, err := next.CreateDriver(kind, info)
		if err != nil || d == nil {
			return d, err
		}
		decl, ok := info.Item.Item.Payload.(*config.ItemDecl)
		if !ok {
			return d, nil
		}
		logger := ctxlog.FromContext(ctx).With("item", info.Item.FullName)
		for _, hd := range decl.Handlers {
			h, err := r.BuildHandler(ctx, hd)
			if err != nil {
				return nil, err
			}
			if err := d.AddHandler(h); err != nil {
				return nil, err
			}
			logger.Debug("Handler attached.", "handler", hd.Name)
		}
		return d, nil
	})
}

// ValidateModel checks that every handler declared in the model is
// registered and that its arguments decode. Nothing is built.
func (r *Registry) ValidateModel(ctx context.Context, model *config.Model) error {
	var errs []error
	for _, it := range model.Items {
		for _, hd := range it.Handlers {
			reg, ok := r.handlers[hd.Name]
			if !ok {
				errs = append(errs, fmt.Errorf("item %q: handler %q is not registered", it.FullName, hd.Name))
				continue
			}
			if reg.NewInput == nil {
				if len(hd.Arguments) > 0 {
					errs = append(errs, fmt.Errorf("item %q: handler %q takes no arguments", it.FullName, hd.Name))
				}
				continue
			}
			if err := decodeArguments(ctx, reg.NewInput(), hd.Arguments); err != nil {
				errs = append(errs, fmt.Errorf("item %q: handler %q: %w", it.FullName, hd.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}
