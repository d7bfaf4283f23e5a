package hcl

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/setupgrid/internal/config"
	"github.com/vk/setupgrid/internal/ctxlog"
	"github.com/vk/setupgrid/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
)

// Extension is the file extension of HCL model files.
const Extension = ".hcl"

// Loader is the HCL implementation of config.Loader.
type Loader struct {
	environ func() []string
}

// NewLoader creates a new HCL model loader.
func NewLoader() *Loader {
	return &Loader{environ: os.Environ}
}

// Load parses every .hcl file under paths into one model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.CollectFiles(paths, Extension)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	evalCtx := l.evalContext()
	model := &config.Model{}
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		part, err := l.decodeFile(ctx, hclFile, file, evalCtx)
		if err != nil {
			return nil, err
		}
		model.Merge(part)
	}

	logger.Debug("HCL loading complete.", "items", len(model.Items))
	return model, nil
}

// LoadSource parses a single in-memory HCL document.
func (l *Loader) LoadSource(ctx context.Context, filename string, src []byte) (*config.Model, error) {
	hclFile, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return l.decodeFile(ctx, hclFile, filename, l.evalContext())
}

func (l *Loader) decodeFile(ctx context.Context, f *hcl.File, filename string, evalCtx *hcl.EvalContext) (*config.Model, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(f.Body, evalCtx, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	model := &config.Model{}
	groups := []struct {
		kind   string
		blocks []*itemBlock
	}{
		{"item", root.Items},
		{"container", root.Containers},
		{"group", root.Groups},
		{"group_container", root.GroupContainers},
	}
	for _, g := range groups {
		for _, b := range g.blocks {
			decl, err := translateItem(b, g.kind, evalCtx)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", filename, err)
			}
			decl.Source = filename
			model.Items = append(model.Items, decl)
		}
	}
	ctxlog.FromContext(ctx).Debug("Decoded HCL file.", "file", filename, "items", len(model.Items))
	return model, nil
}

func translateItem(b *itemBlock, kind string, evalCtx *hcl.EvalContext) (*config.ItemDecl, error) {
	decl := &config.ItemDecl{
		FullName:       b.Name,
		Kind:           kind,
		Type:           b.Type,
		Version:        b.Version,
		Container:      b.Container,
		Generalization: b.Generalization,
		Requires:       b.Requires,
		RequiredBy:     b.RequiredBy,
		Groups:         b.Groups,
		Children:       b.Children,
	}
	for _, p := range b.PreviousNames {
		decl.PreviousNames = append(decl.PreviousNames, config.PreviousNameDecl{FullName: p.Name, Version: p.Version})
	}
	for _, h := range b.Handlers {
		args, err := evalHandlerBody(h.Body, evalCtx)
		if err != nil {
			return nil, fmt.Errorf("%s %q, handler %q: %w", kind, b.Name, h.Name, err)
		}
		decl.Handlers = append(decl.Handlers, &config.HandlerDecl{Name: h.Name, Arguments: args})
	}
	return decl, nil
}

// evalHandlerBody evaluates every attribute of a handler block.
func evalHandlerBody(body hcl.Body, evalCtx *hcl.EvalContext) (map[string]cty.Value, error) {
	if body == nil {
		return nil, nil
	}
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	args := make(map[string]cty.Value, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return nil, diags
		}
		args[name] = val
	}
	return args, nil
}

// evalContext exposes the process environment as the env object.
func (l *Loader) evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range l.environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !hclIdentifier(k) {
			continue
		}
		env[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(env)},
	}
}

func hclIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-'):
		default:
			return false
		}
	}
	return true
}
