package config

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/setupgrid/internal/ctxlog"
	"github.com/vk/setupgrid/internal/fsutil"
)

// MultiLoader dispatches files to the loader registered for their extension.
type MultiLoader struct {
	byExt map[string]Loader
}

// NewMultiLoader creates an empty MultiLoader.
func NewMultiLoader() *MultiLoader {
	return &MultiLoader{byExt: make(map[string]Loader)}
}

// Handle registers l for files ending with any of the extensions. Registering
// an extension twice is a programmer error.
func (m *MultiLoader) Handle(l Loader, extensions ...string) *MultiLoader {
	for _, ext := range extensions {
		if _, exists := m.byExt[ext]; exists {
			panic(fmt.Sprintf("loader for extension '%s' already registered", ext))
		}
		m.byExt[ext] = l
	}
	return m
}

// Extensions returns the registered extensions in sorted order.
func (m *MultiLoader) Extensions() []string {
	out := make([]string, 0, len(m.byExt))
	for ext := range m.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Load walks paths and hands every loader the files it is registered for.
func (m *MultiLoader) Load(ctx context.Context, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	exts := m.Extensions()
	if len(exts) == 0 {
		return nil, fmt.Errorf("no loaders registered")
	}
	files, err := fsutil.CollectFiles(paths, exts...)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered model files.", "count", len(files))

	// Group files per loader, keeping the first-seen loader order stable.
	var order []Loader
	grouped := make(map[Loader][]string)
	for _, f := range files {
		l := m.loaderFor(f)
		if _, ok := grouped[l]; !ok {
			order = append(order, l)
		}
		grouped[l] = append(grouped[l], f)
	}

	model := &Model{}
	for _, l := range order {
		part, err := l.Load(ctx, grouped[l]...)
		if err != nil {
			return nil, err
		}
		model.Merge(part)
	}
	logger.Debug("Model loading complete.", "items", len(model.Items))
	return model, nil
}

// loaderFor picks the loader of the longest matching extension.
func (m *MultiLoader) loaderFor(path string) Loader {
	var (
		best    Loader
		bestLen int
	)
	for ext, l := range m.byExt {
		if fsutil.HasExtension(path, ext) && len(ext) > bestLen {
			best, bestLen = l, len(ext)
		}
	}
	return best
}
