// Package yamlmodel loads item declarations written in YAML.
//
//	items:
//	  - name: DB
//	    kind: container
//	    version: "1.0"
//	    handlers:
//	      - name: print
//	        args:
//	          message: database ready
//	  - name: Table1
//	    container: DB
//	    requires: ["?Extensions"]
//	    previous_names:
//	      - name: Table0
//	        version: "0.9"
package yamlmodel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vk/setupgrid/internal/config"
	"github.com/vk/setupgrid/internal/ctxlog"
	"github.com/vk/setupgrid/internal/fsutil"
	"gopkg.in/yaml.v3"
)

// Extensions lists the file extensions handled by the loader.
var Extensions = []string{".yaml", ".yml"}

type document struct {
	Items []itemDoc `yaml:"items"`
}

type itemDoc struct {
	Name           string            `yaml:"name"`
	Kind           string            `yaml:"kind"`
	Type           string            `yaml:"type"`
	Version        string            `yaml:"version"`
	Container      string            `yaml:"container"`
	Generalization string            `yaml:"generalization"`
	Requires       []string          `yaml:"requires"`
	RequiredBy     []string          `yaml:"required_by"`
	Groups         []string          `yaml:"groups"`
	Children       []string          `yaml:"children"`
	PreviousNames  []previousNameDoc `yaml:"previous_names"`
	Handlers       []handlerDoc      `yaml:"handlers"`
}

type previousNameDoc struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type handlerDoc struct {
	Name string         `yaml:"name"`
	Args map[string]any `yaml:"args"`
}

// Loader is the YAML implementation of config.Loader.
type Loader struct{}

// NewLoader creates a new YAML model loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every YAML file under paths into one model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	files, err := fsutil.CollectFiles(paths, Extensions...)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered YAML files.", "count", len(files))

	model := &config.Model{}
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("yamlmodel: read %s: %w", file, err)
		}
		part, err := Parse(content, file)
		if err != nil {
			return nil, err
		}
		model.Merge(part)
	}
	logger.Debug("YAML loading complete.", "items", len(model.Items))
	return model, nil
}

// Parse decodes one YAML document. Unknown fields are rejected. An empty
// document yields an empty model.
func Parse(data []byte, source string) (*config.Model, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("yamlmodel: decode %s: %w", source, err)
	}

	model := &config.Model{}
	for i, it := range doc.Items {
		if it.Name == "" {
			return nil, fmt.Errorf("yamlmodel: %s: item #%d has no name", source, i+1)
		}
		decl := &config.ItemDecl{
			FullName:       it.Name,
			Kind:           it.Kind,
			Type:           it.Type,
			Version:        it.Version,
			Container:      it.Container,
			Generalization: it.Generalization,
			Requires:       it.Requires,
			RequiredBy:     it.RequiredBy,
			Groups:         it.Groups,
			Children:       it.Children,
			Source:         source,
		}
		for _, p := range it.PreviousNames {
			decl.PreviousNames = append(decl.PreviousNames, config.PreviousNameDecl{FullName: p.Name, Version: p.Version})
		}
		for _, h := range it.Handlers {
			args, err := ToCtyObject(h.Args)
			if err != nil {
				return nil, fmt.Errorf("yamlmodel: %s: item %q, handler %q: %w", source, it.Name, h.Name, err)
			}
			decl.Handlers = append(decl.Handlers, &config.HandlerDecl{Name: h.Name, Arguments: args})
		}
		model.Items = append(model.Items, decl)
	}
	return model, nil
}
