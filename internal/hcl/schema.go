package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes every top-level block of a model file.
type fileRoot struct {
	Items           []*itemBlock `hcl:"item,block"`
	Containers      []*itemBlock `hcl:"container,block"`
	Groups          []*itemBlock `hcl:"group,block"`
	GroupContainers []*itemBlock `hcl:"group_container,block"`
}

type itemBlock struct {
	Name           string   `hcl:"name,label"`
	Type           string   `hcl:"type,optional"`
	Version        string   `hcl:"version,optional"`
	Container      string   `hcl:"container,optional"`
	Generalization string   `hcl:"generalization,optional"`
	Requires       []string `hcl:"requires,optional"`
	RequiredBy     []string `hcl:"required_by,optional"`
	Groups         []string `hcl:"groups,optional"`
	Children       []string `hcl:"children,optional"`

	PreviousNames []*previousNameBlock `hcl:"previous_name,block"`
	Handlers      []*handlerBlock      `hcl:"handler,block"`
}

type previousNameBlock struct {
	Name    string `hcl:"name,label"`
	Version string `hcl:"version"`
}

// handlerBlock keeps its body raw; the attributes belong to the handler.
type handlerBlock struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}
