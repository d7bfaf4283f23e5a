package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/setupgrid/internal/item"
)

func TestItemDeclTranslation(t *testing.T) {
	d := &ItemDecl{
		FullName:       "Table1",
		Kind:           "item",
		Type:           "table",
		Version:        "1.2",
		Container:      "DB",
		Generalization: "?BaseTable",
		Requires:       []string{"Schema@1.0", "?Audit"},
		RequiredBy:     []string{"Report"},
		PreviousNames: []PreviousNameDecl{
			{FullName: "OldTable", Version: "1.1"},
			{FullName: "OlderTable", Version: "1.0"},
		},
		Handlers: []*HandlerDecl{{Name: "print"}},
	}

	it, err := d.Item()
	require.NoError(t, err)
	assert.Equal(t, "Table1", it.FullName)
	assert.Equal(t, item.KindItem, it.Kind)
	assert.Equal(t, "table", it.ItemType())
	assert.Equal(t, "1.2.0", it.Version.String())
	require.NotNil(t, it.Container)
	assert.Equal(t, "DB", it.Container.Name)
	require.NotNil(t, it.Generalization)
	assert.True(t, it.Generalization.Optional)
	require.Len(t, it.Requires, 2)
	assert.Equal(t, "1.0.0", it.Requires[0].Version.String())
	assert.True(t, it.Requires[1].Optional)
	assert.Equal(t, "Report", it.RequiredBy[0].Name)
	require.Len(t, it.PreviousNames, 2)
	assert.Equal(t, "OlderTable", it.PreviousNames[0].FullName, "previous names are sorted by version")
	assert.Same(t, d, it.Payload)
}

func TestItemDeclErrorsAreCollected(t *testing.T) {
	m := &Model{Items: []*ItemDecl{
		{FullName: "A", Kind: "widget", Version: "not-a-version", Source: "a.hcl"},
		{FullName: "B", Requires: []string{"?"}},
		{FullName: "C"},
	}}
	items, err := m.BuildItems()
	require.Error(t, err)
	assert.Nil(t, items)
	assert.Contains(t, err.Error(), `item "A (a.hcl)"`)
	assert.Contains(t, err.Error(), "kind")
	assert.Contains(t, err.Error(), "version")
	assert.Contains(t, err.Error(), `item "B"`)
	assert.NotContains(t, err.Error(), `item "C"`)
}

func TestProvider(t *testing.T) {
	m := &Model{Items: []*ItemDecl{{FullName: "A"}, {FullName: "B", Kind: "container"}}}
	items, err := m.Provider().Items(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, item.KindContainer, items[1].Kind)
	assert.True(t, items[0].Version.IsZero())
}

type stubLoader struct {
	got []string
}

func (s *stubLoader) Load(_ context.Context, paths ...string) (*Model, error) {
	s.got = append(s.got, paths...)
	m := &Model{}
	for _, p := range paths {
		m.Items = append(m.Items, &ItemDecl{FullName: filepath.Base(p), Source: p})
	}
	return m, nil
}

func TestMultiLoaderDispatchesByExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.hcl", "b.yaml", "c.yml", "d.txt", "sub/e.hcl"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, nil, 0o600))
	}

	hcl, yaml := &stubLoader{}, &stubLoader{}
	ml := NewMultiLoader().Handle(hcl, ".hcl").Handle(yaml, ".yaml", ".yml")

	model, err := ml.Load(context.Background(), dir, filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Len(t, model.Items, 4)
	assert.Equal(t, []string{filepath.Join(dir, "a.hcl"), filepath.Join(dir, "sub/e.hcl")}, hcl.got)
	assert.Equal(t, []string{filepath.Join(dir, "b.yaml"), filepath.Join(dir, "c.yml")}, yaml.got)
	assert.Equal(t, []string{".hcl", ".yaml", ".yml"}, ml.Extensions())

	assert.Panics(t, func() { ml.Handle(hcl, ".hcl") })
	_, err = NewMultiLoader().Load(context.Background(), dir)
	require.Error(t, err)
}
