package versionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vk/setupgrid/internal/semver"
)

// fileDocument is the on-disk layout of the File backend.
type fileDocument struct {
	Versions []Record `json:"versions"`
}

// File stores versions in a JSON document. Every SetVersion rewrites the
// document through a temporary file and a rename.
type File struct {
	path string

	mu       sync.Mutex
	loaded   bool
	versions map[string]Record
}

// NewFile returns a File repository at path. The file is created on the
// first write.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("versionstore: file backend requires a path")
	}
	return &File{path: path, versions: make(map[string]Record)}, nil
}

func (f *File) load() error {
	if f.loaded {
		return nil
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("versionstore: read %s: %w", f.path, err)
	}
	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("versionstore: decode %s: %w", f.path, err)
	}
	for _, r := range doc.Versions {
		f.versions[Key(r.ItemType, r.FullName)] = r
	}
	f.loaded = true
	return nil
}

func (f *File) save() error {
	records := make([]Record, 0, len(f.versions))
	for _, r := range f.versions {
		records = append(records, r)
	}
	sortRecords(records)

	data, err := json.MarshalIndent(fileDocument{Versions: records}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("versionstore: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("versionstore: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, f.path)
}

func (f *File) GetVersion(_ context.Context, itemType, fullName string) (semver.Version, error) {
	if err := checkKey(itemType, fullName); err != nil {
		return semver.Version{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return semver.Version{}, err
	}
	return f.versions[Key(itemType, fullName)].Version, nil
}

func (f *File) SetVersion(_ context.Context, itemType, fullName string, v semver.Version) error {
	if err := checkKey(itemType, fullName); err != nil {
		return err
	}
	if err := checkVersion(v); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	key := Key(itemType, fullName)
	prev, had := f.versions[key]
	f.versions[key] = Record{ItemType: itemType, FullName: fullName, Version: v}
	if err := f.save(); err != nil {
		if had {
			f.versions[key] = prev
		} else {
			delete(f.versions, key)
		}
		return err
	}
	return nil
}

func (f *File) List(context.Context) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(f.versions))
	for _, r := range f.versions {
		out = append(out, r)
	}
	sortRecords(out)
	return out, nil
}
