package versionstore

import (
	"context"
	"sort"
	"sync"

	"github.com/vk/setupgrid/internal/semver"
)

// Memory is an in-memory Repository. Safe for concurrent use.
type Memory struct {
	versions sync.Map // Key: Key(itemType, fullName), Value: Record
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) GetVersion(_ context.Context, itemType, fullName string) (semver.Version, error) {
	if err := checkKey(itemType, fullName); err != nil {
		return semver.Version{}, err
	}
	val, ok := m.versions.Load(Key(itemType, fullName))
	if !ok {
		return semver.Version{}, nil
	}
	return val.(Record).Version, nil
}

func (m *Memory) SetVersion(_ context.Context, itemType, fullName string, v semver.Version) error {
	if err := checkKey(itemType, fullName); err != nil {
		return err
	}
	if err := checkVersion(v); err != nil {
		return err
	}
	m.versions.Store(Key(itemType, fullName), Record{ItemType: itemType, FullName: fullName, Version: v})
	return nil
}

// List returns every record ordered by key.
func (m *Memory) List(context.Context) ([]Record, error) {
	var out []Record
	m.versions.Range(func(_, value any) bool {
		out = append(out, value.(Record))
		return true
	})
	sortRecords(out)
	return out, nil
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		return Key(records[i].ItemType, records[i].FullName) < Key(records[j].ItemType, records[j].FullName)
	})
}
