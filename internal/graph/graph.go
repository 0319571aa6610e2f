// Package graph derives the loader's module-id remap table and the
// missing-dependency report from a set of libraries.
//
// Both results follow the order of the library slice they are built from,
// so regenerating them from the same registry state yields the same bytes.
package graph

import (
	"context"
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/git-pkgs/jslib/internal/core"
)

// Remap maps a dependency's package name to its define id.
type Remap = orderedmap.OrderedMap[string, string]

// RemapTable maps a library's define id to the remaps of its dependencies.
// Only dependencies whose define id differs from their name are present, and
// libraries without such dependencies are absent.
type RemapTable struct {
	entries *orderedmap.OrderedMap[string, *Remap]
}

// NewRemapTable returns an empty table.
func NewRemapTable() *RemapTable {
	return &RemapTable{entries: orderedmap.New[string, *Remap]()}
}

// Set records that define resolves the dependency name to id.
func (t *RemapTable) Set(define, name, id string) {
	remap, ok := t.entries.Get(define)
	if !ok {
		remap = orderedmap.New[string, string]()
		t.entries.Set(define, remap)
	}
	remap.Set(name, id)
}

// Lookup returns the id that define's dependency name is remapped to.
func (t *RemapTable) Lookup(define, name string) (string, bool) {
	if t == nil {
		return "", false
	}
	remap, ok := t.entries.Get(define)
	if !ok {
		return "", false
	}
	return remap.Get(name)
}

// Remaps returns the sub-map of define, or nil.
func (t *RemapTable) Remaps(define string) *Remap {
	remap, _ := t.entries.Get(define)
	return remap
}

// Defines returns the define ids present in the table, in insertion order.
func (t *RemapTable) Defines() []string {
	defines := make([]string, 0, t.entries.Len())
	for pair := t.entries.Oldest(); pair != nil; pair = pair.Next() {
		defines = append(defines, pair.Key)
	}
	return defines
}

// Len returns the number of libraries with at least one remap.
func (t *RemapTable) Len() int {
	return t.entries.Len()
}

// MarshalJSON encodes the table as a nested object in insertion order.
func (t *RemapTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.entries)
}

// Missing is a declared dependency that no library provides.
type Missing struct {
	Library    core.Library
	Dependency string
	Range      string
}

// Index maps package names to libraries. The first library with a given
// name wins. The winners are also returned in the order they occur in libs.
func Index(libs []core.Library) (map[string]core.Library, []core.Library) {
	index := make(map[string]core.Library, len(libs))
	unique := make([]core.Library, 0, len(libs))
	for _, lib := range libs {
		if _, ok := index[lib.Name()]; !ok {
			index[lib.Name()] = lib
			unique = append(unique, lib)
		}
	}
	return index, unique
}

// BuildRemapTable computes the remap table for libs. Libraries shadowed by an
// earlier one with the same name are ignored. Failing to obtain a library's
// dependencies aborts the build.
func BuildRemapTable(ctx context.Context, libs []core.Library) (*RemapTable, error) {
	index, unique := Index(libs)
	table := NewRemapTable()

	for _, lib := range unique {
		deps, err := lib.Dependencies(ctx)
		if err != nil {
			return nil, err
		}
		for pair := deps.Oldest(); pair != nil; pair = pair.Next() {
			dep, ok := index[pair.Key]
			if !ok || dep.Define() == pair.Key {
				continue
			}
			table.Set(lib.Define(), pair.Key, dep.Define())
		}
	}
	return table, nil
}

// FindMissing reports every declared dependency whose name is not among libs
// and which table does not remap for the declaring library. table is usually
// the loader's merged map, so remaps supplied by overrides also count.
func FindMissing(ctx context.Context, libs []core.Library, table *RemapTable) ([]Missing, error) {
	index, unique := Index(libs)
	var missing []Missing

	for _, lib := range unique {
		deps, err := lib.Dependencies(ctx)
		if err != nil {
			return nil, err
		}
		for pair := deps.Oldest(); pair != nil; pair = pair.Next() {
			if _, ok := index[pair.Key]; ok {
				continue
			}
			if _, ok := table.Lookup(lib.Define(), pair.Key); ok {
				continue
			}
			missing = append(missing, Missing{
				Library:    lib,
				Dependency: pair.Key,
				Range:      pair.Value,
			})
		}
	}
	return missing, nil
}
