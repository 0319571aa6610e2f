// Package core provides the library model shared by the registry, graph and bundle packages.
package core

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// RuntimePackage is the loader runtime's own package. It is never reported
// as a dependency of a library.
const RuntimePackage = "requirejs"

// Dependencies maps a package name to its declared version range, in
// declaration order.
type Dependencies = orderedmap.OrderedMap[string, string]

// NewDependencies returns an empty Dependencies map.
func NewDependencies() *Dependencies {
	return orderedmap.New[string, string]()
}

// Descriptor is the subset of a registry package descriptor this module reads.
type Descriptor struct {
	Name             string
	Version          string
	Main             string
	Browser          string // only the string form of the browser field
	License          string
	Dist             Dist
	Dependencies     *Dependencies
	PeerDependencies *Dependencies

	// Raw is the descriptor exactly as the registry returned it.
	Raw []byte
}

// Dist describes the published tarball of a version.
type Dist struct {
	Tarball   string `json:"tarball"`
	Shasum    string `json:"shasum"`
	Integrity string `json:"integrity"`
}

// DeclaredDependencies merges the direct and peer dependencies of d.
// A peer entry overwrites a direct one but keeps its position. The loader
// runtime itself is dropped.
func (d *Descriptor) DeclaredDependencies() *Dependencies {
	deps := NewDependencies()
	if d == nil {
		return deps
	}
	for _, src := range []*Dependencies{d.Dependencies, d.PeerDependencies} {
		if src == nil {
			continue
		}
		for pair := src.Oldest(); pair != nil; pair = pair.Next() {
			deps.Set(pair.Key, pair.Value)
		}
	}
	deps.Delete(RuntimePackage)
	return deps
}

// DescriptorSource returns package descriptors. An empty version means the
// latest published one.
type DescriptorSource interface {
	Descriptor(ctx context.Context, name, version string) (*Descriptor, error)
}

// Header is the identity record stored in the first line of an installed
// library file.
type Header struct {
	Name    string
	Version string
}

var headerPattern = regexp.MustCompile(`^//\s+(@?[^@\s]+)@(\S+)$`)

// ParseHeader parses a "// <name>@<version>" line. Scoped names
// ("@scope/pkg") are accepted.
func ParseHeader(line string) (Header, bool) {
	m := headerPattern.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if m == nil {
		return Header{}, false
	}
	return Header{Name: m[1], Version: m[2]}, true
}

func (h Header) String() string {
	return fmt.Sprintf("// %s@%s", h.Name, h.Version)
}
