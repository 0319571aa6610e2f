package core

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Library is an installed or virtual AMD module.
type Library interface {
	// Name is the package name. It identifies the library in the dependency graph.
	Name() string

	// Define is the module id other modules use to require this library.
	Define() string

	// Version is the version pinned at install time.
	Version() string

	// Path is the library's path relative to the library root.
	Path() string

	// File is the library's location on disk, or "" for virtual libraries.
	File() string

	// Virtual reports whether the content is generated rather than read from a file.
	Virtual() bool

	// Dependencies returns the declared dependencies, excluding the loader runtime.
	Dependencies(ctx context.Context) (*Dependencies, error)

	// Descriptor returns the descriptor of the pinned version.
	Descriptor(ctx context.Context) (*Descriptor, error)

	// NewestVersion returns the latest published version.
	NewestVersion(ctx context.Context) (string, error)

	// Read returns the library source.
	Read() (string, error)
}

type memoState int

const (
	unfetched memoState = iota
	fetched
)

// descriptorMemo fetches a descriptor at most once. Failed fetches leave it
// unfetched so the next call retries.
type descriptorMemo struct {
	state memoState
	desc  *Descriptor
}

func (m *descriptorMemo) get(fetch func() (*Descriptor, error)) (*Descriptor, error) {
	if m.state == fetched {
		return m.desc, nil
	}
	desc, err := fetch()
	if err != nil {
		return nil, err
	}
	m.state, m.desc = fetched, desc
	return desc, nil
}

// FileLibrary is a library read from a file under the library root.
type FileLibrary struct {
	header Header
	path   string
	root   string
	fs     afero.Fs
	source DescriptorSource
	pinned descriptorMemo
	newest descriptorMemo
}

// NewFileLibrary creates a library for the file at path (slash separated,
// relative to root) whose first line parsed as header.
func NewFileLibrary(fs afero.Fs, root, path string, header Header, source DescriptorSource) *FileLibrary {
	return &FileLibrary{
		header: header,
		path:   path,
		root:   root,
		fs:     fs,
		source: source,
	}
}

func (l *FileLibrary) Name() string    { return l.header.Name }
func (l *FileLibrary) Version() string { return l.header.Version }
func (l *FileLibrary) Path() string    { return l.path }
func (l *FileLibrary) Virtual() bool   { return false }

// Define strips the extension from the library path.
func (l *FileLibrary) Define() string {
	return strings.TrimSuffix(l.path, ".js")
}

func (l *FileLibrary) File() string {
	return filepath.Join(l.root, filepath.FromSlash(l.path))
}

func (l *FileLibrary) Descriptor(ctx context.Context) (*Descriptor, error) {
	return l.pinned.get(func() (*Descriptor, error) {
		return l.source.Descriptor(ctx, l.header.Name, l.header.Version)
	})
}

func (l *FileLibrary) Dependencies(ctx context.Context) (*Dependencies, error) {
	desc, err := l.Descriptor(ctx)
	if err != nil {
		return nil, err
	}
	return desc.DeclaredDependencies(), nil
}

func (l *FileLibrary) NewestVersion(ctx context.Context) (string, error) {
	desc, err := l.newest.get(func() (*Descriptor, error) {
		return l.source.Descriptor(ctx, l.header.Name, "")
	})
	if err != nil {
		return "", err
	}
	return desc.Version, nil
}

func (l *FileLibrary) Read() (string, error) {
	data, err := afero.ReadFile(l.fs, l.File())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Generator produces the content of a virtual library.
type Generator func() (string, error)

// VirtualLibrary is a library whose content is generated. Its dependencies
// are supplied up front and it never fetches metadata.
type VirtualLibrary struct {
	define       string
	version      string
	dependencies *Dependencies
	generate     Generator
}

// NewVirtualLibrary creates a virtual library. The define id doubles as its name.
func NewVirtualLibrary(define, version string, deps *Dependencies, generate Generator) *VirtualLibrary {
	if deps == nil {
		deps = NewDependencies()
	}
	return &VirtualLibrary{
		define:       define,
		version:      version,
		dependencies: deps,
		generate:     generate,
	}
}

func (l *VirtualLibrary) Name() string    { return l.define }
func (l *VirtualLibrary) Define() string  { return l.define }
func (l *VirtualLibrary) Version() string { return l.version }
func (l *VirtualLibrary) Path() string    { return l.define + ".js" }
func (l *VirtualLibrary) File() string    { return "" }
func (l *VirtualLibrary) Virtual() bool   { return true }

func (l *VirtualLibrary) Descriptor(context.Context) (*Descriptor, error) {
	return &Descriptor{Name: l.define, Version: l.version}, nil
}

func (l *VirtualLibrary) Dependencies(context.Context) (*Dependencies, error) {
	return l.dependencies, nil
}

func (l *VirtualLibrary) NewestVersion(context.Context) (string, error) {
	return l.version, nil
}

func (l *VirtualLibrary) Read() (string, error) {
	if l.generate == nil {
		return "", nil
	}
	return l.generate()
}
