// Package registry discovers the libraries installed under a library root
// and installs new ones from the package registry.
//
// An installed library is a single script whose first line records the
// package it came from:
//
//	// jquery@3.7.1
//
// Files without such a line are not libraries and are ignored. Paths whose
// directory or file name starts with "_" are hidden: they are enumerated but
// not bundled on their own.
package registry

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/git-pkgs/jslib/fetch"
	"github.com/git-pkgs/jslib/internal/core"
	"github.com/git-pkgs/jslib/internal/npm"
	"github.com/git-pkgs/jslib/internal/output"
)

const (
	scriptExt      = ".js"
	hiddenPrefix   = "_"
	reservedPrefix = "!"
)

// Host lists and renders the scripts of a host application that serves the
// library root itself. Paths are slash separated and relative to the host's
// root.
type Host interface {
	Paths(includeHidden bool) ([]string, error)
	Render(path string) (string, error)
}

// Registry is the set of libraries under one library root.
type Registry struct {
	fs       afero.Fs
	root     string
	source   core.DescriptorSource
	host     Host
	prefix   string
	fetcher  fetch.FetcherInterface
	resolver *fetch.Resolver
	virtual  []*core.VirtualLibrary
	logger   *log.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithHost makes the registry list paths through h instead of walking the
// root. prefix is the library root relative to the host's root, or "" when
// both are the same directory.
func WithHost(h Host, prefix string) Option {
	return func(r *Registry) {
		r.host = h
		r.prefix = strings.Trim(filepath.ToSlash(prefix), "/")
		if r.prefix == "." {
			r.prefix = ""
		}
	}
}

// WithFetcher sets the fetcher used to download tarballs.
func WithFetcher(f fetch.FetcherInterface) Option {
	return func(r *Registry) {
		r.fetcher = f
	}
}

// WithResolver sets the tarball resolver.
func WithResolver(res *fetch.Resolver) Option {
	return func(r *Registry) {
		r.resolver = res
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// New creates a registry for the libraries under root on fsys. Library
// metadata is read from source.
func New(fsys afero.Fs, root string, source core.DescriptorSource, opts ...Option) *Registry {
	r := &Registry{
		fs:       fsys,
		root:     filepath.Clean(root),
		source:   source,
		fetcher:  fetch.NewFetcher(),
		resolver: fetch.NewResolver(npm.NewURLs("")),
		logger:   output.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the library root directory.
func (r *Registry) Root() string {
	return r.root
}

// Traverse returns the script paths under the root, slash separated and
// relative to it. Hidden paths are only included when includeHidden is set.
// Symlinked directories are followed unless they lead back into a directory
// that is already being walked.
func (r *Registry) Traverse(includeHidden bool) ([]string, error) {
	if r.host != nil {
		return r.hostPaths(includeHidden)
	}

	start := r.root
	if target, ok := r.linkedDir(r.root); ok {
		start = target
	}
	var paths []string
	if err := r.walk(start, "", includeHidden, nil, &paths); err != nil {
		return nil, err
	}
	return paths, nil
}

// walk collects the scripts under dir as prefix/<path relative to dir>.
// active holds the directories walked on the way to dir.
func (r *Registry) walk(dir, prefix string, includeHidden bool, active []string, paths *[]string) error {
	active = append(active, dir)
	return afero.Walk(r.fs, dir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = path.Join(prefix, filepath.ToSlash(rel))
		hidden := strings.HasPrefix(info.Name(), hiddenPrefix)

		if info.Mode()&fs.ModeSymlink != 0 {
			if target, ok := r.linkedDir(p); ok {
				if (hidden && !includeHidden) || within(target, active) {
					return nil
				}
				return r.walk(target, rel, includeHidden, active, paths)
			}
		}
		if info.IsDir() {
			if hidden && !includeHidden {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(info.Name(), scriptExt) || (hidden && !includeHidden) {
			return nil
		}
		*paths = append(*paths, rel)
		return nil
	})
}

// linkedDir resolves p when it is a symlink to a directory.
func (r *Registry) linkedDir(p string) (string, bool) {
	reader, ok := r.fs.(afero.LinkReader)
	if !ok {
		return "", false
	}
	target, err := reader.ReadlinkIfPossible(p)
	if err != nil {
		return "", false
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(p), target)
	}
	target = filepath.Clean(target)
	info, err := r.fs.Stat(target)
	if err != nil || !info.IsDir() {
		return "", false
	}
	if next, ok := r.linkedDir(target); ok {
		return next, true
	}
	return target, true
}

// within reports whether target is one of dirs or an ancestor of one.
func within(target string, dirs []string) bool {
	for _, dir := range dirs {
		if dir == target || strings.HasPrefix(dir, target+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (r *Registry) hostPaths(includeHidden bool) ([]string, error) {
	all, err := r.host.Paths(includeHidden)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, p := range all {
		if strings.HasPrefix(p, reservedPrefix) {
			continue
		}
		if r.prefix != "" {
			rel, ok := strings.CutPrefix(p, r.prefix+"/")
			if !ok {
				continue
			}
			p = rel
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// Render returns the content of the script at path, rendered by the host
// when there is one.
func (r *Registry) Render(path string) (string, error) {
	if r.host != nil {
		if r.prefix != "" {
			path = r.prefix + "/" + path
		}
		return r.host.Render(path)
	}
	data, err := afero.ReadFile(r.fs, r.file(path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r *Registry) file(path string) string {
	return filepath.Join(r.root, filepath.FromSlash(path))
}

// Libraries returns every installed library, hidden ones included, followed
// by the registered virtual libraries. Files removed while the root is being
// read are skipped.
func (r *Registry) Libraries(ctx context.Context) ([]core.Library, error) {
	paths, err := r.Traverse(true)
	if err != nil {
		return nil, err
	}

	libs := make([]core.Library, 0, len(paths)+len(r.virtual))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := r.firstLine(p)
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Debug("skipping vanished file", "path", p)
			continue
		}
		if err != nil {
			return nil, err
		}
		header, ok := core.ParseHeader(line)
		if !ok {
			continue
		}
		libs = append(libs, core.NewFileLibrary(r.fs, r.root, p, header, r.source))
	}
	for _, v := range r.virtual {
		libs = append(libs, v)
	}
	return libs, nil
}

func (r *Registry) firstLine(path string) (string, error) {
	f, err := r.fs.Open(r.file(path))
	if err != nil {
		return "", err
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return line, nil
}

// RegisterVirtual adds a library whose content is produced by generate.
func (r *Registry) RegisterVirtual(define, version string, deps *core.Dependencies, generate core.Generator) *core.VirtualLibrary {
	lib := core.NewVirtualLibrary(define, version, deps, generate)
	r.virtual = append(r.virtual, lib)
	return lib
}

// Virtual returns the registered virtual libraries.
func (r *Registry) Virtual() []*core.VirtualLibrary {
	return r.virtual
}

// Get returns the first library named name.
func (r *Registry) Get(ctx context.Context, name string) (core.Library, error) {
	libs, err := r.Libraries(ctx)
	if err != nil {
		return nil, err
	}
	for _, lib := range libs {
		if lib.Name() == name {
			return lib, nil
		}
	}
	return nil, &core.NotInstalledError{Name: name}
}

// Outdated is an installed library with a newer published version.
type Outdated struct {
	Library core.Library
	Newest  string
}

// Outdated returns the libraries whose version differs from the newest
// published one. Virtual libraries are never outdated.
func (r *Registry) Outdated(ctx context.Context) ([]Outdated, error) {
	libs, err := r.Libraries(ctx)
	if err != nil {
		return nil, err
	}
	var outdated []Outdated
	for _, lib := range libs {
		newest, err := lib.NewestVersion(ctx)
		if err != nil {
			return nil, err
		}
		if newest != lib.Version() {
			outdated = append(outdated, Outdated{Library: lib, Newest: newest})
		}
	}
	return outdated, nil
}
