// Package jslib manages AMD libraries installed from the npm registry and
// bundles them for the browser.
//
// Every installed library is one script under a library root whose first
// line names the package and version it came from. From those scripts jslib
// derives the loader configuration, reports dependencies that are not
// installed, and builds self-configuring bundles with an external optimizer.
//
// Basic usage:
//
//	mod, err := jslib.Open(jslib.Options{
//		RootDir: "static/js",
//		Runtime: almondSource,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if _, err := mod.Install(ctx, "jquery", jslib.InstallOptions{}); err != nil {
//		log.Fatal(err)
//	}
//
//	bundle, err := mod.Build(ctx, true)
package jslib

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/git-pkgs/purl"
	"github.com/spf13/afero"

	"github.com/git-pkgs/jslib/client"
	"github.com/git-pkgs/jslib/fetch"
	"github.com/git-pkgs/jslib/internal/bundle"
	"github.com/git-pkgs/jslib/internal/core"
	"github.com/git-pkgs/jslib/internal/graph"
	"github.com/git-pkgs/jslib/internal/metacache"
	"github.com/git-pkgs/jslib/internal/npm"
	"github.com/git-pkgs/jslib/internal/output"
	"github.com/git-pkgs/jslib/internal/registry"
)

// Re-export types from internal/core
type (
	// Library is an installed or virtual AMD module.
	Library = core.Library

	// Descriptor is a package descriptor from the registry.
	Descriptor = core.Descriptor

	// Dependencies maps package names to version ranges, in declaration order.
	Dependencies = core.Dependencies

	// Header is the identity line of an installed library.
	Header = core.Header

	// LoaderConfig is a loader configuration object.
	LoaderConfig = core.LoaderConfig

	// Generator produces the content of a virtual library.
	Generator = core.Generator
)

// Re-export types from the component packages
type (
	// InstallOptions controls how a package is installed.
	InstallOptions = registry.InstallOptions

	// Outdated is an installed library with a newer published version.
	Outdated = registry.Outdated

	// Host lists and renders the scripts of a host application.
	Host = registry.Host

	// VirtualRegistrar registers generated scripts with a host.
	VirtualRegistrar = bundle.VirtualRegistrar

	// Optimizer turns an optimizer script into bundle source.
	Optimizer = bundle.Optimizer

	// Missing is a declared dependency that no library provides.
	Missing = graph.Missing

	// RemapTable maps define ids to the remapped ids of their dependencies.
	RemapTable = graph.RemapTable

	// URLBuilder constructs URLs for a registry.
	URLBuilder = client.URLBuilder
)

// Re-export errors
var (
	ErrNotFound              = core.ErrNotFound
	ErrDescriptorUnavailable = core.ErrDescriptorUnavailable
	ErrNoEntry               = core.ErrNoEntry
	ErrNoDefineCall          = core.ErrNoDefineCall
	ErrNoRuntime             = core.ErrNoRuntime
)

// Error types
type (
	DescriptorError   = core.DescriptorError
	NotInstalledError = core.NotInstalledError
	OptimizerError    = core.OptimizerError
)

// Options configures Open.
type Options struct {
	// Fs is the filesystem holding the library root and the cache.
	// Defaults to the OS filesystem.
	Fs afero.Fs

	// RootDir is the library root. Required.
	RootDir string

	// CacheDir holds cached descriptors. Defaults to <tmp>/jslib.
	CacheDir string

	// Registry is the registry base URL. Defaults to the public npm registry.
	Registry string

	// Token is sent as a bearer token to the registry host.
	Token string

	// Overrides are merged over the generated loader configuration.
	// Defaults to {"baseUrl": "/js/"}.
	Overrides *LoaderConfig

	// Runtime is the loader runtime source placed at the start of bundles.
	Runtime string

	// Loader is the standalone loader source.
	Loader string

	// Optimizer builds bundles. Defaults to running node.
	Optimizer Optimizer

	// Host, when set, lists and renders scripts in place of the filesystem.
	// HostPrefix is the library root relative to the host's root.
	Host       Host
	HostPrefix string

	// Fetcher downloads descriptors and tarballs. Defaults to a retrying
	// fetcher behind a per-host circuit breaker. Token is ignored when set.
	Fetcher fetch.FetcherInterface

	Logger *log.Logger
}

// Module is an opened library root.
type Module struct {
	registry *registry.Registry
	builder  *bundle.Builder
	cache    *metacache.Cache
	urls     *npm.URLs
}

// Open wires a Module from opts.
func Open(opts Options) (*Module, error) {
	if opts.RootDir == "" {
		return nil, errors.New("jslib: no root directory")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = output.Logger
	}
	if opts.CacheDir == "" {
		opts.CacheDir = defaultCacheDir()
	}
	if opts.Registry == "" {
		opts.Registry = npm.DefaultURL
	}
	if opts.Fetcher == nil {
		opts.Fetcher = fetch.NewCircuitBreakerFetcher(fetch.NewFetcher(
			fetch.WithToken(fetch.Host(opts.Registry), opts.Token),
			fetch.WithLogger(opts.Logger),
		), 0)
	}

	urls := npm.NewURLs(opts.Registry)
	cache := metacache.New(opts.Fs, opts.CacheDir, opts.Fetcher,
		metacache.WithRegistry(opts.Registry),
		metacache.WithLogger(opts.Logger),
	)

	regOpts := []registry.Option{
		registry.WithFetcher(opts.Fetcher),
		registry.WithResolver(fetch.NewResolver(urls)),
		registry.WithLogger(opts.Logger),
	}
	if opts.Host != nil {
		regOpts = append(regOpts, registry.WithHost(opts.Host, opts.HostPrefix))
	}
	reg := registry.New(opts.Fs, opts.RootDir, cache, regOpts...)

	bundleOpts := []bundle.Option{
		bundle.WithOverrides(opts.Overrides),
		bundle.WithRuntime(opts.Runtime),
		bundle.WithLoader(opts.Loader),
		bundle.WithLogger(opts.Logger),
	}
	if opts.Optimizer != nil {
		bundleOpts = append(bundleOpts, bundle.WithOptimizer(opts.Optimizer))
	}

	return &Module{
		registry: reg,
		builder:  bundle.New(reg, bundleOpts...),
		cache:    cache,
		urls:     urls,
	}, nil
}

func defaultCacheDir() string {
	return filepath.Join(os.TempDir(), "jslib")
}

// Libraries returns every installed library followed by the virtual ones.
func (m *Module) Libraries(ctx context.Context) ([]Library, error) {
	return m.registry.Libraries(ctx)
}

// Traverse returns the script paths under the library root.
func (m *Module) Traverse(includeHidden bool) ([]string, error) {
	return m.registry.Traverse(includeHidden)
}

// Get returns the installed library named name.
func (m *Module) Get(ctx context.Context, name string) (Library, error) {
	return m.registry.Get(ctx, name)
}

// Install installs the newest version of pkg.
func (m *Module) Install(ctx context.Context, pkg string, opts InstallOptions) (Library, error) {
	return m.registry.Install(ctx, pkg, opts)
}

// Upgrade reinstalls name when a newer version is published.
func (m *Module) Upgrade(ctx context.Context, name string, patchDefine bool) (Library, bool, error) {
	return m.registry.Upgrade(ctx, name, patchDefine)
}

// Outdated returns the libraries with a newer published version.
func (m *Module) Outdated(ctx context.Context) ([]Outdated, error) {
	return m.registry.Outdated(ctx)
}

// RegisterVirtual adds a library whose content is produced by generate.
func (m *Module) RegisterVirtual(define, version string, deps *Dependencies, generate Generator) Library {
	return m.registry.RegisterVirtual(define, version, deps, generate)
}

// LoaderConfig returns the merged loader configuration.
func (m *Module) LoaderConfig(ctx context.Context) (*LoaderConfig, error) {
	return m.builder.LoaderConfig(ctx)
}

// RenderConfig returns the script applying the loader configuration.
func (m *Module) RenderConfig(ctx context.Context) (string, error) {
	return m.builder.RenderConfig(ctx)
}

// RenderLoader returns the standalone loader with its configuration.
func (m *Module) RenderLoader(ctx context.Context) (string, error) {
	return m.builder.RenderLoader(ctx)
}

// Missing reports dependencies that no library provides.
func (m *Module) Missing(ctx context.Context) ([]Missing, error) {
	return m.builder.Missing(ctx)
}

// LivePaths returns the scripts to load one by one.
func (m *Module) LivePaths(ctx context.Context) ([]string, error) {
	return m.builder.LivePaths(ctx)
}

// Build bundles every visible library.
func (m *Module) Build(ctx context.Context, minify bool) (string, error) {
	return m.builder.Build(ctx, minify)
}

// Fingerprint hashes the sources of the bundle.
func (m *Module) Fingerprint(ctx context.Context) (string, error) {
	return m.builder.Fingerprint(ctx)
}

// Register adds the loader, runtime and bundle scripts to a host.
func (m *Module) Register(ctx context.Context, reg VirtualRegistrar, minify bool) {
	m.builder.Register(ctx, reg, minify)
}

// PurgeCache removes every cached descriptor.
func (m *Module) PurgeCache() error {
	return m.cache.Purge()
}

// PackageURL returns the package URL of lib.
func (m *Module) PackageURL(lib Library) string {
	return m.urls.PURL(lib.Name(), lib.Version())
}

// URLs returns the registry URLs of name@version, keyed by kind.
func (m *Module) URLs(name, version string) map[string]string {
	return client.BuildURLs(m.urls, name, version)
}

// PURL represents a parsed Package URL.
type PURL = purl.PURL

// ParsePURL parses a Package URL string into its components.
func ParsePURL(s string) (*PURL, error) {
	return purl.Parse(s)
}

// ParseLoaderConfig parses a JSON object, comments allowed.
func ParseLoaderConfig(data []byte) (*LoaderConfig, error) {
	return core.ParseLoaderConfig(data)
}

// NewDependencies returns an empty Dependencies map.
func NewDependencies() *Dependencies {
	return core.NewDependencies()
}
