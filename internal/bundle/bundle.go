// Package bundle renders the loader configuration for a library root and
// builds single-file bundles of all its libraries.
//
// A bundle starts with the loader runtime, followed by one block per
// visible library, and ends with the loader configuration so that it
// configures itself when loaded.
package bundle

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/zeebo/blake3"

	"github.com/git-pkgs/jslib/internal/core"
	"github.com/git-pkgs/jslib/internal/graph"
	"github.com/git-pkgs/jslib/internal/output"
)

const (
	// RuntimeBlock names the loader runtime's block in a bundle.
	RuntimeBlock = "_almond"

	// LoaderPath is the host path of the standalone loader.
	LoaderPath = "!require.js"

	// RuntimePath is the host path of the loader runtime.
	RuntimePath = "_almond.js"

	// BundlePath is the host path of the bundle.
	BundlePath = "_require_bundle.js"
)

var blockSuffix = regexp.MustCompile(`\.js(\..+)?$`)

// Source lists the scripts and libraries under a library root.
type Source interface {
	Root() string
	Traverse(includeHidden bool) ([]string, error)
	Render(path string) (string, error)
	Libraries(ctx context.Context) ([]core.Library, error)
}

// VirtualRegistrar registers generated scripts with a host. hash may be nil.
type VirtualRegistrar interface {
	RegisterVirtual(path string, render func() (string, error), hash func() (string, error))
}

// Builder renders configuration and bundles for one Source.
type Builder struct {
	source    Source
	overrides *core.LoaderConfig
	runtime   string
	loader    string
	optimizer Optimizer
	logger    *log.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithOverrides sets the configuration merged over the generated one.
func WithOverrides(conf *core.LoaderConfig) Option {
	return func(b *Builder) {
		if conf != nil {
			b.overrides = conf
		}
	}
}

// WithRuntime sets the loader runtime source placed at the start of bundles.
func WithRuntime(src string) Option {
	return func(b *Builder) {
		b.runtime = src
	}
}

// WithLoader sets the source of the standalone loader used when scripts are
// served one by one.
func WithLoader(src string) Option {
	return func(b *Builder) {
		b.loader = src
	}
}

// WithOptimizer sets the optimizer.
func WithOptimizer(o Optimizer) Option {
	return func(b *Builder) {
		b.optimizer = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(b *Builder) {
		b.logger = l
	}
}

// New creates a builder for source.
func New(source Source, opts ...Option) *Builder {
	b := &Builder{
		source:    source,
		overrides: core.DefaultLoaderConfig(),
		logger:    output.Logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.optimizer == nil {
		b.optimizer = &NodeOptimizer{Command: []string{"node"}, Logger: b.logger}
	}
	return b
}

// LoaderConfig returns the remap table of the current libraries under the
// "map" key, merged with the overrides. The key is left out when there is
// nothing to remap.
func (b *Builder) LoaderConfig(ctx context.Context) (*core.LoaderConfig, error) {
	libs, err := b.source.Libraries(ctx)
	if err != nil {
		return nil, err
	}
	return b.loaderConfig(ctx, libs)
}

func (b *Builder) loaderConfig(ctx context.Context, libs []core.Library) (*core.LoaderConfig, error) {
	table, err := graph.BuildRemapTable(ctx, libs)
	if err != nil {
		return nil, err
	}

	conf := core.NewLoaderConfig()
	if table.Len() > 0 {
		remap := core.NewLoaderConfig()
		for _, define := range table.Defines() {
			deps := core.NewLoaderConfig()
			for pair := table.Remaps(define).Oldest(); pair != nil; pair = pair.Next() {
				deps.Set(pair.Key, pair.Value)
			}
			remap.Set(define, deps)
		}
		conf.Set("map", remap)
	}
	return core.MergeLoaderConfig(conf, b.overrides), nil
}

// RenderConfig returns the script that applies the loader configuration.
func (b *Builder) RenderConfig(ctx context.Context) (string, error) {
	conf, err := b.LoaderConfig(ctx)
	if err != nil {
		return "", err
	}
	return renderConfig(conf)
}

func renderConfig(conf *core.LoaderConfig) (string, error) {
	data, err := marshal(conf)
	if err != nil {
		return "", err
	}
	return "window.requireAlmond = window.hasOwnProperty('requireAlmond') ? window.requireAlmond : window.require; " +
		"requireAlmond.config(" + string(data) + ");\n", nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Missing reports the declared dependencies no library provides and the
// loader configuration does not remap.
func (b *Builder) Missing(ctx context.Context) ([]graph.Missing, error) {
	libs, err := b.source.Libraries(ctx)
	if err != nil {
		return nil, err
	}
	conf, err := b.loaderConfig(ctx, libs)
	if err != nil {
		return nil, err
	}
	return graph.FindMissing(ctx, libs, remapTable(conf))
}

// remapTable reads the "map" object of conf. Entries that are not strings
// are ignored.
func remapTable(conf *core.LoaderConfig) *graph.RemapTable {
	table := graph.NewRemapTable()
	remap, ok := conf.Value("map").(*core.LoaderConfig)
	if !ok {
		return table
	}
	for lib := remap.Oldest(); lib != nil; lib = lib.Next() {
		deps, ok := lib.Value.(*core.LoaderConfig)
		if !ok {
			continue
		}
		for dep := deps.Oldest(); dep != nil; dep = dep.Next() {
			if id, ok := dep.Value.(string); ok {
				table.Set(lib.Key, dep.Key, id)
			}
		}
	}
	return table
}

// LivePaths returns the scripts to load one by one: the standalone loader
// followed by every visible script that is not a virtual library.
func (b *Builder) LivePaths(ctx context.Context) ([]string, error) {
	libs, err := b.source.Libraries(ctx)
	if err != nil {
		return nil, err
	}
	virtual := make(map[string]bool)
	for _, lib := range libs {
		if lib.Virtual() {
			virtual[lib.Path()] = true
		}
	}

	paths, err := b.source.Traverse(false)
	if err != nil {
		return nil, err
	}
	live := []string{LoaderPath}
	for _, p := range paths {
		if !virtual[p] {
			live = append(live, p)
		}
	}
	return live, nil
}

// block is a named script in a bundle.
type block struct {
	name    string
	content string
}

// blocks returns the runtime followed by every visible script and visible
// virtual library.
func (b *Builder) blocks(libs []core.Library) ([]block, error) {
	if b.runtime == "" {
		return nil, core.ErrNoRuntime
	}
	blocks := []block{{name: RuntimeBlock, content: b.runtime}}
	seen := map[string]bool{RuntimeBlock: true}

	paths, err := b.source.Traverse(false)
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		content, err := b.source.Render(p)
		if err != nil {
			return nil, fmt.Errorf("rendering %s: %w", p, err)
		}
		name := blockSuffix.ReplaceAllString(p, "")
		blocks = append(blocks, block{name: name, content: banner(name) + "\n" + content})
		seen[name] = true
	}

	for _, lib := range libs {
		name := lib.Define()
		if !lib.Virtual() || hidden(name) || seen[name] {
			continue
		}
		content, err := lib.Read()
		if err != nil {
			return nil, fmt.Errorf("generating %s: %w", lib.Path(), err)
		}
		blocks = append(blocks, block{name: name, content: banner(name) + "\n" + content})
		seen[name] = true
	}
	return blocks, nil
}

func banner(name string) string {
	sep := strings.Repeat("-", len(name))
	return fmt.Sprintf("//---%s----//\n//  %s.js  //\n//---%s----//\n", sep, name, sep)
}

func hidden(define string) bool {
	for _, segment := range strings.Split(define, "/") {
		if strings.HasPrefix(segment, "_") {
			return true
		}
	}
	return false
}

// Build bundles every visible library with the optimizer and appends the
// loader configuration.
func (b *Builder) Build(ctx context.Context, minify bool) (string, error) {
	libs, err := b.source.Libraries(ctx)
	if err != nil {
		return "", err
	}
	conf, err := b.loaderConfig(ctx, libs)
	if err != nil {
		return "", err
	}
	blocks, err := b.blocks(libs)
	if err != nil {
		return "", err
	}

	script, err := b.optimizerScript(blocks, conf, minify)
	if err != nil {
		return "", err
	}
	b.logger.Debug("building bundle", "blocks", len(blocks), "minify", minify)

	bundled, err := b.optimizer.Optimize(ctx, script)
	if err != nil {
		return "", err
	}
	rendered, err := renderConfig(conf)
	if err != nil {
		return "", err
	}
	return bundled + rendered, nil
}

func (b *Builder) optimizerScript(blocks []block, conf *core.LoaderConfig, minify bool) (string, error) {
	rawText := orderedmap.New[string, string]()
	include := make([]string, 0, len(blocks))
	for _, blk := range blocks {
		rawText.Set(blk.name, blk.content)
		include = append(include, blk.name)
	}
	sort.Strings(include)

	optimize := "none"
	if minify {
		optimize = "uglify"
	}

	payload := core.NewLoaderConfig()
	payload.Set("rawText", rawText)
	payload.Set("out", "stdout")
	payload.Set("optimize", optimize)
	payload.Set("include", include)
	core.MergeLoaderConfig(payload, conf)
	payload.Set("baseUrl", b.source.Root())

	data, err := marshal(payload)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`require("requirejs").optimize(%s, function (result) {
    String(result).split("\n").forEach(function (line) {
        if (line.trim()) {
            console.warn(%q + " " + line);
        }
    });
}, function (err) {
    console.warn(err);
    process.exit(1);
});
`, data, warnPrefix), nil
}

// Fingerprint hashes the sources that make up a bundle. It changes whenever
// a source changes, without running the optimizer.
func (b *Builder) Fingerprint(ctx context.Context) (string, error) {
	libs, err := b.source.Libraries(ctx)
	if err != nil {
		return "", err
	}
	blocks, err := b.blocks(libs)
	if err != nil {
		return "", err
	}

	h := blake3.New()
	for _, blk := range blocks {
		sum := blake3.Sum256([]byte(blk.content))
		_, _ = h.Write([]byte(hex.EncodeToString(sum[:])))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Register adds the standalone loader, the loader runtime and the bundle to
// a host. Each renders on demand with ctx.
func (b *Builder) Register(ctx context.Context, reg VirtualRegistrar, minify bool) {
	reg.RegisterVirtual(LoaderPath, func() (string, error) {
		return b.RenderLoader(ctx)
	}, nil)
	reg.RegisterVirtual(RuntimePath, func() (string, error) {
		return b.withConfig(ctx, b.runtime)
	}, nil)
	reg.RegisterVirtual(BundlePath, func() (string, error) {
		return b.Build(ctx, minify)
	}, func() (string, error) {
		return b.Fingerprint(ctx)
	})
}

// RenderLoader returns the standalone loader followed by the configuration
// script.
func (b *Builder) RenderLoader(ctx context.Context) (string, error) {
	return b.withConfig(ctx, b.loader)
}

func (b *Builder) withConfig(ctx context.Context, src string) (string, error) {
	if src == "" {
		return "", core.ErrNoRuntime
	}
	conf, err := b.RenderConfig(ctx)
	if err != nil {
		return "", err
	}
	return src + conf, nil
}
