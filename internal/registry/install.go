package registry

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/git-pkgs/jslib/internal/core"
	"github.com/git-pkgs/jslib/internal/npm"
	"github.com/git-pkgs/jslib/internal/patch"
)

// InstallOptions controls how a package is installed.
type InstallOptions struct {
	// Define is the module id to install under. It defaults to the package
	// name. A trailing ".js" is ignored.
	Define string

	// PatchDefine rewrites the script's define() call to name Define
	// explicitly.
	PatchDefine bool
}

// Install downloads the newest version of pkg and writes its entry script to
// <root>/<define>.js, replacing any existing file. Install is not atomic: a
// failure while writing can leave a partial file behind.
func (r *Registry) Install(ctx context.Context, pkg string, opts InstallOptions) (core.Library, error) {
	define := strings.TrimSuffix(opts.Define, scriptExt)
	if define == "" {
		define = pkg
	}

	desc, err := r.source.Descriptor(ctx, pkg, "")
	if err != nil {
		return nil, err
	}

	info, err := r.resolver.Resolve(desc)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("downloading tarball", "package", pkg, "version", desc.Version, "url", info.URL)

	data, err := r.resolver.Download(ctx, r.fetcher, info)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", info.Filename, err)
	}

	tarball, err := npm.ReadTarball(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", info.Filename, err)
	}

	entry, content, err := npm.EntryPoint(desc, tarball)
	if err != nil {
		return nil, err
	}

	src := string(content)
	if opts.PatchDefine {
		src, err = patch.InjectDefine(src, define)
		if err != nil {
			return nil, fmt.Errorf("patching %s: %w", entry, err)
		}
	}

	header := core.Header{Name: pkg, Version: desc.Version}
	path := define + scriptExt
	file := r.file(path)
	if err := r.fs.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}
	if err := r.writeLibrary(file, header, src); err != nil {
		return nil, err
	}

	r.logger.Info("installed", "package", pkg, "version", desc.Version, "entry", entry, "path", path)
	return core.NewFileLibrary(r.fs, r.root, path, header, r.source), nil
}

func (r *Registry) writeLibrary(file string, header core.Header, src string) error {
	f, err := r.fs.Create(file)
	if err != nil {
		return fmt.Errorf("creating %s: %w", file, err)
	}
	defer f.Close()

	if _, err := f.WriteString(header.String() + "\n"); err != nil {
		return fmt.Errorf("writing %s: %w", file, err)
	}
	if _, err := f.WriteString(src); err != nil {
		return fmt.Errorf("writing %s: %w", file, err)
	}
	return f.Close()
}

// Upgrade reinstalls the library named name, keeping its define id, when a
// newer version is published. It reports whether the library changed.
func (r *Registry) Upgrade(ctx context.Context, name string, patchDefine bool) (core.Library, bool, error) {
	lib, err := r.Get(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if lib.Virtual() {
		return lib, false, nil
	}

	newest, err := lib.NewestVersion(ctx)
	if err != nil {
		return nil, false, err
	}
	if newest == lib.Version() {
		r.logger.Debug("already up to date", "package", name, "version", newest)
		return lib, false, nil
	}

	upgraded, err := r.Install(ctx, lib.Name(), InstallOptions{
		Define:      lib.Define(),
		PatchDefine: patchDefine,
	})
	if err != nil {
		return nil, false, err
	}
	return upgraded, true, nil
}
