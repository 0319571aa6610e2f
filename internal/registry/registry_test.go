package registry

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-pkgs/jslib/fetch"
	"github.com/git-pkgs/jslib/internal/core"
	"github.com/git-pkgs/jslib/internal/metacache"
	"github.com/git-pkgs/jslib/internal/npm"
	"github.com/git-pkgs/jslib/internal/output"
)

const root = "/srv/js"

type staticSource map[string]*core.Descriptor

func (s staticSource) Descriptor(_ context.Context, name, version string) (*core.Descriptor, error) {
	if version == "" {
		version = npm.Latest
	}
	desc, ok := s[name+"@"+version]
	if !ok {
		return nil, &core.DescriptorError{Name: name, Version: version, Err: core.ErrNotFound}
	}
	return desc, nil
}

func writeFiles(t *testing.T, fsys afero.Fs, files map[string]string) {
	t.Helper()
	for p, content := range files {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, fsys.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, afero.WriteFile(fsys, full, []byte(content), 0o644))
	}
}

func newTestRegistry(fsys afero.Fs, source core.DescriptorSource, opts ...Option) *Registry {
	opts = append([]Option{WithLogger(output.Discard())}, opts...)
	return New(fsys, root, source, opts...)
}

func TestTraverse(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, map[string]string{
		"_internal/helper.js": "",
		"widgets/button.js":   "",
		"_top.js":             "",
		"widgets/readme.txt":  "",
	})
	r := newTestRegistry(fsys, staticSource{})

	visible, err := r.Traverse(false)
	require.NoError(t, err)
	assert.Equal(t, []string{"widgets/button.js"}, visible)

	all, err := r.Traverse(true)
	require.NoError(t, err)
	assert.Equal(t, []string{"_internal/helper.js", "_top.js", "widgets/button.js"}, all)
}

func symlink(t *testing.T, target, link string) {
	t.Helper()
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
}

func TestTraverseFollowsSymlinkedDirs(t *testing.T) {
	base := t.TempDir()
	libRoot := filepath.Join(base, "js")
	shared := filepath.Join(base, "shared")
	require.NoError(t, os.MkdirAll(filepath.Join(shared, "sub"), 0o755))
	require.NoError(t, os.MkdirAll(libRoot, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(libRoot, "app.js"), []byte("// app@1.0.0\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(shared, "lib.js"), []byte("// lib@2.0.0\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(shared, "sub", "x.js"), []byte(""), 0o644))

	symlink(t, "../shared", filepath.Join(libRoot, "vendor"))
	symlink(t, shared, filepath.Join(libRoot, "_private"))
	symlink(t, ".", filepath.Join(libRoot, "loop"))
	symlink(t, "..", filepath.Join(shared, "sub", "up"))

	r := New(afero.NewOsFs(), libRoot, staticSource{}, WithLogger(output.Discard()))

	visible, err := r.Traverse(false)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.js", "vendor/lib.js", "vendor/sub/x.js"}, visible)

	all, err := r.Traverse(true)
	require.NoError(t, err)
	assert.Equal(t, []string{"_private/lib.js", "_private/sub/x.js", "app.js", "vendor/lib.js", "vendor/sub/x.js"}, all)

	libs, err := r.Libraries(context.Background())
	require.NoError(t, err)
	var defines []string
	for _, lib := range libs {
		defines = append(defines, lib.Define())
	}
	assert.Equal(t, []string{"_private/lib", "app", "vendor/lib"}, defines)

	linkedRoot := filepath.Join(base, "current")
	symlink(t, libRoot, linkedRoot)
	visible, err = New(afero.NewOsFs(), linkedRoot, staticSource{}).Traverse(false)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.js", "vendor/lib.js", "vendor/sub/x.js"}, visible)
}

type fakeHost struct {
	paths    []string
	rendered map[string]string
}

func (h *fakeHost) Paths(includeHidden bool) ([]string, error) {
	var out []string
	for _, p := range h.paths {
		if !includeHidden && strings.Contains("/"+p, "/_") {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (h *fakeHost) Render(path string) (string, error) {
	content, ok := h.rendered[path]
	if !ok {
		return "", os.ErrNotExist
	}
	return content, nil
}

func TestTraverseHost(t *testing.T) {
	host := &fakeHost{paths: []string{"!require.js", "lib/a.js", "lib/_b.js", "app.js", "library/c.js"}}

	tests := []struct {
		name          string
		prefix        string
		includeHidden bool
		want          []string
	}{
		{"no prefix", "", true, []string{"lib/a.js", "lib/_b.js", "app.js", "library/c.js"}},
		{"prefix", "lib", true, []string{"a.js", "_b.js"}},
		{"prefix with slash", "lib/", false, []string{"a.js"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(afero.NewMemMapFs(), staticSource{}, WithHost(host, tt.prefix))
			got, err := r.Traverse(tt.includeHidden)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderHost(t *testing.T) {
	host := &fakeHost{rendered: map[string]string{"lib/a.js": "rendered a"}}
	r := newTestRegistry(afero.NewMemMapFs(), staticSource{}, WithHost(host, "lib"))

	got, err := r.Render("a.js")
	require.NoError(t, err)
	assert.Equal(t, "rendered a", got)
}

func TestLibraries(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, map[string]string{
		"vendor/jquery.js":     "// jquery@3.7.1\n(function(){})();\n",
		"_hidden/util.js":      "//   util@0.1.0\r\n",
		"scoped.js":            "// @scope/pkg@2.0.0",
		"app.js":               "define(function(){});\n",
		"broken.js":            "// nover\n",
		"vendor/underscore.js": "// underscore@1.13.6\n",
	})
	r := newTestRegistry(fsys, staticSource{})
	deps := core.NewDependencies()
	deps.Set("jquery", "*")
	r.RegisterVirtual("_generated", "1.0.0", deps, func() (string, error) { return "x", nil })

	libs, err := r.Libraries(context.Background())
	require.NoError(t, err)

	var got []string
	for _, lib := range libs {
		got = append(got, fmt.Sprintf("%s@%s %s", lib.Name(), lib.Version(), lib.Define()))
	}
	assert.Equal(t, []string{
		"util@0.1.0 _hidden/util",
		"@scope/pkg@2.0.0 scoped",
		"jquery@3.7.1 vendor/jquery",
		"underscore@1.13.6 vendor/underscore",
		"_generated@1.0.0 _generated",
	}, got)

	last := libs[len(libs)-1]
	assert.True(t, last.Virtual())
	assert.Equal(t, "", last.File())
	assert.Equal(t, filepath.Join(root, "vendor", "jquery.js"), libs[2].File())
}

type vanishingFs struct {
	afero.Fs
	gone string
}

func (v *vanishingFs) Open(name string) (afero.File, error) {
	if name == v.gone {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return v.Fs.Open(name)
}

func TestLibrariesSkipsVanishedFiles(t *testing.T) {
	mem := afero.NewMemMapFs()
	writeFiles(t, mem, map[string]string{
		"a.js": "// a@1.0.0\n",
		"b.js": "// b@1.0.0\n",
	})
	fsys := &vanishingFs{Fs: mem, gone: filepath.Join(root, "a.js")}

	libs, err := newTestRegistry(fsys, staticSource{}).Libraries(context.Background())
	require.NoError(t, err)
	require.Len(t, libs, 1)
	assert.Equal(t, "b", libs[0].Name())
}

func TestGet(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, map[string]string{"jq.js": "// jquery@3.7.1\n"})
	r := newTestRegistry(fsys, staticSource{})

	lib, err := r.Get(context.Background(), "jquery")
	require.NoError(t, err)
	assert.Equal(t, "jq", lib.Define())

	_, err = r.Get(context.Background(), "lodash")
	var notInstalled *core.NotInstalledError
	require.True(t, errors.As(err, &notInstalled))
	assert.Equal(t, "lodash", notInstalled.Name)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestOutdated(t *testing.T) {
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, map[string]string{
		"a.js": "// a@1.0.0\n",
		"b.js": "// b@2.0.0\n",
	})
	source := staticSource{
		"a@latest": {Name: "a", Version: "1.1.0"},
		"b@latest": {Name: "b", Version: "2.0.0"},
	}
	r := newTestRegistry(fsys, source)
	r.RegisterVirtual("v", "0.0.1", nil, nil)

	outdated, err := r.Outdated(context.Background())
	require.NoError(t, err)
	require.Len(t, outdated, 1)
	assert.Equal(t, "a", outdated[0].Library.Name())
	assert.Equal(t, "1.1.0", outdated[0].Newest)
}

type packageServer struct {
	server  *httptest.Server
	version string
	main    string
	tgz     []byte
}

func buildTarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, name := range names {
		content := files[name]
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     "package/" + name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func newPackageServer(t *testing.T, version, main string, files map[string]string) *packageServer {
	t.Helper()
	p := &packageServer{version: version, main: main, tgz: buildTarball(t, files)}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tgz := p.tgz
		switch r.URL.Path {
		case "/widget/latest", "/widget/" + p.version:
			sum := sha512.Sum512(tgz)
			fmt.Fprintf(w, `{"name":"widget","version":%q,"main":%q,"dist":{"tarball":%q,"integrity":"sha512-%s"}}`,
				p.version, p.main, p.server.URL+"/widget/-/widget-"+p.version+".tgz",
				base64.StdEncoding.EncodeToString(sum[:]))
		case "/widget/-/widget-" + p.version + ".tgz":
			_, _ = w.Write(tgz)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(p.server.Close)
	return p
}

func newInstallRegistry(fsys afero.Fs, p *packageServer) *Registry {
	f := fetch.NewFetcher(fetch.WithMaxRetries(0))
	cache := metacache.New(afero.NewMemMapFs(), "/cache", f,
		metacache.WithRegistry(p.server.URL),
		metacache.WithLogger(output.Discard()),
		metacache.WithTTL(0),
	)
	return newTestRegistry(fsys, cache, WithFetcher(f), WithResolver(fetch.NewResolver(npm.NewURLs(p.server.URL))))
}

func TestInstall(t *testing.T) {
	p := newPackageServer(t, "1.2.0", "dist/widget.min.js", map[string]string{
		"dist/widget.min.js": "define(function(){return 1});",
		"dist/widget.js":     "define(function () {\n  return 1;\n});\n",
	})
	fsys := afero.NewMemMapFs()
	r := newInstallRegistry(fsys, p)

	lib, err := r.Install(context.Background(), "widget", InstallOptions{Define: "vendor/widget.js", PatchDefine: true})
	require.NoError(t, err)
	assert.Equal(t, "vendor/widget", lib.Define())
	assert.Equal(t, "1.2.0", lib.Version())

	content, err := afero.ReadFile(fsys, filepath.Join(root, "vendor", "widget.js"))
	require.NoError(t, err)
	assert.Equal(t, "// widget@1.2.0\ndefine(\"vendor/widget\", function () {\n  return 1;\n});\n", string(content))

	installed, err := r.Get(context.Background(), "widget")
	require.NoError(t, err)
	assert.Equal(t, "vendor/widget", installed.Define())
}

func TestInstallDefaultsDefineToName(t *testing.T) {
	p := newPackageServer(t, "1.0.0", "index.js", map[string]string{"index.js": "var widget = {};\n"})
	fsys := afero.NewMemMapFs()

	lib, err := newInstallRegistry(fsys, p).Install(context.Background(), "widget", InstallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "widget.js", lib.Path())

	content, err := afero.ReadFile(fsys, filepath.Join(root, "widget.js"))
	require.NoError(t, err)
	assert.Equal(t, "// widget@1.0.0\nvar widget = {};\n", string(content))
}

func TestInstallPatchFailureWritesNothing(t *testing.T) {
	p := newPackageServer(t, "1.0.0", "index.js", map[string]string{"index.js": "var widget = {};\n"})
	fsys := afero.NewMemMapFs()

	_, err := newInstallRegistry(fsys, p).Install(context.Background(), "widget", InstallOptions{PatchDefine: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNoDefineCall))

	exists, err := afero.Exists(fsys, filepath.Join(root, "widget.js"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInstallNoEntry(t *testing.T) {
	p := newPackageServer(t, "1.0.0", "missing.js", map[string]string{"index.js": "x"})

	_, err := newInstallRegistry(afero.NewMemMapFs(), p).Install(context.Background(), "widget", InstallOptions{})
	assert.True(t, errors.Is(err, core.ErrNoEntry))
}

func TestUpgrade(t *testing.T) {
	p := newPackageServer(t, "2.0.0", "index.js", map[string]string{"index.js": "define([], function(){});\n"})
	fsys := afero.NewMemMapFs()
	writeFiles(t, fsys, map[string]string{"lib/widget.js": "// widget@1.0.0\nold\n"})
	r := newInstallRegistry(fsys, p)

	lib, changed, err := r.Upgrade(context.Background(), "widget", false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "2.0.0", lib.Version())
	assert.Equal(t, "lib/widget", lib.Define())

	content, err := afero.ReadFile(fsys, filepath.Join(root, "lib", "widget.js"))
	require.NoError(t, err)
	assert.Equal(t, "// widget@2.0.0\ndefine([], function(){});\n", string(content))

	_, changed, err = r.Upgrade(context.Background(), "widget", false)
	require.NoError(t, err)
	assert.False(t, changed)
}
