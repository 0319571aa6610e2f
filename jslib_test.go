package jslib_test

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/git-pkgs/jslib"
	"github.com/git-pkgs/jslib/fetch"
	"github.com/git-pkgs/jslib/internal/output"
)

type fakeOptimizer struct {
	calls int
}

func (o *fakeOptimizer) Optimize(_ context.Context, script string) (string, error) {
	o.calls++
	return "/* bundled */\n", nil
}

func tarball(files map[string]string, order ...string) []byte {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, name := range order {
		content := files[name]
		_ = tw.WriteHeader(&tar.Header{Name: "package/" + name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg})
		_, _ = tw.Write([]byte(content))
	}
	_ = tw.Close()
	return buf.Bytes()
}

// registryServer serves two packages: "jquery" and "jquery-ui", which
// depends on jquery.
func registryServer(t *testing.T) *httptest.Server {
	t.Helper()
	jquery := tarball(map[string]string{"dist/jquery.js": "define(function(){ return {}; });\n"}, "dist/jquery.js")
	ui := tarball(map[string]string{"ui.js": "define(['jquery'], function($){});\n"}, "ui.js")

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/jquery/latest", "/jquery/3.7.1":
			fmt.Fprintf(w, `{"name":"jquery","version":"3.7.1","main":"dist/jquery.js","dist":{"tarball":"%s/jquery.tgz"}}`, server.URL)
		case "/jquery-ui/latest", "/jquery-ui/1.13.2":
			fmt.Fprintf(w, `{"name":"jquery-ui","version":"1.13.2","main":"ui.js","dependencies":{"jquery":">=1.8.0","requirejs":"*"},"peerDependencies":{"widgets":"^1"},"dist":{"tarball":"%s/ui.tgz"}}`, server.URL)
		case "/jquery.tgz":
			_, _ = w.Write(jquery)
		case "/ui.tgz":
			_, _ = w.Write(ui)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func openTestModule(t *testing.T, server *httptest.Server, opt jslib.Optimizer) (*jslib.Module, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	if err := fsys.MkdirAll("/srv/js", 0o755); err != nil {
		t.Fatal(err)
	}
	mod, err := jslib.Open(jslib.Options{
		Fs:        fsys,
		RootDir:   "/srv/js",
		CacheDir:  "/cache",
		Registry:  server.URL,
		Runtime:   "/* almond */",
		Optimizer: opt,
		Fetcher:   fetch.NewCircuitBreakerFetcher(fetch.NewFetcher(fetch.WithMaxRetries(0)), 0),
		Logger:    output.Discard(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return mod, fsys
}

func TestOpenRequiresRoot(t *testing.T) {
	if _, err := jslib.Open(jslib.Options{}); err == nil {
		t.Fatal("expected error without a root directory")
	}
}

func TestModule(t *testing.T) {
	ctx := context.Background()
	opt := &fakeOptimizer{}
	mod, fsys := openTestModule(t, registryServer(t), opt)

	if _, err := mod.Install(ctx, "jquery", jslib.InstallOptions{Define: "vendor/jquery", PatchDefine: true}); err != nil {
		t.Fatalf("install jquery: %v", err)
	}
	if _, err := mod.Install(ctx, "jquery-ui", jslib.InstallOptions{}); err != nil {
		t.Fatalf("install jquery-ui: %v", err)
	}

	content, err := afero.ReadFile(fsys, "/srv/js/vendor/jquery.js")
	if err != nil {
		t.Fatal(err)
	}
	if want := "// jquery@3.7.1\ndefine(\"vendor/jquery\", function(){ return {}; });\n"; string(content) != want {
		t.Errorf("installed content = %q, want %q", content, want)
	}

	libs, err := mod.Libraries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(libs) != 2 {
		t.Fatalf("expected 2 libraries, got %d", len(libs))
	}

	conf, err := mod.RenderConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(conf, `requireAlmond.config({"map":{"jquery-ui":{"jquery":"vendor/jquery"}},"baseUrl":"/js/"});`) {
		t.Errorf("unexpected config: %s", conf)
	}

	missing, err := mod.Missing(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 1 || missing[0].Dependency != "widgets" || missing[0].Range != "^1" {
		t.Errorf("unexpected missing dependencies: %+v", missing)
	}

	bundled, err := mod.Build(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(bundled, "/* bundled */\n") || !strings.HasSuffix(bundled, conf) {
		t.Errorf("unexpected bundle: %s", bundled)
	}
	if opt.calls != 1 {
		t.Errorf("optimizer called %d times", opt.calls)
	}

	outdated, err := mod.Outdated(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(outdated) != 0 {
		t.Errorf("expected nothing outdated, got %+v", outdated)
	}

	lib, err := mod.Get(ctx, "jquery-ui")
	if err != nil {
		t.Fatal(err)
	}
	purl := mod.PackageURL(lib)
	if purl != "pkg:npm/jquery-ui@1.13.2" {
		t.Errorf("PackageURL = %q", purl)
	}
	if _, err := jslib.ParsePURL(purl); err != nil {
		t.Errorf("ParsePURL(%q): %v", purl, err)
	}
}

func TestModuleNotInstalled(t *testing.T) {
	mod, _ := openTestModule(t, registryServer(t), &fakeOptimizer{})

	_, err := mod.Get(context.Background(), "lodash")
	var notInstalled *jslib.NotInstalledError
	if !errors.As(err, &notInstalled) || !errors.Is(err, jslib.ErrNotFound) {
		t.Fatalf("expected NotInstalledError, got %v", err)
	}
}

func TestModuleUnknownPackage(t *testing.T) {
	mod, _ := openTestModule(t, registryServer(t), &fakeOptimizer{})

	_, err := mod.Install(context.Background(), "does-not-exist", jslib.InstallOptions{})
	if !errors.Is(err, jslib.ErrDescriptorUnavailable) {
		t.Fatalf("expected ErrDescriptorUnavailable, got %v", err)
	}
}
