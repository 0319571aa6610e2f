package npm

import (
	"archive/tar"
	"bytes"
	"errors"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-pkgs/jslib/internal/core"
)

func buildTarball(t *testing.T, gzipped bool, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var tw *tar.Writer
	var gz *gzip.Writer
	if gzipped {
		gz = gzip.NewWriter(&buf)
		tw = tar.NewWriter(gz)
	} else {
		tw = tar.NewWriter(&buf)
	}
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	if gz != nil {
		require.NoError(t, gz.Close())
	}
	return buf.Bytes()
}

func TestParseDescriptor(t *testing.T) {
	data := []byte(`{
		"name": "backbone",
		"version": "1.6.0",
		"main": "backbone.js",
		"license": {"type": "MIT"},
		"dist": {"tarball": "https://registry.npmjs.org/backbone/-/backbone-1.6.0.tgz", "integrity": "sha512-abc"},
		"dependencies": {"underscore": ">=1.8.3", "jquery": "^3.0.0", "requirejs": "*"},
		"peerDependencies": {"lodash": "^4", "jquery": "^2.0.0"}
	}`)

	desc, err := ParseDescriptor(data)
	require.NoError(t, err)

	assert.Equal(t, "backbone", desc.Name)
	assert.Equal(t, "1.6.0", desc.Version)
	assert.Equal(t, "backbone.js", desc.Main)
	assert.Equal(t, "MIT", desc.License)
	assert.Equal(t, "https://registry.npmjs.org/backbone/-/backbone-1.6.0.tgz", desc.Dist.Tarball)
	assert.Equal(t, data, desc.Raw)

	deps := desc.DeclaredDependencies()
	var names, ranges []string
	for pair := deps.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
		ranges = append(ranges, pair.Value)
	}
	assert.Equal(t, []string{"underscore", "jquery", "lodash"}, names)
	assert.Equal(t, []string{">=1.8.3", "^2.0.0", "^4"}, ranges)
}

func TestParseDescriptorBrowserObject(t *testing.T) {
	desc, err := ParseDescriptor([]byte(`{"name": "x", "version": "1.0.0", "browser": {"./node.js": "./browser.js"}}`))
	require.NoError(t, err)
	assert.Empty(t, desc.Browser)
	assert.Equal(t, 0, desc.DeclaredDependencies().Len())
}

func TestParseDescriptorMalformed(t *testing.T) {
	_, err := ParseDescriptor([]byte(`{"name": `))
	assert.Error(t, err)
}

func TestDescriptorURL(t *testing.T) {
	tests := []struct {
		name, pkg, version, want string
	}{
		{"latest", "jquery", "", "https://registry.npmjs.org/jquery/latest"},
		{"pinned", "jquery", "3.7.1", "https://registry.npmjs.org/jquery/3.7.1"},
		{"scoped", "@babel/core", "7.24.0", "https://registry.npmjs.org/@babel%2Fcore/7.24.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DescriptorURL(DefaultURL+"/", tt.pkg, tt.version))
		})
	}
}

func TestURLBuilder(t *testing.T) {
	urls := NewURLs("")

	tests := []struct {
		name     string
		fn       func() string
		expected string
	}{
		{"registry", func() string { return urls.Registry("lodash", "4.17.21") }, "https://www.npmjs.com/package/lodash/v/4.17.21"},
		{"download", func() string { return urls.Download("lodash", "4.17.21") }, "https://registry.npmjs.org/lodash/-/lodash-4.17.21.tgz"},
		{"scoped download", func() string { return urls.Download("@babel/core", "7.24.0") }, "https://registry.npmjs.org/@babel/core/-/core-7.24.0.tgz"},
		{"purl", func() string { return urls.PURL("lodash", "4.17.21") }, "pkg:npm/lodash@4.17.21"},
		{"scoped purl", func() string { return urls.PURL("@babel/core", "7.24.0") }, "pkg:npm/@babel/core@7.24.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.fn())
		})
	}
}

func TestReadTarball(t *testing.T) {
	files := map[string]string{
		"package/package.json":  `{}`,
		"package/dist/index.js": "define([], 1);",
		"other/ignored.js":      "x",
	}
	for _, gzipped := range []bool{true, false} {
		tb, err := ReadTarball(bytes.NewReader(buildTarball(t, gzipped, files)))
		require.NoError(t, err)
		assert.Equal(t, 2, tb.Len())

		data, ok := tb.File("./dist/index.js")
		require.True(t, ok)
		assert.Equal(t, "define([], 1);", string(data))
	}
}

func TestEntryPoint(t *testing.T) {
	tests := []struct {
		name     string
		desc     core.Descriptor
		files    map[string]string
		wantPath string
	}{
		{
			name:     "browser wins over main",
			desc:     core.Descriptor{Browser: "browser.js", Main: "main.js"},
			files:    map[string]string{"package/browser.js": "b", "package/main.js": "m"},
			wantPath: "browser.js",
		},
		{
			name: "bower browser before main",
			desc: core.Descriptor{Main: "main.js"},
			files: map[string]string{
				"package/bower.json":       `{"browser": "bower-browser.js", "main": "bower-main.js"}`,
				"package/bower-browser.js": "bb",
				"package/main.js":          "m",
			},
			wantPath: "bower-browser.js",
		},
		{
			name: "bower main list",
			desc: core.Descriptor{Main: "main.js"},
			files: map[string]string{
				"package/bower.json":  `{"main": ["dist/style.css", "./dist/lib.js"]}`,
				"package/dist/lib.js": "l",
			},
			wantPath: "dist/lib.js",
		},
		{
			name:     "main fallback",
			desc:     core.Descriptor{Main: "./lib/index.js"},
			files:    map[string]string{"package/lib/index.js": "i"},
			wantPath: "lib/index.js",
		},
		{
			name:     "main without extension",
			desc:     core.Descriptor{Main: "lib/index"},
			files:    map[string]string{"package/lib/index.js": "i"},
			wantPath: "lib/index.js",
		},
		{
			name:     "unminified sibling preferred",
			desc:     core.Descriptor{Main: "dist/lib.min.js"},
			files:    map[string]string{"package/dist/lib.min.js": "min", "package/dist/lib.js": "full"},
			wantPath: "dist/lib.js",
		},
		{
			name:     "dash min suffix",
			desc:     core.Descriptor{Main: "lib-min.js"},
			files:    map[string]string{"package/lib-min.js": "min", "package/lib.js": "full"},
			wantPath: "lib.js",
		},
		{
			name:     "minified used when no sibling",
			desc:     core.Descriptor{Main: "dist/lib.min.js"},
			files:    map[string]string{"package/dist/lib.min.js": "min"},
			wantPath: "dist/lib.min.js",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb, err := ReadTarball(bytes.NewReader(buildTarball(t, true, tt.files)))
			require.NoError(t, err)

			p, data, err := EntryPoint(&tt.desc, tb)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, p)
			assert.Equal(t, tt.files["package/"+tt.wantPath], string(data))
		})
	}
}

func TestEntryPointMissing(t *testing.T) {
	tb, err := ReadTarball(bytes.NewReader(buildTarball(t, true, map[string]string{"package/a.js": "a"})))
	require.NoError(t, err)

	_, _, err = EntryPoint(&core.Descriptor{Name: "x", Version: "1.0.0"}, tb)
	assert.True(t, errors.Is(err, core.ErrNoEntry))

	_, _, err = EntryPoint(&core.Descriptor{Name: "x", Version: "1.0.0", Main: "missing.js"}, tb)
	assert.True(t, errors.Is(err, core.ErrNoEntry))
}
