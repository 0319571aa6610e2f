package npm

import (
	"archive/tar"
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/git-pkgs/jslib/internal/core"
)

// packageRoot is the directory every entry of an npm tarball lives in.
const packageRoot = "package"

// Tarball holds the regular files of a package tarball, keyed by their path
// relative to the package root.
type Tarball struct {
	files map[string][]byte
}

// ReadTarball reads a gzip-compressed or plain tar archive.
func ReadTarball(r io.Reader) (*Tarball, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer func() { _ = gz.Close() }()
		src = gz
	}

	t := &Tarball{files: make(map[string][]byte)}
	tr := tar.NewReader(src)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tarball: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", hdr.Name, err)
		}
		name := path.Clean(strings.TrimPrefix(hdr.Name, "./"))
		rel, ok := strings.CutPrefix(name, packageRoot+"/")
		if !ok {
			continue
		}
		t.files[rel] = data
	}
	return t, nil
}

// File returns the content of the file at p, relative to the package root.
func (t *Tarball) File(p string) ([]byte, bool) {
	data, ok := t.files[path.Clean(p)]
	return data, ok
}

// Len returns the number of files in the tarball.
func (t *Tarball) Len() int {
	return len(t.files)
}

type bowerDescriptor struct {
	Browser interface{} `json:"browser"`
	Main    interface{} `json:"main"`
}

// EntryPoint locates the script to install from a package. The path comes
// from the descriptor's browser field, then bower.json's browser and main
// fields, then the descriptor's main field. When the path names a minified
// file, an unminified sibling is preferred if the tarball has one.
func EntryPoint(desc *core.Descriptor, t *Tarball) (string, []byte, error) {
	p := desc.Browser
	if p == "" {
		if data, ok := t.File("bower.json"); ok {
			var bower bowerDescriptor
			if err := json.Unmarshal(data, &bower); err != nil {
				return "", nil, fmt.Errorf("parsing bower.json: %w", err)
			}
			p = bowerPath(bower.Browser)
			if p == "" {
				p = bowerPath(bower.Main)
			}
		}
	}
	if p == "" {
		p = desc.Main
	}
	if p == "" {
		return "", nil, fmt.Errorf("%s@%s: %w", desc.Name, desc.Version, core.ErrNoEntry)
	}

	p = path.Clean(p)
	if strings.HasSuffix(p, ".min.js") || strings.HasSuffix(p, "-min.js") {
		unminified := p[:len(p)-len(".min.js")] + ".js"
		if data, ok := t.File(unminified); ok {
			return unminified, data, nil
		}
	}
	if data, ok := t.File(p); ok {
		return p, data, nil
	}
	// "main" is commonly given without its extension.
	if !strings.HasSuffix(p, ".js") {
		if data, ok := t.File(p + ".js"); ok {
			return p + ".js", data, nil
		}
	}
	return "", nil, fmt.Errorf("%s@%s: %s: %w", desc.Name, desc.Version, p, core.ErrNoEntry)
}

// bowerPath handles bower's main field, which may list several files.
func bowerPath(v interface{}) string {
	switch m := v.(type) {
	case string:
		return m
	case []interface{}:
		for _, item := range m {
			if s, ok := item.(string); ok && strings.HasSuffix(s, ".js") {
				return s
			}
		}
	}
	return ""
}
