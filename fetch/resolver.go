package fetch

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"

	"github.com/git-pkgs/jslib/client"
	"github.com/git-pkgs/jslib/internal/core"
)

var (
	ErrNoDownloadURL     = errors.New("no download URL available")
	ErrIntegrityMismatch = errors.New("integrity check failed")
)

// Resolver determines tarball URLs for package versions.
type Resolver struct {
	urls client.URLBuilder
}

// NewResolver creates a resolver that falls back to urls when a descriptor
// does not name its tarball.
func NewResolver(urls client.URLBuilder) *Resolver {
	return &Resolver{urls: urls}
}

// ArtifactInfo contains information about a downloadable tarball.
type ArtifactInfo struct {
	URL       string
	Filename  string
	Integrity string // sha512-..., sha1-... or a bare hex sha1
}

// Resolve returns the tarball location for desc.
func (r *Resolver) Resolve(desc *core.Descriptor) (*ArtifactInfo, error) {
	integrity := desc.Dist.Integrity
	if integrity == "" {
		integrity = desc.Dist.Shasum
	}

	url := desc.Dist.Tarball
	if url == "" && r.urls != nil {
		url = r.urls.Download(desc.Name, desc.Version)
	}
	if url == "" {
		return nil, fmt.Errorf("%s@%s: %w", desc.Name, desc.Version, ErrNoDownloadURL)
	}

	return &ArtifactInfo{
		URL:       url,
		Filename:  filenameFromURL(url),
		Integrity: integrity,
	}, nil
}

// Download fetches the tarball and verifies its integrity.
func (r *Resolver) Download(ctx context.Context, f FetcherInterface, info *ArtifactInfo) ([]byte, error) {
	data, err := ReadAll(ctx, f, info.URL)
	if err != nil {
		return nil, err
	}
	if err := info.Verify(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Verify checks data against the artifact's integrity string. Unknown
// algorithms and empty integrity strings are accepted.
func (a *ArtifactInfo) Verify(data []byte) error {
	if a.Integrity == "" {
		return nil
	}

	algo, digest, ok := strings.Cut(a.Integrity, "-")
	if !ok {
		// Bare hex sha1 from the legacy "shasum" field.
		sum := sha1.Sum(data)
		if !strings.EqualFold(hex.EncodeToString(sum[:]), a.Integrity) {
			return fmt.Errorf("%s: %w", a.Filename, ErrIntegrityMismatch)
		}
		return nil
	}

	var h hash.Hash
	switch algo {
	case "sha512":
		h = sha512.New()
	case "sha256":
		h = sha256.New()
	case "sha1":
		h = sha1.New()
	default:
		return nil
	}
	h.Write(data)
	if base64.StdEncoding.EncodeToString(h.Sum(nil)) != digest {
		return fmt.Errorf("%s: %w", a.Filename, ErrIntegrityMismatch)
	}
	return nil
}

func filenameFromURL(url string) string {
	if idx := strings.LastIndex(url, "/"); idx >= 0 {
		return url[idx+1:]
	}
	return url
}
