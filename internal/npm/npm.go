// Package npm reads npm registry descriptors and package tarballs.
package npm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/git-pkgs/jslib/internal/core"
)

const (
	DefaultURL = "https://registry.npmjs.org"
	ecosystem  = "npm"
)

// Latest is the registry alias for the newest published version.
const Latest = "latest"

type descriptorResponse struct {
	Name             string          `json:"name"`
	Version          string          `json:"version"`
	Main             interface{}     `json:"main"`
	Browser          interface{}     `json:"browser"`
	License          interface{}     `json:"license"`
	Dist             core.Dist       `json:"dist"`
	Dependencies     json.RawMessage `json:"dependencies"`
	PeerDependencies json.RawMessage `json:"peerDependencies"`
}

// ParseDescriptor parses a version descriptor as returned by
// {registry}/{name}/{version}. Dependency order is preserved.
func ParseDescriptor(data []byte) (*core.Descriptor, error) {
	var resp descriptorResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parsing descriptor: %w", err)
	}

	deps, err := parseDependencies(resp.Dependencies)
	if err != nil {
		return nil, fmt.Errorf("parsing dependencies: %w", err)
	}
	peers, err := parseDependencies(resp.PeerDependencies)
	if err != nil {
		return nil, fmt.Errorf("parsing peerDependencies: %w", err)
	}

	return &core.Descriptor{
		Name:             resp.Name,
		Version:          resp.Version,
		Main:             extractString(resp.Main),
		Browser:          extractString(resp.Browser),
		License:          extractLicense(resp.License),
		Dist:             resp.Dist,
		Dependencies:     deps,
		PeerDependencies: peers,
		Raw:              data,
	}, nil
}

func parseDependencies(raw json.RawMessage) (*core.Dependencies, error) {
	deps := core.NewDependencies()
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return deps, nil
	}
	if err := json.Unmarshal(raw, deps); err != nil {
		return nil, err
	}
	return deps, nil
}

// DescriptorURL returns the URL of the descriptor for name@version. An empty
// version selects the latest release.
func DescriptorURL(baseURL, name, version string) string {
	if version == "" {
		version = Latest
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(baseURL, "/"), url.PathEscape(name), url.PathEscape(version))
}

// extractString returns v if it is a string. The object form of fields like
// "browser" (a replacement map) has no single path and yields "".
func extractString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func extractLicense(v interface{}) string {
	switch l := v.(type) {
	case string:
		return l
	case map[string]interface{}:
		if t, ok := l["type"].(string); ok {
			return t
		}
	case []interface{}:
		var licenses []string
		for _, item := range l {
			switch li := item.(type) {
			case string:
				licenses = append(licenses, li)
			case map[string]interface{}:
				if t, ok := li["type"].(string); ok {
					licenses = append(licenses, t)
				}
			}
		}
		return strings.Join(licenses, ",")
	}
	return ""
}

// URLs builds registry URLs for npm packages.
type URLs struct {
	baseURL string
}

// NewURLs returns a URL builder for the registry at baseURL.
func NewURLs(baseURL string) *URLs {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &URLs{baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (u *URLs) Descriptor(name, version string) string {
	return DescriptorURL(u.baseURL, name, version)
}

func (u *URLs) Registry(name, version string) string {
	if version != "" {
		return fmt.Sprintf("https://www.npmjs.com/package/%s/v/%s", name, version)
	}
	return fmt.Sprintf("https://www.npmjs.com/package/%s", name)
}

func (u *URLs) Download(name, version string) string {
	if version == "" {
		return ""
	}
	shortName := name
	if strings.Contains(name, "/") {
		parts := strings.SplitN(name, "/", 2)
		shortName = parts[1]
	}
	return fmt.Sprintf("%s/%s/-/%s-%s.tgz", u.baseURL, name, shortName, version)
}

func (u *URLs) PURL(name, version string) string {
	namespace := ""
	pkgName := name
	if strings.HasPrefix(name, "@") && strings.Contains(name, "/") {
		parts := strings.SplitN(name, "/", 2)
		namespace = parts[0]
		pkgName = parts[1]
	}

	if namespace != "" {
		if version != "" {
			return fmt.Sprintf("pkg:%s/%s/%s@%s", ecosystem, namespace, pkgName, version)
		}
		return fmt.Sprintf("pkg:%s/%s/%s", ecosystem, namespace, pkgName)
	}

	if version != "" {
		return fmt.Sprintf("pkg:%s/%s@%s", ecosystem, pkgName, version)
	}
	return fmt.Sprintf("pkg:%s/%s", ecosystem, pkgName)
}
