package core

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tidwall/jsonc"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// LoaderConfig is a loader configuration object. Keys keep their insertion
// order; nested objects are *LoaderConfig as well.
type LoaderConfig = orderedmap.OrderedMap[string, any]

// NewLoaderConfig returns an empty configuration object.
func NewLoaderConfig() *LoaderConfig {
	return orderedmap.New[string, any]()
}

// DefaultLoaderConfig returns the overrides used when none are configured.
func DefaultLoaderConfig() *LoaderConfig {
	conf := NewLoaderConfig()
	conf.Set("baseUrl", "/js/")
	return conf
}

// ParseLoaderConfig parses a JSON object. Comments and trailing commas are
// allowed. Top-level keys keep their order; keys of nested objects are
// sorted.
func ParseLoaderConfig(data []byte) (*LoaderConfig, error) {
	conf := NewLoaderConfig()
	if err := json.Unmarshal(jsonc.ToJSON(data), conf); err != nil {
		return nil, fmt.Errorf("parsing loader config: %w", err)
	}
	for pair := conf.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value = normalize(pair.Value)
	}
	return conf, nil
}

func normalize(v any) any {
	switch v := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewLoaderConfig()
		for _, k := range keys {
			obj.Set(k, normalize(v[k]))
		}
		return obj
	case []any:
		for i := range v {
			v[i] = normalize(v[i])
		}
		return v
	default:
		return v
	}
}

// MergeLoaderConfig merges src into dst and returns dst. Objects present in
// both merge recursively; any other value from src replaces dst's.
func MergeLoaderConfig(dst, src *LoaderConfig) *LoaderConfig {
	if src == nil {
		return dst
	}
	for pair := src.Oldest(); pair != nil; pair = pair.Next() {
		obj, ok := pair.Value.(*LoaderConfig)
		if !ok {
			dst.Set(pair.Key, pair.Value)
			continue
		}
		target, ok := dst.Value(pair.Key).(*LoaderConfig)
		if !ok {
			target = NewLoaderConfig()
			dst.Set(pair.Key, target)
		}
		MergeLoaderConfig(target, obj)
	}
	return dst
}
