package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// includeKey names the directive that pulls another config file into this
// one. The name looks like a shell variable reference, so env expansion has
// to leave it alone.
const includeKey = "$include"

// LoadRaw reads a config file into a merged raw map. $include directives are
// resolved relative to the including file; included files load first so the
// including file wins on key conflicts.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	return loadMerged(path, map[string]bool{})
}

func loadMerged(path string, seen map[string]bool) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[abs] {
		return nil, fmt.Errorf("config include cycle detected at %s", abs)
	}
	seen[abs] = true
	defer delete(seen, abs)

	raw, err := readConfigFile(abs)
	if err != nil {
		return nil, err
	}
	includes, err := includePaths(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}

	merged := map[string]any{}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		base, err := loadMerged(inc, seen)
		if err != nil {
			return nil, err
		}
		merged = deepMerge(merged, base)
	}
	return deepMerge(merged, raw), nil
}

// readConfigFile reads and decodes one file, expanding env references. The
// format follows the extension: .json/.json5 decode as json5, everything
// else as a single YAML document.
func readConfigFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = expandEnv(data)

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := decoder.Decode(&struct{}{}); err != io.EOF {
			return nil, fmt.Errorf("%s: expected a single document", path)
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// expandEnv substitutes $VAR and ${VAR} references with environment values,
// preserving the $include directive itself.
func expandEnv(data []byte) []byte {
	return []byte(os.Expand(string(data), func(name string) string {
		if name == "include" {
			return includeKey
		}
		return os.Getenv(name)
	}))
}

// includePaths pops the $include directive off the raw map and returns the
// referenced paths. The directive accepts a single path or a list.
func includePaths(raw map[string]any) ([]string, error) {
	value, ok := raw[includeKey]
	if !ok {
		return nil, nil
	}
	delete(raw, includeKey)

	entries, ok := value.([]any)
	if !ok {
		entries = []any{value}
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		path, ok := entry.(string)
		if !ok {
			return nil, fmt.Errorf("%s entries must be strings", includeKey)
		}
		if strings.TrimSpace(path) == "" {
			continue
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// deepMerge overlays src onto dst, merging nested maps key by key and
// replacing everything else.
func deepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		srcMap, ok := value.(map[string]any)
		if !ok {
			dst[key] = value
			continue
		}
		if dstMap, ok := dst[key].(map[string]any); ok {
			dst[key] = deepMerge(dstMap, srcMap)
		} else {
			dst[key] = value
		}
	}
	return dst
}

// decodeRawConfig converts the merged raw map into a Config, rejecting keys
// that do not map to a known field.
func decodeRawConfig(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
