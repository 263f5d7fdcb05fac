package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// optionalKeys are string settings omitted from the file while empty.
var optionalKeys = map[string]bool{
	"server.token":       true,
	"general.logFile":    true,
	"credentials.dbPath": true,
	"metrics.addr":       true,
}

// sections flattens cfg into section -> key -> value using its JSON names.
func sections(cfg *Config) (map[string]map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	for path := range optionalKeys {
		sec, key, _ := strings.Cut(path, ".")
		if _, ok := m[sec][key]; !ok {
			m[sec][key] = ""
		}
	}
	return m, nil
}

func splitPath(path string) (string, string, error) {
	sec, key, ok := strings.Cut(path, ".")
	if !ok || sec == "" || key == "" || strings.Contains(key, ".") {
		return "", "", fmt.Errorf("invalid path %q (want section.key, e.g. server.baseURL)", path)
	}
	return sec, key, nil
}

// lookup returns the section map holding path and the current value.
func lookup(m map[string]map[string]any, path string) (map[string]any, string, any, error) {
	sec, key, err := splitPath(path)
	if err != nil {
		return nil, "", nil, err
	}
	section, ok := m[sec]
	if !ok {
		return nil, "", nil, fmt.Errorf("unknown section %q", sec)
	}
	val, ok := section[key]
	if !ok {
		return nil, "", nil, fmt.Errorf("key not found: %s", path)
	}
	return section, key, val, nil
}

// GetByPath retrieves a config value by dot-notation path (e.g. "server.baseURL").
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := sections(cfg)
	if err != nil {
		return nil, err
	}
	_, _, val, err := lookup(m, path)
	return val, err
}

// SetByPath sets a config value by dot-notation path. String input is
// converted to the type of the current value, so "true" only sets
// booleans and "8000" stays a string for string settings.
func SetByPath(cfg *Config, path string, value any) error {
	m, err := sections(cfg)
	if err != nil {
		return err
	}
	section, key, current, err := lookup(m, path)
	if err != nil {
		return err
	}

	converted, err := convertLike(current, value)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	section[key] = converted

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	updated := *cfg
	if err := json.Unmarshal(data, &updated); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	*cfg = updated
	return nil
}

func convertLike(current, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	switch current.(type) {
	case bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("want true or false, got %q", s)
		}
		return b, nil
	case float64:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("want a number, got %q", s)
		}
		return f, nil
	default:
		return s, nil
	}
}

// Sanitize returns a copy of the config with the token masked.
func Sanitize(cfg *Config) *Config {
	c := *cfg
	if c.Server.Token != "" {
		c.Server.Token = maskString(c.Server.Token)
	}
	return &c
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths returns every settable path with its current value.
func ListPaths(cfg *Config) map[string]any {
	m, err := sections(cfg)
	if err != nil {
		return nil
	}
	result := make(map[string]any)
	for sec, kv := range m {
		for k, v := range kv {
			result[sec+"."+k] = v
		}
	}
	return result
}

// SortedPaths returns the keys of ListPaths in order.
func SortedPaths(paths map[string]any) []string {
	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
