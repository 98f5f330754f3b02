package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ListValues returns the config as a flat key/value map. Secrets are
// masked unless maskSecrets is false.
func ListValues(cfg *Config, maskSecrets bool) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, err
	}
	flat := Flatten(nested)
	if maskSecrets {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue loads the config at path and returns one dot-separated key.
// Secret values come back masked.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	values, err := ListValues(cfg, true)
	if err != nil {
		return nil, err
	}
	value, ok := values[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return value, nil
}

// SetValue loads the config at path, sets one dot-separated key from its
// string form, and saves the file.
func SetValue(path, key, raw string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	values, err := ListValues(cfg, false)
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	values[key] = coerceValue(raw)

	data, err := json.Marshal(Unflatten(values))
	if err != nil {
		return err
	}
	updated := &Config{}
	if err := json.Unmarshal(data, updated); err != nil {
		return fmt.Errorf("apply %s: %w", key, err)
	}
	return Save(path, updated)
}

// coerceValue parses booleans and numbers; everything else stays a string.
func coerceValue(raw string) any {
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
