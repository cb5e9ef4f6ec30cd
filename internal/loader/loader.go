// Package loader provides functions for loading VM attribute maps from
// YAML or JSON files and from key=value command-line settings.
//
// An attribute file is a flat mapping of attribute names to scalar values:
//
//	name: web1
//	storage_name: web1
//	memory: 2048
//	num_cpu: 2
//	disk_size: 20
//	ip: 10.55.22.22
package loader

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/anvil/internal/errdefs"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LoadFromFile loads attributes from a YAML or JSON file.
func LoadFromFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	attrs, err := LoadFromYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return attrs, nil
}

// LoadFromYAML loads attributes from YAML bytes. JSON is accepted since it
// is a subset of YAML.
func LoadFromYAML(data []byte) (map[string]any, error) {
	attrs := map[string]any{}
	if err := yaml.Unmarshal(data, &attrs); err != nil {
		return nil, errdefs.Wrap(errdefs.Validation, err, "failed to unmarshal attributes")
	}

	if err := validate(attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

// ParseSets parses key=value settings. Values stay strings; the controller
// converts them where it needs numbers or booleans. Later settings win.
func ParseSets(sets []string) (map[string]any, error) {
	attrs := make(map[string]any, len(sets))
	for _, s := range sets {
		key, value, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errdefs.Validationf("invalid setting %q (expected key=value)", s)
		}
		if !keyPattern.MatchString(key) {
			return nil, errdefs.Validationf("invalid attribute name %q", key)
		}
		attrs[key] = value
	}
	return attrs, nil
}

// LoadPayload reads an answer file to embed in installation media.
func LoadPayload(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read answer file %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return "", errdefs.Validationf("answer file %s is empty", path)
	}
	return string(data), nil
}

// Merge layers maps left to right into a new map; later values win.
func Merge(layers ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// validate checks that attrs is a flat mapping of well-formed names to
// scalar values.
func validate(attrs map[string]any) error {
	for k, v := range attrs {
		if !keyPattern.MatchString(k) {
			return errdefs.Validationf("invalid attribute name %q", k)
		}
		switch v.(type) {
		case map[string]any, []any:
			return errdefs.Validationf("attribute %q must be a scalar value", k)
		}
	}
	return nil
}
