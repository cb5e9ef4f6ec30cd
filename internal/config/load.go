package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/jbweber/anvil/internal/errdefs"
)

// generalSection names the INI section holding shared settings.
const generalSection = "general"

// defaultKeyPrefix marks INI keys that become endpoint attribute defaults,
// e.g. "default_disk_type = qcow2".
const defaultKeyPrefix = "default_"

// LoadFromFile reads and validates a registry file. The format is chosen by
// extension: .conf and .ini are INI, .yaml and .yml are YAML, .toml is TOML.
func LoadFromFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.Configuration, err, "failed to read config file %s", path)
	}

	var f *File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".conf", ".ini", ".cfg":
		f, err = LoadFromINI(data)
	case ".yaml", ".yml":
		f, err = LoadFromYAML(data)
	case ".toml":
		f, err = LoadFromTOML(data)
	default:
		return nil, errdefs.Configurationf("unsupported config file extension %q (supported: .conf, .ini, .yaml, .yml, .toml)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return f, nil
}

// LoadFromINI parses the hypervisors.conf layout: one section per endpoint
// plus an optional [general] section.
func LoadFromINI(data []byte) (*File, error) {
	cfg, err := ini.Load(data)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.Configuration, err, "failed to parse INI")
	}

	f := &File{}
	for _, sec := range cfg.Sections() {
		name := sec.Name()
		switch name {
		case ini.DefaultSection:
			continue
		case generalSection:
			f.General.DomainTemplatePath = sec.Key("domain_template_file_path").String()
			f.General.DiskTemplatePath = sec.Key("disk_template_file_path").String()
			f.General.CommandPrefix = sec.Key("command_prefix").String()
			continue
		}

		ep := Endpoint{
			ID:             name,
			URL:            sec.Key("url").String(),
			HypType:        sec.Key("hyp_type").String(),
			EmulatorPath:   sec.Key("emulator_path").String(),
			StoragePool:    sec.Key("storage_pool").String(),
			ImageDir:       sec.Key("image_dir").String(),
			MediaFormat:    sec.Key("media_format").String(),
			ConnectTimeout: sec.Key("connect_timeout").String(),
		}
		for _, key := range sec.Keys() {
			if attr, ok := strings.CutPrefix(key.Name(), defaultKeyPrefix); ok && attr != "" {
				if ep.Defaults == nil {
					ep.Defaults = make(map[string]string)
				}
				ep.Defaults[attr] = key.Value()
			}
		}
		f.Hypervisors = append(f.Hypervisors, ep)
	}

	return finish(f)
}

// LoadFromYAML parses a YAML registry.
func LoadFromYAML(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errdefs.Wrap(errdefs.Configuration, err, "failed to parse YAML")
	}
	return finish(&f)
}

// LoadFromTOML parses a TOML registry.
func LoadFromTOML(data []byte) (*File, error) {
	var f File
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, errdefs.Wrap(errdefs.Configuration, err, "failed to parse TOML")
	}
	return finish(&f)
}

func finish(f *File) (*File, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	sort.Slice(f.Hypervisors, func(i, j int) bool {
		return f.Hypervisors[i].ID < f.Hypervisors[j].ID
	})
	return f, nil
}
