// Package config holds the hypervisor endpoint registry.
//
// The registry is read once from a configuration file (INI, YAML or TOML)
// into an immutable snapshot. Lookups never touch the file again.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/jbweber/anvil/internal/errdefs"
	"github.com/jbweber/anvil/internal/profile"
)

// Defaults applied to endpoints that omit them.
const (
	DefaultStoragePool    = "default"
	DefaultImageDir       = "/var/lib/libvirt/images"
	DefaultMediaFormat    = MediaFloppy
	DefaultConnectTimeout = 5 * time.Second
)

// Media formats for unattended-install answer files.
const (
	MediaFloppy = "floppy"
	MediaISO    = "iso"
)

// File is the parsed contents of a registry file.
type File struct {
	General     General    `yaml:"general" toml:"general"`
	Hypervisors []Endpoint `yaml:"hypervisors" toml:"hypervisors"`
}

// General holds settings shared by all endpoints.
type General struct {
	// DomainTemplatePath overrides the built-in domain descriptor template.
	DomainTemplatePath string `yaml:"domain_template_file_path,omitempty" toml:"domain_template_file_path"`
	// DiskTemplatePath overrides the built-in disk descriptor template.
	DiskTemplatePath string `yaml:"disk_template_file_path,omitempty" toml:"disk_template_file_path"`
	// CommandPrefix is placed before every external tool invocation,
	// e.g. "sudo -n" when anvil runs unprivileged. Shell quoting applies.
	CommandPrefix string `yaml:"command_prefix,omitempty" toml:"command_prefix"`
}

// CommandArgs splits CommandPrefix into words.
func (g General) CommandArgs() ([]string, error) {
	args, err := shellquote.Split(g.CommandPrefix)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.Configuration, err, "invalid command_prefix %q", g.CommandPrefix)
	}
	return args, nil
}

// Endpoint describes one hypervisor connection target.
type Endpoint struct {
	ID             string            `yaml:"id" toml:"id"`
	URL            string            `yaml:"url" toml:"url"`
	HypType        string            `yaml:"hyp_type" toml:"hyp_type"`
	EmulatorPath   string            `yaml:"emulator_path,omitempty" toml:"emulator_path"`
	StoragePool    string            `yaml:"storage_pool,omitempty" toml:"storage_pool"`
	ImageDir       string            `yaml:"image_dir,omitempty" toml:"image_dir"`
	MediaFormat    string            `yaml:"media_format,omitempty" toml:"media_format"`
	ConnectTimeout string            `yaml:"connect_timeout,omitempty" toml:"connect_timeout"`
	Defaults       map[string]string `yaml:"defaults,omitempty" toml:"defaults"`

	// Derived by Normalize.
	Type    profile.Type  `yaml:"-" toml:"-"`
	Timeout time.Duration `yaml:"-" toml:"-"`
}

// HypervisorType implements profile.Endpoint.
func (e Endpoint) HypervisorType() profile.Type { return e.Type }

// Emulator implements profile.Endpoint.
func (e Endpoint) Emulator() string { return e.EmulatorPath }

// DefaultAttributes implements profile.Endpoint.
func (e Endpoint) DefaultAttributes() map[string]string { return e.Defaults }

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Normalize fills in defaults and derived fields. It must run before Validate.
func (e *Endpoint) Normalize() error {
	e.ID = strings.TrimSpace(e.ID)
	e.URL = strings.TrimSpace(e.URL)

	if strings.TrimSpace(e.HypType) == "" {
		return errdefs.Configurationf("hypervisor %q: hyp_type is required", e.ID)
	}
	t, err := profile.ParseType(e.HypType)
	if err != nil {
		return fmt.Errorf("hypervisor %q: %w", e.ID, err)
	}
	e.Type = t
	e.HypType = t.String()

	if e.StoragePool == "" {
		e.StoragePool = DefaultStoragePool
	}
	if e.ImageDir == "" {
		e.ImageDir = DefaultImageDir
	}
	if e.MediaFormat == "" {
		e.MediaFormat = DefaultMediaFormat
	}
	e.MediaFormat = strings.ToLower(e.MediaFormat)

	e.Timeout = DefaultConnectTimeout
	if e.ConnectTimeout != "" {
		d, err := time.ParseDuration(e.ConnectTimeout)
		if err != nil {
			return errdefs.Configurationf("hypervisor %q: invalid connect_timeout %q", e.ID, e.ConnectTimeout)
		}
		e.Timeout = d
	}
	return nil
}

// Validate checks the endpoint for missing or malformed options.
func (e *Endpoint) Validate() error {
	if e.ID == "" {
		return errdefs.Configurationf("hypervisor id is required")
	}
	if !idPattern.MatchString(e.ID) {
		return errdefs.Configurationf("hypervisor id %q must be alphanumeric with '.', '_' or '-'", e.ID)
	}
	if e.URL == "" {
		return errdefs.Configurationf("hypervisor %q: url is required", e.ID)
	}
	u, err := url.Parse(e.URL)
	if err != nil || u.Scheme == "" {
		return errdefs.Configurationf("hypervisor %q: url %q is not a libvirt URI", e.ID, e.URL)
	}
	if _, err := profile.GetDefaults(e.Type); err != nil {
		return fmt.Errorf("hypervisor %q: %w", e.ID, err)
	}
	if e.MediaFormat != MediaFloppy && e.MediaFormat != MediaISO {
		return errdefs.Configurationf("hypervisor %q: media_format must be %q or %q, got %q", e.ID, MediaFloppy, MediaISO, e.MediaFormat)
	}
	if e.Timeout <= 0 {
		return errdefs.Configurationf("hypervisor %q: connect_timeout must be positive", e.ID)
	}
	return nil
}

// Validate normalizes and validates every endpoint in f.
func (f *File) Validate() error {
	if _, err := f.General.CommandArgs(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(f.Hypervisors))
	for i := range f.Hypervisors {
		ep := &f.Hypervisors[i]
		if err := ep.Normalize(); err != nil {
			return err
		}
		if err := ep.Validate(); err != nil {
			return err
		}
		if seen[ep.ID] {
			return errdefs.Configurationf("duplicate hypervisor id %q", ep.ID)
		}
		seen[ep.ID] = true
	}
	return nil
}
