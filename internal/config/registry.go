package config

import (
	"slices"

	"github.com/jbweber/anvil/internal/errdefs"
)

// Registry serves endpoint lookups from an immutable snapshot.
// It is safe for concurrent use.
type Registry struct {
	file *File
}

// NewRegistry loads the registry file at path.
func NewRegistry(path string) (*Registry, error) {
	f, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	return &Registry{file: f}, nil
}

// NewStaticRegistry builds a registry from an in-memory File.
func NewStaticRegistry(f *File) (*Registry, error) {
	cp := &File{General: f.General, Hypervisors: slices.Clone(f.Hypervisors)}
	if _, err := finish(cp); err != nil {
		return nil, err
	}
	return &Registry{file: cp}, nil
}

// Lookup returns the endpoint with the given id.
func (r *Registry) Lookup(id string) (Endpoint, error) {
	for _, ep := range r.file.Hypervisors {
		if ep.ID == id {
			return ep, nil
		}
	}
	return Endpoint{}, errdefs.NotFoundf("hypervisor %q is not configured", id)
}

// Endpoints returns every configured endpoint, sorted by id.
func (r *Registry) Endpoints() []Endpoint {
	return slices.Clone(r.file.Hypervisors)
}

// General returns the shared settings.
func (r *Registry) General() General {
	return r.file.General
}
