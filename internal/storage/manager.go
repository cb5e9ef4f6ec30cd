package storage

import (
	"github.com/digitalocean/go-libvirt"
	"github.com/go-logr/logr"
	"github.com/spf13/afero"

	"github.com/jbweber/anvil/internal/command"
)

// LibvirtClient is the interface for libvirt storage operations.
// This allows for dependency injection and testing.
type LibvirtClient interface {
	StoragePoolLookupByName(Name string) (libvirt.StoragePool, error)
	StoragePoolRefresh(Pool libvirt.StoragePool, Flags uint32) error
	StorageVolLookupByName(Pool libvirt.StoragePool, Name string) (libvirt.StorageVol, error)
	StorageVolLookupByPath(Path string) (libvirt.StorageVol, error)
	StorageVolCreateXML(Pool libvirt.StoragePool, XML string, Flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error)
	StorageVolDelete(Vol libvirt.StorageVol, Flags libvirt.StorageVolDeleteFlags) error
	StorageVolGetPath(Vol libvirt.StorageVol) (string, error)
	StorageVolGetInfo(Vol libvirt.StorageVol) (rType int8, rCapacity uint64, rAllocation uint64, err error)
	StorageVolGetXMLDesc(Vol libvirt.StorageVol, Flags uint32) (string, error)
}

// Manager provisions, sizes and removes VM disk volumes on one
// hypervisor connection.
type Manager struct {
	client LibvirtClient
	runner command.Runner
	fs     afero.Fs
	log    logr.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRunner sets the runner used for qemu-img.
func WithRunner(r command.Runner) Option {
	return func(m *Manager) { m.runner = r }
}

// WithFs sets the filesystem used when a path is not managed by any pool.
func WithFs(fsys afero.Fs) Option {
	return func(m *Manager) { m.fs = fsys }
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// NewManager creates a new storage manager.
func NewManager(client LibvirtClient, opts ...Option) *Manager {
	m := &Manager{
		client: client,
		fs:     afero.NewOsFs(),
		log:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.runner == nil {
		m.runner = command.NewExec(m.log)
	}
	return m
}
