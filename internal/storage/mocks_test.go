package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/anvil/internal/command"
)

// mockLibvirtClient is a mock implementation of LibvirtClient for testing.
type mockLibvirtClient struct {
	mu        sync.Mutex
	pools     map[string]*mockPool
	volumes   map[string]map[string]*mockVolume // pool name -> volume name -> volume
	refreshes map[string]int

	createErr error
	deleteErr error
	lookupErr error
}

type mockPool struct {
	name string
	path string
}

type mockVolume struct {
	name     string
	path     string
	format   string
	capacity uint64
}

func newMockLibvirtClient() *mockLibvirtClient {
	return &mockLibvirtClient{
		pools:     make(map[string]*mockPool),
		volumes:   make(map[string]map[string]*mockVolume),
		refreshes: make(map[string]int),
	}
}

func (m *mockLibvirtClient) addPool(name, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[name] = &mockPool{name: name, path: path}
	m.volumes[name] = make(map[string]*mockVolume)
}

func (m *mockLibvirtClient) addVolume(pool, name, format string, capacity uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumes[pool][name] = &mockVolume{
		name:     name,
		path:     m.pools[pool].path + "/" + name,
		format:   format,
		capacity: capacity,
	}
}

func (m *mockLibvirtClient) volumeCount(pool string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.volumes[pool])
}

func noPool(name string) error {
	return libvirt.Error{Code: uint32(libvirt.ErrNoStoragePool), Message: "Storage pool not found: " + name}
}

func noVol(name string) error {
	return libvirt.Error{Code: uint32(libvirt.ErrNoStorageVol), Message: "Storage volume not found: " + name}
}

func (m *mockLibvirtClient) StoragePoolLookupByName(name string) (libvirt.StoragePool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pools[name]; !ok {
		return libvirt.StoragePool{}, noPool(name)
	}
	return libvirt.StoragePool{Name: name}, nil
}

func (m *mockLibvirtClient) StoragePoolRefresh(pool libvirt.StoragePool, flags uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pools[pool.Name]; !ok {
		return noPool(pool.Name)
	}
	m.refreshes[pool.Name]++
	return nil
}

func (m *mockLibvirtClient) StorageVolLookupByName(pool libvirt.StoragePool, name string) (libvirt.StorageVol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return libvirt.StorageVol{}, m.lookupErr
	}
	vol, ok := m.volumes[pool.Name][name]
	if !ok {
		return libvirt.StorageVol{}, noVol(name)
	}
	return libvirt.StorageVol{Pool: pool.Name, Name: vol.name, Key: vol.path}, nil
}

func (m *mockLibvirtClient) StorageVolLookupByPath(path string) (libvirt.StorageVol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for poolName, vols := range m.volumes {
		for _, vol := range vols {
			if vol.path == path {
				return libvirt.StorageVol{Pool: poolName, Name: vol.name, Key: vol.path}, nil
			}
		}
	}
	return libvirt.StorageVol{}, noVol(path)
}

func (m *mockLibvirtClient) StorageVolCreateXML(pool libvirt.StoragePool, xml string, flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return libvirt.StorageVol{}, m.createErr
	}

	p, ok := m.pools[pool.Name]
	if !ok {
		return libvirt.StorageVol{}, noPool(pool.Name)
	}

	name := extractTagValue(xml, "name")
	if _, exists := m.volumes[pool.Name][name]; exists {
		return libvirt.StorageVol{}, libvirt.Error{Code: uint32(libvirt.ErrStorageVolExist), Message: "storage volume already exists"}
	}

	var capacity uint64
	_, _ = fmt.Sscanf(extractTagValue(xml, "capacity"), "%d", &capacity)

	vol := &mockVolume{
		name:     name,
		path:     p.path + "/" + name,
		format:   "raw",
		capacity: capacity,
	}
	m.volumes[pool.Name][name] = vol
	return libvirt.StorageVol{Pool: pool.Name, Name: name, Key: vol.path}, nil
}

func (m *mockLibvirtClient) StorageVolDelete(vol libvirt.StorageVol, flags libvirt.StorageVolDeleteFlags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.volumes[vol.Pool][vol.Name]; !ok {
		return noVol(vol.Name)
	}
	delete(m.volumes[vol.Pool], vol.Name)
	return nil
}

func (m *mockLibvirtClient) StorageVolGetPath(vol libvirt.StorageVol) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.volumes[vol.Pool][vol.Name]
	if !ok {
		return "", noVol(vol.Name)
	}
	return v.path, nil
}

func (m *mockLibvirtClient) StorageVolGetInfo(vol libvirt.StorageVol) (rType int8, rCapacity uint64, rAllocation uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.volumes[vol.Pool][vol.Name]
	if !ok {
		return 0, 0, 0, noVol(vol.Name)
	}
	return 0, v.capacity, 0, nil
}

func (m *mockLibvirtClient) StorageVolGetXMLDesc(vol libvirt.StorageVol, flags uint32) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.volumes[vol.Pool][vol.Name]
	if !ok {
		return "", noVol(vol.Name)
	}
	return fmt.Sprintf("<volume type='file'><name>%s</name><capacity unit='bytes'>%d</capacity>"+
		"<target><path>%s</path><format type='%s'/></target></volume>", v.name, v.capacity, v.path, v.format), nil
}

// setCapacity simulates qemu-img changing the file behind a volume.
func (m *mockLibvirtClient) setCapacity(pool, name string, capacity uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumes[pool][name].capacity = capacity
}

// Helper function to extract tag value from XML
func extractTagValue(xml, tag string) string {
	start := strings.Index(xml, "<"+tag)
	if start == -1 {
		return ""
	}
	open := strings.Index(xml[start:], ">")
	if open == -1 {
		return ""
	}
	start += open + 1
	end := strings.Index(xml[start:], "</"+tag+">")
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(xml[start : start+end])
}

// mockRunner records invocations and optionally mutates the mock client
// the way the real tool would.
type mockRunner struct {
	mu     sync.Mutex
	calls  [][]string
	err    error
	onCall func(args []string)
}

func (r *mockRunner) Run(_ context.Context, name string, args ...string) (command.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string{name}, args...))
	r.mu.Unlock()
	if r.err != nil {
		return command.Result{ExitCode: 1}, r.err
	}
	if r.onCall != nil {
		r.onCall(args)
	}
	return command.Result{}, nil
}
