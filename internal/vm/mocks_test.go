package vm

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/anvil/internal/command"
	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/errdefs"
	"github.com/jbweber/anvil/internal/naming"
	"github.com/jbweber/anvil/internal/profile"
	"github.com/jbweber/anvil/internal/render"
	"github.com/jbweber/anvil/internal/storage"
	"github.com/jbweber/anvil/internal/unattend"
)

const (
	testEndpoint = "hv1"
	testPool     = "default"
	testPoolPath = "/var/lib/libvirt/images"
	testHostname = "hv1.example.com"
)

// fakeDomain is one domain known to fakeHypervisor.
type fakeDomain struct {
	uuid       libvirt.UUID
	xml        string
	state      int32
	active     bool
	persistent bool
	maxMemKiB  uint64
	vcpus      uint16
}

type fakeVolume struct {
	path     string
	format   string
	capacity uint64
}

// fakeHypervisor is a stateful in-memory hypervisor implementing session.
// Domains move between states the way libvirt moves them; methods named
// in fail return the configured error instead.
type fakeHypervisor struct {
	mu      sync.Mutex
	domains map[string]*fakeDomain
	volumes map[string]*fakeVolume // volume name -> volume in testPool
	fail    map[string]error
	calls   []string
	closes  int
}

func newFakeHypervisor() *fakeHypervisor {
	return &fakeHypervisor{
		domains: make(map[string]*fakeDomain),
		volumes: make(map[string]*fakeVolume),
		fail:    make(map[string]error),
	}
}

func noDomain(name string) error {
	return libvirt.Error{Code: uint32(libvirt.ErrNoDomain), Message: "Domain not found: " + name}
}

func noVolume(name string) error {
	return libvirt.Error{Code: uint32(libvirt.ErrNoStorageVol), Message: "Storage volume not found: " + name}
}

// enter records a call and returns the injected failure for method, if any.
// The caller must hold f.mu.
func (f *fakeHypervisor) enter(method string) error {
	f.calls = append(f.calls, method)
	return f.fail[method]
}

func (f *fakeHypervisor) failOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = err
}

func (f *fakeHypervisor) called(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

// addDomain installs a persistent domain in the given state.
func (f *fakeHypervisor) addDomain(name string, state int32, xml string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if xml == "" {
		xml = fmt.Sprintf("<domain type='kvm'><name>%s</name></domain>", name)
	}
	f.domains[name] = &fakeDomain{
		uuid:       libvirt.UUID(uuid.New()),
		xml:        xml,
		state:      state,
		active:     state != int32(libvirt.DomainShutoff),
		persistent: true,
		maxMemKiB:  1024 * 1024,
		vcpus:      2,
	}
}

func (f *fakeHypervisor) domain(name string) (*fakeDomain, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.domains[name]
	return d, ok
}

func (f *fakeHypervisor) addVolume(name string, capacity uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes[name] = &fakeVolume{path: filepath.Join(testPoolPath, name), format: "raw", capacity: capacity}
}

func (f *fakeHypervisor) hasVolume(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.volumes[name]
	return ok
}

func (f *fakeHypervisor) setCapacity(name string, capacity uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes[name].capacity = capacity
}

func (f *fakeHypervisor) lookupLocked(dom libvirt.Domain) (*fakeDomain, error) {
	d, ok := f.domains[dom.Name]
	if !ok {
		return nil, noDomain(dom.Name)
	}
	return d, nil
}

func (f *fakeHypervisor) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeHypervisor) ConnectGetLibVersion() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ConnectGetLibVersion"); err != nil {
		return 0, err
	}
	return 10000000, nil
}

func (f *fakeHypervisor) ConnectGetHostname() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ConnectGetHostname"); err != nil {
		return "", err
	}
	return testHostname, nil
}

func (f *fakeHypervisor) ConnectListAllDomains(needResults int32, flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ConnectListAllDomains"); err != nil {
		return nil, 0, err
	}
	var doms []libvirt.Domain
	for name, d := range f.domains {
		doms = append(doms, libvirt.Domain{Name: name, UUID: d.uuid})
	}
	return doms, uint32(len(doms)), nil
}

func (f *fakeHypervisor) DomainLookupByName(name string) (libvirt.Domain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DomainLookupByName"); err != nil {
		return libvirt.Domain{}, err
	}
	d, ok := f.domains[name]
	if !ok {
		return libvirt.Domain{}, noDomain(name)
	}
	return libvirt.Domain{Name: name, UUID: d.uuid}, nil
}

func (f *fakeHypervisor) DomainCreateXML(xml string, flags libvirt.DomainCreateFlags) (libvirt.Domain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DomainCreateXML"); err != nil {
		return libvirt.Domain{}, err
	}
	var spec libvirtxml.Domain
	if err := spec.Unmarshal(xml); err != nil {
		return libvirt.Domain{}, libvirt.Error{Code: uint32(libvirt.ErrXMLError), Message: err.Error()}
	}
	if _, exists := f.domains[spec.Name]; exists {
		return libvirt.Domain{}, libvirt.Error{Code: uint32(libvirt.ErrOperationFailed), Message: "domain already exists"}
	}
	d := &fakeDomain{
		uuid:   libvirt.UUID(uuid.New()),
		xml:    xml,
		state:  int32(libvirt.DomainRunning),
		active: true,
	}
	if spec.Memory != nil {
		d.maxMemKiB = uint64(spec.Memory.Value)
	}
	if spec.VCPU != nil {
		d.vcpus = uint16(spec.VCPU.Value)
	}
	f.domains[spec.Name] = d
	return libvirt.Domain{Name: spec.Name, UUID: d.uuid}, nil
}

func (f *fakeHypervisor) DomainDefineXML(xml string) (libvirt.Domain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DomainDefineXML"); err != nil {
		return libvirt.Domain{}, err
	}
	var spec libvirtxml.Domain
	if err := spec.Unmarshal(xml); err != nil {
		return libvirt.Domain{}, libvirt.Error{Code: uint32(libvirt.ErrXMLError), Message: err.Error()}
	}
	d, ok := f.domains[spec.Name]
	if !ok {
		d = &fakeDomain{uuid: libvirt.UUID(uuid.New()), state: int32(libvirt.DomainShutoff)}
		f.domains[spec.Name] = d
	}
	if spec.UUID != "" && spec.UUID != uuid.UUID(d.uuid).String() {
		return libvirt.Domain{}, libvirt.Error{Code: uint32(libvirt.ErrOperationFailed), Message: "uuid mismatch"}
	}
	d.xml = xml
	d.persistent = true
	return libvirt.Domain{Name: spec.Name, UUID: d.uuid}, nil
}

func (f *fakeHypervisor) DomainGetXMLDesc(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DomainGetXMLDesc"); err != nil {
		return "", err
	}
	d, err := f.lookupLocked(dom)
	if err != nil {
		return "", err
	}
	return d.xml, nil
}

func (f *fakeHypervisor) DomainGetState(dom libvirt.Domain, flags uint32) (int32, int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DomainGetState"); err != nil {
		return 0, 0, err
	}
	d, err := f.lookupLocked(dom)
	if err != nil {
		return 0, 0, err
	}
	return d.state, 0, nil
}

func (f *fakeHypervisor) DomainGetInfo(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DomainGetInfo"); err != nil {
		return 0, 0, 0, 0, 0, err
	}
	d, err := f.lookupLocked(dom)
	if err != nil {
		return 0, 0, 0, 0, 0, err
	}
	return uint8(d.state), d.maxMemKiB, d.maxMemKiB, d.vcpus, 0, nil
}

func (f *fakeHypervisor) DomainIsActive(dom libvirt.Domain) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DomainIsActive"); err != nil {
		return 0, err
	}
	d, err := f.lookupLocked(dom)
	if err != nil {
		return 0, err
	}
	if d.active {
		return 1, nil
	}
	return 0, nil
}

// setState changes a domain's state for the named call.
func (f *fakeHypervisor) setState(method string, dom libvirt.Domain, state libvirt.DomainState, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(method); err != nil {
		return err
	}
	d, err := f.lookupLocked(dom)
	if err != nil {
		return err
	}
	d.state = int32(state)
	d.active = active
	return nil
}

func (f *fakeHypervisor) DomainCreate(dom libvirt.Domain) error {
	return f.setState("DomainCreate", dom, libvirt.DomainRunning, true)
}

func (f *fakeHypervisor) DomainShutdown(dom libvirt.Domain) error {
	return f.setState("DomainShutdown", dom, libvirt.DomainShutoff, false)
}

func (f *fakeHypervisor) DomainDestroy(dom libvirt.Domain) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DomainDestroy"); err != nil {
		return err
	}
	d, err := f.lookupLocked(dom)
	if err != nil {
		return err
	}
	if !d.persistent {
		delete(f.domains, dom.Name)
		return nil
	}
	d.state = int32(libvirt.DomainShutoff)
	d.active = false
	return nil
}

func (f *fakeHypervisor) DomainReboot(dom libvirt.Domain, flags libvirt.DomainRebootFlagValues) error {
	return f.setState("DomainReboot", dom, libvirt.DomainRunning, true)
}

func (f *fakeHypervisor) DomainSuspend(dom libvirt.Domain) error {
	return f.setState("DomainSuspend", dom, libvirt.DomainPaused, true)
}

func (f *fakeHypervisor) DomainResume(dom libvirt.Domain) error {
	return f.setState("DomainResume", dom, libvirt.DomainRunning, true)
}

func (f *fakeHypervisor) DomainUndefine(dom libvirt.Domain) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DomainUndefine"); err != nil {
		return err
	}
	d, err := f.lookupLocked(dom)
	if err != nil {
		return err
	}
	if d.active {
		d.persistent = false
		return nil
	}
	delete(f.domains, dom.Name)
	return nil
}

func (f *fakeHypervisor) DomainSetMemoryFlags(dom libvirt.Domain, memory uint64, flags uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DomainSetMemoryFlags"); err != nil {
		return err
	}
	d, err := f.lookupLocked(dom)
	if err != nil {
		return err
	}
	if flags&uint32(libvirt.DomainMemMaximum) != 0 {
		d.maxMemKiB = memory
	}
	return nil
}

func (f *fakeHypervisor) DomainSetVcpusFlags(dom libvirt.Domain, nvcpus uint32, flags uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DomainSetVcpusFlags"); err != nil {
		return err
	}
	d, err := f.lookupLocked(dom)
	if err != nil {
		return err
	}
	d.vcpus = uint16(nvcpus)
	return nil
}

func (f *fakeHypervisor) DomainGetMaxVcpus(dom libvirt.Domain) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DomainGetMaxVcpus"); err != nil {
		return 0, err
	}
	d, err := f.lookupLocked(dom)
	if err != nil {
		return 0, err
	}
	return int32(d.vcpus), nil
}

func (f *fakeHypervisor) StoragePoolLookupByName(name string) (libvirt.StoragePool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("StoragePoolLookupByName"); err != nil {
		return libvirt.StoragePool{}, err
	}
	if name != testPool {
		return libvirt.StoragePool{}, libvirt.Error{Code: uint32(libvirt.ErrNoStoragePool), Message: "Storage pool not found: " + name}
	}
	return libvirt.StoragePool{Name: name}, nil
}

func (f *fakeHypervisor) StoragePoolRefresh(pool libvirt.StoragePool, flags uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enter("StoragePoolRefresh")
}

func (f *fakeHypervisor) StorageVolLookupByName(pool libvirt.StoragePool, name string) (libvirt.StorageVol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("StorageVolLookupByName"); err != nil {
		return libvirt.StorageVol{}, err
	}
	v, ok := f.volumes[name]
	if !ok {
		return libvirt.StorageVol{}, noVolume(name)
	}
	return libvirt.StorageVol{Pool: pool.Name, Name: name, Key: v.path}, nil
}

func (f *fakeHypervisor) StorageVolLookupByPath(path string) (libvirt.StorageVol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("StorageVolLookupByPath"); err != nil {
		return libvirt.StorageVol{}, err
	}
	for name, v := range f.volumes {
		if v.path == path {
			return libvirt.StorageVol{Pool: testPool, Name: name, Key: v.path}, nil
		}
	}
	return libvirt.StorageVol{}, noVolume(path)
}

func (f *fakeHypervisor) StorageVolCreateXML(pool libvirt.StoragePool, xml string, flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("StorageVolCreateXML"); err != nil {
		return libvirt.StorageVol{}, err
	}
	var spec libvirtxml.StorageVolume
	if err := spec.Unmarshal(xml); err != nil {
		return libvirt.StorageVol{}, libvirt.Error{Code: uint32(libvirt.ErrXMLError), Message: err.Error()}
	}
	if _, exists := f.volumes[spec.Name]; exists {
		return libvirt.StorageVol{}, libvirt.Error{Code: uint32(libvirt.ErrStorageVolExist), Message: "storage volume already exists"}
	}
	v := &fakeVolume{path: filepath.Join(testPoolPath, spec.Name), format: "raw"}
	if spec.Capacity != nil {
		capacity, err := storage.SizeToBytes(spec.Capacity.Value, spec.Capacity.Unit)
		if err != nil {
			return libvirt.StorageVol{}, err
		}
		v.capacity = capacity
	}
	if spec.Target != nil && spec.Target.Format != nil {
		v.format = spec.Target.Format.Type
	}
	f.volumes[spec.Name] = v
	return libvirt.StorageVol{Pool: pool.Name, Name: spec.Name, Key: v.path}, nil
}

func (f *fakeHypervisor) StorageVolDelete(vol libvirt.StorageVol, flags libvirt.StorageVolDeleteFlags) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("StorageVolDelete"); err != nil {
		return err
	}
	if _, ok := f.volumes[vol.Name]; !ok {
		return noVolume(vol.Name)
	}
	delete(f.volumes, vol.Name)
	return nil
}

func (f *fakeHypervisor) StorageVolGetPath(vol libvirt.StorageVol) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[vol.Name]
	if !ok {
		return "", noVolume(vol.Name)
	}
	return v.path, nil
}

func (f *fakeHypervisor) StorageVolGetInfo(vol libvirt.StorageVol) (int8, uint64, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[vol.Name]
	if !ok {
		return 0, 0, 0, noVolume(vol.Name)
	}
	return 0, v.capacity, 0, nil
}

func (f *fakeHypervisor) StorageVolGetXMLDesc(vol libvirt.StorageVol, flags uint32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[vol.Name]
	if !ok {
		return "", noVolume(vol.Name)
	}
	return fmt.Sprintf("<volume type='file'><name>%s</name><capacity unit='bytes'>%d</capacity>"+
		"<target><path>%s</path><format type='%s'/></target></volume>", vol.Name, v.capacity, v.path, v.format), nil
}

// fakeRegistry serves a fixed endpoint list.
type fakeRegistry struct {
	endpoints []config.Endpoint
}

func (r fakeRegistry) Lookup(id string) (config.Endpoint, error) {
	for _, ep := range r.endpoints {
		if ep.ID == id {
			return ep, nil
		}
	}
	return config.Endpoint{}, errdefs.NotFoundf("hypervisor %q is not configured", id)
}

func (r fakeRegistry) Endpoints() []config.Endpoint {
	return slices.Clone(r.endpoints)
}

// fakeConnector hands out sessions by endpoint id. Endpoints without a
// session are unreachable.
type fakeConnector struct {
	mu       sync.Mutex
	sessions map[string]*fakeHypervisor
	connects int
}

func (c *fakeConnector) Connect(ctx context.Context, ep config.Endpoint) (session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	sess, ok := c.sessions[ep.ID]
	if !ok {
		return nil, errdefs.Connectionf("hypervisor %s (%s) is unreachable", ep.ID, ep.URL)
	}
	return sess, nil
}

// fakeMedia writes a marker image where the real builder would.
type fakeMedia struct {
	fs       afero.Fs
	dir      string
	format   unattend.Format
	err      error
	payloads []string
}

func (m *fakeMedia) Build(ctx context.Context, payload []byte, storageName string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.payloads = append(m.payloads, string(payload))
	path := filepath.Join(m.dir, naming.MediaImageName(storageName, m.format.Ext()))
	if err := afero.WriteFile(m.fs, path, []byte("image"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (m *fakeMedia) Format() unattend.Format {
	return m.format
}

// nopRunner accepts every command. onCall lets a test apply the effect the
// real tool would have.
type nopRunner struct {
	mu     sync.Mutex
	calls  [][]string
	err    error
	onCall func(name string, args []string)
}

func (r *nopRunner) Run(_ context.Context, name string, args ...string) (command.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string{name}, args...))
	r.mu.Unlock()
	if r.err != nil {
		return command.Result{ExitCode: 1}, r.err
	}
	if r.onCall != nil {
		r.onCall(name, args)
	}
	return command.Result{}, nil
}

func testEndpointConfig() config.Endpoint {
	return config.Endpoint{
		ID:           testEndpoint,
		URL:          "qemu+tcp://hv1/system",
		HypType:      "kvm",
		Type:         profile.KVM,
		EmulatorPath: "/usr/bin/qemu-system-x86_64",
		StoragePool:  testPool,
		ImageDir:     testPoolPath,
		MediaFormat:  config.MediaFloppy,
	}
}

// testEnv wires a Controller to one fake hypervisor.
type testEnv struct {
	ctrl   *Controller
	hv     *fakeHypervisor
	conn   *fakeConnector
	media  *fakeMedia
	fs     afero.Fs
	runner *nopRunner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	r, err := render.NewRenderer("", "")
	if err != nil {
		t.Fatalf("failed to load templates: %v", err)
	}

	hv := newFakeHypervisor()
	fs := afero.NewMemMapFs()
	env := &testEnv{
		hv:     hv,
		conn:   &fakeConnector{sessions: map[string]*fakeHypervisor{testEndpoint: hv}},
		media:  &fakeMedia{fs: fs, dir: testPoolPath, format: unattend.Floppy},
		fs:     fs,
		runner: &nopRunner{},
	}

	reg := fakeRegistry{endpoints: []config.Endpoint{
		testEndpointConfig(),
		{ID: "down", URL: "qemu+tcp://down/system", Type: profile.KVM, StoragePool: testPool},
	}}
	env.ctrl = newController(reg, WithRunner(env.runner), WithFs(fs))
	env.ctrl.renderer = r
	env.ctrl.connector = env.conn
	env.ctrl.newMedia = func(config.Endpoint) (mediaBuilder, error) { return env.media, nil }
	return env
}

// createAttrs returns the attributes of a minimal KVM VM.
func createAttrs(name string) Attributes {
	return Attributes{
		AttrName:        name,
		AttrStorageName: name,
		AttrMemory:      "512",
		AttrNumCPU:      2,
		AttrDiskSize:    10,
	}
}
