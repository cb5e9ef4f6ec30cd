package vm

import (
	"context"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/storage"
	"github.com/jbweber/anvil/internal/unattend"
)

// libvirtClient defines the libvirt domain operations needed for VM
// management. This wraps operations from *libvirt.Libvirt to allow for
// testing.
//
// In production, this is satisfied by *libvirt.Libvirt directly.
// In tests, this is satisfied by mock implementations.
type libvirtClient interface {
	// ConnectGetLibVersion probes the connection
	ConnectGetLibVersion() (uint64, error)

	// ConnectGetHostname returns the hypervisor host name
	ConnectGetHostname() (string, error)

	// ConnectListAllDomains lists domains
	ConnectListAllDomains(NeedResults int32, Flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)

	// DomainLookupByName looks up a domain by name
	DomainLookupByName(Name string) (libvirt.Domain, error)

	// DomainCreateXML starts a transient domain from XML
	DomainCreateXML(XMLDesc string, Flags libvirt.DomainCreateFlags) (libvirt.Domain, error)

	// DomainDefineXML defines a persistent domain from XML
	DomainDefineXML(XML string) (libvirt.Domain, error)

	// DomainGetXMLDesc returns the live descriptor
	DomainGetXMLDesc(Dom libvirt.Domain, Flags libvirt.DomainXMLFlags) (string, error)

	// DomainGetState gets the state of a domain
	DomainGetState(Dom libvirt.Domain, Flags uint32) (int32, int32, error)

	// DomainGetInfo gets state, memory and vCPU counts
	DomainGetInfo(Dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error)

	// DomainIsActive reports whether the domain is running
	DomainIsActive(Dom libvirt.Domain) (int32, error)

	// DomainCreate starts a defined domain
	DomainCreate(Dom libvirt.Domain) error

	// DomainShutdown asks the guest to shut down
	DomainShutdown(Dom libvirt.Domain) error

	// DomainDestroy force-stops a domain
	DomainDestroy(Dom libvirt.Domain) error

	// DomainReboot asks the guest to reboot
	DomainReboot(Dom libvirt.Domain, Flags libvirt.DomainRebootFlagValues) error

	// DomainSuspend pauses a domain
	DomainSuspend(Dom libvirt.Domain) error

	// DomainResume resumes a paused domain
	DomainResume(Dom libvirt.Domain) error

	// DomainUndefine removes the persistent definition
	DomainUndefine(Dom libvirt.Domain) error

	// DomainSetMemoryFlags changes memory sizes
	DomainSetMemoryFlags(Dom libvirt.Domain, Memory uint64, Flags uint32) error

	// DomainSetVcpusFlags changes vCPU counts
	DomainSetVcpusFlags(Dom libvirt.Domain, Nvcpus uint32, Flags uint32) error

	// DomainGetMaxVcpus returns the maximum vCPU count
	DomainGetMaxVcpus(Dom libvirt.Domain) (int32, error)
}

// session is one open hypervisor connection. Each operation opens its own
// and closes it before returning.
type session interface {
	libvirtClient
	storage.LibvirtClient
	Close() error
}

// connector opens sessions to configured endpoints.
type connector interface {
	Connect(ctx context.Context, ep config.Endpoint) (session, error)
}

// endpointRegistry resolves endpoint identifiers.
//
// In production, this is satisfied by *config.Registry.
type endpointRegistry interface {
	Lookup(id string) (config.Endpoint, error)
	Endpoints() []config.Endpoint
}

// renderer produces domain and volume descriptors.
//
// In production, this is satisfied by *render.Renderer.
type renderer interface {
	RenderDomain(attrs map[string]any) (string, error)
	RenderDisk(attrs map[string]any) (string, error)
}

// mediaBuilder writes unattended installation media.
//
// In production, this is satisfied by *unattend.Builder.
type mediaBuilder interface {
	Build(ctx context.Context, payload []byte, storageName string) (string, error)
	Format() unattend.Format
}
