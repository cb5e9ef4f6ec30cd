// Package libvirt manages connections to hypervisor endpoints and models
// the domain descriptors they return.
//
// This package wraps github.com/digitalocean/go-libvirt to provide:
//   - Connection management (dial by libvirt URI, probe, disconnect)
//   - A typed view of domain XML backed by libvirt.org/go/libvirtxml
//
// Connection Management:
//
// Endpoints are reached by their libvirt URI. Local URIs ("qemu:///system",
// "lxc:///", "xen:///") use the libvirtd unix socket; "+tcp" URIs use the
// daemon's TCP listener:
//
//	mgr := libvirt.NewManager(log)
//	client := mgr.Connect(ctx, endpoint)
//	if client == nil {
//	    // endpoint unreachable; the reason was logged
//	}
//	defer mgr.Disconnect(client)
//
// Connections are owned by the call that opened them and are never pooled.
//
// Descriptors:
//
// ParseDescriptor turns DomainGetXMLDesc output into a Descriptor whose
// accessors (VNCPort, VolumePaths) replace ad hoc text matching.
//
// Consumer-Side Interfaces:
//
// This package does not define interfaces over go-libvirt. Consumers
// (internal/vm, internal/storage) declare the operations they need and
// *libvirt.Libvirt satisfies them implicitly.
package libvirt
