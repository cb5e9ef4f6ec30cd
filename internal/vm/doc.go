// Package vm provides high-level VM lifecycle management operations.
//
// This package orchestrates the lower-level components (config, profile,
// render, storage, unattend, libvirt) to provide simple operations on
// virtual machines hosted by KVM, Xen or LXC endpoints.
//
// The main operations are:
//   - Create: provision a disk, optional answer-file media, and a domain
//   - Delete: remove a domain and optionally its volumes
//   - Start, Shutdown, Shutoff, Reboot, Pause, Resume: state transitions
//   - Get/SetMemory, Get/SetVCPUs, Get/SetDiskSize: sizing
//   - GetVNCPort, GetVNCHostname: display access
//   - GetStatus, List, Ping: observation
//
// Every operation names an endpoint from the registry and describes the VM
// with an Attributes map. Each call opens its own connection and closes it
// before returning.
//
// Error Handling:
//
// Errors carry an errdefs kind (NotFound, Precondition, Validation, ...)
// that callers match with errors.Is. Create cleans up on failure on a
// best-effort basis; cleanup errors are logged and the original error is
// returned. GetStatus never fails and reports status.Unknown instead.
//
// Context Support:
//
// All operations accept a context.Context for cancellation. Cleanup after
// a failed create runs even if the context was cancelled.
package vm
