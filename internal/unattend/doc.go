// Package unattend builds the small media images that carry an unattended
// installation answer file (Autounattend.xml) into a VM.
//
// Two media formats are supported:
//   - floppy: a FAT image made with mkfs.vfat and filled through a loop
//     mount. Needs root and the dosfstools package.
//   - iso: an ISO9660 image labelled OEMDRV, written in process.
//
// Each build stages its work in a private temporary directory, so builds
// for different VMs never share files. Builds for the same storage name
// are serialised because they publish to the same image path.
package unattend
