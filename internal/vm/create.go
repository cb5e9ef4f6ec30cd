package vm

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/disk"
	"github.com/jbweber/anvil/internal/errdefs"
	lv "github.com/jbweber/anvil/internal/libvirt"
	"github.com/jbweber/anvil/internal/naming"
	"github.com/jbweber/anvil/internal/profile"
	"github.com/jbweber/anvil/internal/storage"
	"github.com/jbweber/anvil/internal/unattend"
)

// Create provisions a disk volume, optional answer-file media and a new
// domain on endpoint id, and returns the domain's status.
//
// This orchestrates the entire VM creation process:
//  1. Resolve hypervisor and common defaults for absent attributes
//  2. Render the volume descriptor and create the volume
//  3. Build answer-file media if "autounattend" is set
//  4. Render the domain in create mode and start it as a transient domain
//  5. Render the domain in define mode with the assigned UUID and persist it
//
// On any failure after the volume exists, the volume (and media, and a
// started transient domain) are removed on a best-effort basis and the
// original error is returned.
func (c *Controller) Create(ctx context.Context, id string, attrs Attributes) (st Status, err error) {
	defer c.observe("create", time.Now(), &err)

	err = c.withSession(ctx, id, func(ep config.Endpoint, sess session) error {
		var cerr error
		st, cerr = c.createWithDeps(ctx, ep, sess, attrs)
		return cerr
	})
	return st, err
}

// createWithDeps creates a VM with injected dependencies.
func (c *Controller) createWithDeps(ctx context.Context, ep config.Endpoint, sess session, attrs Attributes) (Status, error) {
	vars, err := c.resolve(ep, attrs)
	if err != nil {
		return Status{}, err
	}

	name, err := vars.Required(AttrName)
	if err != nil {
		return Status{}, err
	}
	storageName, err := vars.Required(AttrStorageName)
	if err != nil {
		return Status{}, err
	}
	kib, err := memoryKiB(vars)
	if err != nil {
		return Status{}, err
	}

	log := c.log.WithValues("endpoint", ep.ID, "vm", name)

	log.Info("Checking if VM already exists...")
	if _, err := sess.DomainLookupByName(name); err == nil {
		return Status{}, errdefs.AlreadyExistsf("VM %s already exists", name)
	} else if !lv.IsNoDomain(err) {
		return Status{}, fmt.Errorf("failed to look up VM %s: %w", name, err)
	}

	diskXML, err := c.renderer.RenderDisk(vars.templateMap())
	if err != nil {
		return Status{}, err
	}

	sm := c.volumes(sess)

	log.Info("Creating disk volume...", "pool", ep.StoragePool, "volume", naming.VolumeName(storageName))
	vol, err := sm.CreateVolume(ctx, ep.StoragePool, diskXML)
	if err != nil {
		return Status{}, err
	}

	// State tracking for cleanup
	var (
		createErr error
		mediaPath string
		transient *libvirt.Domain
	)
	defer func() {
		if createErr != nil {
			c.rollbackCreate(context.WithoutCancel(ctx), log, sess, sm, vol, mediaPath, transient)
		}
	}()

	if vars.Has(AttrAutounattend) {
		log.Info("Building answer-file media...")
		var media mediaBuilder
		media, createErr = c.newMedia(ep)
		if createErr != nil {
			return Status{}, createErr
		}
		mediaPath, createErr = media.Build(ctx, []byte(vars.String(AttrAutounattend)), storageName)
		if createErr != nil {
			return Status{}, createErr
		}
		attachMedia(vars, media.Format(), mediaPath)
	} else {
		vars[attrFloppy] = false
	}

	vars[AttrMemory] = kib
	vars[attrDiskPath] = vol.Path
	vars[attrMode] = modeCreate

	var domainXML string
	domainXML, createErr = c.renderer.RenderDomain(vars.templateMap())
	if createErr != nil {
		return Status{}, createErr
	}

	log.Info("Starting domain...")
	var dom libvirt.Domain
	dom, createErr = sess.DomainCreateXML(domainXML, 0)
	if createErr != nil {
		createErr = fmt.Errorf("failed to start domain: %w", createErr)
		return Status{}, createErr
	}
	transient = &dom

	vars[attrUUID] = uuid.UUID(dom.UUID).String()
	vars[attrMode] = modeDefine

	domainXML, createErr = c.renderer.RenderDomain(vars.templateMap())
	if createErr != nil {
		return Status{}, createErr
	}

	log.Info("Defining domain in libvirt...")
	if _, createErr = sess.DomainDefineXML(domainXML); createErr != nil {
		createErr = fmt.Errorf("failed to define domain: %w", createErr)
		return Status{}, createErr
	}

	log.Info("VM created successfully", "uuid", vars[attrUUID])
	return c.statusOf(sess, name), nil
}

// rollbackCreate removes what a failed create left behind. It is
// best-effort: failures are logged and never returned.
func (c *Controller) rollbackCreate(ctx context.Context, log logr.Logger, sess session, sm *storage.Manager, vol *storage.Volume, mediaPath string, transient *libvirt.Domain) {
	log.Info("Cleaning up after failed VM creation...")

	if transient != nil {
		if err := sess.DomainDestroy(*transient); err != nil && !lv.IsNoDomain(err) {
			log.Info("Warning: failed to stop transient domain", "error", err.Error())
		}
	}

	if mediaPath != "" {
		if _, err := sm.DeleteVolumeByPath(ctx, mediaPath); err != nil {
			log.Info("Warning: failed to remove answer-file media", "path", mediaPath, "error", err.Error())
		}
	}

	outcome, err := sm.DeleteVolume(ctx, vol.Pool, vol.Name)
	if err != nil {
		log.Info("Warning: failed to remove disk volume", "volume", vol.Name, "error", err.Error())
		return
	}
	if outcome == disk.Deleted {
		c.metrics.VolumeRolledBack()
	}
	log.Info("Cleanup complete")
}

// resolve layers attributes over profile and common defaults.
func (c *Controller) resolve(ep config.Endpoint, attrs Attributes) (Attributes, error) {
	resolved, err := profile.Resolve(ep, attrs)
	if err != nil {
		return nil, err
	}
	vars := Attributes(resolved)

	// A user-chosen display port disables automatic allocation.
	if vars.Has(AttrVNCPort) && vars.String(AttrVNCPort) != "-1" && !vars.Has(AttrVNCAutoport) {
		vars[AttrVNCAutoport] = "no"
	}
	for k, v := range commonDefaults {
		if !vars.Has(k) {
			vars[k] = v
		}
	}

	if !vars.Has(AttrMACAddress) && vars.Has(AttrIP) {
		mac, err := naming.MACFromIP(vars.String(AttrIP))
		if err != nil {
			return nil, errdefs.Wrap(errdefs.Validation, err, "invalid ip attribute")
		}
		vars[AttrMACAddress] = mac
	}

	return vars, nil
}

// attachMedia adds the template inputs that attach an answer-file image.
// Device placement supplied by the caller is kept.
func attachMedia(vars Attributes, format unattend.Format, path string) {
	vars[attrFloppy] = true
	vars[attrFloppyPath] = path
	vars[attrMediaDevice] = format.Device()

	target, bus := "fda", "fdc"
	if format == unattend.ISO {
		target, bus = "hdd", "ide"
	}
	if !vars.Has(attrMediaTarget) {
		vars[attrMediaTarget] = target
	}
	if !vars.Has(attrMediaBus) {
		vars[attrMediaBus] = bus
	}
}
