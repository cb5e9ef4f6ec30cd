package vm

import (
	"context"
	"fmt"
	"time"

	"github.com/jbweber/anvil/internal/config"
	lv "github.com/jbweber/anvil/internal/libvirt"
)

// Delete removes VM attrs["name"] from endpoint id.
//
// This orchestrates the destruction process:
//  1. Look up the VM
//  2. If "delete_volumes" is set, delete every file-backed disk, floppy,
//     container filesystem and answer-file image the VM references
//  3. Force stop the VM if it is active
//  4. Undefine the VM
//
// A volume that cannot be deleted aborts the operation before the VM is
// touched, so the caller can retry. Files that are already gone are fine.
func (c *Controller) Delete(ctx context.Context, id string, attrs Attributes) (st Status, err error) {
	defer c.observe("delete", time.Now(), &err)

	name, err := attrs.Required(AttrName)
	if err != nil {
		return Status{}, err
	}

	err = c.withSession(ctx, id, func(ep config.Endpoint, sess session) error {
		log := c.log.WithValues("endpoint", ep.ID, "vm", name)

		log.Info("Looking up VM...")
		dom, err := lookup(sess, name)
		if err != nil {
			return err
		}

		if attrs.Bool(AttrDeleteVolumes) {
			desc, err := sess.DomainGetXMLDesc(dom, 0)
			if err != nil {
				return fmt.Errorf("failed to read VM %s descriptor: %w", name, err)
			}
			d, err := lv.ParseDescriptor(desc)
			if err != nil {
				return err
			}

			sm := c.volumes(sess)
			for _, path := range d.VolumePaths() {
				log.Info("Deleting volume...", "path", path)
				outcome, err := sm.DeleteVolumeByPath(ctx, path)
				if err != nil {
					return fmt.Errorf("failed to delete volume %s of VM %s: %w", path, name, err)
				}
				log.V(1).Info("Volume removed", "path", path, "outcome", outcome.String())
			}
		}

		active, err := sess.DomainIsActive(dom)
		if err != nil {
			return fmt.Errorf("failed to check whether VM %s is active: %w", name, err)
		}
		if active == 1 {
			log.Info("Force stopping VM...")
			if err := sess.DomainDestroy(dom); err != nil {
				return fmt.Errorf("failed to stop VM %s: %w", name, err)
			}
		}

		log.Info("Undefining domain...")
		if err := sess.DomainUndefine(dom); err != nil {
			// A transient domain vanishes once destroyed.
			if !lv.IsNoDomain(err) {
				return fmt.Errorf("failed to undefine VM %s: %w", name, err)
			}
		}

		log.Info("VM deleted successfully")
		st = c.statusOf(sess, name)
		return nil
	})
	return st, err
}
