package disk

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/user"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// qemuConfPath is where libvirt configures the QEMU process identity.
const qemuConfPath = "/etc/libvirt/qemu.conf"

var (
	qemuUID  int
	qemuGID  int
	qemuErr  error
	qemuOnce sync.Once
)

// QEMUOwner returns the UID and GID the QEMU process runs as. It tries
// the user and group configured in qemu.conf, then the common "qemu" and
// "libvirt-qemu" accounts, and finally falls back to 107:107 with a non-nil
// error describing the fallback. The result is cached.
func QEMUOwner() (uid, gid int, err error) {
	qemuOnce.Do(func() {
		username, groupname := "", ""
		if f, err := os.Open(qemuConfPath); err == nil {
			username, groupname = parseQEMUConf(f)
			_ = f.Close()
		}
		qemuUID, qemuGID, qemuErr = lookupOwner(username, groupname)
	})
	return qemuUID, qemuGID, qemuErr
}

func lookupOwner(username, groupname string) (int, int, error) {
	candidates := []string{"qemu", "libvirt-qemu"}
	if username != "" {
		candidates = append([]string{username}, candidates...)
	}

	for i, name := range candidates {
		u, err := user.Lookup(name)
		if err != nil {
			continue
		}
		gidStr := u.Gid
		if i == 0 && username != "" && groupname != "" {
			if g, err := user.LookupGroup(groupname); err == nil {
				gidStr = g.Gid
			}
		}
		uid, err1 := strconv.Atoi(u.Uid)
		gid, err2 := strconv.Atoi(gidStr)
		if err1 == nil && err2 == nil {
			return uid, gid, nil
		}
	}

	return 107, 107, fmt.Errorf("could not determine QEMU user/group, using fallback UID/GID 107")
}

// parseQEMUConf extracts the user and group settings from qemu.conf text.
func parseQEMUConf(r io.Reader) (username, groupname string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), "\"'")
		switch strings.TrimSpace(key) {
		case "user":
			username = value
		case "group":
			groupname = value
		}
	}
	return username, groupname
}

// ChownToQEMU hands path to the QEMU user so the hypervisor can open it.
// When the owner cannot be determined the fallback IDs are used.
func ChownToQEMU(fsys afero.Fs, path string) error {
	uid, gid, _ := QEMUOwner()
	if err := fsys.Chown(path, uid, gid); err != nil {
		return fmt.Errorf("failed to set ownership on %s: %w", path, err)
	}
	return nil
}
