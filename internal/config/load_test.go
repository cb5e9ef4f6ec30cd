package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/jbweber/anvil/internal/errdefs"
	"github.com/jbweber/anvil/internal/profile"
)

const testINI = `[general]
domain_template_file_path = /etc/anvil/domain.xml.tmpl
disk_template_file_path = /etc/anvil/disk.xml.tmpl
command_prefix = sudo -n

[kvm1]
url = qemu:///system
hyp_type = kvm
emulator_path = /usr/bin/qemu-kvm
default_disk_type = qcow2

[xen1]
url = xen+tcp://xenhost/
hyp_type = xen
emulator_path = /usr/lib/xen/bin/qemu-dm
media_format = iso
connect_timeout = 10s
`

const testYAML = `general:
  domain_template_file_path: /etc/anvil/domain.xml.tmpl
  disk_template_file_path: /etc/anvil/disk.xml.tmpl
  command_prefix: sudo -n
hypervisors:
  - id: xen1
    url: xen+tcp://xenhost/
    hyp_type: xen
    emulator_path: /usr/lib/xen/bin/qemu-dm
    media_format: iso
    connect_timeout: 10s
  - id: kvm1
    url: qemu:///system
    hyp_type: kvm
    emulator_path: /usr/bin/qemu-kvm
    defaults:
      disk_type: qcow2
`

const testTOML = `[general]
domain_template_file_path = "/etc/anvil/domain.xml.tmpl"
disk_template_file_path = "/etc/anvil/disk.xml.tmpl"
command_prefix = "sudo -n"

[[hypervisors]]
id = "kvm1"
url = "qemu:///system"
hyp_type = "kvm"
emulator_path = "/usr/bin/qemu-kvm"

[hypervisors.defaults]
disk_type = "qcow2"

[[hypervisors]]
id = "xen1"
url = "xen+tcp://xenhost/"
hyp_type = "xen"
emulator_path = "/usr/lib/xen/bin/qemu-dm"
media_format = "iso"
connect_timeout = "10s"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadFromFile_FormatsAgree(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"ini", "hypervisors.conf", testINI},
		{"yaml", "hypervisors.yaml", testYAML},
		{"toml", "hypervisors.toml", testTOML},
	}

	var first *File
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := LoadFromFile(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("LoadFromFile failed: %v", err)
			}

			if len(f.Hypervisors) != 2 {
				t.Fatalf("Expected 2 hypervisors, got %d", len(f.Hypervisors))
			}
			kvm := f.Hypervisors[0]
			if kvm.ID != "kvm1" || kvm.Type != profile.KVM {
				t.Errorf("Expected kvm1/kvm first, got %s/%v", kvm.ID, kvm.Type)
			}
			if kvm.StoragePool != DefaultStoragePool {
				t.Errorf("Expected default storage pool, got %q", kvm.StoragePool)
			}
			if kvm.Defaults["disk_type"] != "qcow2" {
				t.Errorf("Expected disk_type default qcow2, got %q", kvm.Defaults["disk_type"])
			}
			xen := f.Hypervisors[1]
			if xen.Timeout != 10*time.Second {
				t.Errorf("Expected 10s timeout, got %v", xen.Timeout)
			}
			if xen.MediaFormat != MediaISO {
				t.Errorf("Expected iso media, got %q", xen.MediaFormat)
			}
			if f.General.DiskTemplatePath != "/etc/anvil/disk.xml.tmpl" {
				t.Errorf("Unexpected disk template path %q", f.General.DiskTemplatePath)
			}
			if args, err := f.General.CommandArgs(); err != nil || !reflect.DeepEqual(args, []string{"sudo", "-n"}) {
				t.Errorf("Unexpected command prefix %v (err %v)", args, err)
			}

			if first == nil {
				first = f
				return
			}
			if !reflect.DeepEqual(first, f) {
				t.Errorf("%s registry differs from ini registry:\n got %+v\nwant %+v", tt.name, f, first)
			}
		})
	}
}

func TestLoadFromINI_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		kind    error
	}{
		{
			name:    "missing url",
			content: "[kvm1]\nhyp_type = kvm\n",
			kind:    errdefs.Configuration,
		},
		{
			name:    "missing type",
			content: "[kvm1]\nurl = qemu:///system\n",
			kind:    errdefs.Configuration,
		},
		{
			name:    "unknown type",
			content: "[esx1]\nurl = esx://host/\nhyp_type = vmware\n",
			kind:    errdefs.NotSupported,
		},
		{
			name:    "bad media format",
			content: "[kvm1]\nurl = qemu:///system\nhyp_type = kvm\nmedia_format = usb\n",
			kind:    errdefs.Configuration,
		},
		{
			name:    "bad timeout",
			content: "[kvm1]\nurl = qemu:///system\nhyp_type = kvm\nconnect_timeout = soon\n",
			kind:    errdefs.Configuration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromINI([]byte(tt.content))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !errors.Is(err, tt.kind) {
				t.Errorf("Expected %v, got %v", tt.kind, err)
			}
		})
	}
}

func TestLoadFromYAML_DuplicateID(t *testing.T) {
	content := `hypervisors:
  - {id: a, url: "qemu:///system", hyp_type: kvm}
  - {id: a, url: "lxc:///", hyp_type: lxc}
`
	_, err := LoadFromYAML([]byte(content))
	if !errors.Is(err, errdefs.Configuration) {
		t.Fatalf("Expected configuration error for duplicate id, got %v", err)
	}
}

func TestLoadFromFile_UnsupportedExtension(t *testing.T) {
	_, err := LoadFromFile(writeFile(t, "hypervisors.json", "{}"))
	if !errors.Is(err, errdefs.Configuration) {
		t.Fatalf("Expected configuration error, got %v", err)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.conf"))
	if !errors.Is(err, errdefs.Configuration) {
		t.Fatalf("Expected configuration error, got %v", err)
	}
}

func TestLoadFromINI_BadCommandPrefix(t *testing.T) {
	_, err := LoadFromINI([]byte("[general]\ncommand_prefix = sudo 'unterminated\n\n[kvm1]\nurl = qemu:///system\nhyp_type = kvm\n"))
	if !errors.Is(err, errdefs.Configuration) {
		t.Errorf("Expected configuration error, got %v", err)
	}
}
