package resolver

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/shirou/gopsutil/disk"

	"thumbcache/internal/filesystem"
	"thumbcache/internal/logging"
)

// DefaultVolumesDir is where removable and network volumes are attached.
const DefaultVolumesDir = "/Volumes"

// VolumeSource lists the currently mounted volume roots.
type VolumeSource interface {
	Volumes() ([]string, error)
}

// pseudoFilesystems never hold user files.
var pseudoFilesystems = map[string]bool{
	"autofs": true, "binfmt_misc": true, "bpf": true, "cgroup": true,
	"cgroup2": true, "configfs": true, "debugfs": true, "devfs": true,
	"devpts": true, "devtmpfs": true, "fusectl": true, "hugetlbfs": true,
	"mqueue": true, "nsfs": true, "proc": true, "pstore": true,
	"securityfs": true, "sysfs": true, "tracefs": true, "rpc_pipefs": true,
	"nullfs": true, "squashfs": true,
}

// MountTable reads the system mount table and the entries of a volumes
// directory.
type MountTable struct {
	// VolumesDir is scanned for attached volumes. Defaults to /Volumes.
	VolumesDir string
	// SkipPartitions ignores the system mount table.
	SkipPartitions bool
}

// Volumes returns every mount point and volumes directory entry, sorted
// and without duplicates. The filesystem root is never a volume.
func (m MountTable) Volumes() ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		p = Normalize(p)
		if p == "/" || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	if !m.SkipPartitions {
		parts, err := disk.Partitions(true)
		if err != nil {
			logging.Warn("Failed to read mount table: %v", err)
		}
		for _, p := range parts {
			if pseudoFilesystems[p.Fstype] {
				continue
			}
			add(p.Mountpoint)
		}
	}

	dir := m.VolumesDir
	if dir == "" {
		dir = DefaultVolumesDir
	}
	entries, err := filesystem.ReadDirWithRetry(dir, filesystem.DefaultRetryConfig())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return out, err
	}
	for _, e := range entries {
		if e.IsDir() || e.Type()&os.ModeSymlink != 0 {
			add(filepath.Join(dir, e.Name()))
		}
	}

	sort.Strings(out)
	return out, nil
}

// StaticVolumes is a fixed list of volume roots.
type StaticVolumes []string

// Volumes returns the normalized list.
func (s StaticVolumes) Volumes() ([]string, error) {
	out := make([]string, 0, len(s))
	for _, v := range s {
		out = append(out, Normalize(v))
	}
	return out, nil
}
