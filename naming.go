package safebox

import (
	"path"
	"sort"
	"strings"
)

// Physical suffixes appended to a logical name. They are part of the on-disk
// format and must not change.
const (
	DataSuffix       = ".d"
	HashSuffix       = ".m"
	BackupSuffix     = ".b"
	BackupHashSuffix = "_b.m"
)

// Role identifies one member of a companion set.
type Role int

const (
	RoleData Role = iota
	RoleHash
	RoleBackup
	RoleBackupHash
)

// PhysicalName returns the physical file name for the given role of a
// logical file.
//
// Example: PhysicalName("logs/boot", RoleHash) → "logs/boot.m"
func PhysicalName(name string, role Role) string {
	switch role {
	case RoleHash:
		return name + HashSuffix
	case RoleBackup:
		return name + BackupSuffix
	case RoleBackupHash:
		return name + BackupHashSuffix
	default:
		return name + DataSuffix
	}
}

// CleanPath normalizes a slash-separated name relative to a driver root.
// The root itself cleans to "".
func CleanPath(p string) string {
	clean := path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "." {
		return ""
	}
	return clean
}

// LogicalNames reconstructs the logical names of hash-verified files from a
// flat listing of physical base names. Names are grouped by the text before
// their first '.'; names with no '.' or an empty base are ignored. A group is
// reported only when both its data and hash companions are present. The
// result is sorted.
func LogicalNames(physical []string) []string {
	type companions struct{ data, hash bool }
	groups := make(map[string]*companions)

	for _, name := range physical {
		dot := strings.IndexByte(name, '.')
		if dot <= 0 {
			continue
		}
		base, ext := name[:dot], name[dot:]
		g, ok := groups[base]
		if !ok {
			g = &companions{}
			groups[base] = g
		}
		switch ext {
		case DataSuffix:
			g.data = true
		case HashSuffix:
			g.hash = true
		}
	}

	names := make([]string, 0, len(groups))
	for base, g := range groups {
		if g.data && g.hash {
			names = append(names, base)
		}
	}
	sort.Strings(names)
	return names
}
