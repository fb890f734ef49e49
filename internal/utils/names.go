package utils

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/dl-alexandre/icdl/internal/types"
)

// Path separators, NUL and the other control characters (0x00-0x1f, 0x7f)
var invalidNameChars = regexp.MustCompile(`[/\\\x00-\x1f\x7f]`)

// SanitizeName makes a remote display name safe as one local path
// component. "." and ".." become "_"; an empty name falls back to
// "<id>.bin".
func SanitizeName(name, id string) string {
	name = invalidNameChars.ReplaceAllString(name, "_")
	switch strings.TrimSpace(name) {
	case "":
		if id == "" {
			return "_"
		}
		return SanitizeName(id, "") + ".bin"
	case ".", "..":
		return strings.Repeat("_", len(name))
	}
	return name
}

// NormalizeRemotePath trims surrounding slashes and collapses empty
// segments: "/a//b/" -> "a/b".
func NormalizeRemotePath(p string) string {
	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, s := range parts {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "/")
}

// JoinRel joins slash-separated relative path parts, skipping empty ones
func JoinRel(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if len(nonEmpty) == 0 {
		return ""
	}
	return path.Join(nonEmpty...)
}

// SplitExt splits name into base and extension ("a.tar.gz" -> "a.tar",
// ".gz"). Dotfiles without a further dot have no extension.
func SplitExt(name string) (string, string) {
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

// AssignNames returns the local name of every child, in listing order.
// Siblings share one namespace whatever their kind. The first holder of a
// name keeps it; later duplicates get "-N" before the extension, skipping
// any candidate that is already used or that another sibling carries as
// its real name.
func AssignNames(children []types.RemoteEntry) []string {
	sanitized := make([]string, len(children))
	real := make(map[string]bool, len(children))
	for i, c := range children {
		sanitized[i] = SanitizeName(c.Name, c.ID)
		real[sanitized[i]] = true
	}

	used := make(map[string]bool, len(children))
	out := make([]string, len(children))
	for i, c := range children {
		name := sanitized[i]
		if !used[name] {
			used[name] = true
			out[i] = name
			continue
		}

		base, ext := name, ""
		if !c.IsContainer() {
			base, ext = SplitExt(name)
		}
		for n := 1; ; n++ {
			candidate := fmt.Sprintf("%s-%d%s", base, n, ext)
			if used[candidate] || real[candidate] {
				continue
			}
			used[candidate] = true
			out[i] = candidate
			break
		}
	}
	return out
}
