package planner

import (
	"fmt"
	"path"
	"strings"
)

// Matcher decides whether a relative path is excluded from a plan.
// Patterns ending in "/" match a directory and everything below it; glob
// patterns match the whole relative path or its base name; plain patterns
// match a path prefix or, for files, the base name.
type Matcher struct {
	patterns []string
}

// NewMatcher validates and compiles the patterns
func NewMatcher(patterns []string) (*Matcher, error) {
	var kept []string
	for _, p := range patterns {
		p = strings.TrimPrefix(strings.TrimSpace(p), "./")
		if p == "" {
			continue
		}
		if strings.ContainsAny(p, "*?[]") {
			if _, err := path.Match(p, ""); err != nil {
				return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
			}
		}
		kept = append(kept, p)
	}
	return &Matcher{patterns: kept}, nil
}

// Len reports the number of active patterns
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.patterns)
}

func (m *Matcher) IsExcluded(relPath string, isDir bool) bool {
	if m == nil {
		return false
	}
	relPath = strings.TrimPrefix(relPath, "./")
	for _, p := range m.patterns {
		if strings.HasSuffix(p, "/") {
			dirPattern := strings.TrimSuffix(p, "/")
			if strings.ContainsAny(dirPattern, "*?[]") {
				if isDir && matchGlob(dirPattern, relPath) {
					return true
				}
				continue
			}
			if relPath == dirPattern && isDir || strings.HasPrefix(relPath, dirPattern+"/") {
				return true
			}
			continue
		}
		if strings.ContainsAny(p, "*?[]") {
			if matchGlob(p, relPath) {
				return true
			}
			continue
		}
		if relPath == p || strings.HasPrefix(relPath, p+"/") {
			return true
		}
		if !isDir && path.Base(relPath) == p {
			return true
		}
	}
	return false
}

func matchGlob(pattern, relPath string) bool {
	if ok, _ := path.Match(pattern, relPath); ok {
		return true
	}
	ok, _ := path.Match(pattern, path.Base(relPath))
	return ok
}
