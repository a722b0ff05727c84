package filestag

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// Mask matches file names against a glob search mask such as "*.png" or
// "images/**/*.jpg". A mask without a slash is matched against the base
// name only.
type Mask struct {
	pattern string
	g       glob.Glob
	full    bool
}

// CompileMask compiles pattern. An empty pattern matches everything.
func CompileMask(pattern string) (*Mask, error) {
	if pattern == "" || pattern == "*" || pattern == "**" {
		return &Mask{pattern: pattern}, nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("%w: invalid search mask %q: %v", ErrInvalidConfig, pattern, err)
	}
	return &Mask{pattern: pattern, g: g, full: strings.Contains(pattern, "/")}, nil
}

// String returns the source pattern.
func (m *Mask) String() string {
	return m.pattern
}

// Match reports whether name satisfies the mask.
func (m *Mask) Match(name string) bool {
	if m == nil || m.g == nil {
		return true
	}
	if m.full {
		return m.g.Match(name)
	}
	return m.g.Match(path.Base(name))
}
