package source

import (
	"github.com/gobeaver/filestag"
)

// ============================================================================
// Filter results
// ============================================================================

// Action tells the enumeration what to do with a candidate.
type Action int

const (
	// Keep accepts the candidate under its own name.
	Keep Action = iota
	// Skip rejects the candidate.
	Skip
	// Rename accepts the candidate under FilterResult.Name.
	Rename
)

func (a Action) String() string {
	switch a {
	case Keep:
		return "keep"
	case Skip:
		return "skip"
	case Rename:
		return "rename"
	default:
		return "unknown"
	}
}

// FilterResult is the decision of a Filter for one candidate.
type FilterResult struct {
	Action Action
	// Name is the output name, only set for Rename.
	Name string
}

// KeepEntry accepts a candidate.
func KeepEntry() FilterResult { return FilterResult{Action: Keep} }

// SkipEntry rejects a candidate.
func SkipEntry() FilterResult { return FilterResult{Action: Skip} }

// RenameEntry accepts a candidate and emits it as name.
func RenameEntry(name string) FilterResult {
	return FilterResult{Action: Rename, Name: filestag.NormalizeName(name)}
}

// Accepted reports whether the candidate passes.
func (r FilterResult) Accepted() bool {
	return r.Action != Skip
}

// Candidate is what a Filter gets to see.
type Candidate struct {
	// Index is the position of the entry among the mask and path matched
	// entries of the listing.
	Index int
	// Name is the current output name. Earlier filters of a Chain may have
	// renamed it.
	Name  string
	Entry filestag.FileListEntry
}

// ============================================================================
// Filter interface
// ============================================================================

// Filter decides per candidate whether it is processed, skipped or renamed.
//
// Filters compose with Chain, Any and Not:
//
//	f := source.Chain(
//	    source.Glob("*.png"),
//	    source.FilterFunc(func(c source.Candidate) source.FilterResult {
//	        if c.Entry.Size > 10<<20 {
//	            return source.SkipEntry()
//	        }
//	        return source.KeepEntry()
//	    }),
//	)
type Filter interface {
	Apply(c Candidate) FilterResult
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(c Candidate) FilterResult

// Apply implements Filter
func (f FilterFunc) Apply(c Candidate) FilterResult {
	return f(c)
}

// Match keeps the candidates pred returns true for.
func Match(pred func(c Candidate) bool) Filter {
	return FilterFunc(func(c Candidate) FilterResult {
		if pred(c) {
			return KeepEntry()
		}
		return SkipEntry()
	})
}

// All keeps everything.
func All() Filter {
	return FilterFunc(func(Candidate) FilterResult { return KeepEntry() })
}

type globFilter struct {
	mask *filestag.Mask
}

// Glob keeps candidates whose output name matches pattern. An invalid
// pattern matches nothing.
func Glob(pattern string) Filter {
	mask, err := filestag.CompileMask(pattern)
	if err != nil {
		return FilterFunc(func(Candidate) FilterResult { return SkipEntry() })
	}
	return &globFilter{mask: mask}
}

func (f *globFilter) Apply(c Candidate) FilterResult {
	if f.mask.Match(c.Name) {
		return KeepEntry()
	}
	return SkipEntry()
}

// ============================================================================
// Composition
// ============================================================================

type chainFilter struct {
	filters []Filter
}

// Chain applies filters in order. The first Skip ends the chain, a Rename
// is visible to the filters after it.
func Chain(filters ...Filter) Filter {
	return &chainFilter{filters: filters}
}

func (f *chainFilter) Apply(c Candidate) FilterResult {
	renamed := false
	for _, filter := range f.filters {
		if filter == nil {
			continue
		}
		r := filter.Apply(c)
		switch r.Action {
		case Skip:
			return r
		case Rename:
			c.Name = r.Name
			renamed = true
		}
	}
	if renamed {
		return FilterResult{Action: Rename, Name: c.Name}
	}
	return KeepEntry()
}

type anyFilter struct {
	filters []Filter
}

// Any accepts a candidate if one of the filters does, using the first
// accepting filter's result.
func Any(filters ...Filter) Filter {
	return &anyFilter{filters: filters}
}

func (f *anyFilter) Apply(c Candidate) FilterResult {
	for _, filter := range f.filters {
		if filter == nil {
			continue
		}
		if r := filter.Apply(c); r.Accepted() {
			return r
		}
	}
	return SkipEntry()
}

type notFilter struct {
	filter Filter
}

// Not inverts the decision of filter. Renames are dropped.
func Not(filter Filter) Filter {
	return &notFilter{filter: filter}
}

func (f *notFilter) Apply(c Candidate) FilterResult {
	if f.filter.Apply(c).Accepted() {
		return SkipEntry()
	}
	return KeepEntry()
}
