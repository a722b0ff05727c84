package archive

import (
	"fmt"
	"strings"

	"github.com/gobeaver/filestag"
)

// URI schemes addressing files inside archives. zip:// is accepted as an
// alias.
const (
	Scheme      = "archive://"
	AliasScheme = "zip://"
)

const zipExt = ".zip"

// URI is a parsed archive address. Exactly one of ID and ArchivePath is
// set.
type URI struct {
	ID          string
	ArchivePath string
	Name        string
}

// IsArchiveURI reports whether s uses an archive scheme.
func IsArchiveURI(s string) bool {
	return strings.HasPrefix(s, Scheme) || strings.HasPrefix(s, AliasScheme)
}

// ParseURI parses archive://@<id>/<name> and archive://<file>.zip/<name>.
func ParseURI(uri string) (URI, error) {
	var rest string
	switch {
	case strings.HasPrefix(uri, Scheme):
		rest = strings.TrimPrefix(uri, Scheme)
	case strings.HasPrefix(uri, AliasScheme):
		rest = strings.TrimPrefix(uri, AliasScheme)
	default:
		return URI{}, &filestag.PathError{Op: "parse", Path: uri, Err: filestag.ErrNotSupported}
	}

	if strings.HasPrefix(rest, "@") {
		id, name, _ := strings.Cut(rest[1:], "/")
		if id == "" {
			return URI{}, &filestag.PathError{Op: "parse", Path: uri, Err: fmt.Errorf("%w: archive identifier missing", filestag.ErrInvalidName)}
		}
		return URI{ID: id, Name: filestag.NormalizeName(name)}, nil
	}

	lower := strings.ToLower(rest)
	if strings.HasSuffix(lower, zipExt) {
		return URI{ArchivePath: rest}, nil
	}
	i := strings.Index(lower, zipExt+"/")
	if i <= 0 {
		return URI{}, &filestag.PathError{Op: "parse", Path: uri, Err: fmt.Errorf("%w: no archive file in uri", filestag.ErrInvalidName)}
	}
	end := i + len(zipExt)
	return URI{ArchivePath: rest[:end], Name: filestag.NormalizeName(rest[end+1:])}, nil
}

// String formats u back into a URI.
func (u URI) String() string {
	base := Scheme + u.ArchivePath
	if u.ID != "" {
		base = Scheme + "@" + u.ID
	}
	if u.Name == "" {
		return base
	}
	return base + "/" + u.Name
}
