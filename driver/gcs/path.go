package gcs

import (
	"fmt"
	"strings"

	"github.com/gobeaver/filestag"
)

// Scheme prefixes Google Cloud Storage URIs.
const Scheme = "gs://"

// ObjectPath is a parsed gs://bucket/prefix URI.
type ObjectPath struct {
	Bucket     string
	SearchPath string
}

// IsGCSURI reports whether s addresses a Cloud Storage bucket.
func IsGCSURI(s string) bool {
	return strings.HasPrefix(s, Scheme)
}

// ParseURI parses gs://<bucket>[/<search-path>].
func ParseURI(uri string) (*ObjectPath, error) {
	if !IsGCSURI(uri) {
		return nil, &filestag.PathError{Op: "parse", Path: uri, Err: filestag.ErrNotSupported}
	}
	bucket, rest, _ := strings.Cut(strings.TrimPrefix(uri, Scheme), "/")
	if bucket == "" {
		return nil, &filestag.PathError{Op: "parse", Path: uri, Err: fmt.Errorf("%w: bucket name missing", filestag.ErrInvalidConfig)}
	}
	return &ObjectPath{Bucket: bucket, SearchPath: filestag.NormalizeName(rest)}, nil
}
