package s3

import (
	"fmt"
	"strings"

	"github.com/gobeaver/filestag"
)

// Scheme prefixes S3 URIs.
const Scheme = "s3://"

// ObjectPath is a parsed s3://bucket/prefix URI.
type ObjectPath struct {
	Bucket     string
	SearchPath string
}

// IsS3URI reports whether s addresses an S3 bucket.
func IsS3URI(s string) bool {
	return strings.HasPrefix(s, Scheme)
}

// ParseURI parses s3://<bucket>[/<search-path>].
func ParseURI(uri string) (*ObjectPath, error) {
	if !IsS3URI(uri) {
		return nil, &filestag.PathError{Op: "parse", Path: uri, Err: filestag.ErrNotSupported}
	}
	bucket, rest, _ := strings.Cut(strings.TrimPrefix(uri, Scheme), "/")
	if bucket == "" {
		return nil, &filestag.PathError{Op: "parse", Path: uri, Err: fmt.Errorf("%w: bucket name missing", filestag.ErrInvalidConfig)}
	}
	return &ObjectPath{Bucket: bucket, SearchPath: filestag.NormalizeName(rest)}, nil
}

func (p *ObjectPath) String() string {
	if p.SearchPath == "" {
		return Scheme + p.Bucket
	}
	return Scheme + p.Bucket + "/" + p.SearchPath
}
