package azure

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/gobeaver/filestag"
)

const (
	// Scheme prefixes Azure blob URIs.
	Scheme = "blob://"
	// ConnectionPrefix starts a raw Azure storage connection string.
	ConnectionPrefix = "DefaultEndpointsProtocol="

	endpointMarker = "core.windows.net"
	sasMarker      = "blob." + endpointMarker
)

// BlobPath is a parsed blob URI.
type BlobPath struct {
	ConnectionString string
	Protocol         string
	AccountName      string
	AccountKey       string
	EndpointSuffix   string
	Container        string
	SearchPath       string

	// ServiceURL and SAS are set for SAS URLs, which carry no connection
	// string.
	ServiceURL string
	SAS        string
}

var envTemplate = regexp.MustCompile(`\{\{env\.([A-Za-z_][A-Za-z0-9_]*)\}\}`)

// ResolveEnv replaces {{env.NAME}} references with the value of the
// environment variable NAME. Unset variables are left untouched.
func ResolveEnv(s string) string {
	return envTemplate.ReplaceAllStringFunc(s, func(ref string) string {
		name := envTemplate.FindStringSubmatch(ref)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return ref
	})
}

// IsBlobURI reports whether s addresses Azure blob storage.
func IsBlobURI(s string) bool {
	return strings.HasPrefix(s, Scheme) || strings.HasPrefix(s, ConnectionPrefix) || IsSASURL(s)
}

// IsSASURL reports whether s is an http(s) URL of an Azure blob endpoint,
// https://<account>.blob.core.windows.net/<container>[/<path>]?<sas>.
func IsSASURL(s string) bool {
	return (strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")) && strings.Contains(s, sasMarker)
}

// ParseURI parses blob://<connection-string>/<container>[/<search-path>].
// The scheme may be omitted when s starts with a raw connection string.
// SAS URLs are accepted as well.
func ParseURI(uri string) (*BlobPath, error) {
	if !IsBlobURI(uri) {
		return nil, &filestag.PathError{Op: "parse", Path: redact(uri), Err: filestag.ErrNotSupported}
	}
	if IsSASURL(uri) {
		return parseSAS(uri)
	}
	s := ResolveEnv(strings.TrimPrefix(uri, Scheme))

	conn, rest := splitConnection(s)
	container, searchPath, _ := strings.Cut(rest, "/")

	p := &BlobPath{
		ConnectionString: conn,
		Container:        container,
		SearchPath:       filestag.NormalizeName(searchPath),
	}

	for _, element := range strings.Split(conn, ";") {
		if element == "" {
			continue
		}
		key, value, ok := strings.Cut(element, "=")
		if !ok {
			return nil, &filestag.PathError{Op: "parse", Path: redact(uri), Err: fmt.Errorf("%w: missing value in key value pair", filestag.ErrInvalidConfig)}
		}
		switch key {
		case "DefaultEndpointsProtocol":
			p.Protocol = value
		case "AccountName":
			p.AccountName = value
		case "AccountKey":
			p.AccountKey = value
		case "EndpointSuffix":
			p.EndpointSuffix = value
		}
	}

	if strings.HasPrefix(p.AccountKey, "{{") && strings.HasSuffix(p.AccountKey, "}}") {
		return nil, &filestag.PathError{Op: "parse", Path: redact(uri), Err: fmt.Errorf("%w: account key not specified", filestag.ErrInvalidConfig)}
	}
	if p.AccountName == "" {
		return nil, &filestag.PathError{Op: "parse", Path: redact(uri), Err: fmt.Errorf("%w: account name missing", filestag.ErrInvalidConfig)}
	}
	return p, nil
}

func parseSAS(uri string) (*BlobPath, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return nil, &filestag.PathError{Op: "parse", Path: redactSAS(uri), Err: fmt.Errorf("%w: malformed SAS URL", filestag.ErrInvalidConfig)}
	}
	account, _, _ := strings.Cut(u.Host, ".")
	container, searchPath, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")

	return &BlobPath{
		Protocol:       u.Scheme,
		AccountName:    account,
		EndpointSuffix: endpointMarker,
		Container:      container,
		SearchPath:     filestag.NormalizeName(searchPath),
		ServiceURL:     u.Scheme + "://" + u.Host + "/",
		SAS:            u.RawQuery,
	}, nil
}

// splitConnection separates the connection string from the container
// path. Account keys may contain slashes, so a container is only split off
// behind the endpoint suffix. Without one the whole string is the
// connection string.
func splitConnection(s string) (conn, rest string) {
	if i := strings.Index(s, "EndpointSuffix="); i >= 0 {
		value := s[i+len("EndpointSuffix="):]
		if j := strings.IndexAny(value, ";/"); j >= 0 && value[j] == '/' {
			end := len(s) - len(value) + j
			return s[:end], s[end+1:]
		}
	}
	if i := strings.Index(s, endpointMarker+"/"); i >= 0 {
		end := i + len(endpointMarker)
		return s[:end], s[end+1:]
	}
	return s, ""
}

// redact hides the account key or SAS token in diagnostics.
func redact(s string) string {
	if IsSASURL(s) {
		return redactSAS(s)
	}
	i := strings.Index(s, "AccountKey=")
	if i < 0 {
		return s
	}
	end := strings.Index(s[i:], ";")
	if end < 0 {
		return s[:i] + "AccountKey=***"
	}
	return s[:i] + "AccountKey=***" + s[i+end:]
}

func redactSAS(s string) string {
	base, _, found := strings.Cut(s, "?")
	if !found {
		return s
	}
	return base + "?***"
}

// String returns the URI with the account key or SAS token hidden.
func (p *BlobPath) String() string {
	if p.ServiceURL != "" {
		s := p.ServiceURL + p.Container
		if p.SearchPath != "" {
			s += "/" + p.SearchPath
		}
		if p.SAS != "" {
			s += "?***"
		}
		return s
	}
	s := Scheme + redact(p.ConnectionString)
	if p.Container != "" {
		s += "/" + p.Container
	}
	if p.SearchPath != "" {
		s += "/" + p.SearchPath
	}
	return s
}
