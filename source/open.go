package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gobeaver/filestag"
	"github.com/gobeaver/filestag/archive"
	"github.com/gobeaver/filestag/driver/azure"
	"github.com/gobeaver/filestag/driver/cloud"
	"github.com/gobeaver/filestag/driver/disk"
	"github.com/gobeaver/filestag/driver/gcs"
	"github.com/gobeaver/filestag/driver/s3"
	"github.com/gobeaver/filestag/driver/sftp"
	"github.com/gobeaver/filestag/driver/zip"
)

// FileScheme is stripped from local paths.
const FileScheme = "file://"

// Descriptor names what a Source is opened on: an in-memory archive or a
// path or URI.
type Descriptor struct {
	Path string
	Data []byte
}

// Path describes a directory, an archive file or a URI.
func Path(p string) Descriptor {
	return Descriptor{Path: p}
}

// Bytes describes an archive held in memory.
func Bytes(data []byte) Descriptor {
	return Descriptor{Data: data}
}

// String returns the descriptor with credentials hidden.
func (d Descriptor) String() string {
	if d.Data != nil {
		return fmt.Sprintf("memory(%d bytes)", len(d.Data))
	}
	if azure.IsBlobURI(d.Path) {
		if p, err := azure.ParseURI(d.Path); err == nil {
			return p.String()
		}
		return azure.Scheme + "***"
	}
	return d.Path
}

// Open selects the backend for d and wraps it in a Source. The checks run
// in a fixed order:
//
//  1. in-memory data opens an archive
//  2. archive://, zip://, blob://, raw Azure connection strings, Azure SAS
//     URLs, s3://, gs://, sftp://, http(s):// archives and file:// select
//     by scheme
//  3. a path ending in .zip opens the archive file
//  4. any other scheme fails with ErrNotSupported
//  5. everything else is a local directory
//
// A search path embedded in the URI is prefixed to WithSearchPath.
func Open(ctx context.Context, d Descriptor, opts ...Option) (*Source, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Config == nil {
		o.Config = filestag.DefaultConfig()
	}

	backend, prefix, err := openBackend(ctx, d, &o)
	if err != nil {
		return nil, err
	}
	o.SearchPath = filestag.JoinName(prefix, o.SearchPath)

	logger := o.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger.Debug("opened source", slog.String("descriptor", d.String()), slog.String("backend", backend.Identifier()))

	return start(ctx, backend, o)
}

func openBackend(ctx context.Context, d Descriptor, o *Options) (filestag.Backend, string, error) {
	if d.Data != nil {
		a, err := zip.OpenBytes(d.Data)
		if err != nil {
			return nil, "", err
		}
		return zip.NewBackend(a, true), "", nil
	}

	p := strings.TrimSpace(d.Path)
	if p == "" {
		return nil, "", &filestag.PathError{Op: "open", Path: d.Path, Err: filestag.ErrInvalidName}
	}

	switch {
	case archive.IsArchiveURI(p):
		return openArchiveURI(p, o)
	case azure.IsBlobURI(p):
		return openAzure(p, o)
	case s3.IsS3URI(p):
		return openS3(ctx, p, o)
	case gcs.IsGCSURI(p):
		return openGCS(ctx, p, o)
	case sftp.IsSFTPURI(p):
		cfg, err := sftp.ParseURI(p, o.Config)
		if err != nil {
			return nil, "", err
		}
		b, err := sftp.New(cfg, sftp.WithLogger(o.Logger))
		if err != nil {
			return nil, "", err
		}
		return b, "", nil
	case isWebURL(p):
		return openWebArchive(ctx, p, o)
	case strings.HasPrefix(p, FileScheme):
		p = strings.TrimPrefix(p, FileScheme)
	}

	if isArchivePath(p) {
		a, err := zip.OpenFile(p, false)
		if err != nil {
			return nil, "", err
		}
		return zip.NewBackend(a, true), "", nil
	}
	if strings.Contains(p, "://") {
		return nil, "", &filestag.PathError{Op: "open", Path: d.String(), Err: fmt.Errorf("%w: unknown scheme", filestag.ErrNotSupported)}
	}

	b, err := disk.New(p)
	if err != nil {
		return nil, "", err
	}
	return b, "", nil
}

// isArchivePath reports whether p names a zip file rather than a folder.
func isArchivePath(p string) bool {
	if strings.HasSuffix(p, "/") || strings.HasSuffix(p, "\\") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(p), ".zip")
}

func isWebURL(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

func openArchiveURI(p string, o *Options) (filestag.Backend, string, error) {
	u, err := archive.ParseURI(p)
	if err != nil {
		return nil, "", err
	}
	if u.ID == "" {
		a, err := zip.OpenFile(u.ArchivePath, false)
		if err != nil {
			return nil, "", err
		}
		return zip.NewBackend(a, true), u.Name, nil
	}

	a, ok := o.registry().Lookup(u.ID)
	if !ok {
		return nil, "", &filestag.PathError{Op: "open", Path: p, Err: fmt.Errorf("%w: archive %q not registered", filestag.ErrNotExist, u.ID)}
	}
	// the registry keeps ownership of the handle
	return zip.NewBackend(a, false), u.Name, nil
}

func (o *Options) cloudOptions() []cloud.Option {
	pageSize := o.PageSize
	if pageSize <= 0 {
		pageSize = o.Config.PageSize
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = o.Config.Timeout()
	}
	return []cloud.Option{
		cloud.WithPageSize(pageSize),
		cloud.WithTimeout(timeout),
		cloud.WithLogger(o.Logger),
	}
}

func openAzure(p string, o *Options) (filestag.Backend, string, error) {
	bp, err := azure.ParseURI(p)
	if err != nil {
		return nil, "", err
	}
	var clientOpts []azure.ClientOption
	if t := o.Timeout; t > 0 {
		clientOpts = append(clientOpts, azure.WithTimeout(t))
	} else if t := o.Config.Timeout(); t > 0 {
		clientOpts = append(clientOpts, azure.WithTimeout(t))
	}
	client, err := azure.NewClient(bp, clientOpts...)
	if err != nil {
		return nil, "", err
	}
	return cloud.New(client, o.cloudOptions()...), bp.SearchPath, nil
}

func openS3(ctx context.Context, p string, o *Options) (filestag.Backend, string, error) {
	op, err := s3.ParseURI(p)
	if err != nil {
		return nil, "", err
	}
	client, err := s3.NewClient(ctx, o.Config, op.Bucket)
	if err != nil {
		return nil, "", err
	}
	return cloud.New(client, o.cloudOptions()...), op.SearchPath, nil
}

func openGCS(ctx context.Context, p string, o *Options) (filestag.Backend, string, error) {
	op, err := gcs.ParseURI(p)
	if err != nil {
		return nil, "", err
	}
	client, err := gcs.NewClient(ctx, o.Config, op.Bucket)
	if err != nil {
		return nil, "", err
	}
	return cloud.New(client, o.cloudOptions()...), op.SearchPath, nil
}

// openWebArchive downloads a zip archive and serves it from memory.
func openWebArchive(ctx context.Context, p string, o *Options) (filestag.Backend, string, error) {
	u, err := url.Parse(p)
	if err != nil {
		return nil, "", &filestag.PathError{Op: "open", Path: p, Err: fmt.Errorf("%w: %v", filestag.ErrInvalidName, err)}
	}
	if !isArchivePath(u.Path) {
		return nil, "", &filestag.PathError{Op: "open", Path: p, Err: fmt.Errorf("%w: only zip archives can be iterated over http", filestag.ErrNotSupported)}
	}

	data, err := o.fetcher().Fetch(ctx, p)
	if err != nil {
		return nil, "", err
	}
	a, err := zip.OpenBytes(data)
	if err != nil {
		return nil, "", err
	}
	return zip.NewBackend(a, true), "", nil
}

func (o *Options) fetcher() *filestag.Fetcher {
	if o.Fetcher != nil {
		return o.Fetcher
	}
	cfg := o.Config
	if cfg == nil {
		cfg = filestag.DefaultConfig()
	}
	return filestag.NewFetcherFromConfig(cfg, filestag.WithFetchLogger(o.Logger))
}
