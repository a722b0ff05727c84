// Package sink opens the write side of the storage backends from a target
// string, mirroring source.Open.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

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

// Option represents a configuration option
type Option func(*Options)

// Options contains the settings of the sinks created by Open
type Options struct {
	// Config supplies credentials and defaults
	Config *filestag.Config

	// CreateDirs creates missing parent directories on disk and sftp
	// targets. Defaults to Config.CreateDirs.
	CreateDirs *bool

	// Compression of in-memory archives on a 0..100 scale. Defaults to
	// Config.ArchiveCompression.
	Compression *int

	// CreateContainer and RecreateContainer prepare cloud containers
	CreateContainer   bool
	RecreateContainer bool

	// Timeout bounds every cloud upload. Defaults to Config.Timeout().
	Timeout time.Duration

	// Logger receives debug records, discarded when nil
	Logger *slog.Logger
}

// WithConfig sets the configuration
func WithConfig(cfg *filestag.Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithCreateDirs controls creation of missing parent directories
func WithCreateDirs(enabled bool) Option {
	return func(o *Options) {
		o.CreateDirs = &enabled
	}
}

// WithCompression sets the compression of in-memory archives
func WithCompression(compression int) Option {
	return func(o *Options) {
		o.Compression = &compression
	}
}

// WithCreateContainer creates a missing cloud container
func WithCreateContainer(enabled bool) Option {
	return func(o *Options) {
		o.CreateContainer = enabled
	}
}

// WithRecreateContainer deletes and recreates the cloud container
func WithRecreateContainer(enabled bool) Option {
	return func(o *Options) {
		o.RecreateContainer = enabled
	}
}

// WithTimeout sets the per-upload timeout of cloud sinks
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func (o *Options) createDirs() bool {
	if o.CreateDirs != nil {
		return *o.CreateDirs
	}
	return o.Config.CreateDirs
}

func (o *Options) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return o.Config.Timeout()
}

// Open creates the sink for target:
//
//   - "archive://" (or "zip://") collects files in an in-memory archive
//   - blob://, raw Azure connection strings and SAS URLs upload to a blob
//     container
//   - s3:// and gs:// upload to a bucket
//   - sftp:// writes to a remote directory
//   - an absolute path, optionally prefixed with file://, writes to disk
//
// A folder embedded in a cloud URI prefixes every stored name. Other
// targets fail with ErrNotSupported.
func Open(ctx context.Context, target string, opts ...Option) (filestag.Sink, error) {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Config == nil {
		o.Config = filestag.DefaultConfig()
	}

	s, err := open(ctx, target, &o)
	if err != nil {
		return nil, err
	}

	logger := o.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger.Debug("opened sink", slog.String("target", redact(target)), slog.String("type", fmt.Sprintf("%T", s)))
	return s, nil
}

func open(ctx context.Context, target string, o *Options) (filestag.Sink, error) {
	switch {
	case target == archive.Scheme || target == archive.AliasScheme:
		compression := o.Config.ArchiveCompression
		if o.Compression != nil {
			compression = *o.Compression
		}
		return zip.NewSink(zip.WithCompression(compression)), nil

	case azure.IsBlobURI(target):
		bp, err := azure.ParseURI(target)
		if err != nil {
			return nil, err
		}
		var clientOpts []azure.ClientOption
		if t := o.timeout(); t > 0 {
			clientOpts = append(clientOpts, azure.WithTimeout(t))
		}
		client, err := azure.NewClient(bp, clientOpts...)
		if err != nil {
			return nil, err
		}
		return o.cloudSink(ctx, client, bp.SearchPath)

	case s3.IsS3URI(target):
		op, err := s3.ParseURI(target)
		if err != nil {
			return nil, err
		}
		client, err := s3.NewClient(ctx, o.Config, op.Bucket)
		if err != nil {
			return nil, err
		}
		return o.cloudSink(ctx, client, op.SearchPath)

	case gcs.IsGCSURI(target):
		op, err := gcs.ParseURI(target)
		if err != nil {
			return nil, err
		}
		client, err := gcs.NewClient(ctx, o.Config, op.Bucket)
		if err != nil {
			return nil, err
		}
		return o.cloudSink(ctx, client, op.SearchPath)

	case sftp.IsSFTPURI(target):
		cfg, err := sftp.ParseURI(target, o.Config)
		if err != nil {
			return nil, err
		}
		b, err := sftp.New(cfg, sftp.WithLogger(o.Logger))
		if err != nil {
			return nil, err
		}
		return sftp.NewSink(b, o.createDirs()), nil
	}

	p := strings.TrimPrefix(target, "file://")
	if p != "" && !strings.Contains(p, "://") && filepath.IsAbs(p) {
		return disk.NewSink(p, disk.WithCreateDirs(o.createDirs()))
	}
	return nil, &filestag.PathError{Op: "open", Path: redact(target), Err: fmt.Errorf("%w: unknown sink target", filestag.ErrNotSupported)}
}

func (o *Options) cloudSink(ctx context.Context, client cloud.Client, folder string) (filestag.Sink, error) {
	s, err := cloud.NewSink(ctx, client,
		cloud.WithSubFolder(folder),
		cloud.WithCreateContainer(o.CreateContainer),
		cloud.WithRecreateContainer(o.RecreateContainer),
		cloud.WithSinkTimeout(o.timeout()),
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Bytes returns the finished container of an in-memory archive sink. The
// sink has to be closed first.
func Bytes(s filestag.Sink) ([]byte, error) {
	zs, ok := s.(*zip.Sink)
	if !ok {
		return nil, fmt.Errorf("%w: %T holds no archive", filestag.ErrNotSupported, s)
	}
	return zs.Bytes()
}

// Use opens target, hands the sink to fn and closes it afterwards, also
// when fn fails. For in-memory archives the finished container is
// returned, for every other target the result is nil.
func Use(ctx context.Context, target string, fn func(filestag.Sink) error, opts ...Option) ([]byte, error) {
	s, err := Open(ctx, target, opts...)
	if err != nil {
		return nil, err
	}

	fnErr := fn(s)
	if err := s.Close(); err != nil {
		return nil, errors.Join(fnErr, err)
	}
	if fnErr != nil {
		return nil, fnErr
	}

	if zs, ok := s.(*zip.Sink); ok {
		return zs.Bytes()
	}
	return nil, nil
}

func redact(target string) string {
	if azure.IsBlobURI(target) {
		if bp, err := azure.ParseURI(target); err == nil {
			return bp.String()
		}
		return azure.Scheme + "***"
	}
	return target
}
