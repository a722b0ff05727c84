// Package cloud implements the paginated file source backend and the
// upload sink shared by the object store drivers. A driver only provides a
// Client; listing, timeouts and error classification live here.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gobeaver/filestag"
)

// Defaults used when no option or config overrides them.
const (
	DefaultPageSize = 100
	DefaultTimeout  = 30 * time.Second
)

// Client is the object store surface a driver has to provide.
type Client interface {
	// NewPager lists the objects whose name starts with prefix.
	NewPager(prefix string, pageSize int) Pager

	// Download returns the object content. A missing object yields an
	// error wrapping filestag.ErrNotExist.
	Download(ctx context.Context, name string) ([]byte, error)

	// Exists reports whether the object is present.
	Exists(ctx context.Context, name string) (bool, error)

	// Upload writes the object, replacing an existing one.
	Upload(ctx context.Context, name string, data []byte, contentType string) error

	// Delete removes the object.
	Delete(ctx context.Context, name string) error

	// EnsureContainer creates the container if missing. With recreate set,
	// an existing container is deleted and created again.
	EnsureContainer(ctx context.Context, recreate bool) error

	// Identifier names the container for diagnostics.
	Identifier() string

	// Close releases the client.
	Close() error
}

// Pager walks one listing page by page.
type Pager interface {
	More() bool
	NextPage(ctx context.Context) ([]filestag.FileListEntry, error)
}

// Backend adapts a Client to filestag.Backend. Each listing page and each
// read is a single blocking request; nothing is retried.
type Backend struct {
	client   Client
	pageSize int
	timeout  time.Duration
	logger   *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithPageSize sets the number of entries requested per listing page.
func WithPageSize(n int) Option {
	return func(b *Backend) {
		b.pageSize = n
	}
}

// WithTimeout bounds every request. Zero disables the deadline.
func WithTimeout(d time.Duration) Option {
	return func(b *Backend) {
		b.timeout = d
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New creates a backend over client.
func New(client Client, opts ...Option) *Backend {
	b := &Backend{
		client:   client,
		pageSize: DefaultPageSize,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.pageSize <= 0 {
		b.pageSize = DefaultPageSize
	}
	return b
}

// Client returns the wrapped client.
func (b *Backend) Client() Client {
	return b.client
}

func (b *Backend) log() *slog.Logger {
	if b.logger != nil {
		return b.logger
	}
	return slog.New(slog.DiscardHandler)
}

// Identifier implements filestag.Backend
func (b *Backend) Identifier() string {
	return b.client.Identifier()
}

// Scan implements filestag.Backend. Pages are requested lazily as the
// cursor advances, so memory stays bounded by one page.
func (b *Backend) Scan(ctx context.Context, opts filestag.ScanOptions) (filestag.Cursor, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	prefix := filestag.NormalizeName(opts.Prefix)
	if prefix != "" {
		prefix += "/"
	}
	pageSize := b.pageSize
	if opts.PageSize > 0 {
		pageSize = opts.PageSize
	}

	b.log().Debug("listing", slog.String("container", b.client.Identifier()), slog.String("prefix", prefix), slog.Int("page_size", pageSize))
	return &pageCursor{backend: b, pager: b.client.NewPager(prefix, pageSize)}, nil
}

// Read implements filestag.Backend. A missing object returns nil data and
// no error.
func (b *Backend) Read(ctx context.Context, name string) ([]byte, error) {
	rctx, cancel := requestContext(ctx, b.timeout)
	defer cancel()

	data, err := b.client.Download(rctx, filestag.NormalizeName(name))
	if err != nil {
		if filestag.IsNotExist(err) {
			return nil, nil
		}
		return nil, classify(ctx, "read", name, err)
	}
	return data, nil
}

// Exists implements filestag.Backend
func (b *Backend) Exists(ctx context.Context, name string) (bool, error) {
	rctx, cancel := requestContext(ctx, b.timeout)
	defer cancel()

	ok, err := b.client.Exists(rctx, filestag.NormalizeName(name))
	if err != nil {
		return false, classify(ctx, "exists", name, err)
	}
	return ok, nil
}

// Close implements filestag.Backend
func (b *Backend) Close() error {
	return b.client.Close()
}

type pageCursor struct {
	backend *Backend
	pager   Pager
	page    []filestag.FileListEntry
}

func (c *pageCursor) Next(ctx context.Context) (filestag.FileListEntry, error) {
	for len(c.page) == 0 {
		select {
		case <-ctx.Done():
			return filestag.FileListEntry{}, ctx.Err()
		default:
		}
		if c.pager == nil || !c.pager.More() {
			return filestag.FileListEntry{}, io.EOF
		}

		rctx, cancel := requestContext(ctx, c.backend.timeout)
		page, err := c.pager.NextPage(rctx)
		cancel()
		if err != nil {
			return filestag.FileListEntry{}, classify(ctx, "list", c.backend.Identifier(), err)
		}
		for _, e := range page {
			// folder markers
			if e.Filename == "" || strings.HasSuffix(e.Filename, "/") {
				continue
			}
			c.page = append(c.page, e)
		}
	}

	e := c.page[0]
	c.page = c.page[1:]
	return e, nil
}

func (c *pageCursor) Close() error {
	c.pager = nil
	c.page = nil
	return nil
}

func requestContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// classify keeps the caller's cancellation and already classified errors,
// and reports everything else as a connection failure.
func classify(ctx context.Context, op, name string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	for _, known := range []error{
		filestag.ErrNotExist,
		filestag.ErrExist,
		filestag.ErrConnection,
		filestag.ErrInvalidConfig,
		filestag.ErrNotSupported,
	} {
		if errors.Is(err, known) {
			var pathErr *filestag.PathError
			if errors.As(err, &pathErr) {
				return err
			}
			return &filestag.PathError{Op: op, Path: name, Err: err}
		}
	}
	return &filestag.PathError{Op: op, Path: name, Err: fmt.Errorf("%w: %w", filestag.ErrConnection, err)}
}

var _ filestag.Backend = (*Backend)(nil)
