package cloud

import (
	"context"
	"sync"
	"time"

	"github.com/gobeaver/filestag"
)

// Sink uploads every stored file as one object.
type Sink struct {
	mu        sync.Mutex
	client    Client
	subFolder string
	timeout   time.Duration
	closed    bool
}

type sinkOptions struct {
	subFolder string
	create    bool
	recreate  bool
	timeout   time.Duration
}

// SinkOption configures a Sink.
type SinkOption func(*sinkOptions)

// WithSubFolder prefixes every stored name.
func WithSubFolder(folder string) SinkOption {
	return func(o *sinkOptions) {
		o.subFolder = folder
	}
}

// WithCreateContainer creates the container when it does not exist yet.
func WithCreateContainer(enabled bool) SinkOption {
	return func(o *sinkOptions) {
		o.create = enabled
	}
}

// WithRecreateContainer deletes and recreates the container before use.
func WithRecreateContainer(enabled bool) SinkOption {
	return func(o *sinkOptions) {
		o.recreate = enabled
	}
}

// WithSinkTimeout bounds every upload. Zero disables the deadline.
func WithSinkTimeout(d time.Duration) SinkOption {
	return func(o *sinkOptions) {
		o.timeout = d
	}
}

// NewSink creates a sink over client, preparing the container if asked to.
// The client is closed when the container cannot be prepared.
func NewSink(ctx context.Context, client Client, opts ...SinkOption) (*Sink, error) {
	o := sinkOptions{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	if o.create || o.recreate {
		if err := client.EnsureContainer(ctx, o.recreate); err != nil {
			err = classify(ctx, "create", client.Identifier(), err)
			_ = client.Close()
			return nil, err
		}
	}

	return &Sink{
		client:    client,
		subFolder: filestag.NormalizeName(o.subFolder),
		timeout:   o.timeout,
	}, nil
}

// Store implements filestag.Sink
func (s *Sink) Store(ctx context.Context, name string, data []byte, overwrite bool) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, &filestag.PathError{Op: "store", Path: name, Err: filestag.ErrClosed}
	}

	target, err := s.target("store", name)
	if err != nil {
		return false, err
	}

	rctx, cancel := requestContext(ctx, s.timeout)
	defer cancel()

	if !overwrite {
		exists, err := s.client.Exists(rctx, target)
		if err != nil {
			return false, classify(ctx, "store", target, err)
		}
		if exists {
			return false, &filestag.PathError{Op: "store", Path: target, Err: filestag.ErrExist}
		}
	}

	if err := s.client.Upload(rctx, target, data, filestag.GuessContentType(name, data)); err != nil {
		return false, classify(ctx, "store", target, err)
	}
	return true, nil
}

// Delete implements filestag.CanDelete
func (s *Sink) Delete(ctx context.Context, name string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, &filestag.PathError{Op: "delete", Path: name, Err: filestag.ErrClosed}
	}
	target, err := s.target("delete", name)
	if err != nil {
		return false, err
	}

	rctx, cancel := requestContext(ctx, s.timeout)
	defer cancel()

	// some stores acknowledge deleting a missing object
	exists, err := s.client.Exists(rctx, target)
	if err != nil {
		return false, classify(ctx, "delete", target, err)
	}
	if !exists {
		return false, nil
	}
	if err := s.client.Delete(rctx, target); err != nil {
		if filestag.IsNotExist(err) {
			return false, nil
		}
		return false, classify(ctx, "delete", target, err)
	}
	return true, nil
}

func (s *Sink) target(op, name string) (string, error) {
	rel := filestag.NormalizeName(name)
	if rel == "" || !filestag.IsValidName(rel) {
		return "", &filestag.PathError{Op: op, Path: name, Err: filestag.ErrInvalidName}
	}
	return filestag.JoinName(s.subFolder, rel), nil
}

// Close implements filestag.Sink. The client is released with the sink.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &filestag.PathError{Op: "close", Path: s.client.Identifier(), Err: filestag.ErrClosed}
	}
	s.closed = true
	return s.client.Close()
}

var (
	_ filestag.Sink      = (*Sink)(nil)
	_ filestag.CanDelete = (*Sink)(nil)
)
