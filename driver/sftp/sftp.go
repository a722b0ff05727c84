// Package sftp provides a file source backend and a sink on top of an SFTP
// server.
package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/kr/fs"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/gobeaver/filestag"
)

// Config holds SFTP connection configuration
type Config struct {
	Host           string
	Port           int
	Username       string
	Password       string
	PrivateKey     []byte // PEM encoded private key
	PrivateKeyFile string
	BasePath       string
}

// Backend lists and reads files below a remote base path.
type Backend struct {
	mu       sync.Mutex
	client   *sftp.Client
	sshConn  *ssh.Client
	basePath string
	config   Config
	logger   *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// New connects to the server described by cfg.
func New(cfg Config, opts ...Option) (*Backend, error) {
	b := &Backend{
		config:   cfg,
		basePath: path.Clean("/" + cfg.BasePath),
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) log() *slog.Logger {
	if b.logger != nil {
		return b.logger
	}
	return slog.New(slog.DiscardHandler)
}

// connect establishes SSH and SFTP connections
func (b *Backend) connect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sshConfig := &ssh.ClientConfig{
		User:            b.config.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	key := b.config.PrivateKey
	if len(key) == 0 && b.config.PrivateKeyFile != "" {
		data, err := os.ReadFile(b.config.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("%w: failed to read private key: %v", filestag.ErrInvalidConfig, err)
		}
		key = data
	}
	if len(key) > 0 {
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return fmt.Errorf("%w: failed to parse private key: %v", filestag.ErrInvalidConfig, err)
		}
		sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(signer))
	}
	if b.config.Password != "" {
		sshConfig.Auth = append(sshConfig.Auth, ssh.Password(b.config.Password))
	}
	if len(sshConfig.Auth) == 0 {
		return fmt.Errorf("%w: no authentication method provided", filestag.ErrInvalidConfig)
	}

	port := b.config.Port
	if port == 0 {
		port = 22
	}

	addr := fmt.Sprintf("%s:%d", b.config.Host, port)
	sshConn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return fmt.Errorf("%w: failed to connect to %s: %v", filestag.ErrConnection, addr, err)
	}

	client, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return fmt.Errorf("%w: failed to create SFTP client: %v", filestag.ErrConnection, err)
	}

	b.sshConn = sshConn
	b.client = client
	b.log().Debug("connected", slog.String("addr", addr), slog.String("base_path", b.basePath))
	return nil
}

func (b *Backend) sftpClient() (*sftp.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil, filestag.ErrClosed
	}
	return b.client, nil
}

// Identifier implements filestag.Backend
func (b *Backend) Identifier() string {
	return fmt.Sprintf("sftp:%s@%s%s", b.config.Username, b.config.Host, b.basePath)
}

// fullPath resolves a relative name below the base path.
func (b *Backend) fullPath(name string) (string, bool) {
	name = filestag.NormalizeName(name)
	if !filestag.IsValidName(name) {
		return "", false
	}
	return path.Join(b.basePath, name), true
}

// Scan implements filestag.Backend. The remote tree is walked lazily.
func (b *Backend) Scan(ctx context.Context, opts filestag.ScanOptions) (filestag.Cursor, error) {
	client, err := b.sftpClient()
	if err != nil {
		return nil, filestag.NewPathError("scan", opts.Prefix, err)
	}

	root, ok := b.fullPath(opts.Prefix)
	if !ok {
		return nil, &filestag.PathError{Op: "scan", Path: opts.Prefix, Err: filestag.ErrNotAllowed}
	}

	if _, err := client.Stat(root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return filestag.NewSliceCursor(nil), nil
		}
		return nil, mapSFTPError("scan", opts.Prefix, err)
	}

	return &walkCursor{
		walker:    client.Walk(root),
		root:      root,
		base:      b.basePath,
		recursive: opts.Recursive,
	}, nil
}

type walkCursor struct {
	walker    *fs.Walker
	root      string
	base      string
	recursive bool
}

func (c *walkCursor) Next(ctx context.Context) (filestag.FileListEntry, error) {
	for {
		select {
		case <-ctx.Done():
			return filestag.FileListEntry{}, ctx.Err()
		default:
		}
		if c.walker == nil || !c.walker.Step() {
			return filestag.FileListEntry{}, io.EOF
		}
		if err := c.walker.Err(); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return filestag.FileListEntry{}, mapSFTPError("scan", c.walker.Path(), err)
		}

		info := c.walker.Stat()
		if info.IsDir() {
			if !c.recursive && c.walker.Path() != c.root {
				c.walker.SkipDir()
			}
			continue
		}

		name := strings.TrimPrefix(strings.TrimPrefix(c.walker.Path(), c.base), "/")
		return filestag.FileListEntry{
			Filename: name,
			Size:     info.Size(),
			// SFTP exposes no creation time
			Created:  info.ModTime(),
			Modified: info.ModTime(),
		}, nil
	}
}

func (c *walkCursor) Close() error {
	c.walker = nil
	return nil
}

// Read implements filestag.Backend. A missing file returns nil data and no
// error.
func (b *Backend) Read(ctx context.Context, name string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	client, err := b.sftpClient()
	if err != nil {
		return nil, filestag.NewPathError("read", name, err)
	}
	full, ok := b.fullPath(name)
	if !ok {
		return nil, &filestag.PathError{Op: "read", Path: name, Err: filestag.ErrNotAllowed}
	}

	f, err := client.Open(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, mapSFTPError("read", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, mapSFTPError("read", name, err)
	}
	return data, nil
}

// Exists implements filestag.Backend
func (b *Backend) Exists(ctx context.Context, name string) (bool, error) {
	client, err := b.sftpClient()
	if err != nil {
		return false, filestag.NewPathError("exists", name, err)
	}
	full, ok := b.fullPath(name)
	if !ok {
		return false, nil
	}

	info, err := client.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, mapSFTPError("exists", name, err)
	}
	return !info.IsDir(), nil
}

// Close closes the SFTP and SSH connections
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	if b.client != nil {
		if err := b.client.Close(); err != nil {
			errs = append(errs, err)
		}
		b.client = nil
	}
	if b.sshConn != nil {
		if err := b.sshConn.Close(); err != nil {
			errs = append(errs, err)
		}
		b.sshConn = nil
	}
	return errors.Join(errs...)
}

// mapSFTPError maps SFTP errors to filestag errors
func mapSFTPError(op, name string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return &filestag.PathError{Op: op, Path: name, Err: filestag.ErrNotExist}
	}
	if errors.Is(err, os.ErrExist) {
		return &filestag.PathError{Op: op, Path: name, Err: filestag.ErrExist}
	}
	if errors.Is(err, os.ErrPermission) {
		return &filestag.PathError{Op: op, Path: name, Err: filestag.ErrNotAllowed}
	}

	var statusErr *sftp.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.FxCode() {
		case sftp.ErrSSHFxNoSuchFile:
			return &filestag.PathError{Op: op, Path: name, Err: filestag.ErrNotExist}
		case sftp.ErrSSHFxPermissionDenied:
			return &filestag.PathError{Op: op, Path: name, Err: filestag.ErrNotAllowed}
		case sftp.ErrSSHFxConnectionLost, sftp.ErrSSHFxNoConnection:
			return &filestag.PathError{Op: op, Path: name, Err: fmt.Errorf("%w: %v", filestag.ErrConnection, err)}
		}
	}

	return &filestag.PathError{Op: op, Path: name, Err: err}
}

var _ filestag.Backend = (*Backend)(nil)
