package filestag

import (
	"errors"
	"fmt"
)

// Common errors returned by sources, sinks, the archive registry and bundles.
var (
	ErrNotExist      = errors.New("file does not exist")
	ErrExist         = errors.New("file already exists")
	ErrClosed        = errors.New("already closed")
	ErrInvalidName   = errors.New("invalid name")
	ErrNotSupported  = errors.New("operation not supported")
	ErrNotAllowed    = errors.New("operation not allowed")
	ErrConnection    = errors.New("connection failed")
	ErrCorrupt       = errors.New("corrupt data")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrUnknownType   = errors.New("unknown type tag")
)

// PathError records an error and the operation and resource that caused it
type PathError struct {
	Op   string
	Path string
	Err  error
}

// Error implements the error interface
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *PathError) Unwrap() error {
	return e.Err
}

// NewPathError wraps err with the operation and resource name.
func NewPathError(op, path string, err error) error {
	return &PathError{Op: op, Path: path, Err: err}
}

// IsNotExist reports whether an error indicates that a file does not exist
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}

// IsExist reports whether an error indicates that a file already exists
func IsExist(err error) bool {
	return errors.Is(err, ErrExist)
}

// IsConnection reports whether an error was caused by a failing remote backend
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsCorrupt reports whether an error indicates malformed or mismatching data
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}
