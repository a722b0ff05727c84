package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/gobeaver/filestag"
	"github.com/gobeaver/filestag/driver/zip"
)

func TestMemoryArchiveScope(t *testing.T) {
	ctx := context.Background()

	data, err := Use(ctx, "archive://", func(s filestag.Sink) error {
		if _, err := s.Store(ctx, "a.txt", []byte("a"), false); err != nil {
			return err
		}
		_, err := s.Store(ctx, "dir/b.txt", []byte("b"), false)
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, err := zip.OpenBytes(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()

	if got := a.Names(); !slices.Equal(got, []string{"a.txt", "dir/b.txt"}) {
		t.Errorf("expected [a.txt dir/b.txt], got %v", got)
	}
}

func TestUseClosesOnError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	var opened filestag.Sink
	_, err := Use(ctx, "archive://", func(s filestag.Sink) error {
		opened = s
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if err := opened.Close(); !errors.Is(err, filestag.ErrClosed) {
		t.Errorf("expected sink to be closed already, got %v", err)
	}
}

func TestOpenTargets(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		target  string
		wantErr error
		check   func(t *testing.T, s filestag.Sink)
	}{
		{
			name:   "memory archive",
			target: "archive://",
			check: func(t *testing.T, s filestag.Sink) {
				if _, ok := s.(*zip.Sink); !ok {
					t.Errorf("expected *zip.Sink, got %T", s)
				}
			},
		},
		{
			name:   "zip alias",
			target: "zip://",
		},
		{
			name:   "absolute path",
			target: filepath.Join(dir, "out"),
			check: func(t *testing.T, s filestag.Sink) {
				if _, err := s.Store(ctx, "x/y.txt", []byte("y"), false); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if _, err := os.Stat(filepath.Join(dir, "out", "x", "y.txt")); err != nil {
					t.Errorf("expected file on disk: %v", err)
				}
			},
		},
		{
			name:   "file scheme",
			target: "file://" + filepath.Join(dir, "other"),
		},
		{name: "relative path", target: "out/dir", wantErr: filestag.ErrNotSupported},
		{name: "archive with path", target: "archive://data.zip", wantErr: filestag.ErrNotSupported},
		{name: "unknown scheme", target: "ftp://host/dir", wantErr: filestag.ErrNotSupported},
		{name: "empty", target: "", wantErr: filestag.ErrNotSupported},
		{name: "unresolved azure key", target: "blob://DefaultEndpointsProtocol=https;AccountName=acc;AccountKey={{env.FILESTAG_TEST_UNSET_KEY}};EndpointSuffix=core.windows.net/container", wantErr: filestag.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(ctx, tt.target)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.check != nil {
				tt.check(t, s)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCreateDirsDisabled(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(ctx, dir, WithCreateDirs(false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	ok, err := s.Store(ctx, "missing/a.txt", []byte("a"), false)
	if ok || err != nil {
		t.Errorf("expected (false, nil) for missing parent, got %v %v", ok, err)
	}

	ok, err = s.Store(ctx, "a.txt", []byte("a"), false)
	if !ok || err != nil {
		t.Fatalf("unexpected result %v %v", ok, err)
	}
	ok, err = s.Store(ctx, "a.txt", []byte("b"), false)
	if ok || !filestag.IsExist(err) {
		t.Errorf("expected conflict, got %v %v", ok, err)
	}
}

func TestBytes(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, "archive://", WithCompression(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Store(ctx, "a.txt", []byte("a"), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := Bytes(s)
	if err != nil || len(data) == 0 {
		t.Fatalf("unexpected result %d bytes, %v", len(data), err)
	}

	disk, err := Open(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer disk.Close()
	if _, err := Bytes(disk); !errors.Is(err, filestag.ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
}
