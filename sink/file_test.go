package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gobeaver/filestag"
)

func TestWriteFileAndDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "a.txt")

	if err := WriteFile(ctx, target, []byte("one")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := WriteFile(ctx, "file://"+target, []byte("two")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "two" {
		t.Errorf("expected overwritten content, got %q", data)
	}

	deleted, err := Delete(ctx, target)
	if err != nil || !deleted {
		t.Fatalf("unexpected result %v %v", deleted, err)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Errorf("expected file to be removed, got %v", err)
	}

	deleted, err = Delete(ctx, target)
	if err != nil || deleted {
		t.Errorf("expected missing file to report false, got %v %v", deleted, err)
	}

	missingDir := filepath.Join(dir, "missing", "a.txt")
	deleted, err = Delete(ctx, missingDir)
	if err != nil || deleted {
		t.Errorf("expected missing folder to report false, got %v %v", deleted, err)
	}
	if _, err := os.Stat(filepath.Dir(missingDir)); !os.IsNotExist(err) {
		t.Error("delete must not create directories")
	}

	if _, err := Delete(ctx, filepath.Join(dir, "nested")); !errors.Is(err, filestag.ErrNotAllowed) {
		t.Errorf("expected ErrNotAllowed for a directory, got %v", err)
	}
}

func TestWriteFileErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		target  string
		data    []byte
		opts    []Option
		wantErr error
	}{
		{name: "no data", target: filepath.Join(dir, "a.txt"), wantErr: filestag.ErrInvalidConfig},
		{name: "archive entry", target: "archive://@set/a.txt", data: []byte("a"), wantErr: filestag.ErrNotSupported},
		{name: "bucket without name", target: "s3://bucket", data: []byte("a"), wantErr: filestag.ErrInvalidName},
		{name: "trailing slash", target: "s3://bucket/dir/", data: []byte("a"), wantErr: filestag.ErrInvalidName},
		{name: "unknown scheme", target: "ftp://host/a.txt", data: []byte("a"), wantErr: filestag.ErrNotSupported},
		{
			name:    "missing folder without create dirs",
			target:  filepath.Join(dir, "missing", "a.txt"),
			data:    []byte("a"),
			opts:    []Option{WithCreateDirs(false)},
			wantErr: filestag.ErrNotExist,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := WriteFile(ctx, tt.target, tt.data, tt.opts...); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSplitTarget(t *testing.T) {
	tests := []struct {
		target string
		parent string
		name   string
	}{
		{"s3://bucket/dir/a.txt", "s3://bucket/dir", "a.txt"},
		{"gs://bucket/a.txt", "gs://bucket", "a.txt"},
		{"sftp://user@host:22/upload/a.txt", "sftp://user@host:22/upload", "a.txt"},
		{"https://acct.blob.core.windows.net/box/a.txt?sv=1&sig=x", "https://acct.blob.core.windows.net/box?sv=1&sig=x", "a.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			parent, name, err := splitTarget(tt.target)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if parent != tt.parent || name != tt.name {
				t.Errorf("expected %q and %q, got %q and %q", tt.parent, tt.name, parent, name)
			}
		})
	}
}
