package filestag

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{"", "", true},
		{"/", "", true},
		{"a.txt", "a.txt", true},
		{"/data/a.txt", "data/a.txt", true},
		{`dir\sub\file.bin`, "dir/sub/file.bin", true},
		{"a/./b/../c/", "a/c", true},
		{"../escape", "../escape", false},
		{"a/../../escape", "../escape", false},
		{"..", "..", false},
		{"..hidden", "..hidden", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizeName(tt.in)
			if got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if IsValidName(got) != tt.valid {
				t.Errorf("IsValidName(%q) = %v, want %v", got, !tt.valid, tt.valid)
			}
		})
	}
}

func TestJoinName(t *testing.T) {
	tests := []struct {
		prefix, name, want string
	}{
		{"", "a.txt", "a.txt"},
		{"data", "a.txt", "data/a.txt"},
		{"/data/", "/sub/a.txt", "data/sub/a.txt"},
		{"data", "", "data"},
	}
	for _, tt := range tests {
		if got := JoinName(tt.prefix, tt.name); got != tt.want {
			t.Errorf("JoinName(%q, %q) = %q, want %q", tt.prefix, tt.name, got, tt.want)
		}
	}
}

func TestSliceCursor(t *testing.T) {
	ctx := context.Background()
	c := NewSliceCursor([]FileListEntry{{Filename: "a"}, {Filename: "b"}})

	var names []string
	for {
		e, err := c.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		names = append(names, e.Filename)
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("unexpected names %v", names)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := NewSliceCursor(nil).Next(canceled); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestGuessContentType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"a.json", nil, MIMETypeApplicationJSON},
		{"ARCHIVE.ZIP", nil, MIMETypeApplicationZip},
		{"page", []byte("<html><body>x</body></html>"), "text/html; charset=utf-8"},
		{"style.css", nil, "text/css; charset=utf-8"},
		{"blob", nil, MIMETypeOctetStream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GuessContentType(tt.name, tt.data); got != tt.want {
				t.Errorf("GuessContentType() = %q, want %q", got, tt.want)
			}
		})
	}
}
