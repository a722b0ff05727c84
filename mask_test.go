package filestag

import (
	"errors"
	"testing"
)

func TestMask(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"", "any/thing.bin", true},
		{"*", "deep/nested/file", true},
		{"**", "deep/nested/file", true},
		{"*.txt", "a.txt", true},
		{"*.txt", "sub/dir/a.txt", true},
		{"*.txt", "a.txt.bak", false},
		{"img_??.png", "img_01.png", true},
		{"img_??.png", "img_1.png", false},
		{"*.{jpg,png}", "photos/x.png", true},
		{"sub/*.txt", "sub/a.txt", true},
		{"sub/*.txt", "sub/x/a.txt", false},
		{"sub/*.txt", "a.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.name, func(t *testing.T) {
			m, err := CompileMask(tt.pattern)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := m.Match(tt.name); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestInvalidMask(t *testing.T) {
	if _, err := CompileMask("[a-"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	var m *Mask
	if !m.Match("x") {
		t.Error("nil mask should match everything")
	}
}
