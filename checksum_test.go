package filestag

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCalculateChecksum(t *testing.T) {
	tests := []struct {
		algorithm ChecksumAlgorithm
		want      string
		length    int
	}{
		{algorithm: ChecksumMD5, want: "5d41402abc4b2a76b9719d911017c592"},
		{algorithm: ChecksumSHA256, want: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		{algorithm: ChecksumCRC32, want: "3610a686"},
		{algorithm: ChecksumXXHash, length: 16},
		{algorithm: ChecksumBLAKE3, length: 64},
	}

	for _, tt := range tests {
		t.Run(string(tt.algorithm), func(t *testing.T) {
			got, err := CalculateChecksum(strings.NewReader("hello"), tt.algorithm)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != "" && got != tt.want {
				t.Errorf("CalculateChecksum() = %s, want %s", got, tt.want)
			}
			if tt.length > 0 && len(got) != tt.length {
				t.Errorf("expected %d hex chars, got %q", tt.length, got)
			}

			again, _ := CalculateChecksum(strings.NewReader("hello"), tt.algorithm)
			if again != got {
				t.Errorf("checksum is not deterministic: %s != %s", again, got)
			}
		})
	}
}

func TestCalculateChecksums(t *testing.T) {
	algorithms := []ChecksumAlgorithm{ChecksumMD5, ChecksumSHA256, ChecksumXXHash}
	sums, err := CalculateChecksums(strings.NewReader("hello"), algorithms)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, algo := range algorithms {
		single, _ := CalculateChecksum(strings.NewReader("hello"), algo)
		if sums[algo] != single {
			t.Errorf("%s: single pass %s differs from %s", algo, sums[algo], single)
		}
	}

	if _, err := CalculateChecksums(strings.NewReader("hello"), nil); err == nil {
		t.Error("expected error for empty algorithm list")
	}
}

func TestUnsupportedChecksum(t *testing.T) {
	if _, err := NewHasher("sha1"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
}

func TestFingerprintEntries(t *testing.T) {
	modified := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	entries := []FileListEntry{
		{Filename: "a.txt", Size: 1, Modified: modified},
		{Filename: "b.txt", Size: 2},
	}

	base, err := FingerprintEntries(entries, ChecksumXXHash, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("metadata changes the hash", func(t *testing.T) {
		changed := []FileListEntry{entries[0], {Filename: "b.txt", Size: 3}}
		got, _ := FingerprintEntries(changed, ChecksumXXHash, nil)
		if got == base {
			t.Error("expected a different fingerprint for a changed size")
		}
	})

	t.Run("content changes the hash", func(t *testing.T) {
		got, err := FingerprintEntries(entries, ChecksumXXHash, func(e FileListEntry) ([]byte, error) {
			return []byte(e.Filename), nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got == base {
			t.Error("expected content to be part of the fingerprint")
		}
	})

	t.Run("nil content is skipped", func(t *testing.T) {
		got, _ := FingerprintEntries(entries, ChecksumXXHash, func(FileListEntry) ([]byte, error) {
			return nil, nil
		})
		if got != base {
			t.Errorf("expected %s, got %s", base, got)
		}
	})

	t.Run("content error", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := FingerprintEntries(entries, ChecksumXXHash, func(FileListEntry) ([]byte, error) {
			return nil, boom
		})
		if !errors.Is(err, boom) {
			t.Errorf("expected content error, got %v", err)
		}
	})
}
