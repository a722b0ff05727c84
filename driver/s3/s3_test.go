package s3

import (
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/gobeaver/filestag"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		bucket     string
		searchPath string
		wantErr    error
	}{
		{name: "bucket only", uri: "s3://data", bucket: "data"},
		{name: "with prefix", uri: "s3://data/images/2024/", bucket: "data", searchPath: "images/2024"},
		{name: "missing bucket", uri: "s3:///images", wantErr: filestag.ErrInvalidConfig},
		{name: "wrong scheme", uri: "gs://data", wantErr: filestag.ErrNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseURI(tt.uri)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Bucket != tt.bucket || p.SearchPath != tt.searchPath {
				t.Errorf("got bucket %q path %q", p.Bucket, p.SearchPath)
			}
		})
	}
}

func TestMapS3Error(t *testing.T) {
	if err := mapS3Error("read", "a.txt", &types.NoSuchKey{}); !filestag.IsNotExist(err) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}

	denied := &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	if err := mapS3Error("list", "", denied); !filestag.IsConnection(err) {
		t.Errorf("expected ErrConnection, got %v", err)
	}

	other := errors.New("boom")
	if err := mapS3Error("read", "a.txt", other); !errors.Is(err, other) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}
