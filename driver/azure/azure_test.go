package azure

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/gobeaver/filestag"
)

const testConn = "DefaultEndpointsProtocol=https;AccountName=devstore;AccountKey=abc/def+ghi==;EndpointSuffix=core.windows.net"

func TestParseURI(t *testing.T) {
	tests := []struct {
		name       string
		uri        string
		container  string
		searchPath string
		wantErr    error
	}{
		{
			name:       "scheme with search path",
			uri:        "blob://" + testConn + "/images/2024",
			container:  "images",
			searchPath: "2024",
		},
		{
			name:      "raw connection string",
			uri:       testConn + "/images",
			container: "images",
		},
		{
			name: "no endpoint suffix keeps the whole connection string",
			uri:  "blob://DefaultEndpointsProtocol=https;AccountName=devstore;AccountKey=abc==/docs",
		},
		{
			name:       "sovereign endpoint suffix",
			uri:        "blob://DefaultEndpointsProtocol=https;AccountName=devstore;AccountKey=a/b==;EndpointSuffix=core.chinacloudapi.cn/docs/2024",
			container:  "docs",
			searchPath: "2024",
		},
		{
			name:       "sas url",
			uri:        "https://devstore.blob.core.windows.net/images/2024/?sv=2022-11-02&sig=abc%2Fdef",
			container:  "images",
			searchPath: "2024",
		},
		{
			name:    "unresolved key template",
			uri:     "blob://DefaultEndpointsProtocol=https;AccountName=devstore;AccountKey={{env.FILESTAG_TEST_UNSET_KEY}};EndpointSuffix=core.windows.net/docs",
			wantErr: filestag.ErrInvalidConfig,
		},
		{
			name:    "broken pair",
			uri:     "blob://DefaultEndpointsProtocol=https;AccountName;EndpointSuffix=core.windows.net/docs",
			wantErr: filestag.ErrInvalidConfig,
		},
		{
			name:    "other scheme",
			uri:     "s3://bucket",
			wantErr: filestag.ErrNotSupported,
		},
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
			if p.Container != tt.container {
				t.Errorf("expected container %q, got %q", tt.container, p.Container)
			}
			if p.SearchPath != tt.searchPath {
				t.Errorf("expected search path %q, got %q", tt.searchPath, p.SearchPath)
			}
			if p.AccountName != "devstore" {
				t.Errorf("expected account devstore, got %q", p.AccountName)
			}
		})
	}
}

func TestParseURIKeepsKeySlashes(t *testing.T) {
	p, err := ParseURI("blob://" + testConn + "/images")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.AccountKey != "abc/def+ghi==" {
		t.Errorf("unexpected account key %q", p.AccountKey)
	}
	if strings.Contains(p.String(), "abc/def") {
		t.Errorf("account key leaked into %q", p.String())
	}
}

func TestSplitConnectionWithoutSuffix(t *testing.T) {
	conn := "DefaultEndpointsProtocol=https;AccountName=devstore;AccountKey=abc/def+ghi=="
	p, err := ParseURI("blob://" + conn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ConnectionString != conn || p.AccountKey != "abc/def+ghi==" {
		t.Errorf("unexpected connection %q with key %q", p.ConnectionString, p.AccountKey)
	}
	if p.Container != "" || p.SearchPath != "" {
		t.Errorf("expected no container, got %q and %q", p.Container, p.SearchPath)
	}
}

func TestParseSASURL(t *testing.T) {
	uri := "https://devstore.blob.core.windows.net/images/raw?sv=2022-11-02&sp=rl&sig=secret%3D"

	if !IsBlobURI(uri) || !IsSASURL(uri) {
		t.Fatalf("expected %q to be recognized", uri)
	}
	if IsSASURL("https://example.com/data.zip") {
		t.Error("plain web URL must not be a SAS URL")
	}

	p, err := ParseURI(uri)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ServiceURL != "https://devstore.blob.core.windows.net/" || p.SAS != "sv=2022-11-02&sp=rl&sig=secret%3D" {
		t.Errorf("unexpected service %q and token %q", p.ServiceURL, p.SAS)
	}
	if p.Container != "images" || p.SearchPath != "raw" {
		t.Errorf("unexpected container %q and path %q", p.Container, p.SearchPath)
	}
	if s := p.String(); strings.Contains(s, "secret") {
		t.Errorf("token leaked into %q", s)
	}
	if s := redact(uri); strings.Contains(s, "secret") {
		t.Errorf("token leaked into %q", s)
	}

	c, err := NewClient(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Identifier() != "azure:devstore/images" {
		t.Errorf("unexpected identifier %q", c.Identifier())
	}
}

func TestResolveEnv(t *testing.T) {
	t.Setenv("FILESTAG_TEST_ACCOUNT", "envaccount")

	got := ResolveEnv("AccountName={{env.FILESTAG_TEST_ACCOUNT}};AccountKey={{env.FILESTAG_TEST_UNSET_KEY}}")
	want := "AccountName=envaccount;AccountKey={{env.FILESTAG_TEST_UNSET_KEY}}"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	p, err := ParseURI("blob://DefaultEndpointsProtocol=https;AccountName={{env.FILESTAG_TEST_ACCOUNT}};AccountKey=k;EndpointSuffix=core.windows.net/c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.AccountName != "envaccount" {
		t.Errorf("expected resolved account, got %q", p.AccountName)
	}
}

func TestMapAzureError(t *testing.T) {
	notFound := &azcore.ResponseError{StatusCode: http.StatusNotFound}
	if err := mapAzureError("read", "a.txt", notFound); !filestag.IsNotExist(err) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}

	forbidden := &azcore.ResponseError{StatusCode: http.StatusForbidden}
	if err := mapAzureError("list", "", forbidden); !filestag.IsConnection(err) {
		t.Errorf("expected ErrConnection, got %v", err)
	}
}
