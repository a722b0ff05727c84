// Package gcs provides the Google Cloud Storage client used by the cloud
// file source backend and sink.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/gobeaver/filestag"
	"github.com/gobeaver/filestag/driver/cloud"
)

// Client implements cloud.Client for one bucket.
type Client struct {
	client    *storage.Client
	bucket    string
	projectID string
	owned     bool
}

// New wraps an existing storage client. The caller keeps ownership.
func New(client *storage.Client, bucket, projectID string) *Client {
	return &Client{client: client, bucket: bucket, projectID: projectID}
}

// NewClient creates a client for bucket. Without a credentials file in cfg
// the application default credentials are used.
func NewClient(ctx context.Context, cfg *filestag.Config, bucket string) (*Client, error) {
	if cfg == nil {
		cfg = filestag.DefaultConfig()
	}

	var opts []option.ClientOption
	if cfg.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", filestag.ErrInvalidConfig, err)
	}
	return &Client{client: client, bucket: bucket, projectID: cfg.GCSProjectID, owned: true}, nil
}

// Identifier implements cloud.Client
func (c *Client) Identifier() string {
	return "gcs:" + c.bucket
}

// NewPager implements cloud.Client
func (c *Client) NewPager(prefix string, pageSize int) cloud.Pager {
	return &pager{
		bucket:   c.client.Bucket(c.bucket),
		prefix:   prefix,
		pageSize: pageSize,
	}
}

type pager struct {
	bucket   *storage.BucketHandle
	prefix   string
	pageSize int
	token    string
	done     bool
}

func (p *pager) More() bool {
	return !p.done
}

func (p *pager) NextPage(ctx context.Context) ([]filestag.FileListEntry, error) {
	it := p.bucket.Objects(ctx, &storage.Query{Prefix: p.prefix})

	var attrs []*storage.ObjectAttrs
	next, err := iterator.NewPager(it, p.pageSize, p.token).NextPage(&attrs)
	if err != nil {
		return nil, mapGCSError("list", p.prefix, err)
	}
	p.token = next
	p.done = next == ""

	entries := make([]filestag.FileListEntry, 0, len(attrs))
	for _, a := range attrs {
		entries = append(entries, filestag.FileListEntry{
			Filename: a.Name,
			Size:     a.Size,
			Created:  a.Created,
			Modified: a.Updated,
		})
	}
	return entries, nil
}

// Download implements cloud.Client
func (c *Client) Download(ctx context.Context, name string) ([]byte, error) {
	reader, err := c.client.Bucket(c.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, mapGCSError("read", name, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, filestag.NewPathError("read", name, err)
	}
	return data, nil
}

// Exists implements cloud.Client
func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	_, err := c.client.Bucket(c.bucket).Object(name).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, mapGCSError("exists", name, err)
	}
	return true, nil
}

// Upload implements cloud.Client
func (c *Client) Upload(ctx context.Context, name string, data []byte, contentType string) error {
	writer := c.client.Bucket(c.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return mapGCSError("write", name, err)
	}
	if err := writer.Close(); err != nil {
		return mapGCSError("write", name, err)
	}
	return nil
}

// Delete implements cloud.Client
func (c *Client) Delete(ctx context.Context, name string) error {
	if err := c.client.Bucket(c.bucket).Object(name).Delete(ctx); err != nil {
		return mapGCSError("delete", name, err)
	}
	return nil
}

// EnsureContainer implements cloud.Client. Buckets are not deleted, so
// recreation is refused.
func (c *Client) EnsureContainer(ctx context.Context, recreate bool) error {
	if recreate {
		return filestag.NewPathError("create", c.bucket, filestag.ErrNotSupported)
	}

	bkt := c.client.Bucket(c.bucket)
	if _, err := bkt.Attrs(ctx); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrBucketNotExist) {
		return mapGCSError("create", c.bucket, err)
	}

	if c.projectID == "" {
		return filestag.NewPathError("create", c.bucket, fmt.Errorf("%w: project id required to create a bucket", filestag.ErrInvalidConfig))
	}
	if err := bkt.Create(ctx, c.projectID, nil); err != nil {
		var gErr *googleapi.Error
		if errors.As(err, &gErr) && gErr.Code == http.StatusConflict {
			return nil
		}
		return mapGCSError("create", c.bucket, err)
	}
	return nil
}

// SignedURL generates a signed URL for downloading a file
func (c *Client) SignedURL(ctx context.Context, name string, expiry time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(expiry),
	}

	url, err := c.client.Bucket(c.bucket).SignedURL(name, opts)
	if err != nil {
		return "", mapGCSError("sign", name, err)
	}
	return url, nil
}

// Close implements cloud.Client
func (c *Client) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}

func mapGCSError(op, path string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return &filestag.PathError{Op: op, Path: path, Err: filestag.ErrNotExist}
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusNotFound:
			return &filestag.PathError{Op: op, Path: path, Err: filestag.ErrNotExist}
		case http.StatusUnauthorized, http.StatusForbidden:
			return &filestag.PathError{Op: op, Path: path, Err: fmt.Errorf("%w: %v", filestag.ErrConnection, err)}
		}
	}

	return &filestag.PathError{Op: op, Path: path, Err: err}
}

var (
	_ cloud.Client        = (*Client)(nil)
	_ filestag.CanSignURL = (*Client)(nil)
)
