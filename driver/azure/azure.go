package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/gobeaver/filestag"
	"github.com/gobeaver/filestag/driver/cloud"
)

// Client implements cloud.Client for one Azure blob container.
type Client struct {
	client         *azblob.Client
	containerName  string
	accountName    string
	accountKey     string
	endpointSuffix string
	deleteWait     time.Duration
}

// ClientOption is a function that configures an Azure Client
type ClientOption func(*clientOptions)

type clientOptions struct {
	timeout    time.Duration
	deleteWait time.Duration
}

// WithTimeout sets the HTTP transport timeout of every request.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithDeleteWait bounds how long a container recreation waits for the
// service to finish deleting the old container.
func WithDeleteWait(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.deleteWait = d
	}
}

// NewClient connects to the container named in p.
func NewClient(p *BlobPath, opts ...ClientOption) (*Client, error) {
	o := clientOptions{timeout: cloud.DefaultTimeout, deleteWait: time.Minute}
	for _, opt := range opts {
		opt(&o)
	}

	if p.Container == "" {
		return nil, &filestag.PathError{Op: "open", Path: p.String(), Err: fmt.Errorf("%w: container name missing", filestag.ErrInvalidConfig)}
	}

	options := &azblob.ClientOptions{}
	if o.timeout > 0 {
		options.ClientOptions = azcore.ClientOptions{
			Transport: &http.Client{Timeout: o.timeout},
		}
	}

	var (
		client *azblob.Client
		err    error
	)
	if p.ServiceURL != "" {
		serviceURL := p.ServiceURL
		if p.SAS != "" {
			serviceURL += "?" + p.SAS
		}
		client, err = azblob.NewClientWithNoCredential(serviceURL, options)
	} else {
		client, err = azblob.NewClientFromConnectionString(p.ConnectionString, options)
	}
	if err != nil {
		return nil, &filestag.PathError{Op: "open", Path: p.String(), Err: fmt.Errorf("%w: %v", filestag.ErrInvalidConfig, err)}
	}

	suffix := p.EndpointSuffix
	if suffix == "" {
		suffix = endpointMarker
	}

	return &Client{
		client:         client,
		containerName:  p.Container,
		accountName:    p.AccountName,
		accountKey:     p.AccountKey,
		endpointSuffix: suffix,
		deleteWait:     o.deleteWait,
	}, nil
}

// Identifier implements cloud.Client
func (c *Client) Identifier() string {
	return "azure:" + c.accountName + "/" + c.containerName
}

// NewPager implements cloud.Client
func (c *Client) NewPager(prefix string, pageSize int) cloud.Pager {
	opts := &azblob.ListBlobsFlatOptions{
		MaxResults: ptr(int32(pageSize)),
	}
	if prefix != "" {
		opts.Prefix = &prefix
	}
	return &pager{
		pager:  c.client.NewListBlobsFlatPager(c.containerName, opts),
		prefix: prefix,
	}
}

type pager struct {
	pager  *runtime.Pager[azblob.ListBlobsFlatResponse]
	prefix string
}

func (p *pager) More() bool {
	return p.pager.More()
}

func (p *pager) NextPage(ctx context.Context) ([]filestag.FileListEntry, error) {
	resp, err := p.pager.NextPage(ctx)
	if err != nil {
		return nil, mapAzureError("list", p.prefix, err)
	}
	if resp.Segment == nil {
		return nil, nil
	}

	entries := make([]filestag.FileListEntry, 0, len(resp.Segment.BlobItems))
	for _, blobItem := range resp.Segment.BlobItems {
		if blobItem.Name == nil {
			continue
		}
		entry := filestag.FileListEntry{Filename: *blobItem.Name, Size: -1}
		if props := blobItem.Properties; props != nil {
			if props.ContentLength != nil {
				entry.Size = *props.ContentLength
			}
			if props.CreationTime != nil {
				entry.Created = *props.CreationTime
			}
			if props.LastModified != nil {
				entry.Modified = *props.LastModified
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Download implements cloud.Client
func (c *Client) Download(ctx context.Context, name string) ([]byte, error) {
	resp, err := c.client.DownloadStream(ctx, c.containerName, name, nil)
	if err != nil {
		return nil, mapAzureError("read", name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, filestag.NewPathError("read", name, err)
	}
	return data, nil
}

// Exists implements cloud.Client
func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	blobClient := c.client.ServiceClient().NewContainerClient(c.containerName).NewBlobClient(name)
	_, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, mapAzureError("exists", name, err)
	}
	return true, nil
}

// Upload implements cloud.Client
func (c *Client) Upload(ctx context.Context, name string, data []byte, contentType string) error {
	uploadOpts := &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: &contentType,
		},
	}
	if _, err := c.client.UploadBuffer(ctx, c.containerName, name, data, uploadOpts); err != nil {
		return mapAzureError("write", name, err)
	}
	return nil
}

// Delete implements cloud.Client
func (c *Client) Delete(ctx context.Context, name string) error {
	if _, err := c.client.DeleteBlob(ctx, c.containerName, name, nil); err != nil {
		return mapAzureError("delete", name, err)
	}
	return nil
}

// EnsureContainer implements cloud.Client. A recreated container is
// deleted first; creation is repeated while the service still reports the
// old container as being deleted, up to the configured delete wait.
func (c *Client) EnsureContainer(ctx context.Context, recreate bool) error {
	if recreate {
		_, err := c.client.DeleteContainer(ctx, c.containerName, nil)
		if err != nil && !bloberror.HasCode(err, bloberror.ContainerNotFound) {
			return mapAzureError("delete", c.containerName, err)
		}
	}

	deadline := time.Now().Add(c.deleteWait)
	for {
		_, err := c.client.CreateContainer(ctx, c.containerName, nil)
		switch {
		case err == nil:
			return nil
		case bloberror.HasCode(err, bloberror.ContainerAlreadyExists):
			return nil
		case bloberror.HasCode(err, bloberror.ContainerBeingDeleted) && time.Now().Before(deadline):
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		default:
			return mapAzureError("create", c.containerName, err)
		}
	}
}

// SignedURL generates a read-only SAS URL for a blob
func (c *Client) SignedURL(ctx context.Context, name string, expiry time.Duration) (string, error) {
	if c.accountKey == "" {
		return "", filestag.NewPathError("sign", name, fmt.Errorf("%w: account key required for SAS URL generation", filestag.ErrInvalidConfig))
	}

	cred, err := azblob.NewSharedKeyCredential(c.accountName, c.accountKey)
	if err != nil {
		return "", mapAzureError("sign", name, err)
	}

	sasQueryParams, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     time.Now().UTC(),
		ExpiryTime:    time.Now().UTC().Add(expiry),
		Permissions:   (&sas.BlobPermissions{Read: true}).String(),
		ContainerName: c.containerName,
		BlobName:      name,
	}.SignWithSharedKey(cred)
	if err != nil {
		return "", mapAzureError("sign", name, err)
	}

	return fmt.Sprintf("https://%s.blob.%s/%s/%s?%s",
		c.accountName, c.endpointSuffix, c.containerName, name, sasQueryParams.Encode()), nil
}

// Close implements cloud.Client
func (c *Client) Close() error {
	return nil
}

// ptr is a helper function to create a pointer to a value
func ptr[T any](v T) *T {
	return &v
}

// mapAzureError maps Azure errors to filestag errors
func mapAzureError(op, path string, err error) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return &filestag.PathError{Op: op, Path: path, Err: filestag.ErrNotExist}
	}

	if bloberror.HasCode(err, bloberror.AuthenticationFailed, bloberror.AuthorizationFailure, bloberror.AuthorizationPermissionMismatch) {
		return &filestag.PathError{Op: op, Path: path, Err: fmt.Errorf("%w: %v", filestag.ErrConnection, err)}
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
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
