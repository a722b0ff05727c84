// Package s3 provides the Amazon S3 client used by the cloud file source
// backend and sink.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/gobeaver/filestag"
	"github.com/gobeaver/filestag/driver/cloud"
)

// Client implements cloud.Client for one S3 bucket.
type Client struct {
	client *s3.Client
	bucket string
	region string
}

// New wraps an existing S3 client.
func New(client *s3.Client, bucket string) *Client {
	return &Client{client: client, bucket: bucket, region: client.Options().Region}
}

// NewClient creates a client for bucket from the S3 settings in cfg.
func NewClient(ctx context.Context, cfg *filestag.Config, bucket string) (*Client, error) {
	if cfg == nil {
		cfg = filestag.DefaultConfig()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", filestag.ErrInvalidConfig, err)
	}

	// Override with explicit credentials if provided
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID,
			cfg.S3SecretAccessKey,
			"",
		)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		if cfg.S3ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return &Client{client: client, bucket: bucket, region: cfg.S3Region}, nil
}

// Identifier implements cloud.Client
func (c *Client) Identifier() string {
	return "s3:" + c.bucket
}

// NewPager implements cloud.Client
func (c *Client) NewPager(prefix string, pageSize int) cloud.Pager {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.bucket),
		MaxKeys: aws.Int32(int32(pageSize)),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	return &pager{
		paginator: s3.NewListObjectsV2Paginator(c.client, input),
		prefix:    prefix,
	}
}

type pager struct {
	paginator *s3.ListObjectsV2Paginator
	prefix    string
}

func (p *pager) More() bool {
	return p.paginator.HasMorePages()
}

func (p *pager) NextPage(ctx context.Context) ([]filestag.FileListEntry, error) {
	page, err := p.paginator.NextPage(ctx)
	if err != nil {
		return nil, mapS3Error("list", p.prefix, err)
	}

	entries := make([]filestag.FileListEntry, 0, len(page.Contents))
	for _, obj := range page.Contents {
		modified := aws.ToTime(obj.LastModified)
		entries = append(entries, filestag.FileListEntry{
			Filename: aws.ToString(obj.Key),
			Size:     aws.ToInt64(obj.Size),
			// S3 keeps no creation time
			Created:  modified,
			Modified: modified,
		})
	}
	return entries, nil
}

// Download implements cloud.Client
func (c *Client) Download(ctx context.Context, name string) ([]byte, error) {
	resp, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, mapS3Error("read", name, err)
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
	_, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		mapped := mapS3Error("exists", name, err)
		if filestag.IsNotExist(mapped) {
			return false, nil
		}
		return false, mapped
	}
	return true, nil
}

// Upload implements cloud.Client
func (c *Client) Upload(ctx context.Context, name string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:            aws.String(c.bucket),
		Key:               aws.String(name),
		Body:              bytes.NewReader(data),
		ContentLength:     aws.Int64(int64(len(data))),
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := c.client.PutObject(ctx, input); err != nil {
		return mapS3Error("write", name, err)
	}
	return nil
}

// Delete implements cloud.Client
func (c *Client) Delete(ctx context.Context, name string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return mapS3Error("delete", name, err)
	}
	return nil
}

// EnsureContainer implements cloud.Client. Buckets are not deleted, so
// recreation is refused.
func (c *Client) EnsureContainer(ctx context.Context, recreate bool) error {
	if recreate {
		return filestag.NewPathError("create", c.bucket, filestag.ErrNotSupported)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(c.bucket)}
	if c.region != "" && c.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.region),
		}
	}

	_, err := c.client.CreateBucket(ctx, input)
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return mapS3Error("create", c.bucket, err)
	}
	return nil
}

// SignedURL generates a presigned GET URL
func (c *Client) SignedURL(ctx context.Context, name string, expiry time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(c.client)
	request, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(name),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", mapS3Error("sign", name, err)
	}
	return request.URL, nil
}

// Close implements cloud.Client
func (c *Client) Close() error {
	return nil
}

// mapS3Error maps S3 errors to filestag errors
func mapS3Error(op, name string, err error) error {
	var nsk *types.NoSuchKey
	var notFound *types.NotFound
	var noBucket *types.NoSuchBucket

	if errors.As(err, &nsk) || errors.As(err, &notFound) || errors.As(err, &noBucket) {
		return &filestag.PathError{Op: op, Path: name, Err: filestag.ErrNotExist}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "Forbidden":
			return &filestag.PathError{Op: op, Path: name, Err: fmt.Errorf("%w: %v", filestag.ErrConnection, err)}
		}
	}

	return &filestag.PathError{Op: op, Path: name, Err: err}
}

var (
	_ cloud.Client        = (*Client)(nil)
	_ filestag.CanSignURL = (*Client)(nil)
)
