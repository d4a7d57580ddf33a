// Package s3 stores profile backups in an S3 compatible bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/quocson95/ideaftp/pkg/profile"
)

const (
	keyPrefix     = "profiles-"
	keySuffix     = ".enc"
	keyTimeFormat = "20060102-150405"
	defaultRegion = "us-east-1"
)

// ErrNoBackups is returned by PullLatest when the bucket holds no backup
var ErrNoBackups = errors.New("no backups found")

// API is the subset of the S3 client used here
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Client handles backup objects in one bucket
type Client struct {
	api    API
	bucket string
	now    func() time.Time
}

// NewClient creates a client for an S3 compatible endpoint
func NewClient(ctx context.Context, host, accessKey, secretKey, bucket string) (*Client, error) {
	if host == "" || accessKey == "" || secretKey == "" {
		return nil, errors.New("missing S3 configuration")
	}
	if bucket == "" {
		return nil, errors.New("missing S3 bucket")
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		config.WithRegion(defaultRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	api := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(host)
		o.UsePathStyle = true // MinIO and most self-hosted servers
	})
	return NewWithAPI(api, bucket), nil
}

// FromSettings creates a client from the S3 fields of the settings
func FromSettings(ctx context.Context, s profile.Settings) (*Client, error) {
	return NewClient(ctx, s.S3Host, s.S3AccessKey, s.S3SecretKey, s.S3Bucket)
}

// NewWithAPI wraps an existing API implementation
func NewWithAPI(api API, bucket string) *Client {
	return &Client{api: api, bucket: bucket, now: time.Now}
}

// Bucket returns the bucket name
func (c *Client) Bucket() string {
	return c.bucket
}

// EnsureBucket creates the bucket unless it already exists
func (c *Client) EnsureBucket(ctx context.Context) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}

	_, err = c.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucket)})
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Push stores an encrypted backup and returns its key
func (c *Client) Push(ctx context.Context, data []byte) (string, error) {
	if err := c.EnsureBucket(ctx); err != nil {
		return "", err
	}

	key := keyPrefix + c.now().UTC().Format(keyTimeFormat) + keySuffix
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload backup: %w", err)
	}
	return key, nil
}

// PullLatest downloads the most recent backup and returns its key and content
func (c *Client) PullLatest(ctx context.Context) (string, []byte, error) {
	var objects []types.Object
	p := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(keyPrefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("failed to list backups: %w", err)
		}
		objects = append(objects, page.Contents...)
	}
	if len(objects) == 0 {
		return "", nil, ErrNoBackups
	}

	// keys embed a sortable UTC timestamp
	sort.Slice(objects, func(i, j int) bool {
		return aws.ToString(objects[i].Key) > aws.ToString(objects[j].Key)
	})
	key := aws.ToString(objects[0].Key)

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to download backup %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read backup %s: %w", key, err)
	}
	return key, data, nil
}
