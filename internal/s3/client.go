package s3

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"Bits3/internal/engine/archive"
)

const (
	MinPartSizeMB    = 5
	MinPartSizeBytes = MinPartSizeMB * 1024 * 1024

	DefaultPartSizeMB = 8
	DefaultRegion     = "us-east-1"
	// MaxParts is the S3 limit on parts per multipart upload.
	MaxParts = 10000

	// DigestMetadataKey holds the hex BLAKE3 digest of the uploaded ciphertext.
	DigestMetadataKey = "blake3"
)

type Options struct {
	Bucket             string
	Region             string
	Endpoint           string
	PathStyle          bool
	InsecureSkipVerify bool
	PartSizeMB         int
	// Credentials overrides the default provider chain.
	Credentials aws.CredentialsProvider
}

// api is the subset of *s3.Client used here.
type api interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Client is an archive.RemoteStore bound to one bucket. Object keys are artifact file names.
type Client struct {
	api      api
	creds    aws.CredentialsProvider
	bucket   string
	region   string
	partSize int64
	log      zerolog.Logger
}

var (
	_ archive.RemoteStore = (*Client)(nil)
	_ archive.Downloader  = (*Client)(nil)
)

func New(ctx context.Context, opts Options, log zerolog.Logger) (*Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.Credentials != nil {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(opts.Credentials))
	}
	if opts.InsecureSkipVerify {
		loadOpts = append(loadOpts, config.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		}))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	endpoint, err := normalizeEndpoint(opts.Endpoint)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	return newClient(client, cfg.Credentials, opts.Bucket, cfg.Region, partSizeBytes(opts.PartSizeMB), log), nil
}

func newClient(api api, creds aws.CredentialsProvider, bucket, region string, partSize int64, log zerolog.Logger) *Client {
	return &Client{
		api:      api,
		creds:    creds,
		bucket:   bucket,
		region:   region,
		partSize: partSize,
		log:      log.With().Str("backend", "s3").Str("bucket", bucket).Logger(),
	}
}

func partSizeBytes(mb int) int64 {
	if mb <= 0 {
		mb = DefaultPartSizeMB
	}
	if mb < MinPartSizeMB {
		mb = MinPartSizeMB
	}
	return int64(mb) * 1024 * 1024
}

func normalizeEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("s3 endpoint: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("s3 endpoint %q has no host", raw)
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

// VerifyBucket resolves credentials first so that a missing provider is reported as
// ErrNoCredentials rather than as a signing failure against the bucket.
func (c *Client) VerifyBucket(ctx context.Context) error {
	if c.creds == nil {
		return fmt.Errorf("%w: no credential provider configured", archive.ErrNoCredentials)
	}
	creds, err := c.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", archive.ErrNoCredentials, err)
	}
	if !creds.HasKeys() {
		return fmt.Errorf("%w: credential provider returned empty keys", archive.ErrNoCredentials)
	}

	_, err = c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		return fmt.Errorf("%w: %s: %s", archive.ErrBucketUnavailable, c.bucket, describe(err))
	}
	return nil
}

// CreateBucket creates the bucket, treating an existing bucket owned by the caller as success.
func (c *Client) CreateBucket(ctx context.Context) error {
	in := &s3.CreateBucketInput{Bucket: aws.String(c.bucket)}
	if c.region != "" && c.region != DefaultRegion {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.region),
		}
	}
	_, err := c.api.CreateBucket(ctx, in)
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		return fmt.Errorf("create bucket %s: %s", c.bucket, describe(err))
	}
	return nil
}

func (c *Client) ListObjects(ctx context.Context) ([]archive.Object, error) {
	var objects []archive.Object
	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s", archive.ErrListFailed, c.bucket, describe(err))
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			objects = append(objects, archive.Object{
				Key:          *obj.Key,
				LastModified: aws.ToTime(obj.LastModified),
				Size:         aws.ToInt64(obj.Size),
			})
		}
	}
	return objects, nil
}

// DeleteObjects issues one request per key so that each key succeeds or fails on its own.
func (c *Client) DeleteObjects(ctx context.Context, keys []string) []archive.DeleteResult {
	results := make([]archive.DeleteResult, 0, len(keys))
	for _, key := range keys {
		_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(c.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			err = errors.New(describe(err))
		}
		results = append(results, archive.DeleteResult{Key: key, Err: err})
	}
	return results
}

func (c *Client) Download(ctx context.Context, key string) (io.ReadCloser, archive.ObjectInfo, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, archive.ObjectInfo{}, fmt.Errorf("get %s/%s: %s", c.bucket, key, describe(err))
	}
	return out.Body, archive.ObjectInfo{
		Key:    key,
		Size:   aws.ToInt64(out.ContentLength),
		Digest: out.Metadata[DigestMetadataKey],
	}, nil
}

// describe renders an API error as "Code: message" and anything else unchanged.
func describe(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if msg := apiErr.ErrorMessage(); msg != "" {
			return apiErr.ErrorCode() + ": " + msg
		}
		return apiErr.ErrorCode()
	}
	return err.Error()
}

func storageClass(class archive.StorageClass) types.StorageClass {
	switch class {
	case archive.StorageInfrequentAccess:
		return types.StorageClassStandardIa
	case archive.StorageArchive:
		return types.StorageClassGlacier
	case archive.StorageDeepArchive:
		return types.StorageClassDeepArchive
	default:
		return types.StorageClassStandard
	}
}
