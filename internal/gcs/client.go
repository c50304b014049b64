// Package gcs stores artifacts in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"Bits3/internal/engine/archive"
)

const DigestMetadataKey = "blake3"

type Options struct {
	Bucket string
	// Endpoint overrides the JSON API endpoint, e.g. for an emulator.
	Endpoint string
	// ClientOptions are passed to storage.NewClient after the endpoint option.
	ClientOptions []option.ClientOption
}

// Client is an archive.RemoteStore bound to one bucket. The underlying storage client is
// created on first use so that missing default credentials surface from VerifyBucket.
type Client struct {
	bucket string
	opts   []option.ClientOption
	log    zerolog.Logger

	once    sync.Once
	client  *storage.Client
	initErr error
}

var (
	_ archive.RemoteStore = (*Client)(nil)
	_ archive.Downloader  = (*Client)(nil)
)

func New(opts Options, log zerolog.Logger) *Client {
	var clientOpts []option.ClientOption
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}
	clientOpts = append(clientOpts, opts.ClientOptions...)
	return &Client{
		bucket: opts.Bucket,
		opts:   clientOpts,
		log:    log.With().Str("backend", "gcs").Str("bucket", opts.Bucket).Logger(),
	}
}

func (c *Client) handle(ctx context.Context) (*storage.BucketHandle, error) {
	c.once.Do(func() {
		c.client, c.initErr = storage.NewClient(ctx, c.opts...)
	})
	if c.initErr != nil {
		return nil, fmt.Errorf("%w: %v", archive.ErrNoCredentials, c.initErr)
	}
	return c.client.Bucket(c.bucket), nil
}

func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) VerifyBucket(ctx context.Context) error {
	bkt, err := c.handle(ctx)
	if err != nil {
		return err
	}
	if _, err := bkt.Attrs(ctx); err != nil {
		return fmt.Errorf("%w: %s: %s", archive.ErrBucketUnavailable, c.bucket, describe(err))
	}
	return nil
}

// ListObjects reports the object creation time as LastModified; metadata updates do not
// move an object in the rotation order.
func (c *Client) ListObjects(ctx context.Context) ([]archive.Object, error) {
	bkt, err := c.handle(ctx)
	if err != nil {
		return nil, err
	}
	var objects []archive.Object
	it := bkt.Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s", archive.ErrListFailed, c.bucket, describe(err))
		}
		objects = append(objects, archive.Object{
			Key:          attrs.Name,
			LastModified: attrs.Created,
			Size:         attrs.Size,
		})
	}
	return objects, nil
}

func (c *Client) Upload(ctx context.Context, artifact *archive.Artifact, class archive.StorageClass, sink archive.ProgressSink) error {
	f, err := os.Open(artifact.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", archive.ErrLocalFileMissing, artifact.Path)
		}
		return &archive.UploadError{Key: artifact.Key, Err: err}
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return &archive.UploadError{Key: artifact.Key, Err: err}
	}
	size := info.Size()

	bkt, err := c.handle(ctx)
	if err != nil {
		return err
	}

	// Cancelling the context is the only way to abandon a resumable upload.
	uctx, cancel := context.WithCancel(ctx)
	defer cancel()

	progress := newProgress(sink, size)
	start := time.Now()
	w := bkt.Object(artifact.Key).NewWriter(uctx)
	w.StorageClass = storageClass(class)
	w.ContentType = "application/octet-stream"
	if artifact.Digest != "" {
		w.Metadata = map[string]string{DigestMetadataKey: artifact.Digest}
	}
	w.ProgressFunc = progress.partial

	if _, err := io.Copy(w, f); err != nil {
		cancel()
		_ = w.Close()
		return &archive.UploadError{Key: artifact.Key, Err: err}
	}
	if err := w.Close(); err != nil {
		return &archive.UploadError{Key: artifact.Key, Err: errors.New(describe(err))}
	}
	progress.complete()
	c.log.Debug().Str("key", artifact.Key).Int64("bytes", size).Dur("took", time.Since(start)).Msg("object stored")
	return nil
}

func (c *Client) DeleteObjects(ctx context.Context, keys []string) []archive.DeleteResult {
	results := make([]archive.DeleteResult, 0, len(keys))
	bkt, err := c.handle(ctx)
	for _, key := range keys {
		if err != nil {
			results = append(results, archive.DeleteResult{Key: key, Err: err})
			continue
		}
		delErr := bkt.Object(key).Delete(ctx)
		if delErr != nil {
			delErr = errors.New(describe(delErr))
		}
		results = append(results, archive.DeleteResult{Key: key, Err: delErr})
	}
	return results
}

func (c *Client) Download(ctx context.Context, key string) (io.ReadCloser, archive.ObjectInfo, error) {
	bkt, err := c.handle(ctx)
	if err != nil {
		return nil, archive.ObjectInfo{}, err
	}
	obj := bkt.Object(key)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return nil, archive.ObjectInfo{}, fmt.Errorf("get %s/%s: %s", c.bucket, key, describe(err))
	}
	r, err := obj.Generation(attrs.Generation).NewReader(ctx)
	if err != nil {
		return nil, archive.ObjectInfo{}, fmt.Errorf("get %s/%s: %s", c.bucket, key, describe(err))
	}
	return r, archive.ObjectInfo{
		Key:    key,
		Size:   attrs.Size,
		Digest: attrs.Metadata[DigestMetadataKey],
	}, nil
}

func describe(err error) string {
	switch {
	case errors.Is(err, storage.ErrBucketNotExist):
		return "bucket does not exist"
	case errors.Is(err, storage.ErrObjectNotExist):
		return "object does not exist"
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Message != "" {
			return fmt.Sprintf("%d %s: %s", gerr.Code, http.StatusText(gerr.Code), gerr.Message)
		}
		return fmt.Sprintf("%d %s", gerr.Code, http.StatusText(gerr.Code))
	}
	return err.Error()
}

func storageClass(class archive.StorageClass) string {
	switch class {
	case archive.StorageInfrequentAccess:
		return "NEARLINE"
	case archive.StorageArchive:
		return "COLDLINE"
	case archive.StorageDeepArchive:
		return "ARCHIVE"
	default:
		return "STANDARD"
	}
}

// progress turns the writer's chunk callbacks into reports that never go backwards and
// reach the total only once the object is committed.
type progress struct {
	sink  archive.ProgressSink
	total int64
	last  int64
}

func newProgress(sink archive.ProgressSink, total int64) *progress {
	return &progress{sink: sink, total: total}
}

func (p *progress) partial(n int64) {
	if p.sink == nil || n <= p.last || n >= p.total {
		return
	}
	p.last = n
	p.sink.Report(n, p.total)
}

func (p *progress) complete() {
	if p.sink == nil {
		return
	}
	p.last = p.total
	p.sink.Report(p.total, p.total)
}
