package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"Bits3/internal/engine/archive"
)

// Upload sends the artifact under its key. Files larger than one part go through a multipart
// upload that is aborted on any error. Progress is reported after each completed part.
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

	var meta map[string]string
	if artifact.Digest != "" {
		meta = map[string]string{DigestMetadataKey: artifact.Digest}
	}

	start := time.Now()
	if size <= c.partSize {
		err = c.putObject(ctx, artifact.Key, f, size, storageClass(class), meta)
		if err == nil && sink != nil {
			sink.Report(size, size)
		}
	} else {
		err = c.uploadMultipart(ctx, artifact.Key, f, size, storageClass(class), meta, sink)
	}
	if err != nil {
		return &archive.UploadError{Key: artifact.Key, Err: err}
	}
	c.log.Debug().Str("key", artifact.Key).Int64("bytes", size).Dur("took", time.Since(start)).Msg("object stored")
	return nil
}

func (c *Client) putObject(ctx context.Context, key string, body io.ReadSeeker, size int64, class types.StorageClass, meta map[string]string) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		StorageClass:  class,
		Metadata:      meta,
	})
	if err != nil {
		return errors.New(describe(err))
	}
	return nil
}

func (c *Client) uploadMultipart(ctx context.Context, key string, body io.Reader, size int64, class types.StorageClass, meta map[string]string, sink archive.ProgressSink) error {
	createOut, err := c.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:       aws.String(c.bucket),
		Key:          aws.String(key),
		StorageClass: class,
		Metadata:     meta,
	})
	if err != nil {
		return fmt.Errorf("create multipart upload: %s", describe(err))
	}
	uploadID := createOut.UploadId
	defer func() {
		if uploadID == nil {
			return
		}
		_, abortErr := c.api.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(c.bucket),
			Key:      aws.String(key),
			UploadId: uploadID,
		})
		if abortErr != nil {
			c.log.Warn().Str("key", key).Str("error", describe(abortErr)).Msg("could not abort multipart upload")
		}
	}()

	partSize := partSizeFor(size, c.partSize)
	if partSize != c.partSize {
		c.log.Debug().Str("key", key).Int64("part_size", partSize).Msg("part size raised to stay within the part limit")
	}

	var completed []types.CompletedPart
	var done int64
	partNumber := int32(1)
	buf := make([]byte, partSize)

	for done < size {
		n, readErr := io.ReadFull(body, buf)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			return fmt.Errorf("read part %d: %w", partNumber, readErr)
		}
		if n == 0 {
			return fmt.Errorf("artifact shrank during upload: read %d of %d bytes", done, size)
		}

		uploadOut, err := c.api.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(c.bucket),
			Key:           aws.String(key),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(partNumber),
			Body:          bytes.NewReader(buf[:n]),
			ContentLength: aws.Int64(int64(n)),
		})
		if err != nil {
			return fmt.Errorf("upload part %d: %s", partNumber, describe(err))
		}
		completed = append(completed, types.CompletedPart{
			ETag:       uploadOut.ETag,
			PartNumber: aws.Int32(partNumber),
		})
		done += int64(n)
		partNumber++

		// The total is reported once, after the parts are assembled.
		if sink != nil && done < size {
			sink.Report(done, size)
		}
		c.log.Debug().Str("key", key).Int32("part", partNumber-1).Int64("done", done).Int64("total", size).Msg("part uploaded")
	}

	_, err = c.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return fmt.Errorf("complete multipart upload: %s", describe(err))
	}
	uploadID = nil
	if sink != nil {
		sink.Report(size, size)
	}
	return nil
}

// partSizeFor returns the configured part size, raised when needed so that size fits in at
// most MaxParts parts.
func partSizeFor(size, configured int64) int64 {
	minimum := (size + MaxParts - 1) / MaxParts
	if minimum > configured {
		return minimum
	}
	return configured
}
