package archive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Object is one previously uploaded artifact as seen in the remote listing.
type Object struct {
	Key          string
	LastModified time.Time
	Size         int64
}

// ObjectInfo describes a downloaded object. Digest is the BLAKE3 digest recorded at upload
// time, empty when the object carries none.
type ObjectInfo struct {
	Key    string
	Size   int64
	Digest string
}

// DeleteResult reports the outcome of deleting a single key.
type DeleteResult struct {
	Key string
	Err error
}

// ProgressSink receives cumulative byte counts during an upload.
type ProgressSink interface {
	Report(done, total int64)
}

// RemoteStore is the set of object store operations the backup cycle needs.
// *s3.Client and *gcs.Client implement this interface.
type RemoteStore interface {
	Bucket() string
	VerifyBucket(ctx context.Context) error
	ListObjects(ctx context.Context) ([]Object, error)
	Upload(ctx context.Context, artifact *Artifact, class StorageClass, sink ProgressSink) error
	DeleteObjects(ctx context.Context, keys []string) []DeleteResult
}

// Downloader is implemented by stores that can stream an object back for restore.
type Downloader interface {
	Download(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
}

type StorageClass string

const (
	StorageStandard         StorageClass = "standard"
	StorageInfrequentAccess StorageClass = "infrequent-access"
	StorageArchive          StorageClass = "archive"
	StorageDeepArchive      StorageClass = "deep-archive"
)

// ParseStorageClass accepts the tier names and the S3 spellings, case-insensitively.
func ParseStorageClass(s string) (StorageClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard":
		return StorageStandard, nil
	case "infrequent-access", "standard_ia":
		return StorageInfrequentAccess, nil
	case "archive", "glacier":
		return StorageArchive, nil
	case "deep-archive", "deep_archive":
		return StorageDeepArchive, nil
	default:
		return "", fmt.Errorf("unknown storage class %q (want standard, infrequent-access, archive or deep-archive)", s)
	}
}

func StorageClassNames() []string {
	return []string{string(StorageStandard), string(StorageInfrequentAccess), string(StorageArchive), string(StorageDeepArchive)}
}
