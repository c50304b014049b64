package archive

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoCredentials     = errors.New("no credentials available")
	ErrBucketUnavailable = errors.New("bucket does not exist or is not accessible")
	ErrListFailed        = errors.New("listing remote objects failed")
	ErrLocalFileMissing  = errors.New("local artifact is missing")
	ErrUploadFailed      = errors.New("upload failed")
	ErrEncryptionFailed  = errors.New("encryption failed")
	ErrArchiveFailed     = errors.New("archiving snapshot failed")
)

// EncryptionError is returned when the cipher executable exits non-zero.
// Op is "encrypt" or "decrypt".
type EncryptionError struct {
	Op       string
	ExitCode int
	Stderr   string
}

func (e *EncryptionError) Error() string {
	op := e.Op
	if op == "" {
		op = "encrypt"
	}
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s failed with exit code %d", op, e.ExitCode)
	}
	return fmt.Sprintf("%s failed with exit code %d: %s", op, e.ExitCode, msg)
}

func (e *EncryptionError) Is(target error) bool {
	return target == ErrEncryptionFailed
}

// UploadError wraps a transport or storage-side failure during upload.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrUploadFailed, e.Key, e.Err)
}

func (e *UploadError) Is(target error) bool {
	return target == ErrUploadFailed
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
