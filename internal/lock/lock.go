package lock

import "context"

// Locker serializes backup cycles that share a bucket.
type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}
