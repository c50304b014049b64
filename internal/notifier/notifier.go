package notifier

import (
	"context"

	"Bits3/internal/engine"
	"Bits3/internal/restore"
)

// Notifier reports finished operations. Implementations filter by event themselves.
type Notifier interface {
	NotifyResult(ctx context.Context, bucket string, res *engine.Result) error
	NotifyPrune(ctx context.Context, bucket string, keep int, deleted []string, failures []*engine.PruneError) error
	NotifyRestore(ctx context.Context, bucket, key, targetDir string, stats restore.Stats) error
}

// Nop discards every notification.
type Nop struct{}

func (Nop) NotifyResult(context.Context, string, *engine.Result) error { return nil }

func (Nop) NotifyPrune(context.Context, string, int, []string, []*engine.PruneError) error {
	return nil
}

func (Nop) NotifyRestore(context.Context, string, string, string, restore.Stats) error { return nil }
