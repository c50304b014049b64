// Package engine runs one backup cycle: verify the bucket, decide whether an upload is due,
// archive the latest snapshot, upload it, remove the local copy and prune old remote copies.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"Bits3/internal/engine/archive"
	"Bits3/internal/snapshot"
)

type Outcome int

const (
	Success Outcome = iota
	Skipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// State is a step of the cycle. Steps run strictly in declaration order.
type State int

const (
	StateValidateBucket State = iota
	StateCheckUploadDue
	StateLocateSnapshot
	StateArchive
	StateUpload
	StateCleanupLocal
	StatePrune
	StateDone
)

var stateNames = [...]string{
	"validate-bucket",
	"check-upload-due",
	"locate-snapshot",
	"archive",
	"upload",
	"cleanup-local",
	"prune",
	"done",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Archiver produces the encrypted artifact for a snapshot directory.
type Archiver interface {
	Archive(ctx context.Context, snapshotDir string) (*archive.Artifact, error)
}

type LocateFunc func(root string) (string, error)

// PruneError records a retention step that did not complete. Key is empty when the
// listing itself failed.
type PruneError struct {
	Key string
	Err error
}

func (e *PruneError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("prune: %v", e.Err)
	}
	return fmt.Sprintf("prune %s: %v", e.Key, e.Err)
}

func (e *PruneError) Unwrap() error { return e.Err }

type Options struct {
	BackupRoot   string
	StorageClass archive.StorageClass
	IntervalDays int
	Keep         int
	// Progress receives upload progress; nil disables reporting.
	Progress archive.ProgressSink
}

type Result struct {
	Outcome Outcome
	// State is the last step entered. For a failed cycle it is the step that failed.
	State State
	Err   error

	Snapshot   string
	Artifact   *archive.Artifact
	LastUpload time.Time
	DaysSince  int

	Deleted       []string
	PruneFailures []*PruneError

	Started  time.Time
	Duration time.Duration
}

type Cycle struct {
	Store    archive.RemoteStore
	Archiver Archiver
	Locate   LocateFunc
	Clock    clock.Clock
	Log      zerolog.Logger
}

func (c *Cycle) clock() clock.Clock {
	if c.Clock == nil {
		return clock.WallClock
	}
	return c.Clock
}

// Run executes the cycle. Every step must succeed before the next begins; pruning is the
// exception and its failures are collected in the result without failing the cycle.
func (c *Cycle) Run(ctx context.Context, opts Options) Result {
	clk := c.clock()
	res := Result{Started: clk.Now()}
	log := c.Log.With().Str("bucket", c.Store.Bucket()).Logger()

	finish := func(o Outcome, err error) Result {
		res.Outcome = o
		res.Err = err
		res.Duration = clk.Now().Sub(res.Started)
		return res
	}
	fail := func(err error) Result {
		log.Error().Err(err).Stringer("state", res.State).Msg("backup cycle failed")
		return finish(Failed, err)
	}

	res.State = StateValidateBucket
	if err := c.Store.VerifyBucket(ctx); err != nil {
		return fail(err)
	}
	log.Debug().Msg("bucket verified")

	res.State = StateCheckUploadDue
	objects, err := c.Store.ListObjects(ctx)
	if err != nil {
		return fail(err)
	}
	if last, ok := archive.LastUpload(objects); ok {
		res.LastUpload = last
		res.DaysSince = archive.DaysSince(last, clk.Now())
	}
	if !archive.IsUploadDue(objects, opts.IntervalDays, clk.Now()) {
		log.Info().
			Int("days_since_last", res.DaysSince).
			Int("interval_days", opts.IntervalDays).
			Msg("upload not due yet")
		return finish(Skipped, nil)
	}

	res.State = StateLocateSnapshot
	locate := c.Locate
	if locate == nil {
		locate = snapshot.Locate
	}
	snap, err := locate(opts.BackupRoot)
	if err != nil {
		return fail(err)
	}
	res.Snapshot = snap
	log.Info().Str("snapshot", snap).Msg("latest snapshot located")

	res.State = StateArchive
	artifact, err := c.Archiver.Archive(ctx, snap)
	if err != nil {
		return fail(err)
	}
	res.Artifact = artifact

	res.State = StateUpload
	uploadStart := clk.Now()
	if err := c.Store.Upload(ctx, artifact, opts.StorageClass, opts.Progress); err != nil {
		log.Warn().Str("artifact", artifact.Path).Msg("keeping local artifact after failed upload")
		return fail(err)
	}
	log.Info().
		Str("key", artifact.Key).
		Str("storage_class", string(opts.StorageClass)).
		Dur("took", clk.Now().Sub(uploadStart)).
		Msg("upload complete")

	res.State = StateCleanupLocal
	if err := os.Remove(artifact.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("artifact", artifact.Path).Msg("could not remove local artifact")
	} else {
		log.Debug().Str("artifact", artifact.Path).Msg("local artifact removed")
	}

	res.State = StatePrune
	res.Deleted, res.PruneFailures = c.Prune(ctx, opts.Keep)

	res.State = StateDone
	return finish(Success, nil)
}

// Prune deletes every remote object except the keep most recent. Failures are logged and
// returned; they never stop the remaining deletions.
func (c *Cycle) Prune(ctx context.Context, keep int) (deleted []string, failures []*PruneError) {
	log := c.Log.With().Str("bucket", c.Store.Bucket()).Logger()

	objects, err := c.Store.ListObjects(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("prune skipped: listing failed")
		return nil, []*PruneError{{Err: err}}
	}
	victims := archive.ObjectsToDelete(objects, keep)
	if len(victims) == 0 {
		log.Debug().Int("objects", len(objects)).Int("keep", keep).Msg("nothing to prune")
		return nil, nil
	}

	for _, r := range c.Store.DeleteObjects(ctx, archive.Keys(victims)) {
		if r.Err != nil {
			log.Warn().Err(r.Err).Str("key", r.Key).Msg("prune failed")
			failures = append(failures, &PruneError{Key: r.Key, Err: r.Err})
			continue
		}
		log.Info().Str("key", r.Key).Msg("pruned remote object")
		deleted = append(deleted, r.Key)
	}
	return deleted, failures
}
