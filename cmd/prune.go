package cmd

import (
	"context"
	"fmt"

	"github.com/juju/clock"
	"github.com/spf13/cobra"

	"Bits3/internal/engine"
	"Bits3/internal/engine/archive"
	"Bits3/internal/lock"
)

var pruneDryRun bool

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().Int("keep", 0, "Number of remote archives to keep (default from config)")
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "Only print what would be deleted")
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest keep archives",
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
	ctx := cmd.Context()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if err := st.VerifyBucket(ctx); err != nil {
		return err
	}

	if pruneDryRun {
		objects, err := st.ListObjects(ctx)
		if err != nil {
			return err
		}
		victims := archive.ObjectsToDelete(objects, cfg.Keep)
		if len(victims) == 0 {
			cmd.Printf("Nothing to prune (%d archives, keep %d)\n", len(objects), cfg.Keep)
			return nil
		}
		for _, obj := range victims {
			cmd.Printf("would delete %s\n", obj.Key)
		}
		return nil
	}

	lk := lock.NewLocal(lock.LocalOptions{Dir: cfg.LockDir, Name: cfg.Bucket})
	if err := lk.Acquire(ctx); err != nil {
		return err
	}
	defer lk.Release(context.Background())

	cycle := &engine.Cycle{Store: st, Clock: clock.WallClock, Log: log}
	deleted, failures := cycle.Prune(ctx, cfg.Keep)
	for _, key := range deleted {
		cmd.Printf("deleted %s\n", key)
	}

	notif := NotifierFromConfig(cfg, func(msg string) { log.Warn().Msg(msg) })
	if err := notif.NotifyPrune(ctx, cfg.Bucket, cfg.Keep, deleted, failures); err != nil {
		log.Warn().Err(err).Msg("notification failed")
	}

	if len(failures) > 0 {
		return fmt.Errorf("%d of %d deletions failed: %w", len(failures), len(deleted)+len(failures), failures[0])
	}
	return nil
}
