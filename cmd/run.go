package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/clock"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"Bits3/internal/config"
	"Bits3/internal/engine"
	"Bits3/internal/engine/archive"
	"Bits3/internal/lock"
	"Bits3/internal/metrics"
)

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd.Flags())
}

var runCmd = &cobra.Command{
	Use:   "run BACKUPDIR",
	Short: "Run one backup cycle for the latest snapshot below BACKUPDIR",
	Long: "Verify the bucket, upload the latest snapshot if the upload interval has passed, " +
		"remove the local archive and prune old uploads. Exits non-zero only when the cycle fails; " +
		"a skipped upload is a success.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackup(cmd, args[0])
	},
}

// addRunFlags registers the cycle flags on both `bits3 BACKUPDIR` and `bits3 run`.
func addRunFlags(f *pflag.FlagSet) {
	f.Int("upload-interval", 0, "Days that must pass since the last upload (default 90)")
	f.Int("keep", 0, "Number of remote archives to keep (default 1)")
	f.String("storage-class", "", "Storage tier: standard, infrequent-access, archive, deep-archive")
	f.Bool("progress", false, "Print upload progress")
	f.String("compression", "", "Compress the tar stream before encryption: none, gz, zst")
	f.String("work-dir", "", "Directory for the local archive (default: next to the snapshot's parent)")
	f.Int("part-size-mb", 0, "S3 multipart part size in MiB (default 8)")
	f.String("metrics-file", "", "Write Prometheus textfile metrics to this path")
}

func runBackup(cmd *cobra.Command, backupRoot string) error {
	cfg, err := loadValidConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc, err := newGPG(cfg)
	if err != nil {
		return err
	}
	class, err := archive.ParseStorageClass(cfg.StorageClass)
	if err != nil {
		return err
	}
	format, err := archive.ParseCompression(cfg.Compression)
	if err != nil {
		return err
	}

	lk := lock.NewLocal(lock.LocalOptions{Dir: cfg.LockDir, Name: cfg.Bucket})
	if err := lk.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if err := lk.Release(context.Background()); err != nil {
			log.Warn().Err(err).Msg("release run lock")
		}
	}()

	var progress *progressLine
	opts := engine.Options{
		BackupRoot:   backupRoot,
		StorageClass: class,
		IntervalDays: cfg.UploadInterval,
		Keep:         cfg.Keep,
	}
	if cfg.Progress {
		progress = newProgressLine(cmd.ErrOrStderr(), "upload")
		opts.Progress = progress
	}

	res := runCycle(ctx, cfg, opts, enc, format, log)
	if progress != nil {
		progress.Finish()
	}

	report(log, cfg.Bucket, &res)
	afterCycle(ctx, cmd, cfg, &res, log)

	if res.Outcome == engine.Failed {
		return fmt.Errorf("backup failed at %s: %w", res.State, res.Err)
	}
	return nil
}

func runCycle(ctx context.Context, cfg *config.Config, opts engine.Options, enc archive.Encryptor, format archive.CompressionFormat, log zerolog.Logger) engine.Result {
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return engine.Result{Outcome: engine.Failed, State: engine.StateValidateBucket, Err: err}
	}
	defer closeStore()

	cycle := &engine.Cycle{
		Store: st,
		Archiver: archive.NewArchiver(enc, archive.ArchiverOptions{
			Compression: format,
			Level:       cfg.CompressionLevel,
			WorkDir:     cfg.WorkDir,
		}, log),
		Clock: clock.WallClock,
		Log:   log,
	}
	return cycle.Run(ctx, opts)
}

func report(log zerolog.Logger, bucket string, res *engine.Result) {
	ev := log.Info()
	if res.Outcome == engine.Failed {
		ev = log.Error().Err(res.Err)
	}
	ev = ev.Str("bucket", bucket).
		Stringer("outcome", res.Outcome).
		Stringer("state", res.State).
		Dur("took", res.Duration)
	if res.Artifact != nil {
		ev = ev.Str("key", res.Artifact.Key).Int64("bytes", res.Artifact.Size)
	}
	if len(res.Deleted) > 0 {
		ev = ev.Strs("pruned", res.Deleted)
	}
	if len(res.PruneFailures) > 0 {
		ev = ev.Int("prune_failures", len(res.PruneFailures))
	}
	ev.Msg("backup cycle finished")
}

// afterCycle sends the notification and writes metrics. Neither can change the outcome.
func afterCycle(ctx context.Context, cmd *cobra.Command, cfg *config.Config, res *engine.Result, log zerolog.Logger) {
	notif := NotifierFromConfig(cfg, func(msg string) { log.Warn().Msg(msg) })
	// The cycle context may already be cancelled by a signal.
	nctx := context.WithoutCancel(ctx)
	if err := notif.NotifyResult(nctx, cfg.Bucket, res); err != nil {
		log.Warn().Err(err).Msg("notification failed")
	}
	if cfg.MetricsFile == "" {
		return
	}
	c := metrics.NewCollector()
	c.Observe(cfg.Bucket, res)
	if err := metrics.WriteTextfile(cfg.MetricsFile, c); err != nil {
		log.Warn().Err(err).Msg("metrics not written")
	}
}
