package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"Bits3/internal/engine/archive"
	"Bits3/internal/restore"
)

var restoreDryRun bool

func init() {
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().BoolVar(&restoreDryRun, "dry-run", false, "Download, decrypt and verify without writing files")
}

var restoreCmd = &cobra.Command{
	Use:   "restore KEY|latest [TARGET]",
	Short: "Download, decrypt and unpack an uploaded archive",
	Long: "Restore streams the object KEY (or the newest object for `latest`) through gpg and " +
		"unpacks it below TARGET. The archive's BLAKE3 digest is verified when the object carries one.",
	Args: cobra.RangeArgs(1, 2),
	RunE: runRestore,
}

func runRestore(cmd *cobra.Command, args []string) error {
	key := args[0]
	target := ""
	if len(args) == 2 {
		target = args[1]
	}
	if target == "" && !restoreDryRun {
		return fmt.Errorf("TARGET is required unless --dry-run is set")
	}

	cfg, err := loadValidConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
	dec, err := newGPG(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if err := st.VerifyBucket(ctx); err != nil {
		return err
	}

	if key == "latest" {
		objects, err := st.ListObjects(ctx)
		if err != nil {
			return err
		}
		if len(objects) == 0 {
			return fmt.Errorf("bucket %s holds no archives", cfg.Bucket)
		}
		sorted := archive.SortByAge(objects)
		key = sorted[len(sorted)-1].Key
		log.Info().Str("key", key).Msg("restoring newest archive")
	}

	stats, err := restore.RestoreArchive(ctx, st, dec, key, target, restore.Options{DryRun: restoreDryRun}, log)
	if err != nil {
		return err
	}

	verb := "Restored"
	if restoreDryRun {
		verb = "Verified"
	}
	cmd.Printf("%s %s: %d files, %d dirs, %d symlinks, %s\n", verb, key, stats.Files, stats.Dirs, stats.Symlinks, humanize.IBytes(uint64(stats.Bytes)))

	if !restoreDryRun {
		notif := NotifierFromConfig(cfg, func(msg string) { log.Warn().Msg(msg) })
		if err := notif.NotifyRestore(context.WithoutCancel(ctx), cfg.Bucket, key, target, stats); err != nil {
			log.Warn().Err(err).Msg("notification failed")
		}
	}
	return nil
}
