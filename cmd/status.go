package cmd

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/clock"
	"github.com/spf13/cobra"

	"Bits3/internal/engine/archive"
	"Bits3/internal/schedule"
	"Bits3/internal/snapshot"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status [BACKUPDIR]",
	Short: "Show the last upload, when the next one is due and the latest local snapshot",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
	ctx := cmd.Context()
	now := clock.WallClock.Now()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if err := st.VerifyBucket(ctx); err != nil {
		return err
	}
	objects, err := st.ListObjects(ctx)
	if err != nil {
		return err
	}

	daily, err := schedule.ParseDaily(cfg.Schedule.Time)
	if err != nil {
		return err
	}

	cmd.Printf("Bucket:          %s (%s)\n", cfg.Bucket, cfg.Backend)
	cmd.Printf("Archives:        %d (keep %d)\n", len(objects), cfg.Keep)
	if last, ok := archive.LastUpload(objects); ok {
		cmd.Printf("Last upload:     %s (%s, %d days)\n", last.Local().Format(time.DateTime), humanize.Time(last), archive.DaysSince(last, now))
	} else {
		cmd.Println("Last upload:     never")
	}
	due := archive.NextUploadDue(objects, cfg.UploadInterval)
	if archive.IsUploadDue(objects, cfg.UploadInterval, now) {
		cmd.Println("Upload due:      now")
	} else {
		cmd.Printf("Upload due:      %s (%s)\n", due.Local().Format(time.DateTime), humanize.Time(due))
	}
	next := daily.NextUpload(due, now)
	cmd.Printf("Next upload run: %s (daily timer at %s)\n", next.Format(time.DateTime), daily)

	if len(args) == 1 {
		snap, err := snapshot.Locate(args[0])
		if err != nil {
			cmd.Printf("Latest snapshot: %v\n", err)
		} else {
			cmd.Printf("Latest snapshot: %s\n", snap)
		}
	}
	return nil
}
