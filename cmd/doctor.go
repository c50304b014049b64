package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"Bits3/internal/doctor"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor [BACKUPDIR]",
	Short: "Check config, gpg, bucket access, the snapshot marker and local directories",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd, true)
	if err != nil {
		cmd.Printf("Config load: ERROR: %v\n", err)
		return err
	}
	log := newLogger(cfg.LogLevel, cmd.ErrOrStderr())

	opts := doctor.Options{Config: cfg}
	if len(args) == 1 {
		opts.BackupRoot = args[0]
	}
	if cfg.Bucket != "" {
		st, closeStore, err := openStore(ctx, cfg, log)
		if err != nil {
			opts.StoreErr = err
		} else {
			defer closeStore()
			opts.Store = st
		}
	}

	results := doctor.Run(ctx, opts)
	for _, r := range results {
		status := "OK"
		if !r.OK {
			status = "ERROR"
		}
		cmd.Printf("%-13s %-5s %s\n", r.Name, status, r.Detail)
	}
	if doctor.Failed(results) {
		return fmt.Errorf("one or more checks failed; see output above")
	}
	return nil
}
