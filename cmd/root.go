package cmd

import (
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "bits3 [BACKUPDIR]",
	Short: "Upload the latest local snapshot to object storage as one encrypted archive",
	Long: "bits3 finds the newest snapshot below BACKUPDIR (the target of the last_snapshot link), " +
		"streams it as a gpg encrypted tar archive, uploads it to S3 or GCS when the upload interval " +
		"has passed and prunes old uploads. Without a subcommand it behaves like `bits3 run BACKUPDIR`.",
	Args:    cobra.MaximumNArgs(1),
	Version: version + " (" + commit + ")",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runBackup(cmd, args[0])
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "Config file (default $BITS3_CONFIG or /etc/bits3/config.yaml)")
	pf.StringP("bucket", "b", "", "Bucket holding the encrypted archives")
	pf.String("backend", "", "Object store backend: s3 or gcs")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("passphrase-file", "", "File whose first line is the encryption passphrase")
	pf.String("gpg", "", "gpg executable")
	pf.String("lock-dir", "", "Directory for the run lock")
	pf.String("endpoint", "", "Custom S3 endpoint, e.g. a MinIO server")
	pf.String("region", "", "S3 region")

	addRunFlags(rootCmd.Flags())
}

func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}
