package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"Bits3/internal/engine/archive"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded archives, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
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
	objects, err := st.ListObjects(ctx)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		cmd.Printf("Bucket %s holds no archives\n", cfg.Bucket)
		return nil
	}

	// The last keep entries survive the next prune.
	sorted := archive.SortByAge(objects)
	doomed := len(sorted) - cfg.Keep
	var total int64
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSIZE\tUPLOADED\tAGE\tRETAINED")
	for i, obj := range sorted {
		total += obj.Size
		retained := "yes"
		if i < doomed {
			retained = "no"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			obj.Key,
			humanize.IBytes(uint64(obj.Size)),
			obj.LastModified.Local().Format(time.DateTime),
			humanize.Time(obj.LastModified),
			retained,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	cmd.Printf("%d archives, %s total\n", len(sorted), humanize.IBytes(uint64(total)))
	return nil
}
