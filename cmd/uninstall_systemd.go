package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"Bits3/internal/systemd"
)

var uninstallSystemdUnitDir string

func init() {
	rootCmd.AddCommand(uninstallSystemdCmd)
	uninstallSystemdCmd.Flags().StringVar(&uninstallSystemdUnitDir, "unit-dir", systemd.DefaultUnitDir, "Directory for systemd unit files")
}

var uninstallSystemdCmd = &cobra.Command{
	Use:   "uninstall-systemd",
	Short: "Remove the service and timer units for the configured bucket",
	Args:  cobra.NoArgs,
	RunE:  runUninstallSystemd,
}

func runUninstallSystemd(cmd *cobra.Command, args []string) error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("uninstall-systemd is only supported on Linux")
	}

	cfg, err := loadValidConfig(cmd)
	if err != nil {
		return err
	}

	svcName, timerName := systemd.UnitFileNames(cfg.Bucket)
	svcPath := filepath.Join(uninstallSystemdUnitDir, svcName)
	timerPath := filepath.Join(uninstallSystemdUnitDir, timerName)

	_ = exec.Command("systemctl", "disable", "--now", timerName).Run()

	if err := os.Remove(timerPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", timerPath, err)
	}
	if err := os.Remove(svcPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", svcPath, err)
	}
	cmd.Printf("Removed %s and %s\n", svcName, timerName)

	if err := exec.Command("systemctl", "daemon-reload").Run(); err != nil {
		return fmt.Errorf("systemctl daemon-reload: %w", err)
	}
	cmd.Println("Reloaded systemd daemon")
	return nil
}
