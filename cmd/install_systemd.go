package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"Bits3/internal/config"
	"Bits3/internal/schedule"
	"Bits3/internal/systemd"
)

var (
	installSystemdUnitDir   string
	installSystemdBinary    string
	installSystemdNoHarden  bool
	installSystemdNoEnable  bool
	installSystemdPrintOnly bool
)

func init() {
	rootCmd.AddCommand(installSystemdCmd)
	f := installSystemdCmd.Flags()
	f.StringVar(&installSystemdUnitDir, "unit-dir", systemd.DefaultUnitDir, "Directory for systemd unit files")
	f.StringVar(&installSystemdBinary, "binary", "", "Path of the bits3 binary (default: this executable)")
	f.BoolVar(&installSystemdNoHarden, "no-hardening", false, "Omit the sandboxing directives")
	f.BoolVar(&installSystemdNoEnable, "no-enable", false, "Write the units without enabling the timer")
	f.BoolVar(&installSystemdPrintOnly, "print", false, "Print the units instead of installing them")
}

var installSystemdCmd = &cobra.Command{
	Use:   "install-systemd BACKUPDIR",
	Short: "Install a oneshot service and a daily timer that run the backup cycle",
	Args:  cobra.ExactArgs(1),
	RunE:  runInstallSystemd,
}

func runInstallSystemd(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidConfig(cmd)
	if err != nil {
		return err
	}
	daily, err := schedule.ParseDaily(cfg.Schedule.Time)
	if err != nil {
		return err
	}
	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	binary := installSystemdBinary
	if binary == "" {
		if binary, err = os.Executable(); err != nil {
			return fmt.Errorf("locate executable: %w", err)
		}
	}
	configPath, err := filepath.Abs(config.ResolveConfigPath(cfgFile))
	if err != nil {
		return err
	}

	units, err := systemd.Generate(cfg.Bucket, daily, cfg.Schedule.JitterMinutes, systemd.GeneratorOptions{
		Binary:      binary,
		ConfigPath:  configPath,
		Hardening:   !installSystemdNoHarden,
		BackupRoot:  root,
		WorkDir:     cfg.WorkDir,
		MetricsFile: cfg.MetricsFile,
	})
	if err != nil {
		return err
	}
	if installSystemdPrintOnly {
		svcName, timerName := systemd.UnitFileNames(cfg.Bucket)
		cmd.Printf("# %s\n%s\n# %s\n%s", svcName, units.Service, timerName, units.Timer)
		return nil
	}
	if runtime.GOOS != "linux" {
		return fmt.Errorf("install-systemd is only supported on Linux")
	}

	svcPath, timerPath, err := systemd.WriteUnits(installSystemdUnitDir, cfg.Bucket, units)
	if err != nil {
		return err
	}
	cmd.Printf("Wrote %s and %s\n", svcPath, timerPath)

	if err := exec.Command("systemctl", "daemon-reload").Run(); err != nil {
		return fmt.Errorf("systemctl daemon-reload: %w", err)
	}
	if installSystemdNoEnable {
		return nil
	}
	_, timerName := systemd.UnitFileNames(cfg.Bucket)
	if out, err := exec.Command("systemctl", "enable", "--now", timerName).CombinedOutput(); err != nil {
		return fmt.Errorf("systemctl enable %s: %w: %s", timerName, err, out)
	}
	cmd.Printf("Enabled %s (daily at %s)\n", timerName, daily)
	return nil
}
