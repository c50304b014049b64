package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"Bits3/internal/config"
)

var (
	webhookURLFlag     string
	discordEnableFlag  bool
	discordDisableFlag bool
	discordEventsFlag  []string
	discordMentionFlag string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configWebhooksCmd)
	configWebhooksCmd.Flags().StringVar(&webhookURLFlag, "webhook-url", "", "Discord webhook URL")
	configWebhooksCmd.Flags().BoolVar(&discordEnableFlag, "discord-enable", false, "Enable Discord notifications")
	configWebhooksCmd.Flags().BoolVar(&discordDisableFlag, "discord-disable", false, "Disable Discord notifications")
	configWebhooksCmd.Flags().StringSliceVar(&discordEventsFlag, "events", nil, "Events to send: success, skipped, failed, prune, restore (default all)")
	configWebhooksCmd.Flags().StringVar(&discordMentionFlag, "mention", "", "Mention added to failure messages, e.g. <@&role-id>")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configWebhooksCmd = &cobra.Command{
	Use:   "webhooks",
	Short: "Configure Discord webhook notifications",
	Long:  "Show current notification settings and optionally set the Discord webhook URL, events and mention. Run without flags for interactive prompts.",
	Args:  cobra.NoArgs,
	RunE:  runConfigWebhooks,
}

func runConfigWebhooks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	path := config.ResolveConfigPath(cfgFile)

	f := cmd.Flags()
	hasFlags := f.Changed("webhook-url") || discordEnableFlag || discordDisableFlag || f.Changed("events") || f.Changed("mention")
	if hasFlags {
		return applyWebhookFlags(cmd, cfg, path)
	}
	return runConfigWebhooksInteractive(cmd, cfg, path)
}

func applyWebhookFlags(cmd *cobra.Command, cfg *config.Config, path string) error {
	if discordEnableFlag && discordDisableFlag {
		return fmt.Errorf("cannot use both --discord-enable and --discord-disable")
	}
	d := &cfg.Notifications.Discord
	if cmd.Flags().Changed("webhook-url") {
		d.WebhookURL = strings.TrimSpace(webhookURLFlag)
	}
	if discordEnableFlag {
		d.Enabled = true
	}
	if discordDisableFlag {
		d.Enabled = false
	}
	if cmd.Flags().Changed("events") {
		d.Events = trimAll(discordEventsFlag)
	}
	if cmd.Flags().Changed("mention") {
		d.Mention = strings.TrimSpace(discordMentionFlag)
	}
	return saveWebhookConfig(cmd, cfg, path)
}

func runConfigWebhooksInteractive(cmd *cobra.Command, cfg *config.Config, path string) error {
	reader := bufio.NewReader(cmd.InOrStdin())
	d := &cfg.Notifications.Discord

	cmd.Println("Current notification settings:")
	printWebhookStatus(cmd, cfg)
	cmd.Println()

	label := "Discord webhook URL"
	if d.WebhookURL != "" {
		label += " (Enter to keep current)"
	}
	cmd.Printf("%s: ", label)
	line, _ := reader.ReadString('\n')
	if u := strings.TrimSpace(line); u != "" {
		d.WebhookURL = u
	}
	d.Enabled = confirm(cmd, reader, "Enable Discord notifications?", d.Enabled || d.WebhookURL != "")
	events := prompt(cmd, reader, "Events (comma-separated, empty for all)", strings.Join(d.Events, ","))
	d.Events = nil
	if events != "" {
		d.Events = trimAll(strings.Split(events, ","))
	}
	d.Mention = prompt(cmd, reader, "Mention on failure (empty for none)", d.Mention)

	return saveWebhookConfig(cmd, cfg, path)
}

func saveWebhookConfig(cmd *cobra.Command, cfg *config.Config, path string) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.Write(cfg, path); err != nil {
		return err
	}
	cmd.Printf("Configuration saved to %s\n", path)
	printWebhookStatus(cmd, cfg)
	return nil
}

func printWebhookStatus(cmd *cobra.Command, cfg *config.Config) {
	d := cfg.Notifications.Discord
	cmd.Printf("  Discord: %s\n", onOff(d.Enabled))
	switch {
	case d.WebhookURL != "":
		cmd.Printf("    Webhook URL: %s\n", maskWebhookURL(d.WebhookURL))
	case os.Getenv("BITS3_NOTIFICATIONS_DISCORD_WEBHOOK_URL") != "":
		cmd.Println("    Webhook URL: (from env)")
	default:
		cmd.Println("    Webhook URL: (not set)")
	}
	events := "all"
	if len(d.Events) > 0 {
		events = strings.Join(d.Events, ", ")
	}
	cmd.Printf("    Events: %s\n", events)
	if d.Mention != "" {
		cmd.Printf("    Mention: %s\n", d.Mention)
	}
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// maskWebhookURL hides the webhook token, which grants posting rights.
func maskWebhookURL(s string) string {
	const max = 50
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
