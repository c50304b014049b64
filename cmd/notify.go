package cmd

import (
	"github.com/juju/clock"

	"Bits3/internal/config"
	"Bits3/internal/notifier"
)

// NotifierFromConfig builds a Notifier from cfg. Disabled or misconfigured notifications yield
// a no-op notifier; a misconfiguration is passed to warn.
func NotifierFromConfig(cfg *config.Config, warn func(string)) notifier.Notifier {
	if cfg == nil || !cfg.Notifications.Discord.Enabled {
		return notifier.Nop{}
	}
	n, err := notifier.NewDiscordNotifier(&cfg.Notifications.Discord, clock.WallClock)
	if err != nil {
		if warn != nil {
			warn("discord notification: " + err.Error())
		}
		return notifier.Nop{}
	}
	return n
}
