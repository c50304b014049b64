package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/clock"

	"Bits3/internal/config"
	"Bits3/internal/engine"
	"Bits3/internal/restore"
)

const (
	EventSuccess = "success"
	EventSkipped = "skipped"
	EventFailed  = "failed"
	EventPrune   = "prune"
	EventRestore = "restore"
)

const (
	colorSuccess = 0x2ecc71
	colorSkipped = 0x95a5a6
	colorFailed  = 0xe74c3c
	colorPrune   = 0x9b59b6
	colorRestore = 0x1abc9c
	colorWarning = 0xf1c40f
)

var ErrDisabled = errors.New("discord notifier disabled or missing webhook_url")

type DiscordNotifier struct {
	webhookURL string
	mention    string
	events     map[string]struct{}
	host       string
	client     *http.Client
	clock      clock.Clock
	attempts   int
	backoff    time.Duration
}

type discordEmbed struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
	Fields      []discordField `json:"fields,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

func NewDiscordNotifier(cfg *config.DiscordConfig, clk clock.Clock) (*DiscordNotifier, error) {
	if cfg == nil || !cfg.Enabled || cfg.WebhookURL == "" {
		return nil, ErrDisabled
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown"
	}
	timeout := 10 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	events := make(map[string]struct{})
	for _, e := range cfg.Events {
		events[e] = struct{}{}
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &DiscordNotifier{
		webhookURL: cfg.WebhookURL,
		mention:    cfg.Mention,
		events:     events,
		host:       host,
		client:     &http.Client{Timeout: timeout},
		clock:      clk,
		attempts:   3,
		backoff:    2 * time.Second,
	}, nil
}

// Enabled reports whether event would be sent. No configured events means all of them.
func (d *DiscordNotifier) Enabled(event string) bool {
	if len(d.events) == 0 {
		return true
	}
	_, ok := d.events[event]
	return ok
}

func (d *DiscordNotifier) send(ctx context.Context, embed discordEmbed, mention string) error {
	embed.Timestamp = d.clock.Now().UTC().Format(time.RFC3339)
	body, err := json.Marshal(discordPayload{Content: mention, Embeds: []discordEmbed{embed}})
	if err != nil {
		return err
	}
	var lastErr error
	for i := 0; i < d.attempts; i++ {
		if i > 0 && d.backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-d.clock.After(d.backoff):
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("status %s", resp.Status)
		// Client errors other than rate limiting will not succeed on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			break
		}
	}
	return fmt.Errorf("discord webhook: %w", lastErr)
}

// NotifyResult reports a finished backup cycle as a success, skipped or failed event.
func (d *DiscordNotifier) NotifyResult(ctx context.Context, bucket string, res *engine.Result) error {
	if res == nil {
		return nil
	}
	fields := []discordField{
		{Name: "Host", Value: d.host, Inline: true},
		{Name: "Bucket", Value: bucket, Inline: true},
	}
	switch res.Outcome {
	case engine.Success:
		if !d.Enabled(EventSuccess) {
			return nil
		}
		color := colorSuccess
		if res.Artifact != nil {
			fields = append(fields,
				discordField{Name: "Object", Value: res.Artifact.Key, Inline: true},
				discordField{Name: "Size", Value: humanize.IBytes(uint64(res.Artifact.Size)), Inline: true},
			)
		}
		fields = append(fields,
			discordField{Name: "Duration", Value: res.Duration.Round(time.Second).String(), Inline: true},
			discordField{Name: "Pruned", Value: fmt.Sprintf("%d", len(res.Deleted)), Inline: true},
		)
		desc := ""
		if len(res.PruneFailures) > 0 {
			color = colorWarning
			desc = fmt.Sprintf("%d retention step(s) failed: %v", len(res.PruneFailures), res.PruneFailures[0])
		}
		return d.send(ctx, discordEmbed{Title: "Backup uploaded", Description: desc, Color: color, Fields: fields}, "")
	case engine.Skipped:
		if !d.Enabled(EventSkipped) {
			return nil
		}
		fields = append(fields,
			discordField{Name: "Last upload", Value: humanize.Time(res.LastUpload), Inline: true},
			discordField{Name: "Days since", Value: fmt.Sprintf("%d", res.DaysSince), Inline: true},
		)
		return d.send(ctx, discordEmbed{Title: "Backup skipped", Description: "No upload due yet.", Color: colorSkipped, Fields: fields}, "")
	default:
		if !d.Enabled(EventFailed) {
			return nil
		}
		fields = append(fields, discordField{Name: "Step", Value: res.State.String(), Inline: true})
		desc := "unknown error"
		if res.Err != nil {
			desc = res.Err.Error()
		}
		return d.send(ctx, discordEmbed{Title: "Backup failed", Description: desc, Color: colorFailed, Fields: fields}, d.mention)
	}
}

func (d *DiscordNotifier) NotifyPrune(ctx context.Context, bucket string, keep int, deleted []string, failures []*engine.PruneError) error {
	if !d.Enabled(EventPrune) {
		return nil
	}
	embed := discordEmbed{
		Title: "Prune completed",
		Color: colorPrune,
		Fields: []discordField{
			{Name: "Host", Value: d.host, Inline: true},
			{Name: "Bucket", Value: bucket, Inline: true},
			{Name: "Keep", Value: fmt.Sprintf("%d", keep), Inline: true},
			{Name: "Deleted", Value: fmt.Sprintf("%d", len(deleted)), Inline: true},
		},
	}
	if len(deleted) > 0 {
		embed.Description = strings.Join(deleted, "\n")
	}
	if len(failures) > 0 {
		embed.Color = colorWarning
		embed.Fields = append(embed.Fields, discordField{Name: "Failures", Value: fmt.Sprintf("%d", len(failures)), Inline: true})
	}
	return d.send(ctx, embed, "")
}

func (d *DiscordNotifier) NotifyRestore(ctx context.Context, bucket, key, targetDir string, stats restore.Stats) error {
	if !d.Enabled(EventRestore) {
		return nil
	}
	embed := discordEmbed{
		Title: "Restore completed",
		Color: colorRestore,
		Fields: []discordField{
			{Name: "Host", Value: d.host, Inline: true},
			{Name: "Bucket", Value: bucket, Inline: true},
			{Name: "Object", Value: key, Inline: true},
			{Name: "Files", Value: fmt.Sprintf("%d", stats.Files), Inline: true},
			{Name: "Size", Value: humanize.IBytes(uint64(stats.Bytes)), Inline: true},
			{Name: "Target", Value: targetDir, Inline: false},
		},
	}
	return d.send(ctx, embed, "")
}
