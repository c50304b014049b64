package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"Bits3/internal/config"
	"Bits3/internal/engine"
	"Bits3/internal/engine/archive"
	"Bits3/internal/restore"
)

type webhook struct {
	mu       sync.Mutex
	payloads []discordPayload
	statuses []int
}

func (w *webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var p discordPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}
	w.payloads = append(w.payloads, p)
	status := http.StatusNoContent
	if len(w.statuses) > 0 {
		status = w.statuses[0]
		w.statuses = w.statuses[1:]
	}
	rw.WriteHeader(status)
}

func (w *webhook) titles() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, p := range w.payloads {
		for _, e := range p.Embeds {
			out = append(out, e.Title)
		}
	}
	return out
}

func newTestNotifier(t *testing.T, hook *webhook, events ...string) *DiscordNotifier {
	t.Helper()
	srv := httptest.NewServer(hook)
	t.Cleanup(srv.Close)
	d, err := NewDiscordNotifier(&config.DiscordConfig{
		Enabled:    true,
		WebhookURL: srv.URL,
		Events:     events,
		Mention:    "<@&42>",
	}, testclock.NewClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatal(err)
	}
	d.backoff = 0
	return d
}

func TestNewDiscordNotifier_Disabled(t *testing.T) {
	if _, err := NewDiscordNotifier(&config.DiscordConfig{WebhookURL: "https://x"}, nil); !errors.Is(err, ErrDisabled) {
		t.Errorf("disabled: got %v", err)
	}
	if _, err := NewDiscordNotifier(&config.DiscordConfig{Enabled: true}, nil); !errors.Is(err, ErrDisabled) {
		t.Errorf("no url: got %v", err)
	}
}

func TestNotifyResult_Outcomes(t *testing.T) {
	hook := &webhook{}
	d := newTestNotifier(t, hook)
	ctx := context.Background()

	success := &engine.Result{
		Outcome:  engine.Success,
		Artifact: &archive.Artifact{Key: "snap.tar.gpg", Size: 2048},
		Deleted:  []string{"old.tar.gpg"},
		Duration: 90 * time.Second,
	}
	skipped := &engine.Result{Outcome: engine.Skipped, LastUpload: time.Now().Add(-48 * time.Hour), DaysSince: 2}
	failed := &engine.Result{Outcome: engine.Failed, State: engine.StateUpload, Err: errors.New("boom")}

	for _, res := range []*engine.Result{success, skipped, failed} {
		if err := d.NotifyResult(ctx, "backups", res); err != nil {
			t.Fatalf("NotifyResult(%s): %v", res.Outcome, err)
		}
	}

	got := hook.titles()
	want := []string{"Backup uploaded", "Backup skipped", "Backup failed"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("titles = %v, want %v", got, want)
	}

	hook.mu.Lock()
	defer hook.mu.Unlock()
	if hook.payloads[0].Content != "" {
		t.Errorf("success should not mention, got %q", hook.payloads[0].Content)
	}
	if hook.payloads[2].Content != "<@&42>" {
		t.Errorf("failure mention = %q", hook.payloads[2].Content)
	}
	fail := hook.payloads[2].Embeds[0]
	if fail.Description != "boom" {
		t.Errorf("failure description = %q", fail.Description)
	}
	if fail.Timestamp != "2025-06-01T12:00:00Z" {
		t.Errorf("timestamp = %q", fail.Timestamp)
	}
	var size string
	for _, f := range hook.payloads[0].Embeds[0].Fields {
		if f.Name == "Size" {
			size = f.Value
		}
	}
	if size != "2.0 KiB" {
		t.Errorf("size field = %q", size)
	}
}

func TestNotify_EventFilter(t *testing.T) {
	hook := &webhook{}
	d := newTestNotifier(t, hook, EventFailed)
	ctx := context.Background()

	_ = d.NotifyResult(ctx, "b", &engine.Result{Outcome: engine.Success})
	_ = d.NotifyResult(ctx, "b", &engine.Result{Outcome: engine.Skipped})
	_ = d.NotifyPrune(ctx, "b", 1, []string{"x"}, nil)
	_ = d.NotifyRestore(ctx, "b", "k", "/tmp", restore.Stats{})
	if err := d.NotifyResult(ctx, "b", &engine.Result{Outcome: engine.Failed}); err != nil {
		t.Fatal(err)
	}
	if got := hook.titles(); len(got) != 1 || got[0] != "Backup failed" {
		t.Errorf("titles = %v, want only the failure", got)
	}
}

func TestNotify_RetriesServerErrors(t *testing.T) {
	hook := &webhook{statuses: []int{http.StatusBadGateway, http.StatusTooManyRequests}}
	d := newTestNotifier(t, hook)
	if err := d.NotifyPrune(context.Background(), "b", 2, nil, nil); err != nil {
		t.Fatalf("third attempt should succeed: %v", err)
	}
	if n := len(hook.titles()); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestNotify_ClientErrorNotRetried(t *testing.T) {
	hook := &webhook{statuses: []int{http.StatusNotFound}}
	d := newTestNotifier(t, hook)
	err := d.NotifyRestore(context.Background(), "b", "k", "/restore", restore.Stats{Files: 3, Bytes: 10})
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if n := len(hook.titles()); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	if err := n.NotifyResult(context.Background(), "b", &engine.Result{Outcome: engine.Failed}); err != nil {
		t.Error(err)
	}
}
