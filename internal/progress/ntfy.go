package progress

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"comicvault/internal/comic"
	"comicvault/internal/config"
)

const userAgent = "comicvault/0.1.0"

// Ntfy pushes job progress to an ntfy topic. Intermediate snapshots are
// throttled; the final snapshot and per-record notices are always sent.
type Ntfy struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	imports  bool
}

// NewNtfy builds a publisher for cfg.Progress. Returns nil without a topic.
func NewNtfy(cfg *config.Config) *Ntfy {
	topic := strings.TrimSpace(cfg.Progress.NtfyTopic)
	if topic == "" {
		return nil
	}
	timeout := time.Duration(cfg.Progress.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	interval := time.Duration(cfg.Progress.MinIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Ntfy{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		imports:  cfg.Progress.Imports,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

func (n *Ntfy) Publish(ctx context.Context, snap Snapshot) error {
	if n == nil {
		return nil
	}
	if snap.Active {
		if !n.limiter.Allow() {
			return nil
		}
		return n.send(ctx, payload{
			title:   "comicvault - Importing",
			message: fmt.Sprintf("%s: %d/%d processed", snap.Stage, snap.Processed, snap.Total),
			tags:    []string{"comicvault", "progress"},
		})
	}
	title := "comicvault - Import Complete"
	if snap.Failed > 0 {
		title = "comicvault - Import Complete (with errors)"
	}
	return n.send(ctx, payload{
		title:   title,
		message: fmt.Sprintf("%d imported, %d deferred, %d failed", snap.Advanced, snap.Rejected, snap.Failed),
		tags:    []string{"comicvault", "job", "completed"},
	})
}

func (n *Ntfy) NotifyImported(ctx context.Context, rec *comic.Record) error {
	if n == nil || !n.imports {
		return nil
	}
	return n.send(ctx, payload{
		title:   "comicvault - Imported",
		message: fmt.Sprintf("📚 Imported: %s (%d pages)", Title(rec), len(rec.Pages)),
		tags:    []string{"comicvault", "import", "completed"},
	})
}

func (n *Ntfy) NotifyFailure(ctx context.Context, rec *comic.Record, stageName string, err error) error {
	if n == nil {
		return nil
	}
	var b strings.Builder
	b.WriteString("❌ ")
	b.WriteString(stageName)
	b.WriteString(" failed for ")
	b.WriteString(Title(rec))
	b.WriteString(": ")
	if err != nil {
		b.WriteString(strings.TrimSpace(err.Error()))
	} else {
		b.WriteString("unknown")
	}
	return n.send(ctx, payload{
		title:    "comicvault - Error",
		message:  b.String(),
		tags:     []string{"comicvault", "error", "alert"},
		priority: "high",
	})
}

func (n *Ntfy) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
