package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Embed colors by event kind (Discord decimal palette).
var embedColors = map[string]int{
	KindEntryCreated: 0x9B59B6, // purple
	KindChainValid:   0x57F287, // green
	KindChainInvalid: 0xED4245, // red
	KindDrift:        0xFEE75C, // yellow
}

// webhookPayload is the Discord-compatible webhook body.
type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title     string       `json:"title"`
	Color     int          `json:"color"`
	Fields    []embedField `json:"fields"`
	Timestamp string       `json:"timestamp"`
	Footer    embedFooter  `json:"footer"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedFooter struct {
	Text string `json:"text"`
}

// MetricsRecorder is an optional callback for recording delivery
// outcomes.
type MetricsRecorder func(success bool)

// WebhookSink posts events to an HTTP webhook as rich embeds. Deliveries
// are rate limited (Discord allows roughly 30 requests per minute per
// webhook) and over-limit events are dropped, not queued: the sink must
// never block chain operations.
type WebhookSink struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	onMetrics  MetricsRecorder
	logger     *zap.Logger
}

// NewWebhookSink creates a WebhookSink posting to url, allowing at most
// perMinute deliveries per minute.
func NewWebhookSink(url string, perMinute int, logger *zap.Logger) *WebhookSink {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &WebhookSink{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		logger:     logger,
	}
}

// SetMetricsRecorder configures the metrics callback. Only actual
// delivery attempts are recorded; rate-limited drops are not.
func (s *WebhookSink) SetMetricsRecorder(fn MetricsRecorder) {
	s.onMetrics = fn
}

// Publish implements Sink.
func (s *WebhookSink) Publish(ctx context.Context, ev Event) error {
	if !s.limiter.Allow() {
		s.logger.Warn("webhook: rate limited, event dropped",
			zap.String("kind", ev.Kind),
			zap.String("event_id", ev.ID.String()),
		)
		return nil
	}

	body, err := json.Marshal(buildPayload(ev))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	err = s.deliver(ctx, body)
	if s.onMetrics != nil {
		s.onMetrics(err == nil)
	}
	return err
}

// deliver performs the single HTTP POST.
func (s *WebhookSink) deliver(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// buildPayload renders an event as a single embed.
func buildPayload(ev Event) webhookPayload {
	e := embed{
		Title:     embedTitle(ev.Kind),
		Color:     embedColors[ev.Kind],
		Timestamp: ev.Timestamp.Format(time.RFC3339Nano),
		Footer:    embedFooter{Text: "chainguard"},
	}

	if ev.EntryHash != "" {
		e.Fields = append(e.Fields, embedField{Name: "Entry Hash", Value: truncate(ev.EntryHash, 16), Inline: true})
	}
	if ev.PreviousHash != "" {
		e.Fields = append(e.Fields, embedField{Name: "Previous Hash", Value: truncate(ev.PreviousHash, 16), Inline: true})
	}
	e.Fields = append(e.Fields,
		embedField{Name: "Chain Length", Value: fmt.Sprintf("%d", ev.ChainLength), Inline: true},
		embedField{Name: "Status", Value: ev.Status, Inline: true},
	)

	if len(ev.LogStates) > 0 {
		paths := make([]string, 0, len(ev.LogStates))
		for p := range ev.LogStates {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		var b bytes.Buffer
		for _, p := range paths {
			fmt.Fprintf(&b, "%s: `%s`\n", p, truncate(ev.LogStates[p], 12))
		}
		e.Fields = append(e.Fields, embedField{Name: "Log States", Value: b.String()})
	}

	if len(ev.Violations) > 0 {
		var b bytes.Buffer
		for _, v := range ev.Violations {
			fmt.Fprintf(&b, "Entry %d: %s\n", v.Index, v.Reason)
		}
		if ev.ViolationCount > len(ev.Violations) {
			fmt.Fprintf(&b, "... and %d more\n", ev.ViolationCount-len(ev.Violations))
		}
		e.Fields = append(e.Fields, embedField{Name: "Violations", Value: b.String()})
	}

	if len(ev.Drifted) > 0 {
		paths := make([]string, 0, len(ev.Drifted))
		for p := range ev.Drifted {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		var b bytes.Buffer
		for _, p := range paths {
			d := ev.Drifted[p]
			fmt.Fprintf(&b, "%s: %s → %s\n", p, d.Was, d.Now)
		}
		e.Fields = append(e.Fields, embedField{Name: "Drifted Files", Value: b.String()})
	}

	return webhookPayload{Embeds: []embed{e}}
}

func embedTitle(kind string) string {
	switch kind {
	case KindEntryCreated:
		return "Hash Chain Entry"
	case KindChainValid:
		return "Hash Chain Verified"
	case KindChainInvalid:
		return "Hash Chain Integrity Compromised"
	case KindDrift:
		return "Log File Drift Detected"
	default:
		return "Chain Event"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
