package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/helixlog/chainguard/internal/notify"
	"go.uber.org/zap"
)

var ctx = context.Background()

func TestWebhookSink_deliversEmbed(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type: got %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("payload not JSON: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := notify.NewWebhookSink(srv.URL, 30, zap.NewNop())

	ev := notify.NewEvent(notify.KindEntryCreated)
	ev.EntryHash = "aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899"
	ev.PreviousHash = "GENESIS"
	ev.LogStates = map[string]string{"/logs/a.log": "MISSING"}
	ev.ChainLength = 1
	ev.Status = notify.StatusGenesis

	if err := sink.Publish(ctx, ev); err != nil {
		t.Fatal(err)
	}

	embeds, ok := got["embeds"].([]any)
	if !ok || len(embeds) != 1 {
		t.Fatalf("expected one embed, got %v", got["embeds"])
	}
	embed := embeds[0].(map[string]any)
	if embed["title"] != "Hash Chain Entry" {
		t.Errorf("embed title: got %v", embed["title"])
	}
	fields, ok := embed["fields"].([]any)
	if !ok || len(fields) == 0 {
		t.Fatal("embed has no fields")
	}
	first := fields[0].(map[string]any)
	if first["name"] != "Entry Hash" {
		t.Errorf("first field: got %v", first["name"])
	}
	if first["value"] != "aabbccddeeff0011..." {
		t.Errorf("entry hash field truncation: got %v", first["value"])
	}
}

func TestWebhookSink_non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := notify.NewWebhookSink(srv.URL, 30, zap.NewNop())
	if err := sink.Publish(ctx, notify.NewEvent(notify.KindChainValid)); err == nil {
		t.Error("HTTP 500 did not surface as an error")
	}
}

func TestWebhookSink_rateLimitDropsNotBlocks(t *testing.T) {
	delivered := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		delivered++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	// Burst of 1 per minute: the second publish must be dropped, not
	// queued, and must not error.
	sink := notify.NewWebhookSink(srv.URL, 1, zap.NewNop())
	if err := sink.Publish(ctx, notify.NewEvent(notify.KindChainValid)); err != nil {
		t.Fatal(err)
	}
	if err := sink.Publish(ctx, notify.NewEvent(notify.KindChainValid)); err != nil {
		t.Fatal(err)
	}
	if delivered != 1 {
		t.Errorf("deliveries: got %d, want 1 (second dropped by limiter)", delivered)
	}
}

func TestWebhookSink_metricsRecorder(t *testing.T) {
	fail := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	var outcomes []bool
	sink := notify.NewWebhookSink(srv.URL, 2, zap.NewNop())
	sink.SetMetricsRecorder(func(success bool) { outcomes = append(outcomes, success) })

	if err := sink.Publish(ctx, notify.NewEvent(notify.KindChainValid)); err != nil {
		t.Fatal(err)
	}
	fail = true
	if err := sink.Publish(ctx, notify.NewEvent(notify.KindChainValid)); err == nil {
		t.Fatal("expected error from failing webhook")
	}
	// Burst exhausted: the third publish is dropped by the limiter and
	// must not count as a delivery attempt.
	if err := sink.Publish(ctx, notify.NewEvent(notify.KindChainValid)); err != nil {
		t.Fatal(err)
	}

	if len(outcomes) != 2 {
		t.Fatalf("recorded attempts: got %d, want 2", len(outcomes))
	}
	if !outcomes[0] || outcomes[1] {
		t.Errorf("outcomes: got %v, want [true false]", outcomes)
	}
}

func TestNoopSink_neverFails(t *testing.T) {
	sink := notify.NewNoopSink(zap.NewNop())
	ev := notify.NewEvent(notify.KindChainInvalid)
	ev.ViolationCount = 3
	if err := sink.Publish(ctx, ev); err != nil {
		t.Errorf("noop sink returned error: %v", err)
	}
}
