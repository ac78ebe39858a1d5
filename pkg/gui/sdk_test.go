package gui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/greentic-ai-org/greentic-gui/pkg/binding"
	apperrors "github.com/greentic-ai-org/greentic-gui/pkg/errors"
	"github.com/greentic-ai-org/greentic-gui/pkg/telemetry"
	"github.com/greentic-ai-org/greentic-gui/pkg/transport"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

// newBackend starts a stub backend recording every request.
func newBackend(t *testing.T) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path}
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		requests = append(requests, rec)

		switch r.URL.Path {
		case "/api/gui/config":
			w.Write([]byte(`{"tenant_domain": "acme.test", "features": {"chat": true}}`))
		case "/api/gui/worker/message":
			w.Write([]byte(`{"status": "accepted", "reply": "pong"}`))
		default:
			w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func newTestSDK(t *testing.T, opts SDKOptions) *SDK {
	t.Helper()
	sdk, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { sdk.Close() })
	return sdk
}

// TestVersion pins the build identifier harnesses assert on
func TestVersion(t *testing.T) {
	if Version != "0.2.0" {
		t.Errorf("Version = %q, want 0.2.0", Version)
	}
}

// TestInitBootstrap tests that Init fetches and merges the GUI config
func TestInitBootstrap(t *testing.T) {
	server, requests := newBackend(t)
	sdk := newTestSDK(t, SDKOptions{})

	cfg := sdk.Init(context.Background(), Options{Origin: server.URL})

	if cfg == nil {
		t.Fatal("Init returned nil config")
	}
	if cfg.GUIConfig == nil {
		t.Fatal("GUIConfig should be merged from the config endpoint")
	}
	if cfg.GUIConfig["tenant_domain"] != "acme.test" {
		t.Errorf("GUIConfig[tenant_domain] = %v, want acme.test", cfg.GUIConfig["tenant_domain"])
	}

	if len(*requests) != 1 || (*requests)[0].Path != "/api/gui/config" {
		t.Errorf("requests = %+v, want a single config fetch", *requests)
	}
}

// TestInitNeverFails tests that bootstrap failures are absorbed
func TestInitNeverFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	hub := telemetry.NewHub()
	defer hub.Close()
	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	sdk := newTestSDK(t, SDKOptions{Hub: hub})

	cfg := sdk.Init(context.Background(), Options{Origin: server.URL})

	if cfg == nil {
		t.Fatal("Init must return a usable config even when bootstrap fails")
	}
	if cfg.GUIConfig != nil {
		t.Error("GUIConfig should stay nil after a failed bootstrap")
	}

	select {
	case ev := <-ch:
		if ev.Type != telemetry.EventBootstrapFailed {
			t.Errorf("telemetry event = %v, want %v", ev.Type, telemetry.EventBootstrapFailed)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a bootstrap failure telemetry event")
	}
}

// TestInitUnreachableBackend tests Init against a dead origin
func TestInitUnreachableBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	sdk := newTestSDK(t, SDKOptions{})

	cfg := sdk.Init(context.Background(), Options{Origin: server.URL})
	if cfg == nil {
		t.Fatal("Init must not fail for an unreachable backend")
	}
}

// TestInitLastCallWins tests that a later Init fully supersedes an earlier one
func TestInitLastCallWins(t *testing.T) {
	server, _ := newBackend(t)
	sdk := newTestSDK(t, SDKOptions{})

	sdk.Init(context.Background(), Options{Origin: server.URL, TenantDomain: "first.test", EventsURL: "/first/events"})
	cfg := sdk.Init(context.Background(), Options{Origin: server.URL, TenantDomain: "second.test"})

	if cfg.TenantDomain != "second.test" {
		t.Errorf("TenantDomain = %q, want second.test", cfg.TenantDomain)
	}
	// The first call's explicit events override must not leak through.
	if !strings.HasSuffix(cfg.EventsURL, DefaultEventsPath) {
		t.Errorf("EventsURL = %q, want the default path (no merge with prior options)", cfg.EventsURL)
	}
}

// TestAttachWorker tests the SDK-level binding entry point
func TestAttachWorker(t *testing.T) {
	sdk := newTestSDK(t, SDKOptions{})

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body><div id="slot"></div></body></html>`))
	if err != nil {
		t.Fatalf("parsing: %v", err)
	}

	sel, err := sdk.AttachWorker(doc, binding.Attachment{WorkerID: "worker.test", Selector: "#slot", Routes: []string{"/"}})
	if err != nil {
		t.Fatalf("AttachWorker failed: %v", err)
	}

	worker, _ := sel.Attr(binding.WorkerAttr)
	if worker != "worker.test" {
		t.Errorf("worker attribute = %q, want worker.test", worker)
	}
	routes, _ := sel.Attr(binding.RoutesAttr)
	if routes != "/" {
		t.Errorf("routes attribute = %q, want /", routes)
	}

	if _, err := sdk.AttachWorker(doc, binding.Attachment{WorkerID: "worker.test", Selector: "#missing"}); !apperrors.IsCode(err, apperrors.ErrCodeBindingResolution) {
		t.Errorf("error code = %v, want %v", apperrors.GetCode(err), apperrors.ErrCodeBindingResolution)
	}
}

// TestSendWorkerMessage tests the wire body and response decoding
func TestSendWorkerMessage(t *testing.T) {
	server, requests := newBackend(t)
	sdk := newTestSDK(t, SDKOptions{})
	sdk.Init(context.Background(), Options{Origin: server.URL, DocumentPath: "/dashboard"})

	decoded, err := sdk.SendWorkerMessage(context.Background(), MessageOptions{
		WorkerID: "worker.chat",
		Payload:  map[string]any{"a": 1},
		Context:  map[string]any{"locale": "en"},
	})
	if err != nil {
		t.Fatalf("SendWorkerMessage failed: %v", err)
	}

	obj := decoded.(map[string]any)
	if obj["reply"] != "pong" {
		t.Errorf("reply = %v, want pong", obj["reply"])
	}

	var msg *recordedRequest
	for i := range *requests {
		if (*requests)[i].Path == "/api/gui/worker/message" {
			msg = &(*requests)[i]
		}
	}
	if msg == nil {
		t.Fatal("no request reached the worker-message endpoint")
	}
	if msg.Body["worker_id"] != "worker.chat" {
		t.Errorf("worker_id = %v, want worker.chat", msg.Body["worker_id"])
	}
	payload := msg.Body["payload"].(map[string]any)
	if payload["a"] != float64(1) {
		t.Errorf("payload = %v, want a=1", payload)
	}
	msgContext := msg.Body["context"].(map[string]any)
	if msgContext["path"] != "/dashboard" {
		t.Errorf("context path = %v, want /dashboard", msgContext["path"])
	}
	if msgContext["locale"] != "en" {
		t.Errorf("context locale = %v, want en", msgContext["locale"])
	}
}

// TestSendWorkerMessageValidation tests the synchronous input check
func TestSendWorkerMessageValidation(t *testing.T) {
	sdk := newTestSDK(t, SDKOptions{})

	_, err := sdk.SendWorkerMessage(context.Background(), MessageOptions{WorkerID: ""})
	if !apperrors.IsCode(err, apperrors.ErrCodeInvalidInput) {
		t.Errorf("error code = %v, want %v", apperrors.GetCode(err), apperrors.ErrCodeInvalidInput)
	}
}

// TestSendEvent tests that exactly one request reaches the events endpoint
func TestSendEvent(t *testing.T) {
	server, requests := newBackend(t)
	sdk := newTestSDK(t, SDKOptions{})
	sdk.Init(context.Background(), Options{Origin: server.URL})

	if err := sdk.SendEvent(context.Background(), EventOptions{EventType: "test", Metadata: map[string]any{"ok": true}}); err != nil {
		t.Fatalf("SendEvent failed: %v", err)
	}

	var count int
	var body map[string]any
	for _, r := range *requests {
		if strings.Contains(r.Path, "/api/gui/events") {
			count++
			body = r.Body
		}
	}
	if count != 1 {
		t.Fatalf("events requests = %d, want exactly 1", count)
	}
	if body["event_type"] != "test" {
		t.Errorf("event_type = %v, want test", body["event_type"])
	}
	metadata := body["metadata"].(map[string]any)
	if metadata["ok"] != true {
		t.Errorf("metadata = %v, want ok=true", metadata)
	}
	if body["event_id"] == "" || body["event_id"] == nil {
		t.Error("event_id should be populated")
	}
}

// TestSendEventTransportFailure tests the error taxonomy on backend failure
func TestSendEventTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sdk := newTestSDK(t, SDKOptions{})
	sdk.Init(context.Background(), Options{Origin: server.URL})

	err := sdk.SendEvent(context.Background(), EventOptions{EventType: "test"})
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
	if !apperrors.IsCode(err, apperrors.ErrCodeTransport) {
		t.Errorf("error code = %v, want %v", apperrors.GetCode(err), apperrors.ErrCodeTransport)
	}
	if !apperrors.IsRetryable(err) {
		t.Error("transport failures should be marked retryable")
	}
	terr, ok := transport.IsTransportError(err)
	if !ok {
		t.Fatalf("error chain = %v, want a wrapped *transport.Error", err)
	}
	if terr.Status != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", terr.Status)
	}
}

// TestSendWorkerMessageTransportFailure tests the error taxonomy on backend failure
func TestSendWorkerMessageTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sdk := newTestSDK(t, SDKOptions{})
	sdk.Init(context.Background(), Options{Origin: server.URL})

	_, err := sdk.SendWorkerMessage(context.Background(), MessageOptions{WorkerID: "worker.chat"})
	if !apperrors.IsCode(err, apperrors.ErrCodeTransport) {
		t.Errorf("error code = %v, want %v", apperrors.GetCode(err), apperrors.ErrCodeTransport)
	}
	if _, ok := transport.IsTransportError(err); !ok {
		t.Errorf("error chain = %v, want a wrapped *transport.Error", err)
	}
}

// TestStartSessionCapability tests the optional session member
func TestStartSessionCapability(t *testing.T) {
	server, requests := newBackend(t)

	t.Run("enabled", func(t *testing.T) {
		sdk := newTestSDK(t, SDKOptions{})
		sdk.Init(context.Background(), Options{Origin: server.URL})

		if !sdk.HasCapability(CapabilitySession) {
			t.Fatal("default build should expose the session capability")
		}

		if _, err := sdk.StartSession(context.Background(), SessionOptions{UserID: "user-1", Team: "platform"}); err != nil {
			t.Fatalf("StartSession failed: %v", err)
		}

		var body map[string]any
		for _, r := range *requests {
			if r.Path == "/api/gui/session" {
				body = r.Body
			}
		}
		if body == nil {
			t.Fatal("no request reached the session endpoint")
		}
		if body["user_id"] != "user-1" || body["team"] != "platform" {
			t.Errorf("session body = %v, want user_id/team", body)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		sdk := newTestSDK(t, SDKOptions{DisableSession: true})
		sdk.Init(context.Background(), Options{Origin: server.URL})

		if sdk.HasCapability(CapabilitySession) {
			t.Fatal("disabled build should not expose the session capability")
		}

		_, err := sdk.StartSession(context.Background(), SessionOptions{UserID: "user-1"})
		if !apperrors.IsCode(err, apperrors.ErrCodeSessionUnsupported) {
			t.Errorf("error code = %v, want %v", apperrors.GetCode(err), apperrors.ErrCodeSessionUnsupported)
		}
	})
}

// TestTelemetryPerEntryPoint tests that completions publish hub events
func TestTelemetryPerEntryPoint(t *testing.T) {
	server, _ := newBackend(t)

	hub := telemetry.NewHub()
	defer hub.Close()
	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	sdk := newTestSDK(t, SDKOptions{Hub: hub})
	sdk.Init(context.Background(), Options{Origin: server.URL})
	if err := sdk.SendEvent(context.Background(), EventOptions{EventType: "test"}); err != nil {
		t.Fatalf("SendEvent failed: %v", err)
	}

	var types []telemetry.EventType
	deadline := time.After(time.Second)
	for len(types) < 2 {
		select {
		case ev := <-ch:
			types = append(types, ev.Type)
		case <-deadline:
			t.Fatalf("timed out waiting for telemetry, got %v", types)
		}
	}

	if types[0] != telemetry.EventInitCompleted || types[1] != telemetry.EventEventSent {
		t.Errorf("telemetry types = %v, want [init.completed event.sent]", types)
	}
}
