//go:build integration
// +build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/greentic-ai-org/greentic-gui/pkg/binding"
	"github.com/greentic-ai-org/greentic-gui/pkg/gui"
	"github.com/greentic-ai-org/greentic-gui/pkg/guiserver"
	"github.com/greentic-ai-org/greentic-gui/pkg/telemetry"
)

const testPage = `<html><body>
  <div id="chat" class="widget"></div>
  <div id="notifications" class="widget"></div>
</body></html>`

func startBackend(t *testing.T, cfg guiserver.Config) (*guiserver.Server, *httptest.Server) {
	t.Helper()
	srv, err := guiserver.New(cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

// TestSDKAgainstStubBackend drives every SDK entry point against a live
// stub backend.
func TestSDKAgainstStubBackend(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	backend, ts := startBackend(t, guiserver.Config{TenantDomain: "acme.test"})

	hub := telemetry.NewHub()
	defer hub.Close()
	eventsCh, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	sdk, err := gui.New(gui.SDKOptions{Hub: hub})
	require.NoError(t, err)
	defer sdk.Close()

	ctx := context.Background()
	cfg := sdk.Init(ctx, gui.Options{Origin: ts.URL, DocumentPath: "/dashboard"})
	require.NotNil(t, cfg)
	assert.Equal(t, "acme.test", cfg.GUIConfig["tenant_domain"], "bootstrap should merge the backend config")

	// Worker binding is a pure document mutation.
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(testPage))
	require.NoError(t, err)

	sel, err := sdk.AttachWorker(doc, binding.Attachment{
		WorkerID: "chat-widget",
		Selector: "#chat",
		Routes:   []string{"chat", "presence"},
	})
	require.NoError(t, err)

	worker, _ := sel.Attr(binding.WorkerAttr)
	routes, _ := sel.Attr(binding.RoutesAttr)
	assert.Equal(t, "chat-widget", worker)
	assert.Equal(t, "chat,presence", routes)

	// The untouched sibling carries no binding attributes.
	_, bound := doc.Find("#notifications").Attr(binding.WorkerAttr)
	assert.False(t, bound)

	reply, err := sdk.SendWorkerMessage(ctx, gui.MessageOptions{
		WorkerID: "chat-widget",
		Payload:  map[string]any{"text": "ping"},
	})
	require.NoError(t, err)
	replyObj, ok := reply.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "accepted", replyObj["status"])

	require.NoError(t, sdk.SendEvent(ctx, gui.EventOptions{
		EventType: "page_view",
		Metadata:  map[string]any{"section": "dashboard"},
	}))

	resp, err := sdk.StartSession(ctx, gui.SessionOptions{UserID: "user-42", Team: "support"})
	require.NoError(t, err)
	respObj, ok := resp.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "user-42", respObj["user_id"])

	// Backend-side view of what the SDK sent.
	recorded := backend.Events()
	require.Len(t, recorded, 1)
	assert.Equal(t, "page_view", recorded[0].EventType)
	assert.Equal(t, "/dashboard", recorded[0].Path)
	assert.NotEmpty(t, recorded[0].EventID)

	wantTypes := []telemetry.EventType{
		telemetry.EventInitCompleted,
		telemetry.EventBindingAttached,
		telemetry.EventMessageSent,
		telemetry.EventEventSent,
		telemetry.EventSessionStarted,
	}
	var gotTypes []telemetry.EventType
	deadline := time.After(2 * time.Second)
	for len(gotTypes) < len(wantTypes) {
		select {
		case ev := <-eventsCh:
			gotTypes = append(gotTypes, ev.Type)
		case <-deadline:
			t.Fatalf("timed out waiting for telemetry, got %v", gotTypes)
		}
	}
	assert.Equal(t, wantTypes, gotTypes)
}

// TestSessionCookieReplay verifies the session cookie set by the backend
// is replayed on subsequent SDK requests.
func TestSessionCookieReplay(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	var sawCookie bool
	backend, err := guiserver.New(guiserver.Config{SessionSecret: []byte("integration-secret")})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/gui/worker/message", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(guiserver.SessionCookieName); err == nil && c.Value != "" {
			if _, err := backend.ParseSessionToken(c.Value); err == nil {
				sawCookie = true
			}
		}
		backend.Handler().ServeHTTP(w, r)
	})
	mux.Handle("/", backend.Handler())
	ts := httptest.NewServer(mux)
	defer ts.Close()

	sdk, err := gui.New(gui.SDKOptions{})
	require.NoError(t, err)
	defer sdk.Close()

	ctx := context.Background()
	sdk.Init(ctx, gui.Options{Origin: ts.URL})

	_, err = sdk.StartSession(ctx, gui.SessionOptions{UserID: "user-1"})
	require.NoError(t, err)

	_, err = sdk.SendWorkerMessage(ctx, gui.MessageOptions{WorkerID: "w1"})
	require.NoError(t, err)

	assert.True(t, sawCookie, "session cookie should be replayed and verifiable")
}

// TestConcurrentEntryPoints exercises the SDK from many goroutines while
// Init replaces the configuration underneath them.
func TestConcurrentEntryPoints(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	backend, ts := startBackend(t, guiserver.Config{})

	sdk, err := gui.New(gui.SDKOptions{})
	require.NoError(t, err)
	defer sdk.Close()

	ctx := context.Background()
	sdk.Init(ctx, gui.Options{Origin: ts.URL})

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		i := i
		g.Go(func() error {
			for j := 0; j < 10; j++ {
				if err := sdk.SendEvent(ctx, gui.EventOptions{
					EventType: fmt.Sprintf("tick_%d", i),
				}); err != nil {
					return err
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		for j := 0; j < 5; j++ {
			sdk.Init(ctx, gui.Options{Origin: ts.URL, DocumentPath: fmt.Sprintf("/page-%d", j)})
		}
		return nil
	})
	require.NoError(t, g.Wait())

	assert.Len(t, backend.Events(), 80)
	require.NotNil(t, sdk.Config())
	assert.Equal(t, ts.URL, sdk.Config().Origin)
}
