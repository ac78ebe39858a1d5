package gui

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"

	"github.com/greentic-ai-org/greentic-gui/pkg/binding"
	apperrors "github.com/greentic-ai-org/greentic-gui/pkg/errors"
	"github.com/greentic-ai-org/greentic-gui/pkg/events"
	"github.com/greentic-ai-org/greentic-gui/pkg/logging"
	"github.com/greentic-ai-org/greentic-gui/pkg/session"
	"github.com/greentic-ai-org/greentic-gui/pkg/telemetry"
	"github.com/greentic-ai-org/greentic-gui/pkg/transport"
)

// Version identifies the SDK build. Harnesses assert on it.
const Version = "0.2.0"

// Capability names an optional member of the SDK surface.
type Capability string

// CapabilitySession marks builds that expose session bootstrap.
const CapabilitySession Capability = "session"

// SDKOptions configures SDK construction. All fields are optional.
type SDKOptions struct {
	// Transport overrides the default transport client.
	Transport *transport.Client
	// Hub receives SDK lifecycle telemetry when set.
	Hub *telemetry.Hub
	// Logger receives structured logs when set; nil discards.
	Logger *logging.Logger
	// DisableSession builds an SDK without the session capability.
	DisableSession bool
	// NetworkLogPath enables the transport's jsonl request log. Ignored
	// when Transport is supplied.
	NetworkLogPath string
}

// SDK is a GUI client instance. Configuration is replaced atomically by
// Init, so entry points racing an Init see either the old or the new
// configuration, never a mix; the last completed Init wins.
type SDK struct {
	transport      *transport.Client
	hub            *telemetry.Hub
	logger         *logging.Logger
	sessionEnabled bool
	cfg            atomic.Pointer[RuntimeConfig]
}

// New creates an SDK instance.
func New(opts SDKOptions) (*SDK, error) {
	t := opts.Transport
	if t == nil {
		var err error
		t, err = transport.New(transport.Options{NetworkLogPath: opts.NetworkLogPath})
		if err != nil {
			return nil, err
		}
	}

	return &SDK{
		transport:      t,
		hub:            opts.Hub,
		logger:         opts.Logger,
		sessionEnabled: !opts.DisableSession,
	}, nil
}

// Close releases the transport's resources.
func (s *SDK) Close() error {
	return s.transport.Close()
}

// Capabilities lists the optional surface members this build exposes.
func (s *SDK) Capabilities() []Capability {
	if s.sessionEnabled {
		return []Capability{CapabilitySession}
	}
	return nil
}

// HasCapability reports whether the build exposes the named capability.
func (s *SDK) HasCapability(c Capability) bool {
	for _, have := range s.Capabilities() {
		if have == c {
			return true
		}
	}
	return false
}

// Init installs a fresh configuration built from opts over origin-derived
// defaults, replacing any prior configuration whole, then attempts the
// implied bootstrap: a GET of the config endpoint whose opaque JSON is
// merged into the runtime state. Bootstrap failures are absorbed — logged
// and published, never returned — so Init cannot fail the host
// application. The effective configuration is returned.
func (s *SDK) Init(ctx context.Context, opts Options) *RuntimeConfig {
	cfg := newRuntimeConfig(opts)
	s.cfg.Store(cfg)

	decoded, err := s.transport.GetJSON(ctx, cfg.ConfigURL)
	if err != nil {
		s.logger.Warn(logging.CategoryConfig, "config.bootstrap_failed", "failed to load GUI config", map[string]any{
			"url":   cfg.ConfigURL,
			"error": err.Error(),
		})
		s.publish(telemetry.Event{
			Type:         telemetry.EventBootstrapFailed,
			TenantDomain: cfg.TenantDomain,
			Data:         map[string]any{"error": err.Error()},
		})
		return s.Config()
	}

	if remote, ok := decoded.(map[string]any); ok {
		merged := *cfg
		merged.GUIConfig = remote
		// A concurrent Init may have stored a newer configuration while
		// the bootstrap request was in flight; that one wins.
		s.cfg.CompareAndSwap(cfg, &merged)
	}

	s.logger.Info(logging.CategoryConfig, "config.initialized", "SDK initialized", map[string]any{
		"tenant_domain": cfg.TenantDomain,
		"origin":        cfg.Origin,
	})
	s.publish(telemetry.Event{
		Type:         telemetry.EventInitCompleted,
		TenantDomain: cfg.TenantDomain,
	})
	return s.Config()
}

// Config returns the current configuration, or nil before the first Init.
// The returned value must be treated as read-only.
func (s *SDK) Config() *RuntimeConfig {
	return s.cfg.Load()
}

// ensure lazily initializes with pure defaults when an entry point runs
// before Init.
func (s *SDK) ensure(ctx context.Context) *RuntimeConfig {
	if cfg := s.cfg.Load(); cfg != nil {
		return cfg
	}
	return s.Init(ctx, Options{})
}

// AttachWorker binds a worker identity and route list onto the first
// element matching the selector. It is synchronous and performs no
// network I/O; a selector that matches nothing is an immediate error.
func (s *SDK) AttachWorker(doc *goquery.Document, att binding.Attachment) (*goquery.Selection, error) {
	sel, err := binding.AttachWorker(doc, att)
	if err != nil {
		s.logger.Warn(logging.CategoryBinding, "binding.failed", "worker target not found", map[string]any{
			"selector":  att.Selector,
			"worker_id": att.WorkerID,
		})
		s.publish(telemetry.Event{
			Type:     telemetry.EventBindingFailed,
			WorkerID: att.WorkerID,
			Data:     map[string]any{"selector": att.Selector},
		})
		return nil, err
	}

	s.logger.Info(logging.CategoryBinding, "binding.attached", "worker bound", map[string]any{
		"selector":  att.Selector,
		"worker_id": att.WorkerID,
		"routes":    att.Routes,
	})
	s.publish(telemetry.Event{
		Type:     telemetry.EventBindingAttached,
		WorkerID: att.WorkerID,
		Data:     map[string]any{"selector": att.Selector},
	})
	return sel, nil
}

// MessageOptions describes a worker message.
type MessageOptions struct {
	WorkerID string
	// Payload is an opaque JSON-encodable value; nil becomes an empty
	// object.
	Payload any
	// Context entries are merged over the SDK-supplied defaults
	// (currently the document path).
	Context map[string]any
}

// SendWorkerMessage posts the message to the worker-message endpoint and
// returns the decoded JSON response.
func (s *SDK) SendWorkerMessage(ctx context.Context, opts MessageOptions) (any, error) {
	if strings.TrimSpace(opts.WorkerID) == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "worker id must not be empty")
	}

	cfg := s.ensure(ctx)

	payload := opts.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	msgContext := map[string]any{"path": cfg.DocumentPath}
	for k, v := range opts.Context {
		msgContext[k] = v
	}

	body := map[string]any{
		"worker_id": opts.WorkerID,
		"payload":   payload,
		"context":   msgContext,
	}

	decoded, err := s.transport.PostJSON(ctx, cfg.WorkerMessageURL, body)
	if err != nil {
		s.logger.Error(logging.CategoryTransport, "message.failed", "worker message failed", map[string]any{
			"worker_id": opts.WorkerID,
			"error":     err.Error(),
		})
		s.publish(telemetry.Event{
			Type:         telemetry.EventMessageFailed,
			TenantDomain: cfg.TenantDomain,
			WorkerID:     opts.WorkerID,
			Data:         map[string]any{"error": err.Error()},
		})
		return nil, tagTransportError(err, "worker message failed")
	}

	s.publish(telemetry.Event{
		Type:         telemetry.EventMessageSent,
		TenantDomain: cfg.TenantDomain,
		WorkerID:     opts.WorkerID,
	})
	return decoded, nil
}

// EventOptions describes a telemetry event report.
type EventOptions struct {
	EventType string
	Metadata  map[string]any
}

// SendEvent posts a best-effort telemetry event to the events endpoint.
// A transport failure is returned but callers are expected to treat it as
// non-fatal to the host application.
func (s *SDK) SendEvent(ctx context.Context, opts EventOptions) error {
	if strings.TrimSpace(opts.EventType) == "" {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "event type must not be empty")
	}

	cfg := s.ensure(ctx)
	ev := events.New(opts.EventType, cfg.DocumentPath, opts.Metadata)

	if err := events.Send(ctx, s.transport, cfg.EventsURL, ev); err != nil {
		s.logger.Warn(logging.CategoryEvents, "event.failed", "failed to send event", map[string]any{
			"event_type": opts.EventType,
			"error":      err.Error(),
		})
		s.publish(telemetry.Event{
			Type:         telemetry.EventEventFailed,
			TenantDomain: cfg.TenantDomain,
			Data:         map[string]any{"event_type": opts.EventType, "error": err.Error()},
		})
		return tagTransportError(err, "failed to send event")
	}

	s.publish(telemetry.Event{
		Type:         telemetry.EventEventSent,
		TenantDomain: cfg.TenantDomain,
		Data:         map[string]any{"event_type": opts.EventType},
	})
	return nil
}

// SessionOptions describes a session bootstrap request.
type SessionOptions struct {
	UserID string
	Team   string
}

// StartSession posts the bootstrap request to the session endpoint and
// returns the opaque decoded JSON response. Builds constructed with
// DisableSession reject the call with SESSION_UNSUPPORTED; check
// HasCapability(CapabilitySession) first.
func (s *SDK) StartSession(ctx context.Context, opts SessionOptions) (any, error) {
	if !s.sessionEnabled {
		return nil, apperrors.New(apperrors.ErrCodeSessionUnsupported, "this SDK build has no session support")
	}

	cfg := s.ensure(ctx)

	decoded, err := session.Start(ctx, s.transport, cfg.SessionURL, session.StartRequest{
		UserID: opts.UserID,
		Team:   opts.Team,
	})
	if err != nil {
		s.logger.Error(logging.CategorySession, "session.failed", "session bootstrap failed", map[string]any{
			"error": err.Error(),
		})
		s.publish(telemetry.Event{
			Type:         telemetry.EventSessionFailed,
			TenantDomain: cfg.TenantDomain,
			Data:         map[string]any{"error": err.Error()},
		})
		return nil, tagTransportError(err, "session bootstrap failed")
	}

	s.logger.Info(logging.CategorySession, "session.started", "session established", nil)
	s.publish(telemetry.Event{
		Type:         telemetry.EventSessionStarted,
		TenantDomain: cfg.TenantDomain,
	})
	return decoded, nil
}

func (s *SDK) publish(ev telemetry.Event) {
	s.hub.Publish(ev)
}

// tagTransportError maps a transport failure onto the SDK error taxonomy.
// Transport failures are retryable from the caller's side; the SDK itself
// never retries. Non-transport errors pass through untouched.
func tagTransportError(err error, message string) error {
	if _, ok := transport.IsTransportError(err); ok {
		return apperrors.Wrap(err, apperrors.ErrCodeTransport, message).WithRetryable(true)
	}
	return err
}
