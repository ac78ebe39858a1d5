package gui

import (
	"net/url"
	"strings"
)

// Default endpoint paths, resolved against the configured origin.
const (
	DefaultConfigPath        = "/api/gui/config"
	DefaultEventsPath        = "/api/gui/events"
	DefaultWorkerMessagePath = "/api/gui/worker/message"
	DefaultSessionPath       = "/api/gui/session"
)

// DefaultOrigin is used when Init is called without one. It matches the
// stub backend's default bind address.
const DefaultOrigin = "http://localhost:8844"

// Options are the per-Init settings. Zero values are defaulted from the
// origin; a later Init call fully supersedes an earlier one, field by
// field from its own options, never from the previous configuration.
type Options struct {
	// Origin is the backend base URL relative endpoint paths resolve
	// against.
	Origin string
	// TenantDomain defaults to the origin's host.
	TenantDomain string
	// Endpoint overrides. Absolute URLs are used as-is; paths starting
	// with "/" are joined onto the origin.
	ConfigURL        string
	EventsURL        string
	WorkerMessageURL string
	SessionURL       string
	// DocumentPath is reported as the "path" context of worker messages
	// and events, standing in for the browser's location path.
	DocumentPath string
}

// RuntimeConfig is the effective configuration of an SDK instance. It is
// created whole by Init and replaced whole by the next Init; readers never
// observe a partial write.
type RuntimeConfig struct {
	Origin           string
	TenantDomain     string
	ConfigURL        string
	EventsURL        string
	WorkerMessageURL string
	SessionURL       string
	DocumentPath     string
	// GUIConfig holds the opaque backend configuration fetched during
	// bootstrap, when that fetch succeeded.
	GUIConfig map[string]any
}

func newRuntimeConfig(opts Options) *RuntimeConfig {
	origin := strings.TrimRight(opts.Origin, "/")
	if origin == "" {
		origin = DefaultOrigin
	}

	tenant := opts.TenantDomain
	if tenant == "" {
		if u, err := url.Parse(origin); err == nil {
			tenant = u.Host
		}
	}

	return &RuntimeConfig{
		Origin:           origin,
		TenantDomain:     tenant,
		ConfigURL:        resolveURL(origin, opts.ConfigURL, DefaultConfigPath),
		EventsURL:        resolveURL(origin, opts.EventsURL, DefaultEventsPath),
		WorkerMessageURL: resolveURL(origin, opts.WorkerMessageURL, DefaultWorkerMessagePath),
		SessionURL:       resolveURL(origin, opts.SessionURL, DefaultSessionPath),
		DocumentPath:     opts.DocumentPath,
	}
}

func resolveURL(origin, override, defaultPath string) string {
	switch {
	case override == "":
		return origin + defaultPath
	case strings.HasPrefix(override, "/"):
		return origin + override
	default:
		return override
	}
}
