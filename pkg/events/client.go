// Package events reports telemetry events to the backend events endpoint.
// Reporting is best-effort: a transport failure is returned to the caller,
// who is expected to treat it as non-fatal.
package events

import (
	"context"
	cryptorand "crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/greentic-ai-org/greentic-gui/pkg/transport"
)

// Entry points may generate ids concurrently, so the shared monotonic
// entropy source must be locked.
var eventEntropy = &ulid.LockedMonotonicReader{
	MonotonicReader: ulid.Monotonic(cryptorand.Reader, 0),
}

// Event is the wire body posted to the events endpoint.
type Event struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Path      string         `json:"path,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// New builds an event with a fresh ulid id and a millisecond timestamp.
func New(eventType, path string, metadata map[string]any) Event {
	return Event{
		EventID:   ulid.MustNew(ulid.Timestamp(time.Now()), eventEntropy).String(),
		EventType: eventType,
		Path:      path,
		Timestamp: time.Now().UnixMilli(),
		Metadata:  metadata,
	}
}

// Send posts the event to the events endpoint. The response body is
// ignored beyond transport validation.
func Send(ctx context.Context, t *transport.Client, url string, ev Event) error {
	_, err := t.PostJSON(ctx, url, ev)
	return err
}
