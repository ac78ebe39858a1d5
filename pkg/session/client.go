// Package session bootstraps a backend-managed session. The session
// identity is carried by a cookie the server sets; the SDK never stores or
// tracks it, and there is no client-side expiry.
package session

import (
	"context"
	"strings"

	apperrors "github.com/greentic-ai-org/greentic-gui/pkg/errors"
	"github.com/greentic-ai-org/greentic-gui/pkg/transport"
)

// StartRequest is the wire body posted to the session endpoint.
type StartRequest struct {
	UserID string `json:"user_id"`
	Team   string `json:"team,omitempty"`
}

// Start posts the session bootstrap request and returns the opaque decoded
// JSON response. The session cookie lands in the transport's cookie jar.
func Start(ctx context.Context, t *transport.Client, url string, req StartRequest) (any, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "user id must not be empty")
	}
	return t.PostJSON(ctx, url, req)
}
