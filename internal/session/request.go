package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/intelleges/iaos-compliance-platform-sub001/internal/telemetry"
)

// Token sources reported by TokenFromRequest.
const (
	SourceCookie = "cookie"
	SourceBearer = "bearer"
	SourceNone   = "none"
)

// TokenFromRequest extracts the session token, preferring the cookie over the
// Authorization header.
func TokenFromRequest(r *http.Request, cookieName string) (token, source string) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, SourceCookie
	}
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if t := strings.TrimSpace(parts[1]); t != "" {
				return t, SourceBearer
			}
		}
	}
	return "", SourceNone
}

// ResolveRequest resolves the session carried by r. Both transports feed Resolve, so
// the same token yields the same decision whichever way it arrives.
func (m *Manager) ResolveRequest(ctx context.Context, r *http.Request, cookieName string) (*Session, error) {
	token, source := TokenFromRequest(r, cookieName)
	sess, err := m.Resolve(ctx, token)
	outcome := "ok"
	switch {
	case errors.Is(err, ErrUnauthenticated):
		outcome = Reason(err)
	case err != nil:
		outcome = "error"
	}
	telemetry.SessionResolutionsTotal.WithLabelValues(source, outcome).Inc()
	return sess, err
}

// InspectRequest is ResolveRequest without refreshing activity.
func (m *Manager) InspectRequest(ctx context.Context, r *http.Request, cookieName string) (*Session, error) {
	token, _ := TokenFromRequest(r, cookieName)
	return m.Inspect(ctx, token)
}
