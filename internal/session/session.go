// Package session mints and resolves supplier session tokens. A token is an HS256 JWT
// carrying the assignment binding and absolute expiry; idle expiry and logout are
// tracked server-side in an ActivityStore so every replica reaches the same decision.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrUnauthenticated is the failure every session-gated operation reports. The more
// specific errors below all wrap it.
var ErrUnauthenticated = errors.New("unauthenticated")

var (
	ErrMissing     = fmt.Errorf("%w: no session token", ErrUnauthenticated)
	ErrInvalid     = fmt.Errorf("%w: session token is invalid", ErrUnauthenticated)
	ErrExpired     = fmt.Errorf("%w: session has expired", ErrUnauthenticated)
	ErrIdleTimeout = fmt.Errorf("%w: session timed out due to inactivity", ErrUnauthenticated)
	ErrTerminated  = fmt.Errorf("%w: session was logged out", ErrUnauthenticated)
)

// Reason returns a stable machine-readable reason for an authentication error.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMissing):
		return "missing"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrIdleTimeout):
		return "idle_timeout"
	case errors.Is(err, ErrTerminated):
		return "terminated"
	default:
		return "invalid"
	}
}

// Claims is the signed payload of a session token. RegisteredClaims.ID is the session ID.
type Claims struct {
	AssignmentID string `json:"assignment_id"`
	AccessCode   string `json:"access_code"`
	PartnerID    string `json:"partner_id"`
	jwt.RegisteredClaims
}

// Subject identifies what a new session is bound to.
type Subject struct {
	AssignmentID string
	AccessCode   string
	PartnerID    string
}

// Session is a resolved, currently valid session.
type Session struct {
	ID             string
	AssignmentID   string
	AccessCode     string
	PartnerID      string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time
	IdleExpiresAt  time.Time

	warnWithin time.Duration
}

// IdleWarning reports whether now falls inside the warning window before idle expiry.
func (s *Session) IdleWarning(now time.Time) bool {
	return s.warnWithin > 0 && !now.Before(s.IdleExpiresAt.Add(-s.warnWithin))
}

// Options configures a Manager.
type Options struct {
	Secret      string
	Issuer      string
	AbsoluteTTL time.Duration
	IdleTTL     time.Duration
	IdleWarning time.Duration
}

// Manager creates, resolves and terminates sessions.
type Manager struct {
	secret   []byte
	opts     Options
	activity ActivityStore
	now      func() time.Time
}

// NewManager creates a Manager. The secret must be non-empty.
func NewManager(activity ActivityStore, opts Options) (*Manager, error) {
	if opts.Secret == "" {
		return nil, errors.New("session secret is required")
	}
	if opts.AbsoluteTTL <= 0 || opts.IdleTTL <= 0 {
		return nil, errors.New("session lifetimes must be positive")
	}
	if opts.Issuer == "" {
		opts.Issuer = "iaos-supplier-portal"
	}
	return &Manager{secret: []byte(opts.Secret), opts: opts, activity: activity, now: time.Now}, nil
}

// Create mints a signed token for subject and records initial activity.
func (m *Manager) Create(ctx context.Context, subject Subject) (string, *Session, error) {
	now := m.now()
	sid := uuid.New().String()
	expiresAt := now.Add(m.opts.AbsoluteTTL)

	claims := &Claims{
		AssignmentID: subject.AssignmentID,
		AccessCode:   subject.AccessCode,
		PartnerID:    subject.PartnerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sid,
			Issuer:    m.opts.Issuer,
			Subject:   subject.PartnerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	if err := m.activity.Touch(ctx, sid, now, m.activityTTL(now, expiresAt)); err != nil {
		return "", nil, fmt.Errorf("failed to record session activity: %w", err)
	}
	return token, m.newSession(claims, now), nil
}

// Resolve validates a token and refreshes its activity. Errors wrap ErrUnauthenticated
// unless the activity store itself failed.
func (m *Manager) Resolve(ctx context.Context, token string) (*Session, error) {
	return m.resolve(ctx, token, true)
}

// Inspect validates a token like Resolve but leaves its activity untouched, so status
// polling cannot keep an idle session alive.
func (m *Manager) Inspect(ctx context.Context, token string) (*Session, error) {
	return m.resolve(ctx, token, false)
}

func (m *Manager) resolve(ctx context.Context, token string, touch bool) (*Session, error) {
	if token == "" {
		return nil, ErrMissing
	}
	now := m.now()

	claims, err := m.parse(token, now)
	if err != nil {
		return nil, err
	}
	sid := claims.ID

	revoked, err := m.activity.IsRevoked(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("failed to check session revocation: %w", err)
	}
	if revoked {
		return nil, ErrTerminated
	}

	last, ok, err := m.activity.LastActivity(ctx, sid)
	if err != nil {
		return nil, fmt.Errorf("failed to read session activity: %w", err)
	}
	if !ok || now.Sub(last) >= m.opts.IdleTTL {
		return nil, ErrIdleTimeout
	}

	if !touch {
		return m.newSession(claims, last), nil
	}
	if err := m.activity.Touch(ctx, sid, now, m.activityTTL(now, claims.ExpiresAt.Time)); err != nil {
		return nil, fmt.Errorf("failed to record session activity: %w", err)
	}
	return m.newSession(claims, now), nil
}

// Terminate ends a session. It is idempotent: malformed, expired, unknown and already
// terminated tokens are not errors.
func (m *Manager) Terminate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation())
	if err != nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	remaining := claims.ExpiresAt.Time.Sub(m.now())
	if remaining <= 0 {
		return nil
	}
	if err := m.activity.Revoke(ctx, claims.ID, remaining); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (m *Manager) parse(token string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.opts.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	if claims.ID == "" || claims.AssignmentID == "" || claims.IssuedAt == nil {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (m *Manager) keyFunc(*jwt.Token) (interface{}, error) {
	return m.secret, nil
}

// activityTTL keeps activity records no longer than the session can live.
func (m *Manager) activityTTL(now, expiresAt time.Time) time.Duration {
	ttl := m.opts.IdleTTL
	if remaining := expiresAt.Sub(now); remaining < ttl {
		ttl = remaining
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (m *Manager) newSession(c *Claims, lastActivity time.Time) *Session {
	idleExpires := lastActivity.Add(m.opts.IdleTTL)
	if idleExpires.After(c.ExpiresAt.Time) {
		idleExpires = c.ExpiresAt.Time
	}
	return &Session{
		ID:             c.ID,
		AssignmentID:   c.AssignmentID,
		AccessCode:     c.AccessCode,
		PartnerID:      c.PartnerID,
		CreatedAt:      c.IssuedAt.Time,
		ExpiresAt:      c.ExpiresAt.Time,
		LastActivityAt: lastActivity,
		IdleExpiresAt:  idleExpires,
		warnWithin:     m.opts.IdleWarning,
	}
}
