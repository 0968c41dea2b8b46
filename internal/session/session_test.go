package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-session-secret-that-is-32-chars!"
	cookieName = "iaos_supplier_session"
)

var testSubject = Subject{AssignmentID: "asg-1", AccessCode: "3S1239SN", PartnerID: "ptn-1"}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T) (*Manager, *MemoryActivityStore, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryActivityStore()
	store.now = c.now
	m, err := NewManager(store, Options{
		Secret:      testSecret,
		AbsoluteTTL: 8 * time.Hour,
		IdleTTL:     time.Hour,
		IdleWarning: 5 * time.Minute,
	})
	require.NoError(t, err)
	m.now = c.now
	return m, store, c
}

// keepAlive resolves the token every interval until total has elapsed.
func keepAlive(t *testing.T, m *Manager, c *clock, token string, interval, total time.Duration) {
	t.Helper()
	for elapsed := time.Duration(0); elapsed+interval <= total; elapsed += interval {
		c.advance(interval)
		_, err := m.Resolve(context.Background(), token)
		require.NoError(t, err)
	}
}

func TestNewManager_RequiresSecret(t *testing.T) {
	_, err := NewManager(NewMemoryActivityStore(), Options{AbsoluteTTL: time.Hour, IdleTTL: time.Hour})
	assert.Error(t, err)
}

func TestCreateAndResolve(t *testing.T) {
	m, _, c := newTestManager(t)

	token, created, err := m.Create(context.Background(), testSubject)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, c.t.Add(8*time.Hour), created.ExpiresAt)
	assert.Equal(t, c.t.Add(time.Hour), created.IdleExpiresAt)

	c.advance(10 * time.Minute)
	sess, err := m.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, sess.ID)
	assert.Equal(t, "asg-1", sess.AssignmentID)
	assert.Equal(t, "3S1239SN", sess.AccessCode)
	assert.Equal(t, "ptn-1", sess.PartnerID)
	assert.Equal(t, c.t, sess.LastActivityAt)
	assert.Equal(t, c.t.Add(time.Hour), sess.IdleExpiresAt)
}

func TestResolve_Missing(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrMissing)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolve_TamperedToken(t *testing.T) {
	m, _, _ := newTestManager(t)
	token, _, err := m.Create(context.Background(), testSubject)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		AssignmentID: "someone-elses-assignment",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "sid",
			Issuer:    "iaos-supplier-portal",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	forgedToken, err := forged.SignedString([]byte("not-the-secret"))
	require.NoError(t, err)
	forgedParts := strings.Split(forgedToken, ".")

	// Payload swapped under the original signature.
	_, err = m.Resolve(context.Background(), parts[0]+"."+forgedParts[1]+"."+parts[2])
	assert.ErrorIs(t, err, ErrInvalid)
	// Signed with the wrong key.
	_, err = m.Resolve(context.Background(), forgedToken)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = m.Resolve(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestResolve_RejectsAlgNone(t *testing.T) {
	m, _, c := newTestManager(t)
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		AssignmentID: "asg-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "sid",
			Issuer:    "iaos-supplier-portal",
			IssuedAt:  jwt.NewNumericDate(c.t),
			ExpiresAt: jwt.NewNumericDate(c.t.Add(time.Hour)),
		},
	})
	s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Resolve(context.Background(), s)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestResolve_IdleTimeout(t *testing.T) {
	m, _, c := newTestManager(t)
	token, _, err := m.Create(context.Background(), testSubject)
	require.NoError(t, err)

	c.advance(59 * time.Minute)
	_, err = m.Resolve(context.Background(), token)
	require.NoError(t, err, "activity within the idle limit keeps the session alive")

	c.advance(time.Hour)
	_, err = m.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, ErrIdleTimeout)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, "idle_timeout", Reason(err))
}

func TestInspect_DoesNotRefreshActivity(t *testing.T) {
	m, _, c := newTestManager(t)
	token, created, err := m.Create(context.Background(), testSubject)
	require.NoError(t, err)

	c.advance(40 * time.Minute)
	sess, err := m.Inspect(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, created.LastActivityAt, sess.LastActivityAt)
	assert.Equal(t, created.IdleExpiresAt, sess.IdleExpiresAt)

	c.advance(30 * time.Minute)
	_, err = m.Inspect(context.Background(), token)
	assert.ErrorIs(t, err, ErrIdleTimeout, "inspection alone must not keep a session alive")
}

func TestResolve_IdleBoundaryIsExclusive(t *testing.T) {
	m, store, c := newTestManager(t)
	token, sess, err := m.Create(context.Background(), testSubject)
	require.NoError(t, err)

	// Keep the activity record alive past the boundary to test the comparison itself.
	require.NoError(t, store.Touch(context.Background(), sess.ID, c.t, 2*time.Hour))
	c.advance(time.Hour)
	_, err = m.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, ErrIdleTimeout)
}

func TestResolve_AbsoluteExpiryDespiteActivity(t *testing.T) {
	m, _, c := newTestManager(t)
	token, _, err := m.Create(context.Background(), testSubject)
	require.NoError(t, err)

	keepAlive(t, m, c, token, 30*time.Minute, 8*time.Hour-30*time.Minute)

	c.advance(30 * time.Minute)
	_, err = m.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, "expired", Reason(err))
}

func TestTerminate(t *testing.T) {
	m, _, _ := newTestManager(t)
	token, _, err := m.Create(context.Background(), testSubject)
	require.NoError(t, err)

	require.NoError(t, m.Terminate(context.Background(), token))
	_, err = m.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, ErrTerminated)

	// Idempotent for repeated, malformed and empty tokens.
	assert.NoError(t, m.Terminate(context.Background(), token))
	assert.NoError(t, m.Terminate(context.Background(), "not-a-token"))
	assert.NoError(t, m.Terminate(context.Background(), ""))
}

func TestTerminate_ExpiredTokenIsNoop(t *testing.T) {
	m, _, c := newTestManager(t)
	token, _, err := m.Create(context.Background(), testSubject)
	require.NoError(t, err)

	c.advance(9 * time.Hour)
	assert.NoError(t, m.Terminate(context.Background(), token))
}

func TestIdleWarning(t *testing.T) {
	m, _, c := newTestManager(t)
	_, sess, err := m.Create(context.Background(), testSubject)
	require.NoError(t, err)

	assert.False(t, sess.IdleWarning(c.t.Add(54*time.Minute)))
	assert.True(t, sess.IdleWarning(c.t.Add(55*time.Minute)))
	assert.True(t, sess.IdleWarning(c.t.Add(59*time.Minute)))
}

func TestIdleExpiryCappedByAbsoluteExpiry(t *testing.T) {
	m, _, c := newTestManager(t)
	token, _, err := m.Create(context.Background(), testSubject)
	require.NoError(t, err)

	keepAlive(t, m, c, token, 30*time.Minute, 7*time.Hour+30*time.Minute)
	sess, err := m.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, sess.ExpiresAt, sess.IdleExpiresAt)
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func TestResolveRequest_CookieAndBearerAgree(t *testing.T) {
	m, _, _ := newTestManager(t)
	token, _, err := m.Create(context.Background(), testSubject)
	require.NoError(t, err)

	viaCookie := httptest.NewRequest(http.MethodGet, "/api/v1/supplier/session", nil)
	viaCookie.AddCookie(&http.Cookie{Name: cookieName, Value: token})
	viaBearer := httptest.NewRequest(http.MethodGet, "/api/v1/supplier/session", nil)
	viaBearer.Header.Set("Authorization", "Bearer "+token)

	a, errA := m.ResolveRequest(context.Background(), viaCookie, cookieName)
	b, errB := m.ResolveRequest(context.Background(), viaBearer, cookieName)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.AssignmentID, b.AssignmentID)

	require.NoError(t, m.Terminate(context.Background(), token))
	_, errA = m.ResolveRequest(context.Background(), viaCookie, cookieName)
	_, errB = m.ResolveRequest(context.Background(), viaBearer, cookieName)
	assert.ErrorIs(t, errA, ErrTerminated)
	assert.ErrorIs(t, errB, ErrTerminated)
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		cookie     string
		header     string
		wantToken  string
		wantSource string
	}{
		{"cookie only", "c-tok", "", "c-tok", SourceCookie},
		{"bearer only", "", "Bearer b-tok", "b-tok", SourceBearer},
		{"lowercase scheme", "", "bearer b-tok", "b-tok", SourceBearer},
		{"cookie wins", "c-tok", "Bearer b-tok", "c-tok", SourceCookie},
		{"basic auth ignored", "", "Basic abc", "", SourceNone},
		{"empty bearer", "", "Bearer ", "", SourceNone},
		{"nothing", "", "", "", SourceNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: cookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			tok, src := TokenFromRequest(r, cookieName)
			assert.Equal(t, tt.wantToken, tok)
			assert.Equal(t, tt.wantSource, src)
		})
	}
}

// ---------------------------------------------------------------------------
// Errors / secret
// ---------------------------------------------------------------------------

func TestReason(t *testing.T) {
	assert.Equal(t, "missing", Reason(ErrMissing))
	assert.Equal(t, "invalid", Reason(ErrInvalid))
	assert.Equal(t, "terminated", Reason(ErrTerminated))
	assert.True(t, errors.Is(ErrExpired, ErrUnauthenticated))
}

func TestResolveSecret(t *testing.T) {
	_, err := ResolveSecret("", false)
	assert.Error(t, err)

	s, err := ResolveSecret("", true)
	require.NoError(t, err)
	assert.Len(t, s, 64)

	s, err = ResolveSecret("configured", false)
	require.NoError(t, err)
	assert.Equal(t, "configured", s)
}

func TestMemoryActivityStore_Sweep(t *testing.T) {
	c := &clock{t: time.Now()}
	store := NewMemoryActivityStore()
	store.now = c.now
	ctx := context.Background()

	require.NoError(t, store.Touch(ctx, "a", c.t, time.Minute))
	require.NoError(t, store.Revoke(ctx, "b", time.Minute))
	c.advance(2 * time.Minute)
	store.Sweep()

	assert.Empty(t, store.activity)
	assert.Empty(t, store.revoked)
}
