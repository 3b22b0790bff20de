package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churchledger/internal/core"
	applog "churchledger/internal/log"
	"churchledger/internal/storage/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newVerifier(t *testing.T, now time.Time) (*Verifier, *memory.Store) {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.UpsertUser(context.Background(), core.User{
		ID: "u-1", Email: "ada@example.org", DisplayName: "Ada", Role: core.RoleApprover, BranchID: "br-1",
	}))
	v, err := NewVerifier(testSecret, "churchledger", store,
		WithClock(func() time.Time { return now }),
		WithLogger(applog.New(applog.ConfigFor("test", "error", "text", io.Discard))))
	require.NoError(t, err)
	return v, store
}

func TestAuthenticateUsesDirectoryRole(t *testing.T) {
	now := time.Date(2024, 3, 3, 10, 0, 0, 0, time.UTC)
	v, _ := newVerifier(t, now)

	// A role claim in the token is ignored.
	claims := jwt.MapClaims{
		"sub": "u-1", "iss": "churchledger", "role": "admin",
		"exp": now.Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	actor, err := v.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, core.Actor{ID: "u-1", Email: "ada@example.org", Name: "Ada", Role: core.RoleApprover, BranchID: "br-1"}, actor)
}

func TestAuthenticateFallsBackToEmail(t *testing.T) {
	now := time.Date(2024, 3, 3, 10, 0, 0, 0, time.UTC)
	v, _ := newVerifier(t, now)

	token, err := v.Issue("external-subject", "ADA@example.org", "Ada L.", time.Hour)
	require.NoError(t, err)
	actor, err := v.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", actor.ID)
}

func TestAuthenticateRejects(t *testing.T) {
	now := time.Date(2024, 3, 3, 10, 0, 0, 0, time.UTC)
	v, _ := newVerifier(t, now)

	expired, err := v.Issue("u-1", "", "", -time.Minute)
	require.NoError(t, err)
	unknown, err := v.Issue("u-9", "nobody@example.org", "", time.Hour)
	require.NoError(t, err)
	other, err := NewVerifier(testSecret, "someone-else", memory.New(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	wrongIssuer, err := other.Issue("u-1", "", "", time.Hour)
	require.NoError(t, err)
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u-1", "iss": "churchledger"}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	badKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u-1", "iss": "churchledger", "exp": now.Add(time.Hour).Unix(),
	}).SignedString([]byte("another-secret-another-secret-xx"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"unknown user": unknown,
		"wrong issuer": wrongIssuer,
		"no expiry":    noExp,
		"bad key":      badKey,
		"garbage":      "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Authenticate(context.Background(), token)
			assert.True(t, errors.Is(err, ErrUnauthenticated), "got %v", err)
		})
	}
}

func TestNewVerifierRequiresLongSecret(t *testing.T) {
	_, err := NewVerifier("short", "", memory.New())
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	now := time.Now()
	v, _ := newVerifier(t, now)
	token, err := v.Issue("u-1", "", "", time.Hour)
	require.NoError(t, err)

	h := v.Middleware(func(w http.ResponseWriter, _ *http.Request, err error) {
		http.Error(w, err.Error(), http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := ActorFrom(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(a.ID))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/branches", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/branches", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-1", rec.Body.String())
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := BearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Basic abc")
	_, ok = BearerToken(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "bearer  abc ")
	tok, ok := BearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)
}
