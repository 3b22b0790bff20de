// Package auth verifies bearer tokens and resolves them to directory users.
// Tokens identify a user; role and branch always come from the directory.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"churchledger/internal/core"
	applog "churchledger/internal/log"
)

// ErrUnauthenticated means the request carried no usable identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// Claims are the token claims the service reads.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// UserLookup is the user directory slice the verifier needs.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (core.User, error)
	GetUserByEmail(ctx context.Context, email string) (core.User, error)
}

type Verifier struct {
	secret []byte
	issuer string
	users  UserLookup
	now    func() time.Time
	logger *applog.Logger
}

type Option func(*Verifier)

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

func WithLogger(l *applog.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

func NewVerifier(secret, issuer string, users UserLookup, opts ...Option) (*Verifier, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	v := &Verifier{secret: []byte(secret), issuer: issuer, users: users, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = applog.New(applog.DefaultConfig())
	}
	v.logger = v.logger.WithComponent(applog.ComponentAuth)
	return v, nil
}

// Authenticate verifies an HS256 token and returns the directory actor it
// names. The subject is looked up first, then the email claim.
func (v *Verifier) Authenticate(ctx context.Context, token string) (core.Actor, error) {
	claims := &Claims{}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		return core.Actor{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	user, err := v.lookup(ctx, claims)
	if err != nil {
		return core.Actor{}, err
	}
	name := user.DisplayName
	if name == "" {
		name = claims.Name
	}
	return core.Actor{
		ID:       user.ID,
		Email:    user.Email,
		Name:     name,
		Role:     user.Role,
		BranchID: user.BranchID,
	}, nil
}

func (v *Verifier) lookup(ctx context.Context, claims *Claims) (core.User, error) {
	if claims.Subject != "" {
		u, err := v.users.GetUser(ctx, claims.Subject)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return core.User{}, fmt.Errorf("look up user: %w", err)
		}
	}
	if email := strings.ToLower(strings.TrimSpace(claims.Email)); email != "" {
		u, err := v.users.GetUserByEmail(ctx, email)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, core.ErrNotFound) {
			return core.User{}, fmt.Errorf("look up user: %w", err)
		}
	}
	return core.User{}, fmt.Errorf("%w: user %q is not in the directory", ErrUnauthenticated, claims.Subject)
}

// Issue signs a token for a user. Used by ledgerctl and tests.
func (v *Verifier) Issue(userID, email, name string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Email: email,
		Name:  name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

type actorKey struct{}

// WithActor stores the actor in the context.
func WithActor(ctx context.Context, a core.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the authenticated actor, if any.
func ActorFrom(ctx context.Context) (core.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(core.Actor)
	return a, ok
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Middleware authenticates every request and stores the actor in its
// context. onFail writes the rejection.
func (v *Verifier) Middleware(onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				onFail(w, r, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated))
				return
			}
			actor, err := v.Authenticate(r.Context(), token)
			if err != nil {
				v.logger.WarnContext(r.Context(), "Authentication failed",
					applog.FieldPath, r.URL.Path,
					applog.FieldError, err.Error())
				onFail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
