// Package auth verifies caller tokens against the identity provider's JWKS.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// Identity is a verified caller.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Verifier exchanges an opaque token for a verified identity. It fails
// closed: any validation problem is terminal for the connection attempt,
// with no retries.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Identity, error)
	Ready() bool
}

// JWKSVerifier validates JWTs against the identity provider's key set.
type JWKSVerifier struct {
	issuer   string
	audience string
	jwksURL  string
	logger   zerolog.Logger
	jwks     atomic.Pointer[keyfunc.JWKS]
	lastErr  atomic.Value // stores errWrap
}

// errWrap avoids storing bare nil in atomic.Value.
type errWrap struct{ Err error }

const (
	jwksRefreshInterval = time.Hour
	jwksRetryInterval   = time.Second
	jwksRetryMaxBackoff = 10 * time.Second
	jwksRetryTimeout    = 2 * time.Minute
	clockSkew           = 30 * time.Second
)

// NewJWKSVerifier fetches the key set and returns a ready verifier. The
// initial fetch retries with backoff; a service that cannot reach the
// identity provider does not come up.
func NewJWKSVerifier(ctx context.Context, jwksURL, issuer, audience string, logger zerolog.Logger) (*JWKSVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("jwks url is required")
	}

	v := &JWKSVerifier{
		issuer:   issuer,
		audience: audience,
		jwksURL:  jwksURL,
		logger:   logger.With().Str("component", "auth").Logger(),
	}
	v.lastErr.Store(errWrap{})

	if err := v.initJWKS(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *JWKSVerifier) initJWKS(ctx context.Context) error {
	options := keyfunc.Options{
		Ctx: ctx,
		RefreshErrorHandler: func(err error) {
			v.lastErr.Store(errWrap{Err: err})
			if err != nil {
				v.logger.Error().Err(err).Msg("jwks refresh failed")
			}
		},
		RefreshInterval:   jwksRefreshInterval,
		RefreshUnknownKID: true,
	}

	backoff := jwksRetryInterval
	deadline := time.Now().Add(jwksRetryTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	for attempt := 1; ; attempt++ {
		jwks, err := keyfunc.Get(v.jwksURL, options)
		if err == nil {
			v.lastErr.Store(errWrap{})
			v.jwks.Store(jwks)
			return nil
		}

		v.logger.Warn().
			Err(err).
			Str("jwks_url", v.jwksURL).
			Int("attempt", attempt).
			Msg("initial jwks fetch failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("fetch jwks: %w", ctx.Err())
		case <-time.After(backoff):
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("fetch jwks: %w", err)
		}
		if next := backoff * 2; next <= jwksRetryMaxBackoff {
			backoff = next
		} else {
			backoff = jwksRetryMaxBackoff
		}
	}
}

// Verify parses and validates the token, returning the caller's identity.
func (v *JWKSVerifier) Verify(_ context.Context, rawToken string) (*Identity, error) {
	if rawToken == "" {
		return nil, errors.New("missing token")
	}

	jwks := v.jwks.Load()
	if jwks == nil {
		return nil, errors.New("jwks not initialised")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	token, err := parser.ParseWithClaims(rawToken, jwt.MapClaims{}, jwks.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	iss, _ := mapClaims["iss"].(string)
	if v.issuer != "" && iss != v.issuer {
		return nil, fmt.Errorf("issuer mismatch %s", iss)
	}

	if v.audience != "" {
		if err := checkAudience(mapClaims["aud"], v.audience); err != nil {
			return nil, err
		}
	}

	sub, _ := mapClaims["sub"].(string)
	if sub == "" {
		return nil, errors.New("sub claim missing")
	}

	if exp := numericTime(mapClaims["exp"]); !exp.IsZero() {
		if time.Now().UTC().After(exp.Add(clockSkew)) {
			return nil, errors.New("token expired")
		}
	}

	email, _ := mapClaims["email"].(string)
	name, _ := mapClaims["name"].(string)

	return &Identity{UserID: sub, Email: email, Name: name}, nil
}

// Ready reports whether the key set is loaded and the last refresh worked.
func (v *JWKSVerifier) Ready() bool {
	if v.jwks.Load() == nil {
		return false
	}
	if val := v.lastErr.Load(); val != nil {
		if wrap, ok := val.(errWrap); ok && wrap.Err != nil {
			return false
		}
	}
	return true
}

func checkAudience(audRaw any, want string) error {
	switch val := audRaw.(type) {
	case nil:
		return errors.New("aud claim missing")
	case string:
		if val != want {
			return errors.New("audience mismatch")
		}
	case []interface{}:
		for _, item := range val {
			if s, ok := item.(string); ok && s == want {
				return nil
			}
		}
		return errors.New("audience mismatch")
	default:
		return fmt.Errorf("aud claim unsupported type %T", val)
	}
	return nil
}

func numericTime(value any) time.Time {
	if f, ok := value.(float64); ok {
		return time.Unix(int64(f), 0).UTC()
	}
	return time.Time{}
}

// InsecureVerifier accepts any non-empty token as the user ID. Local
// development only, enabled by turning auth off in config.
type InsecureVerifier struct{}

func (InsecureVerifier) Verify(_ context.Context, rawToken string) (*Identity, error) {
	if rawToken == "" {
		return nil, errors.New("missing token")
	}
	return &Identity{UserID: rawToken}, nil
}

func (InsecureVerifier) Ready() bool { return true }
