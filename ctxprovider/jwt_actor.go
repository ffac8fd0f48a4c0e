package ctxprovider

import (
	"context"
	"errors"

	"github.com/baechuer/curve/event"
	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid is returned for a token that fails signature or claim
// validation.
var ErrTokenInvalid = errors.New("ctxprovider: token invalid")

// ErrTokenExpired is returned for a token that is otherwise well-formed
// but has expired.
var ErrTokenExpired = errors.New("ctxprovider: token expired")

type actorClaims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// jwtActorKey is the context key a caller stores the raw bearer token
// under before invoking the assembler — the library never extracts it
// from an HTTP request itself; that's an external collaborator's job.
type jwtActorKey struct{}

// WithBearerToken returns a context carrying the raw JWT for a later
// JWTActorProvider.CurrentMetadata call to verify.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, jwtActorKey{}, token)
}

// JWTActorProvider resolves event.Actor from an HS256-signed JWT carrying
// a uid/role claim pair.
type JWTActorProvider struct {
	secret []byte
}

// NewJWTActorProvider constructs a provider verifying tokens with secret.
func NewJWTActorProvider(secret string) *JWTActorProvider {
	return &JWTActorProvider{secret: []byte(secret)}
}

func (p *JWTActorProvider) CurrentMetadata(ctx context.Context, _ event.Payload) event.Metadata {
	raw, _ := ctx.Value(jwtActorKey{}).(string)
	if raw == "" {
		return event.Metadata{}
	}
	actor, err := p.verify(raw)
	if err != nil {
		// The assembler never fails on missing optional metadata — an
		// unverifiable actor is "unknown", not fatal.
		return event.Metadata{}
	}
	return event.Metadata{Actor: actor}
}

func (p *JWTActorProvider) verify(token string) (*event.Actor, error) {
	parsed, err := jwt.ParseWithClaims(token, &actorClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method == nil || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrTokenInvalid
		}
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*actorClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	return &event.Actor{SubjectID: claims.UserID, Role: claims.Role}, nil
}
