// Package auth verifies connection credentials for the chat engine.
//
// Tokens are HS256 JWTs carrying user_id and username claims. An absent
// token or the literal "guest" marker selects guest mode; anything else
// must verify or the handshake is rejected with a policy violation.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/beamhq/beam-realtime/internal/model"
)

// GuestMarker is the literal token value that selects guest mode.
const GuestMarker = "guest"

// ErrInvalidToken is returned for malformed, forged, or expired tokens.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are the custom claims carried by chat access tokens.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Verifier validates access tokens against a shared HMAC secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the given secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token, returning the identity it carries.
// An empty token or the guest marker is not an error; callers decide guest
// admission before calling Verify.
func (v *Verifier) Verify(tokenString string) (model.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return model.Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID == "" {
		return model.Identity{}, ErrInvalidToken
	}

	username := claims.Username
	if username == "" {
		username = claims.UserID
	}

	return model.Identity{
		UserID:   claims.UserID,
		Username: username,
	}, nil
}
