package auth

import (
	"context"
	"crypto/subtle"

	"cliproxy-gateway/internal/shared"
)

// SharedSecret authenticates against a single configured secret.
type SharedSecret struct {
	secret string
}

func NewSharedSecret(secret string) *SharedSecret {
	return &SharedSecret{secret: secret}
}

func (s *SharedSecret) Authenticate(_ context.Context, apiKey string) (*Principal, error) {
	if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.secret)) != 1 {
		return nil, shared.ErrInvalidAPIKey
	}
	return &Principal{ID: "local"}, nil
}
