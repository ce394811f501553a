// Package auth validates caller credentials. Two variants exist: a
// shared-secret check for internal deployments, and a delegated session
// lookup against an external auth backend. The variant is fixed at startup.
package auth

import "context"

// Principal is the resolved user identity behind a credential.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Service authenticates one credential. Implementations return a
// shared.RequestError on rejection so the terminal error handler can render
// a stable machine-readable code.
type Service interface {
	Authenticate(ctx context.Context, apiKey string) (*Principal, error)
}
