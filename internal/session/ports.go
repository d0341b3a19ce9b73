package session

import (
	"context"

	"finboard/internal/core"
)

type (
	// ProfileFetcher resolves the user behind the current request credential.
	ProfileFetcher interface {
		Profile(ctx context.Context) (*core.UserProfile, error)
	}

	// Credential is the outgoing request credential the manager keeps in sync
	// with the active access token.
	Credential interface {
		Set(token string)
		Clear()
	}
)

// ProfileFetcherFunc adapts a function to ProfileFetcher.
type ProfileFetcherFunc func(ctx context.Context) (*core.UserProfile, error)

func (f ProfileFetcherFunc) Profile(ctx context.Context) (*core.UserProfile, error) {
	return f(ctx)
}
