// Package tokenstore defines where the session's token pair is persisted
// between runs.
package tokenstore

import "context"

// Keys under which the tokens are persisted.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

// Tokens is the persisted token pair. Empty strings mean absent.
type Tokens struct {
	Access  string
	Refresh string
}

// Empty reports whether no access token is stored.
func (t Tokens) Empty() bool {
	return t.Access == ""
}

// Store persists the token pair. Both tokens are written together and removed
// together. Load on an empty store returns zero Tokens and no error.
type Store interface {
	Load(ctx context.Context) (Tokens, error)
	Save(ctx context.Context, t Tokens) error
	Clear(ctx context.Context) error
}
