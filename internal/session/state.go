package session

import "finboard/internal/core"

// State is a point-in-time copy of the session.
type State struct {
	AccessToken  string
	RefreshToken string
	User         *core.UserProfile
	Loading      bool
	// Revision increases whenever the token or the user changes.
	Revision uint64
}

// Authenticated reports whether both a token and a resolved user are present.
func (s State) Authenticated() bool {
	return s.AccessToken != "" && s.User != nil
}
