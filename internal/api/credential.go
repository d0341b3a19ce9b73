package api

import "sync"

// Credential is the bearer token attached to every outgoing request. A single
// value is shared by all clients of a process; the session manager is its
// only writer.
type Credential struct {
	mu    sync.RWMutex
	token string
}

// NewCredential returns an empty credential.
func NewCredential() *Credential {
	return &Credential{}
}

// Set installs token as the bearer credential.
func (c *Credential) Set(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Clear removes the bearer credential.
func (c *Credential) Clear() {
	c.Set("")
}

// Token returns the current bearer token, empty when none is set.
func (c *Credential) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}
