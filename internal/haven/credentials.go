package haven

import "sync"

// Credentials holds the session token triple obtained from the auth
// endpoints. The triple is always replaced as a whole under the lock,
// so authenticate/refresh are atomic from a reader's perspective.
type Credentials struct {
	mu           sync.RWMutex
	token        string
	refreshToken string
	userID       int64
}

// IsAuthenticated reports whether both an access token and a user id are set.
func (c *Credentials) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != "" && c.userID != 0
}

// Token returns the current access token, empty when unauthenticated.
func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Snapshot returns the full token triple for persistence.
func (c *Credentials) Snapshot() (token, refreshToken string, userID int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, c.refreshToken, c.userID
}

// Restore installs a previously persisted token triple.
func (c *Credentials) Restore(token, refreshToken string, userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.refreshToken = refreshToken
	c.userID = userID
}

// refreshState returns what a token refresh needs. Both must be present
// for a refresh to be attempted.
func (c *Credentials) refreshState() (refreshToken string, userID int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshToken, c.userID
}

// update replaces the stored triple. Callers only pass responses that
// actually carry a token, so a rejected refresh never clobbers a
// previously valid session.
func (c *Credentials) update(resp authResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = resp.Token
	c.refreshToken = resp.RefreshToken
	c.userID = resp.UserID
}
