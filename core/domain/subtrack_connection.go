package domain

import "time"

// Connection represents a linked Gmail mailbox and its OAuth credential state.
// At most one active connection drives ingestion at a time.
type Connection struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	TokenExpiry  time.Time  `json:"token_expiry"`
	SyncCursor   string     `json:"-"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TokenRefreshMargin is the safety margin before expiry at which the access
// token is refreshed. A token expiring within this window must not be used:
// it could expire mid-request.
const TokenRefreshMargin = 5 * time.Minute

// NeedsRefresh reports whether the access token must be refreshed before use.
// The boundary is inclusive: a token expiring exactly at now+margin refreshes.
func (c *Connection) NeedsRefresh(now time.Time) bool {
	return !c.TokenExpiry.After(now.Add(TokenRefreshMargin))
}
