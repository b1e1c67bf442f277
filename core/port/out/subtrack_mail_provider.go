// Package out defines outbound ports for the core services.
package out

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	"subtrack_server/core/domain"
)

// ErrRateLimited marks an upstream 429. The batch fetcher retries such an
// item exactly once before dropping it.
var ErrRateLimited = errors.New("provider rate limited")

// MailListQuery narrows a paged listing call. PageToken is opaque to this
// system; it is stored and replayed, never inspected.
type MailListQuery struct {
	Query     string
	PageToken string
	PageSize  int64
}

// MailListPage is one page of candidate message IDs, in upstream order.
type MailListPage struct {
	IDs           []string
	NextPageToken string
}

// MailProvider lists and fetches messages from the upstream mail API.
type MailProvider interface {
	// ListMessageIDs performs one listing round trip.
	ListMessageIDs(ctx context.Context, token *oauth2.Token, q *MailListQuery) (*MailListPage, error)

	// GetMessageMetadata fetches headers only (fast path).
	GetMessageMetadata(ctx context.Context, token *oauth2.Token, messageID string) (*domain.MailMessage, error)

	// GetMessageFull fetches headers plus the decoded text/plain body.
	GetMessageFull(ctx context.Context, token *oauth2.Token, messageID string) (*domain.MailMessage, error)

	// Profile returns the mailbox address the token is bound to.
	Profile(ctx context.Context, token *oauth2.Token) (string, error)
}

// TokenExchanger performs the OAuth authorization-code and refresh-token
// grants against the upstream token endpoint.
type TokenExchanger interface {
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error)
}
