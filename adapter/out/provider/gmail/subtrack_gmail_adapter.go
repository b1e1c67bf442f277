// Package gmail implements the mail provider adapter for the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"subtrack_server/core/domain"
	"subtrack_server/core/port/out"
	"subtrack_server/pkg/logger"
)

// metadataHeaders are the only headers requested on the metadata fast path.
var metadataHeaders = []string{"Subject", "From", "Date"}

// GmailAdapter implements out.MailProvider and out.TokenExchanger.
type GmailAdapter struct {
	config *oauth2.Config
	cb     *gobreaker.CircuitBreaker
}

// Config holds the OAuth client credential for the Gmail adapter.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewGmailAdapter creates a new Gmail adapter.
func NewGmailAdapter(cfg *Config) *GmailAdapter {
	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			gmail.GmailReadonlyScope,
		},
		Endpoint: google.Endpoint,
	}

	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker %s: %s -> %s", name, from.String(), to.String())
		},
	}

	return &GmailAdapter{
		config: config,
		cb:     gobreaker.NewCircuitBreaker(cbSettings),
	}
}

// AuthCodeURL returns the OAuth consent URL for the given state.
func (a *GmailAdapter) AuthCodeURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange exchanges an authorization code for a token.
func (a *GmailAdapter) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, a.wrapError(err, "failed to exchange token")
	}
	return token, nil
}

// Refresh exchanges a refresh token for a fresh access token.
func (a *GmailAdapter) Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	src := a.config.TokenSource(ctx, token)
	newToken, err := src.Token()
	if err != nil {
		return nil, a.wrapError(err, "failed to refresh token")
	}
	return newToken, nil
}

func (a *GmailAdapter) getService(ctx context.Context, token *oauth2.Token) (*gmail.Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	return gmail.NewService(ctx, option.WithTokenSource(
		oauth2.StaticTokenSource(token),
	))
}

// ListMessageIDs performs one listing round trip. The page token is passed
// through verbatim; callers own cursor persistence.
func (a *GmailAdapter) ListMessageIDs(ctx context.Context, token *oauth2.Token, q *out.MailListQuery) (*out.MailListPage, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	req := svc.Users.Messages.List("me")
	if q.Query != "" {
		req = req.Q(q.Query)
	}
	if q.PageToken != "" {
		req = req.PageToken(q.PageToken)
	}
	if q.PageSize > 0 {
		req = req.MaxResults(q.PageSize)
	}

	resp, err := a.execute(func() (interface{}, error) {
		return req.Context(ctx).Do()
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to list messages")
	}

	listResp := resp.(*gmail.ListMessagesResponse)
	page := &out.MailListPage{
		IDs:           make([]string, 0, len(listResp.Messages)),
		NextPageToken: listResp.NextPageToken,
	}
	for _, m := range listResp.Messages {
		page.IDs = append(page.IDs, m.Id)
	}
	return page, nil
}

// GetMessageMetadata fetches headers only.
func (a *GmailAdapter) GetMessageMetadata(ctx context.Context, token *oauth2.Token, messageID string) (*domain.MailMessage, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	resp, err := a.execute(func() (interface{}, error) {
		return svc.Users.Messages.Get("me", messageID).
			Format("metadata").
			MetadataHeaders(metadataHeaders...).
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to get message metadata")
	}

	return parseMessage(resp.(*gmail.Message), false), nil
}

// GetMessageFull fetches headers plus the decoded text/plain body.
func (a *GmailAdapter) GetMessageFull(ctx context.Context, token *oauth2.Token, messageID string) (*domain.MailMessage, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	resp, err := a.execute(func() (interface{}, error) {
		return svc.Users.Messages.Get("me", messageID).
			Format("full").
			Context(ctx).
			Do()
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to get message")
	}

	return parseMessage(resp.(*gmail.Message), true), nil
}

// Profile returns the mailbox address the token is bound to.
func (a *GmailAdapter) Profile(ctx context.Context, token *oauth2.Token) (string, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return "", err
	}

	resp, err := a.execute(func() (interface{}, error) {
		return svc.Users.GetProfile("me").Context(ctx).Do()
	})
	if err != nil {
		return "", a.wrapError(err, "failed to get profile")
	}

	return resp.(*gmail.Profile).EmailAddress, nil
}

func (a *GmailAdapter) execute(fn func() (interface{}, error)) (interface{}, error) {
	return a.cb.Execute(fn)
}

// wrapError maps upstream failures into port errors. Rate limiting must
// surface as out.ErrRateLimited so the batch fetcher can apply its single
// retry.
func (a *GmailAdapter) wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case 429:
			return fmt.Errorf("%w: %v", out.ErrRateLimited, err)
		case 403:
			if strings.Contains(apiErr.Message, "Rate Limit") ||
				strings.Contains(apiErr.Message, "rateLimitExceeded") {
				return fmt.Errorf("%w: %v", out.ErrRateLimited, err)
			}
		}
	}

	return fmt.Errorf("%s: %w", defaultMsg, err)
}

// =============================================================================
// Message parsing
// =============================================================================

func parseMessage(msg *gmail.Message, withBody bool) *domain.MailMessage {
	mm := &domain.MailMessage{
		ID:      msg.Id,
		Snippet: msg.Snippet,
	}

	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch header.Name {
			case "Subject":
				mm.Subject = header.Value
			case "From":
				mm.From = header.Value
			case "Date":
				mm.RawDate = header.Value
			}
		}

		if withBody {
			mm.Body = extractPlainText(msg.Payload)
		}
	}

	return mm
}

// extractPlainText walks the MIME tree and returns the first decodable
// text/plain part. Multipart containers are searched depth-first.
func extractPlainText(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}

	if payload.MimeType == "text/plain" && payload.Body != nil && payload.Body.Data != "" {
		return decodeBody(payload.Body.Data)
	}

	for _, part := range payload.Parts {
		if text := extractPlainText(part); text != "" {
			return text
		}
	}

	return ""
}

// decodeBody decodes base64url body data, padded or not.
func decodeBody(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	return ""
}

// Ensure GmailAdapter implements its ports
var (
	_ out.MailProvider   = (*GmailAdapter)(nil)
	_ out.TokenExchanger = (*GmailAdapter)(nil)
)
