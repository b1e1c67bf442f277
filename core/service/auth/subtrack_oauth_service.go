// Package auth manages the OAuth connection lifecycle.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"subtrack_server/core/domain"
	"subtrack_server/core/port/out"
	"subtrack_server/pkg/logger"
)

var (
	// ErrConnectionNotFound means no mailbox has been linked yet.
	ErrConnectionNotFound = errors.New("no active connection")
	// ErrRefreshFailed means the refresh grant was rejected; the user must
	// re-link the mailbox.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// AuthURLProvider builds the consent URL for a state value.
type AuthURLProvider interface {
	AuthCodeURL(state string) string
}

// OAuthService owns connect, callback and token refresh. Every caller that
// needs a Gmail credential goes through GetValidToken; nothing else hands out
// tokens.
type OAuthService struct {
	connRepo  out.ConnectionRepository
	exchanger out.TokenExchanger
	provider  out.MailProvider
	authURL   AuthURLProvider

	now func() time.Time
}

// NewOAuthService creates a new OAuthService.
func NewOAuthService(
	connRepo out.ConnectionRepository,
	exchanger out.TokenExchanger,
	provider out.MailProvider,
	authURL AuthURLProvider,
) *OAuthService {
	return &OAuthService{
		connRepo:  connRepo,
		exchanger: exchanger,
		provider:  provider,
		authURL:   authURL,
		now:       time.Now,
	}
}

// GetAuthURL returns the OAuth consent URL.
func (s *OAuthService) GetAuthURL(state string) string {
	return s.authURL.AuthCodeURL(state)
}

// HandleCallback exchanges the authorization code, resolves the mailbox
// address and upserts the connection. Re-linking the same mailbox replaces
// its credential instead of creating a second connection.
func (s *OAuthService) HandleCallback(ctx context.Context, code string) (*domain.Connection, error) {
	token, err := s.exchanger.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	email, err := s.provider.Profile(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mailbox address: %w", err)
	}

	conn := &domain.Connection{
		Email:        email,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
		IsActive:     true,
	}
	if err := s.connRepo.Upsert(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to save connection: %w", err)
	}

	logger.Info("mailbox linked: %s (connection %d)", email, conn.ID)
	return conn, nil
}

// GetConnection returns the active connection without touching its token.
func (s *OAuthService) GetConnection(ctx context.Context) (*domain.Connection, error) {
	conn, err := s.connRepo.GetActive(ctx)
	if err != nil {
		return nil, ErrConnectionNotFound
	}
	return conn, nil
}

// GetValidToken returns a usable access token for the active connection,
// refreshing it first when it is inside the expiry margin. The refreshed
// token is persisted before it is returned, so a crash after refresh never
// loses the credential.
func (s *OAuthService) GetValidToken(ctx context.Context) (*oauth2.Token, *domain.Connection, error) {
	conn, err := s.connRepo.GetActive(ctx)
	if err != nil {
		return nil, nil, ErrConnectionNotFound
	}

	if conn.NeedsRefresh(s.now()) {
		if err := s.refresh(ctx, conn); err != nil {
			return nil, nil, err
		}
	}

	return &oauth2.Token{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
		Expiry:       conn.TokenExpiry,
		TokenType:    "Bearer",
	}, conn, nil
}

func (s *OAuthService) refresh(ctx context.Context, conn *domain.Connection) error {
	if conn.RefreshToken == "" {
		return ErrRefreshFailed
	}

	newToken, err := s.exchanger.Refresh(ctx, &oauth2.Token{
		RefreshToken: conn.RefreshToken,
	})
	if err != nil || newToken == nil || newToken.AccessToken == "" {
		logger.Warn("token refresh failed for %s: %v", conn.Email, err)
		return ErrRefreshFailed
	}

	if err := s.connRepo.UpdateToken(ctx, conn.ID, newToken.AccessToken, newToken.Expiry); err != nil {
		return fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	conn.AccessToken = newToken.AccessToken
	conn.TokenExpiry = newToken.Expiry
	if newToken.RefreshToken != "" {
		conn.RefreshToken = newToken.RefreshToken
	}

	logger.Info("access token refreshed for %s, new expiry %s", conn.Email, newToken.Expiry.Format(time.RFC3339))
	return nil
}

// Disconnect removes every stored connection.
func (s *OAuthService) Disconnect(ctx context.Context) error {
	return s.connRepo.DeleteAll(ctx)
}
