// Package http hosts the fiber HTTP handlers.
package http

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"subtrack_server/core/service/auth"
	"subtrack_server/pkg/logger"
	"subtrack_server/pkg/response"
)

// OAuthHandler serves the Gmail connect flow.
type OAuthHandler struct {
	oauthService *auth.OAuthService
}

// NewOAuthHandler creates a new OAuthHandler.
func NewOAuthHandler(oauthService *auth.OAuthService) *OAuthHandler {
	return &OAuthHandler{oauthService: oauthService}
}

func generateState() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

func (h *OAuthHandler) Register(app fiber.Router) {
	oauth := app.Group("/oauth")
	oauth.Get("/google", h.Connect)
	oauth.Get("/callback/google", h.Callback)
}

// Connect redirects the browser to the Google consent screen.
func (h *OAuthHandler) Connect(c *fiber.Ctx) error {
	state, err := generateState()
	if err != nil {
		return response.Internal(c, "failed to start oauth flow")
	}
	return c.Redirect(h.oauthService.GetAuthURL(state), fiber.StatusTemporaryRedirect)
}

// Callback completes the OAuth flow and links the mailbox.
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	if errParam := c.Query("error"); errParam != "" {
		return response.BadRequest(c, "authorization denied: "+errParam)
	}

	code := c.Query("code")
	if code == "" {
		return response.BadRequest(c, "missing authorization code")
	}

	conn, err := h.oauthService.HandleCallback(c.Context(), code)
	if err != nil {
		logger.WithError(err).Error("oauth callback failed")
		return response.Internal(c, "failed to link mailbox")
	}

	return response.OK(c, fiber.Map{
		"email":        conn.Email,
		"connected":    true,
		"connection_id": conn.ID,
	})
}
