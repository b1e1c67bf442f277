package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"subtrack_server/core/port/out"
	"subtrack_server/core/service/auth"
	"subtrack_server/pkg/logger"
	"subtrack_server/pkg/response"
)

// AccountHandler serves connection state and the full reset.
type AccountHandler struct {
	oauthService *auth.OAuthService
	emailRepo    out.EmailRepository
	dedupCache   out.ProcessedIDCache
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(
	oauthService *auth.OAuthService,
	emailRepo out.EmailRepository,
	dedupCache out.ProcessedIDCache,
) *AccountHandler {
	return &AccountHandler{
		oauthService: oauthService,
		emailRepo:    emailRepo,
		dedupCache:   dedupCache,
	}
}

func (h *AccountHandler) Register(app fiber.Router) {
	app.Get("/account", h.GetAccount)
	app.Post("/reset", h.Reset)
}

// GetAccount returns connection state plus the aggregate email count.
func (h *AccountHandler) GetAccount(c *fiber.Ctx) error {
	count, err := h.emailRepo.Count(c.Context())
	if err != nil {
		return response.Internal(c, "failed to count emails")
	}

	conn, err := h.oauthService.GetConnection(c.Context())
	if err != nil {
		if errors.Is(err, auth.ErrConnectionNotFound) {
			return response.OK(c, fiber.Map{
				"connected":        false,
				"processed_emails": count,
			})
		}
		return response.Internal(c, "failed to load connection")
	}

	return response.OK(c, fiber.Map{
		"connected":        true,
		"email":            conn.Email,
		"last_sync_at":     conn.LastSyncAt,
		"processed_emails": count,
	})
}

// Reset wipes connections, processed emails and the dedup cache. The
// subscription ledger survives a reset; re-ingestion rebuilds the email
// history against it.
func (h *AccountHandler) Reset(c *fiber.Ctx) error {
	ctx := c.Context()

	if err := h.emailRepo.DeleteAll(ctx); err != nil {
		return response.Internal(c, "failed to reset emails")
	}
	if err := h.oauthService.Disconnect(ctx); err != nil {
		return response.Internal(c, "failed to reset connections")
	}
	if h.dedupCache != nil {
		if err := h.dedupCache.Flush(ctx); err != nil {
			logger.Warn("failed to flush dedup cache on reset: %v", err)
		}
	}

	logger.Info("full reset completed")
	return response.OK(c, fiber.Map{"reset": true})
}
