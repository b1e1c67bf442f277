package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"subtrack_server/core/port/out"
	"subtrack_server/core/service/classify"
	"subtrack_server/pkg/response"
)

// EmailHandler serves processed emails and the domain clustering view.
type EmailHandler struct {
	emailRepo out.EmailRepository
}

// NewEmailHandler creates a new EmailHandler.
func NewEmailHandler(emailRepo out.EmailRepository) *EmailHandler {
	return &EmailHandler{emailRepo: emailRepo}
}

func (h *EmailHandler) Register(app fiber.Router) {
	app.Get("/emails", h.ListEmails)
	app.Get("/domains", h.ListDomains)
}

// ListEmails returns a page of processed emails. ?classified=true|false
// filters on the subscription flag.
func (h *EmailHandler) ListEmails(c *fiber.Ctx) error {
	q := &out.EmailListQuery{
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 50
	}

	if raw := c.Query("classified"); raw != "" {
		classified, err := strconv.ParseBool(raw)
		if err != nil {
			return response.BadRequest(c, "classified must be a boolean")
		}
		q.Classified = &classified
	}

	emails, total, err := h.emailRepo.List(c.Context(), q)
	if err != nil {
		return response.Internal(c, "failed to list emails")
	}

	return response.OKWithMeta(c, emails, &response.Meta{
		Total:   total,
		Limit:   q.Limit,
		Offset:  q.Offset,
		HasMore: q.Offset+len(emails) < total,
	})
}

// ListDomains returns per-domain aggregates for classification review.
func (h *EmailHandler) ListDomains(c *fiber.Ctx) error {
	counts, err := h.emailRepo.DomainCounts(c.Context())
	if err != nil {
		return response.Internal(c, "failed to aggregate domains")
	}
	return response.OK(c, classify.ClusterDomains(counts))
}
