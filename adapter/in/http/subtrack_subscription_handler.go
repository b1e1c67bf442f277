package http

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"subtrack_server/adapter/out/persistence"
	"subtrack_server/core/domain"
	"subtrack_server/core/service/subscription"
	"subtrack_server/pkg/response"
)

// SubscriptionHandler serves the subscription ledger.
type SubscriptionHandler struct {
	service *subscription.Service
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(service *subscription.Service) *SubscriptionHandler {
	return &SubscriptionHandler{service: service}
}

func (h *SubscriptionHandler) Register(app fiber.Router) {
	subs := app.Group("/subscriptions")
	subs.Get("/", h.List)
	subs.Get("/summary", h.Summary)
	subs.Post("/", h.Create)
	subs.Get("/:id", h.Get)
	subs.Put("/:id", h.Update)
	subs.Delete("/:id", h.Delete)
}

type subscriptionRequest struct {
	Name         string   `json:"name"`
	Domains      []string `json:"domains"`
	Cost         float64  `json:"cost"`
	Currency     string   `json:"currency"`
	BillingCycle string   `json:"billing_cycle"`
	Status       string   `json:"status"`
	AutoRenew    *bool    `json:"auto_renew"`
	Category     string   `json:"category"`
	Notes        string   `json:"notes"`
}

func (r *subscriptionRequest) apply(sub *domain.Subscription) {
	sub.Name = r.Name
	sub.Domains = r.Domains
	sub.Cost = r.Cost
	sub.Currency = r.Currency
	sub.BillingCycle = domain.BillingCycle(r.BillingCycle)
	if r.Status != "" {
		sub.Status = domain.SubscriptionStatus(r.Status)
	}
	if r.AutoRenew != nil {
		sub.AutoRenew = *r.AutoRenew
	}
	sub.Category = r.Category
	sub.Notes = r.Notes
}

func parseID(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}

// List returns every ledger entry.
func (h *SubscriptionHandler) List(c *fiber.Ctx) error {
	subs, err := h.service.List(c.Context())
	if err != nil {
		return response.Internal(c, "failed to list subscriptions")
	}
	return response.OK(c, subs)
}

// Summary returns the monthly-equivalent spending aggregate.
func (h *SubscriptionHandler) Summary(c *fiber.Ctx) error {
	summary, err := h.service.Summary(c.Context())
	if err != nil {
		return response.Internal(c, "failed to compute summary")
	}
	return response.OK(c, summary)
}

// Create adds a ledger entry.
func (h *SubscriptionHandler) Create(c *fiber.Ctx) error {
	var req subscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}

	sub := &domain.Subscription{AutoRenew: true}
	req.apply(sub)

	if err := h.service.Create(c.Context(), sub); err != nil {
		switch {
		case errors.Is(err, subscription.ErrInvalidName):
			return response.BadRequest(c, err.Error())
		case errors.Is(err, persistence.ErrDuplicate):
			return response.Conflict(c, "a subscription with that name already exists")
		default:
			return response.Internal(c, "failed to create subscription")
		}
	}
	return response.Created(c, sub)
}

// Get returns one ledger entry.
func (h *SubscriptionHandler) Get(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "invalid subscription id")
	}

	sub, err := h.service.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return response.NotFound(c, "subscription not found")
		}
		return response.Internal(c, "failed to load subscription")
	}
	return response.OK(c, sub)
}

// Update replaces a ledger entry's mutable fields.
func (h *SubscriptionHandler) Update(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "invalid subscription id")
	}

	existing, err := h.service.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return response.NotFound(c, "subscription not found")
		}
		return response.Internal(c, "failed to load subscription")
	}

	var req subscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "invalid request body")
	}
	req.apply(existing)

	if err := h.service.Update(c.Context(), existing); err != nil {
		switch {
		case errors.Is(err, subscription.ErrInvalidName):
			return response.BadRequest(c, err.Error())
		case errors.Is(err, persistence.ErrDuplicate):
			return response.Conflict(c, "a subscription with that name already exists")
		case errors.Is(err, persistence.ErrNotFound):
			return response.NotFound(c, "subscription not found")
		default:
			return response.Internal(c, "failed to update subscription")
		}
	}
	return response.OK(c, existing)
}

// Delete removes a ledger entry.
func (h *SubscriptionHandler) Delete(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return response.BadRequest(c, "invalid subscription id")
	}

	if err := h.service.Delete(c.Context(), id); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return response.NotFound(c, "subscription not found")
		}
		return response.Internal(c, "failed to delete subscription")
	}
	return response.NoContent(c)
}
