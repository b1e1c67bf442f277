// Package subscription manages the subscription ledger.
package subscription

import (
	"context"
	"errors"
	"strings"

	"subtrack_server/core/domain"
	"subtrack_server/core/port/out"
)

// ErrInvalidName rejects empty or whitespace-only ledger names.
var ErrInvalidName = errors.New("subscription name must not be empty")

// Service owns ledger CRUD and spending aggregation.
type Service struct {
	repo out.SubscriptionRepository
}

// NewService creates a new Service.
func NewService(repo out.SubscriptionRepository) *Service {
	return &Service{repo: repo}
}

// Create adds a ledger entry on behalf of the user. Name collisions surface
// as the repository's duplicate error.
func (s *Service) Create(ctx context.Context, sub *domain.Subscription) error {
	sub.Name = strings.TrimSpace(sub.Name)
	if sub.Name == "" {
		return ErrInvalidName
	}
	if sub.Status == "" {
		sub.Status = domain.StatusActive
	}
	if sub.Currency == "" {
		sub.Currency = "USD"
	}
	if sub.CreatedBy == "" {
		sub.CreatedBy = domain.CreatedByUser
	}
	return s.repo.Create(ctx, sub)
}

// Get returns a ledger entry by ID.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Subscription, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns every ledger entry.
func (s *Service) List(ctx context.Context) ([]*domain.Subscription, error) {
	return s.repo.List(ctx)
}

// Update replaces the mutable fields of a ledger entry. Renaming onto an
// existing name is rejected by the repository rather than overwriting it.
func (s *Service) Update(ctx context.Context, sub *domain.Subscription) error {
	sub.Name = strings.TrimSpace(sub.Name)
	if sub.Name == "" {
		return ErrInvalidName
	}
	return s.repo.Update(ctx, sub)
}

// Delete removes a ledger entry.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// Summary aggregates the ledger into monthly-equivalent spending. Only
// active entries contribute to the estimate.
func (s *Service) Summary(ctx context.Context) (*domain.SpendingSummary, error) {
	subs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	summary := &domain.SpendingSummary{
		TotalSubscriptions: len(subs),
		Currency:           "USD",
	}
	for _, sub := range subs {
		if sub.Status != domain.StatusActive {
			continue
		}
		summary.ActiveSubscriptions++
		summary.EstimatedMonthlyCost += sub.MonthlyEquivalent()
		if sub.Currency != "" {
			summary.Currency = sub.Currency
		}
	}
	return summary, nil
}
