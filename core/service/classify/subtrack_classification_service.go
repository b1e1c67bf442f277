package classify

import (
	"context"
	"errors"
	"time"

	"subtrack_server/adapter/out/persistence"
	"subtrack_server/core/domain"
	"subtrack_server/core/port/out"
	"subtrack_server/pkg/logger"
)

// ClassificationService scores messages and, above the confidence threshold,
// materializes subscription ledger entries.
type ClassificationService struct {
	classifier out.SubscriptionClassifier
	subRepo    out.SubscriptionRepository
	threshold  float64
}

// NewClassificationService creates a new ClassificationService.
func NewClassificationService(
	classifier out.SubscriptionClassifier,
	subRepo out.SubscriptionRepository,
	threshold float64,
) *ClassificationService {
	if threshold <= 0 {
		threshold = 0.7
	}
	return &ClassificationService{
		classifier: classifier,
		subRepo:    subRepo,
		threshold:  threshold,
	}
}

// Threshold returns the configured confidence threshold.
func (s *ClassificationService) Threshold() float64 {
	return s.threshold
}

// ScoreMessage classifies one message and stamps the outcome onto the
// processed-email record. The record always carries the classification
// metadata, qualifying or not, so low-confidence results stay auditable.
func (s *ClassificationService) ScoreMessage(ctx context.Context, msg *domain.MailMessage, email *domain.ProcessedEmail) *domain.Classification {
	c := s.classifier.Classify(ctx, msg)
	if c == nil {
		c = domain.NotSubscription()
	}

	email.IsSubscription = c.IsSubscription
	email.ConfidenceScore = c.Confidence
	email.Vendor = c.VendorName
	email.Category = c.Category

	if c.Qualifies(s.threshold) {
		if err := s.materialize(ctx, c, email.SenderDomain); err != nil {
			logger.Warn("failed to materialize subscription for %s: %v", c.VendorName, err)
		}
	}

	return c
}

// materialize creates or enriches the ledger entry for a qualifying
// classification. An existing entry with the same name absorbs the sender
// domain instead of being overwritten.
func (s *ClassificationService) materialize(ctx context.Context, c *domain.Classification, senderDomain string) error {
	name := c.VendorName
	if name == "" {
		name = senderDomain
	}
	if name == "" {
		return nil
	}

	existing, err := s.subRepo.GetByName(ctx, name)
	if err == nil {
		if senderDomain != "" && !existing.HasDomain(senderDomain) {
			existing.Domains = append(existing.Domains, senderDomain)
			return s.subRepo.Update(ctx, existing)
		}
		return nil
	}
	if !errors.Is(err, persistence.ErrNotFound) {
		return err
	}

	sub := &domain.Subscription{
		Name:         name,
		Cost:         c.Amount,
		Currency:     c.Currency,
		BillingCycle: domain.BillingCycle(c.BillingCycle),
		Status:       domain.StatusActive,
		AutoRenew:    true,
		Category:     c.Category,
		CreatedBy:    domain.CreatedByLLM,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if senderDomain != "" {
		sub.Domains = []string{senderDomain}
	}

	if err := s.subRepo.Create(ctx, sub); err != nil {
		// A concurrent batch may have created it first
		if errors.Is(err, persistence.ErrDuplicate) {
			return nil
		}
		return err
	}

	logger.Info("subscription materialized: %s (confidence %.2f)", name, c.Confidence)
	return nil
}
