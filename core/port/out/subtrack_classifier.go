package out

import (
	"context"

	"subtrack_server/core/domain"
)

// SubscriptionClassifier decides whether a message is subscription-related.
// Implementations must degrade conservatively: any upstream or parse failure
// yields a not-subscription result with zero confidence, never an error that
// aborts the pipeline.
type SubscriptionClassifier interface {
	Classify(ctx context.Context, msg *domain.MailMessage) *domain.Classification
}
