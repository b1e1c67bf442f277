package out

import (
	"context"

	"subtrack_server/core/domain"
)

// SubscriptionRepository persists the subscription ledger. Name is the unique
// key; creating or renaming onto an existing name must fail with ErrDuplicate.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *domain.Subscription) error
	GetByID(ctx context.Context, id int64) (*domain.Subscription, error)
	GetByName(ctx context.Context, name string) (*domain.Subscription, error)
	List(ctx context.Context) ([]*domain.Subscription, error)
	Update(ctx context.Context, sub *domain.Subscription) error
	Delete(ctx context.Context, id int64) error
}
