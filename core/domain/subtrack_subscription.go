package domain

import "time"

type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusTrial     SubscriptionStatus = "trial"
	StatusPaused    SubscriptionStatus = "paused"
)

type BillingCycle string

const (
	CycleMonthly   BillingCycle = "monthly"
	CycleYearly    BillingCycle = "yearly"
	CycleQuarterly BillingCycle = "quarterly"
	CycleWeekly    BillingCycle = "weekly"
	CycleUnknown   BillingCycle = ""
)

// Provenance records who created a ledger entry.
type Provenance string

const (
	CreatedByUser Provenance = "user"
	CreatedByLLM  Provenance = "llm"
)

// Subscription is one distinguishable recurring vendor in the ledger.
// Name is the unique key; updates address entries by name.
type Subscription struct {
	ID           int64              `json:"id"`
	Name         string             `json:"name"`
	Domains      []string           `json:"domains"`
	Cost         float64            `json:"cost"`
	Currency     string             `json:"currency"`
	BillingCycle BillingCycle       `json:"billing_cycle"`
	Status       SubscriptionStatus `json:"status"`
	AutoRenew    bool               `json:"auto_renew"`
	Category     string             `json:"category,omitempty"`
	Notes        string             `json:"notes,omitempty"`
	CreatedBy    Provenance         `json:"created_by"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// MonthlyEquivalent normalizes the cost to a per-month figure for the
// spending summary. Unknown cadences contribute nothing.
func (s *Subscription) MonthlyEquivalent() float64 {
	switch s.BillingCycle {
	case CycleMonthly:
		return s.Cost
	case CycleYearly, "annual":
		return s.Cost / 12
	case CycleQuarterly:
		return s.Cost / 3
	case CycleWeekly:
		return s.Cost * 52 / 12
	default:
		return 0
	}
}

// HasDomain reports whether the subscription already lists the given domain.
func (s *Subscription) HasDomain(domain string) bool {
	for _, d := range s.Domains {
		if d == domain {
			return true
		}
	}
	return false
}

// SpendingSummary aggregates the ledger for reporting.
type SpendingSummary struct {
	TotalSubscriptions   int     `json:"total_subscriptions"`
	ActiveSubscriptions  int     `json:"active_subscriptions"`
	EstimatedMonthlyCost float64 `json:"estimated_monthly_cost"`
	Currency             string  `json:"currency"`
}
