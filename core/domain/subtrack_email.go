package domain

import "time"

// ProcessedEmail is one ingested message. The Gmail message ID carries the
// deduplication guarantee: exactly one row per ID, ever.
type ProcessedEmail struct {
	ID           int64     `json:"id"`
	AccountEmail string    `json:"account_email"`
	MessageID    string    `json:"message_id"`
	Subject      string    `json:"subject"`
	Sender       string    `json:"sender"`
	SenderDomain string    `json:"sender_domain"`
	ReceivedAt   time.Time `json:"received_at"`
	ProcessedAt  time.Time `json:"processed_at"`

	// Classification outputs, populated when classification ran.
	IsSubscription  bool    `json:"is_subscription"`
	ConfidenceScore float64 `json:"confidence_score"`
	Vendor          string  `json:"vendor,omitempty"`
	Category        string  `json:"category,omitempty"`
	UserSelected    bool    `json:"user_selected"`
}

// MailMessage is a message as fetched from the provider, before persistence.
type MailMessage struct {
	ID      string
	Subject string
	From    string
	RawDate string
	Snippet string
	Body    string
}

// Classification is the outcome of scoring one message against the
// "recurring paid subscription" question.
type Classification struct {
	IsSubscription bool    `json:"is_subscription"`
	Confidence     float64 `json:"confidence"`
	VendorName     string  `json:"vendor_name,omitempty"`
	VendorEmail    string  `json:"vendor_email,omitempty"`
	Amount         float64 `json:"amount,omitempty"`
	Currency       string  `json:"currency,omitempty"`
	BillingCycle   string  `json:"billing_cycle,omitempty"`
	Category       string  `json:"category,omitempty"`
}

// NotSubscription is the conservative default returned whenever the external
// classifier fails or replies with something unusable.
func NotSubscription() *Classification {
	return &Classification{IsSubscription: false, Confidence: 0.0}
}

// Qualifies reports whether this classification should materialize a
// Subscription ledger entry.
func (c *Classification) Qualifies(threshold float64) bool {
	return c.IsSubscription && c.Confidence >= threshold
}

// DomainCluster is a per-domain aggregate used by the review tooling.
type DomainCluster struct {
	Domain         string `json:"domain"`
	Total          int    `json:"total"`
	Subscription   int    `json:"subscription"`
	UserSelected   int    `json:"user_selected"`
	LLMClassified  int    `json:"llm_classified"`
	IsSubscription bool   `json:"is_subscription"`
}
