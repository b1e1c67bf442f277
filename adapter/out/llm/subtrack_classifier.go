// Package llm implements the subscription classifier on the OpenAI chat API.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"

	"subtrack_server/core/domain"
	"subtrack_server/core/port/out"
	"subtrack_server/pkg/logger"
)

const DefaultModel = "gpt-4o-mini"

// maxBodyChars bounds how much of the message body goes into the prompt.
const maxBodyChars = 2000

const systemPrompt = `You are an email classifier. Decide whether an email indicates a PAID recurring subscription (streaming, SaaS, memberships, recurring billing). Marketing emails, one-off receipts and free newsletters are NOT subscriptions.

Respond with a single JSON object and nothing else:
{"is_subscription": bool, "confidence": number between 0 and 1, "vendor_name": string, "vendor_email": string, "amount": number, "currency": string, "billing_cycle": "monthly"|"yearly"|"quarterly"|"weekly"|"", "category": string}

Use empty strings and 0 for fields you cannot determine.`

// Classifier implements out.SubscriptionClassifier. Every failure path
// degrades to a conservative not-subscription result; the ingestion pipeline
// never stops because the classifier is down.
type Classifier struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// Config holds classifier configuration.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// NewClassifier creates a new Classifier.
func NewClassifier(cfg *Config) *Classifier {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &Classifier{
		client:    openai.NewClient(cfg.APIKey),
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
	}
}

// Classify scores one message. Never returns nil.
func (c *Classifier) Classify(ctx context.Context, msg *domain.MailMessage) *domain.Classification {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(msg),
			},
		},
	})
	if err != nil {
		logger.Warn("classification request failed for message %s: %v", msg.ID, err)
		return domain.NotSubscription()
	}

	if len(resp.Choices) == 0 {
		logger.Warn("classification returned no choices for message %s", msg.ID)
		return domain.NotSubscription()
	}

	return parseClassification(resp.Choices[0].Message.Content)
}

func buildPrompt(msg *domain.MailMessage) string {
	body := msg.Body
	if body == "" {
		body = msg.Snippet
	}
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars]
	}

	return fmt.Sprintf("Subject: %s\nFrom: %s\n\n%s", msg.Subject, msg.From, body)
}

// rawClassification mirrors the JSON contract. Pointers distinguish a missing
// field from a zero value.
type rawClassification struct {
	IsSubscription *bool    `json:"is_subscription"`
	Confidence     *float64 `json:"confidence"`
	VendorName     string   `json:"vendor_name"`
	VendorEmail    string   `json:"vendor_email"`
	Amount         float64  `json:"amount"`
	Currency       string   `json:"currency"`
	BillingCycle   string   `json:"billing_cycle"`
	Category       string   `json:"category"`
}

// parseClassification decodes a model reply. Models wrap JSON in markdown
// fences or prose often enough that the raw object has to be cut out first.
// Anything that does not yield both required fields becomes the conservative
// default.
func parseClassification(reply string) *domain.Classification {
	raw := extractJSON(reply)
	if raw == "" {
		return domain.NotSubscription()
	}

	var rc rawClassification
	if err := json.Unmarshal([]byte(raw), &rc); err != nil {
		return domain.NotSubscription()
	}
	if rc.IsSubscription == nil || rc.Confidence == nil {
		return domain.NotSubscription()
	}

	confidence := *rc.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &domain.Classification{
		IsSubscription: *rc.IsSubscription,
		Confidence:     confidence,
		VendorName:     strings.TrimSpace(rc.VendorName),
		VendorEmail:    strings.TrimSpace(rc.VendorEmail),
		Amount:         rc.Amount,
		Currency:       strings.TrimSpace(rc.Currency),
		BillingCycle:   strings.ToLower(strings.TrimSpace(rc.BillingCycle)),
		Category:       strings.TrimSpace(rc.Category),
	}
}

// extractJSON returns the first top-level JSON object in the reply.
func extractJSON(reply string) string {
	s := strings.TrimSpace(reply)

	// Strip markdown fences
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

// Ensure Classifier implements out.SubscriptionClassifier
var _ out.SubscriptionClassifier = (*Classifier)(nil)
