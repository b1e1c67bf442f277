package classify

import (
	"context"
	"testing"

	"subtrack_server/adapter/out/persistence"
	"subtrack_server/core/domain"
)

type fakeClassifier struct {
	result *domain.Classification
}

func (f *fakeClassifier) Classify(ctx context.Context, msg *domain.MailMessage) *domain.Classification {
	return f.result
}

type fakeSubRepo struct {
	byName  map[string]*domain.Subscription
	created []*domain.Subscription
	updated []*domain.Subscription
}

func newFakeSubRepo() *fakeSubRepo {
	return &fakeSubRepo{byName: map[string]*domain.Subscription{}}
}

func (f *fakeSubRepo) Create(ctx context.Context, sub *domain.Subscription) error {
	if _, ok := f.byName[sub.Name]; ok {
		return persistence.ErrDuplicate
	}
	f.byName[sub.Name] = sub
	f.created = append(f.created, sub)
	return nil
}

func (f *fakeSubRepo) GetByID(ctx context.Context, id int64) (*domain.Subscription, error) {
	return nil, persistence.ErrNotFound
}

func (f *fakeSubRepo) GetByName(ctx context.Context, name string) (*domain.Subscription, error) {
	if sub, ok := f.byName[name]; ok {
		return sub, nil
	}
	return nil, persistence.ErrNotFound
}

func (f *fakeSubRepo) List(ctx context.Context) ([]*domain.Subscription, error) { return nil, nil }

func (f *fakeSubRepo) Update(ctx context.Context, sub *domain.Subscription) error {
	f.byName[sub.Name] = sub
	f.updated = append(f.updated, sub)
	return nil
}

func (f *fakeSubRepo) Delete(ctx context.Context, id int64) error { return nil }

func TestScoreMessage_ConfidenceGating(t *testing.T) {
	tests := []struct {
		name       string
		result     *domain.Classification
		wantLedger bool
	}{
		{
			name:       "above threshold creates ledger entry",
			result:     &domain.Classification{IsSubscription: true, Confidence: 0.75, VendorName: "Netflix"},
			wantLedger: true,
		},
		{
			name:       "below threshold stores metadata only",
			result:     &domain.Classification{IsSubscription: true, Confidence: 0.65, VendorName: "Netflix"},
			wantLedger: false,
		},
		{
			name:       "exactly at threshold qualifies",
			result:     &domain.Classification{IsSubscription: true, Confidence: 0.7, VendorName: "Netflix"},
			wantLedger: true,
		},
		{
			name:       "high confidence non-subscription",
			result:     &domain.Classification{IsSubscription: false, Confidence: 0.95},
			wantLedger: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeSubRepo()
			svc := NewClassificationService(&fakeClassifier{result: tt.result}, repo, 0.7)

			email := &domain.ProcessedEmail{SenderDomain: "netflix.com"}
			svc.ScoreMessage(context.Background(), &domain.MailMessage{ID: "m1"}, email)

			if email.IsSubscription != tt.result.IsSubscription {
				t.Errorf("email.IsSubscription = %v, want %v", email.IsSubscription, tt.result.IsSubscription)
			}
			if email.ConfidenceScore != tt.result.Confidence {
				t.Errorf("email.ConfidenceScore = %v, want %v", email.ConfidenceScore, tt.result.Confidence)
			}

			if got := len(repo.created) > 0; got != tt.wantLedger {
				t.Errorf("ledger entry created = %v, want %v", got, tt.wantLedger)
			}
		})
	}
}

func TestScoreMessage_MergesDomainIntoExistingEntry(t *testing.T) {
	repo := newFakeSubRepo()
	repo.byName["Netflix"] = &domain.Subscription{
		Name:    "Netflix",
		Domains: []string{"netflix.com"},
	}

	svc := NewClassificationService(&fakeClassifier{result: &domain.Classification{
		IsSubscription: true,
		Confidence:     0.9,
		VendorName:     "Netflix",
	}}, repo, 0.7)

	email := &domain.ProcessedEmail{SenderDomain: "mailer.netflix.com"}
	svc.ScoreMessage(context.Background(), &domain.MailMessage{ID: "m1"}, email)

	if len(repo.created) != 0 {
		t.Error("existing entry must not be recreated")
	}
	if len(repo.updated) != 1 {
		t.Fatalf("updated %d entries, want 1", len(repo.updated))
	}
	if !repo.updated[0].HasDomain("mailer.netflix.com") {
		t.Error("new sender domain was not merged into existing entry")
	}
}

func TestScoreMessage_ExistingDomainNotDuplicated(t *testing.T) {
	repo := newFakeSubRepo()
	repo.byName["Netflix"] = &domain.Subscription{
		Name:    "Netflix",
		Domains: []string{"netflix.com"},
	}

	svc := NewClassificationService(&fakeClassifier{result: &domain.Classification{
		IsSubscription: true,
		Confidence:     0.9,
		VendorName:     "Netflix",
	}}, repo, 0.7)

	email := &domain.ProcessedEmail{SenderDomain: "netflix.com"}
	svc.ScoreMessage(context.Background(), &domain.MailMessage{ID: "m1"}, email)

	if len(repo.updated) != 0 {
		t.Error("entry already listing the domain must not be touched")
	}
}

func TestScoreMessage_NilClassifierResult(t *testing.T) {
	repo := newFakeSubRepo()
	svc := NewClassificationService(&fakeClassifier{result: nil}, repo, 0.7)

	email := &domain.ProcessedEmail{}
	c := svc.ScoreMessage(context.Background(), &domain.MailMessage{ID: "m1"}, email)

	if c.IsSubscription || c.Confidence != 0 {
		t.Errorf("nil classifier result must degrade to conservative default, got %+v", c)
	}
}

func TestScoreMessage_VendorlessFallsBackToDomainName(t *testing.T) {
	repo := newFakeSubRepo()
	svc := NewClassificationService(&fakeClassifier{result: &domain.Classification{
		IsSubscription: true,
		Confidence:     0.8,
	}}, repo, 0.7)

	email := &domain.ProcessedEmail{SenderDomain: "acme.io"}
	svc.ScoreMessage(context.Background(), &domain.MailMessage{ID: "m1"}, email)

	if len(repo.created) != 1 {
		t.Fatalf("created %d entries, want 1", len(repo.created))
	}
	if repo.created[0].Name != "acme.io" {
		t.Errorf("entry name = %q, want sender domain fallback", repo.created[0].Name)
	}
}
