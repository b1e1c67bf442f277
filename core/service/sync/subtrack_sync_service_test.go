package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"subtrack_server/core/domain"
	"subtrack_server/core/port/out"
	"subtrack_server/core/service/auth"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeConnRepo struct {
	conn    *domain.Connection
	cursor  string
	synced  bool
	cursors []string
}

func (f *fakeConnRepo) GetActive(ctx context.Context) (*domain.Connection, error) {
	if f.conn == nil {
		return nil, errors.New("not found")
	}
	return f.conn, nil
}

func (f *fakeConnRepo) GetByEmail(ctx context.Context, email string) (*domain.Connection, error) {
	return f.GetActive(ctx)
}

func (f *fakeConnRepo) Upsert(ctx context.Context, conn *domain.Connection) error { return nil }

func (f *fakeConnRepo) UpdateToken(ctx context.Context, id int64, token string, expiry time.Time) error {
	return nil
}

func (f *fakeConnRepo) UpdateCursor(ctx context.Context, id int64, cursor string) error {
	f.cursor = cursor
	f.cursors = append(f.cursors, cursor)
	return nil
}

func (f *fakeConnRepo) MarkSynced(ctx context.Context, id int64, at time.Time) error {
	f.synced = true
	return nil
}

func (f *fakeConnRepo) DeleteAll(ctx context.Context) error { return nil }

type listPage struct {
	ids  []string
	next string
	err  error
}

type fakeProvider struct {
	mu gosync.Mutex

	pages     []listPage
	pageCalls []out.MailListQuery

	// failures maps message ID to how many times its fetch should fail
	// before succeeding.
	failures map[string]int
	failErr  error

	inFlight    int
	maxInFlight int
}

func (f *fakeProvider) ListMessageIDs(ctx context.Context, token *oauth2.Token, q *out.MailListQuery) (*out.MailListPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pageCalls = append(f.pageCalls, *q)
	if len(f.pages) == 0 {
		return &out.MailListPage{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	if page.err != nil {
		return nil, page.err
	}
	return &out.MailListPage{IDs: page.ids, NextPageToken: page.next}, nil
}

func (f *fakeProvider) getMessage(id string) (*domain.MailMessage, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	remaining := f.failures[id]
	if remaining > 0 {
		f.failures[id] = remaining - 1
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if remaining > 0 {
		err := f.failErr
		if err == nil {
			err = errors.New("fetch failed")
		}
		return nil, err
	}
	return &domain.MailMessage{
		ID:      id,
		Subject: "subject " + id,
		From:    "Sender <noreply@vendor.com>",
		RawDate: "Mon, 02 Jan 2006 15:04:05 -0700",
	}, nil
}

func (f *fakeProvider) GetMessageMetadata(ctx context.Context, token *oauth2.Token, id string) (*domain.MailMessage, error) {
	return f.getMessage(id)
}

func (f *fakeProvider) GetMessageFull(ctx context.Context, token *oauth2.Token, id string) (*domain.MailMessage, error) {
	return f.getMessage(id)
}

func (f *fakeProvider) Profile(ctx context.Context, token *oauth2.Token) (string, error) {
	return "user@example.com", nil
}

type fakeEmailRepo struct {
	mu        gosync.Mutex
	stored    map[string]bool
	insertErr int // fail this many InsertChunk calls
}

func newFakeEmailRepo() *fakeEmailRepo {
	return &fakeEmailRepo{stored: map[string]bool{}}
}

func (f *fakeEmailRepo) Exists(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored[id], nil
}

func (f *fakeEmailRepo) FilterNew(ctx context.Context, ids []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var fresh []string
	for _, id := range ids {
		if !f.stored[id] {
			fresh = append(fresh, id)
		}
	}
	return fresh, nil
}

func (f *fakeEmailRepo) InsertChunk(ctx context.Context, emails []*domain.ProcessedEmail) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr > 0 {
		f.insertErr--
		return 0, errors.New("commit failed")
	}
	inserted := 0
	for _, e := range emails {
		if !f.stored[e.MessageID] {
			f.stored[e.MessageID] = true
			inserted++
		}
	}
	return inserted, nil
}

func (f *fakeEmailRepo) List(ctx context.Context, q *out.EmailListQuery) ([]*domain.ProcessedEmail, int, error) {
	return nil, 0, nil
}

func (f *fakeEmailRepo) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored), nil
}

func (f *fakeEmailRepo) DomainCounts(ctx context.Context) ([]*out.DomainCount, error) {
	return nil, nil
}

func (f *fakeEmailRepo) DeleteAll(ctx context.Context) error { return nil }

type fakeExchanger struct{}

func (f *fakeExchanger) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return nil, nil
}

func (f *fakeExchanger) Refresh(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "renewed", Expiry: time.Now().Add(time.Hour)}, nil
}

// =============================================================================
// Helpers
// =============================================================================

func messageIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("m%02d", i)
	}
	return ids
}

type sleepRecorder struct {
	mu     gosync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
}

func (r *sleepRecorder) count(d time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sleeps {
		if s == d {
			n++
		}
	}
	return n
}

func newTestService(provider *fakeProvider, emailRepo *fakeEmailRepo, connRepo *fakeConnRepo) (*Service, *sleepRecorder) {
	if connRepo.conn == nil {
		connRepo.conn = &domain.Connection{
			ID:          1,
			Email:       "user@example.com",
			AccessToken: "token",
			TokenExpiry: time.Now().Add(time.Hour),
		}
	}
	authSvc := auth.NewOAuthService(connRepo, &fakeExchanger{}, provider, nil)

	svc := NewService(authSvc, provider, emailRepo, connRepo, nil, nil, Config{
		PageSize:    100,
		MaxMessages: 100,
	})

	rec := &sleepRecorder{}
	svc.sleep = rec.sleep
	return svc, rec
}

// =============================================================================
// Tests
// =============================================================================

func TestRun_TwentyFiveNewMessages(t *testing.T) {
	provider := &fakeProvider{
		pages: []listPage{{ids: messageIDs(25)}},
	}
	emailRepo := newFakeEmailRepo()
	connRepo := &fakeConnRepo{}

	svc, rec := newTestService(provider, emailRepo, connRepo)
	result, err := svc.Run(context.Background(), domain.JobSyncMetadata, domain.DirectionRecent, nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	want := domain.SyncResult{Fetched: 25, Stored: 25, Duplicates: 0, Errors: 0}
	if result.Fetched != want.Fetched || result.Stored != want.Stored ||
		result.Duplicates != want.Duplicates || result.Errors != want.Errors {
		t.Errorf("Run() = %+v, want %+v", result, want)
	}

	// 3 chunks (10, 10, 5) means 2 inter-chunk pauses
	if got := rec.count(domain.InterChunkPause); got != 2 {
		t.Errorf("inter-chunk pauses = %d, want 2", got)
	}
	if !connRepo.synced {
		t.Error("sync completion was not recorded")
	}
}

func TestRun_Idempotent(t *testing.T) {
	ids := messageIDs(10)
	emailRepo := newFakeEmailRepo()
	connRepo := &fakeConnRepo{}

	provider := &fakeProvider{pages: []listPage{{ids: ids}}}
	svc, _ := newTestService(provider, emailRepo, connRepo)
	first, err := svc.Run(context.Background(), domain.JobSyncMetadata, domain.DirectionRecent, nil)
	if err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	if first.Stored != 10 {
		t.Fatalf("first run stored %d, want 10", first.Stored)
	}

	provider.pages = []listPage{{ids: ids}}
	second, err := svc.Run(context.Background(), domain.JobSyncMetadata, domain.DirectionRecent, nil)
	if err != nil {
		t.Fatalf("second Run() error: %v", err)
	}

	if second.Stored != 0 {
		t.Errorf("second run stored %d, want 0", second.Stored)
	}
	if second.Duplicates != 10 {
		t.Errorf("second run duplicates = %d, want 10", second.Duplicates)
	}
	if second.Errors != 0 {
		t.Errorf("second run errors = %d, want 0", second.Errors)
	}
}

func TestRun_ChunkFailsAllAttempts(t *testing.T) {
	ids := messageIDs(10)
	failures := map[string]int{}
	for _, id := range ids {
		// More failures than single-item retries ever attempt: the chunk
		// fetch yields zero messages on all 3 chunk attempts.
		failures[id] = 100
	}

	provider := &fakeProvider{
		pages:    []listPage{{ids: ids}},
		failures: failures,
	}
	emailRepo := newFakeEmailRepo()

	svc, rec := newTestService(provider, emailRepo, &fakeConnRepo{})
	result, err := svc.Run(context.Background(), domain.JobSyncMetadata, domain.DirectionRecent, nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if result.Errors != 10 {
		t.Errorf("Errors = %d, want chunk size counted exactly once", result.Errors)
	}
	if result.Stored != 0 {
		t.Errorf("Stored = %d, want 0", result.Stored)
	}

	// Backoff before attempts 2 and 3
	if got := rec.count(2 * time.Second); got != 1 {
		t.Errorf("2s backoff slept %d times, want 1", got)
	}
	if got := rec.count(4 * time.Second); got != 1 {
		t.Errorf("4s backoff slept %d times, want 1", got)
	}
}

func TestRun_ChunkSucceedsOnSecondAttempt(t *testing.T) {
	ids := messageIDs(5)
	emailRepo := newFakeEmailRepo()
	emailRepo.insertErr = 1 // first commit fails, retry succeeds

	provider := &fakeProvider{pages: []listPage{{ids: ids}}}

	svc, rec := newTestService(provider, emailRepo, &fakeConnRepo{})
	result, err := svc.Run(context.Background(), domain.JobSyncMetadata, domain.DirectionRecent, nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if result.Stored != 5 || result.Errors != 0 {
		t.Errorf("result = %+v, want 5 stored, 0 errors", result)
	}
	if got := rec.count(2 * time.Second); got != 1 {
		t.Errorf("2s backoff slept %d times, want exactly 1", got)
	}
	if got := rec.count(4 * time.Second); got != 0 {
		t.Errorf("4s backoff slept %d times, want 0", got)
	}
}

func TestFetchDetails_RateLimitSingleRetry(t *testing.T) {
	provider := &fakeProvider{
		failures: map[string]int{"m00": 1},
		failErr:  out.ErrRateLimited,
	}

	svc, rec := newTestService(provider, newFakeEmailRepo(), &fakeConnRepo{})
	messages := svc.fetchDetails(context.Background(), &oauth2.Token{}, []string{"m00", "m01"}, false)

	if len(messages) != 2 {
		t.Fatalf("fetchDetails() returned %d messages, want 2 (rate-limited item retried)", len(messages))
	}
	if got := rec.count(domain.RateLimitRetryDelay); got != 1 {
		t.Errorf("rate-limit delay slept %d times, want 1", got)
	}
}

func TestFetchDetails_RateLimitedTwiceDropsItem(t *testing.T) {
	provider := &fakeProvider{
		failures: map[string]int{"m00": 2},
		failErr:  out.ErrRateLimited,
	}

	svc, _ := newTestService(provider, newFakeEmailRepo(), &fakeConnRepo{})
	messages := svc.fetchDetails(context.Background(), &oauth2.Token{}, []string{"m00", "m01"}, false)

	if len(messages) != 1 {
		t.Fatalf("fetchDetails() returned %d messages, want 1 (item dropped after one retry)", len(messages))
	}
	if messages[0].ID != "m01" {
		t.Errorf("surviving message = %s, want m01", messages[0].ID)
	}
}

func TestFetchDetails_ConcurrencyBounded(t *testing.T) {
	provider := &fakeProvider{}

	svc, _ := newTestService(provider, newFakeEmailRepo(), &fakeConnRepo{})
	svc.fetchDetails(context.Background(), &oauth2.Token{}, messageIDs(50), false)

	if provider.maxInFlight > 10 {
		t.Errorf("max in-flight fetches = %d, want <= 10", provider.maxInFlight)
	}
}

func TestRun_ListingFailure(t *testing.T) {
	provider := &fakeProvider{
		pages: []listPage{
			{ids: messageIDs(5), next: "page2"},
			{err: errors.New("upstream 503")},
		},
	}

	svc, _ := newTestService(provider, newFakeEmailRepo(), &fakeConnRepo{})
	_, err := svc.Run(context.Background(), domain.JobSyncMetadata, domain.DirectionRecent, nil)

	var lf *ListingFailedError
	if !errors.As(err, &lf) {
		t.Fatalf("Run() error = %v, want ListingFailedError", err)
	}
	if lf.Page != 1 {
		t.Errorf("failing page = %d, want 1", lf.Page)
	}
	if !strings.Contains(lf.Body, "503") {
		t.Errorf("error body %q does not carry the upstream response", lf.Body)
	}
}

func TestListCandidates_CursorHandling(t *testing.T) {
	t.Run("recent discards saved cursor and persists continuation", func(t *testing.T) {
		connRepo := &fakeConnRepo{conn: &domain.Connection{
			ID:          1,
			Email:       "user@example.com",
			AccessToken: "token",
			TokenExpiry: time.Now().Add(time.Hour),
			SyncCursor:  "stale-cursor",
		}}
		provider := &fakeProvider{
			pages: []listPage{{ids: messageIDs(100), next: "next-cursor"}},
		}

		svc, _ := newTestService(provider, newFakeEmailRepo(), connRepo)
		token := &oauth2.Token{}
		ids, err := svc.listCandidates(context.Background(), token, connRepo.conn, domain.DirectionRecent)
		if err != nil {
			t.Fatalf("listCandidates() error: %v", err)
		}

		if len(ids) != 100 {
			t.Errorf("listed %d ids, want 100", len(ids))
		}
		if provider.pageCalls[0].PageToken != "" {
			t.Errorf("recent listing sent cursor %q, want empty", provider.pageCalls[0].PageToken)
		}
		if connRepo.cursor != "next-cursor" {
			t.Errorf("persisted cursor = %q, want continuation token", connRepo.cursor)
		}
	})

	t.Run("older resumes from saved cursor", func(t *testing.T) {
		connRepo := &fakeConnRepo{conn: &domain.Connection{
			ID:          1,
			Email:       "user@example.com",
			AccessToken: "token",
			TokenExpiry: time.Now().Add(time.Hour),
			SyncCursor:  "saved-cursor",
		}}
		provider := &fakeProvider{
			pages: []listPage{{ids: messageIDs(10)}},
		}

		svc, _ := newTestService(provider, newFakeEmailRepo(), connRepo)
		if _, err := svc.listCandidates(context.Background(), &oauth2.Token{}, connRepo.conn, domain.DirectionOlder); err != nil {
			t.Fatalf("listCandidates() error: %v", err)
		}

		if provider.pageCalls[0].PageToken != "saved-cursor" {
			t.Errorf("older listing sent cursor %q, want saved-cursor", provider.pageCalls[0].PageToken)
		}
		if connRepo.cursor != "" {
			t.Errorf("exhausted listing persisted cursor %q, want cleared", connRepo.cursor)
		}
	})

	t.Run("older with no cursor behaves like first page", func(t *testing.T) {
		connRepo := &fakeConnRepo{}
		provider := &fakeProvider{
			pages: []listPage{{ids: messageIDs(10)}},
		}

		svc, _ := newTestService(provider, newFakeEmailRepo(), connRepo)
		if _, err := svc.listCandidates(context.Background(), &oauth2.Token{}, connRepo.conn, domain.DirectionOlder); err != nil {
			t.Fatalf("listCandidates() error: %v", err)
		}
		if provider.pageCalls[0].PageToken != "" {
			t.Errorf("cursorless older listing sent %q, want empty", provider.pageCalls[0].PageToken)
		}
	})
}

func TestParseReceivedAt(t *testing.T) {
	parsed := parseReceivedAt("Mon, 02 Jan 2006 15:04:05 -0700")
	want := time.Date(2006, 1, 2, 15, 4, 5, 0, time.FixedZone("", -7*3600))
	if !parsed.Equal(want) {
		t.Errorf("parseReceivedAt() = %v, want %v", parsed, want)
	}

	before := time.Now()
	fallback := parseReceivedAt("not a date")
	if fallback.Before(before) {
		t.Error("unparsable date must fall back to ingestion time")
	}
}

func TestChunkIDs(t *testing.T) {
	chunks := chunkIDs(messageIDs(25), 10)
	if len(chunks) != 3 {
		t.Fatalf("chunkIDs(25, 10) = %d chunks, want 3", len(chunks))
	}
	if len(chunks[0]) != 10 || len(chunks[1]) != 10 || len(chunks[2]) != 5 {
		t.Errorf("chunk sizes = %d, %d, %d, want 10, 10, 5", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
	if chunks := chunkIDs(nil, 10); len(chunks) != 0 {
		t.Errorf("chunkIDs(nil) = %d chunks, want 0", len(chunks))
	}
}
