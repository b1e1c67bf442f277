// Package sync drives mailbox ingestion: listing, dedup, bounded-concurrency
// detail fetching and chunked persistence.
package sync

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"subtrack_server/core/domain"
	"subtrack_server/core/port/out"
	"subtrack_server/core/service/auth"
	"subtrack_server/core/service/classify"
	"subtrack_server/pkg/logger"
)

// ListingFailedError aborts a sync when any listing page fails. No partial
// listing is ever returned.
type ListingFailedError struct {
	Page int
	Body string
}

func (e *ListingFailedError) Error() string {
	return fmt.Sprintf("listing failed on page %d: %s", e.Page, e.Body)
}

// Config bounds one sync run.
type Config struct {
	// Query narrows the upstream listing (date/folder filter string).
	Query string
	// PageSize is the per-round-trip listing size.
	PageSize int64
	// MaxMessages caps how many candidate IDs one run will list.
	MaxMessages int
	// Concurrency bounds parallel detail fetches. Hard cap 10.
	Concurrency int
	// DedupTTL is how long processed IDs stay in the cache pre-filter.
	DedupTTL time.Duration
}

func (c *Config) normalize() {
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = int(c.PageSize)
	}
	if c.Concurrency <= 0 || c.Concurrency > 10 {
		c.Concurrency = 10
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 24 * time.Hour
	}
}

// ProgressFunc receives a full snapshot after every chunk.
type ProgressFunc func(p domain.JobProgress)

// Service runs the ingestion pipeline end to end.
type Service struct {
	auth       *auth.OAuthService
	provider   out.MailProvider
	emailRepo  out.EmailRepository
	connRepo   out.ConnectionRepository
	dedupCache out.ProcessedIDCache
	classifier *classify.ClassificationService
	cfg        Config

	// sleep is swapped out in tests so backoff paths run instantly.
	sleep func(time.Duration)
}

// NewService creates a new sync Service. The classifier may be nil; metadata
// syncs run without one.
func NewService(
	authSvc *auth.OAuthService,
	provider out.MailProvider,
	emailRepo out.EmailRepository,
	connRepo out.ConnectionRepository,
	dedupCache out.ProcessedIDCache,
	classifier *classify.ClassificationService,
	cfg Config,
) *Service {
	cfg.normalize()
	return &Service{
		auth:       authSvc,
		provider:   provider,
		emailRepo:  emailRepo,
		connRepo:   connRepo,
		dedupCache: dedupCache,
		classifier: classifier,
		cfg:        cfg,
		sleep:      time.Sleep,
	}
}

// =============================================================================
// Paginated fetch engine
// =============================================================================

// listCandidates walks the paged listing and returns candidate message IDs in
// upstream order. The continuation cursor is persisted on the connection so a
// later "older" run resumes where this one stopped; the cursor itself is
// opaque and never inspected.
func (s *Service) listCandidates(ctx context.Context, token *oauth2.Token, conn *domain.Connection, direction domain.SyncDirection) ([]string, error) {
	pageToken := ""
	if direction == domain.DirectionOlder {
		pageToken = conn.SyncCursor
	}

	var ids []string
	page := 0
	for {
		remaining := s.cfg.MaxMessages - len(ids)
		if remaining <= 0 {
			break
		}
		size := s.cfg.PageSize
		if int64(remaining) < size {
			size = int64(remaining)
		}

		resp, err := s.provider.ListMessageIDs(ctx, token, &out.MailListQuery{
			Query:     s.cfg.Query,
			PageToken: pageToken,
			PageSize:  size,
		})
		if err != nil {
			return nil, &ListingFailedError{Page: page, Body: err.Error()}
		}

		ids = append(ids, resp.IDs...)
		pageToken = resp.NextPageToken
		page++

		if pageToken == "" {
			break
		}
	}

	if err := s.connRepo.UpdateCursor(ctx, conn.ID, pageToken); err != nil {
		logger.Warn("failed to persist sync cursor for %s: %v", conn.Email, err)
	}

	return ids, nil
}

// =============================================================================
// Concurrent batch fetcher
// =============================================================================

// fetchDetails retrieves message details on a bounded worker pool. Individual
// failures never fail the batch: a rate-limited item gets exactly one retry
// after a short delay, anything else is logged and dropped. Completion order
// is not preserved.
func (s *Service) fetchDetails(ctx context.Context, token *oauth2.Token, ids []string, full bool) []*domain.MailMessage {
	if len(ids) == 0 {
		return nil
	}

	concurrency := s.cfg.Concurrency
	if len(ids) < concurrency {
		concurrency = len(ids)
	}

	var (
		mu       sync.Mutex
		messages []*domain.MailMessage
		wg       sync.WaitGroup
	)
	semaphore := make(chan struct{}, concurrency)

	for _, id := range ids {
		wg.Add(1)
		go func(messageID string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			msg, err := s.getMessage(ctx, token, messageID, full)
			if errors.Is(err, out.ErrRateLimited) {
				s.sleep(domain.RateLimitRetryDelay)
				msg, err = s.getMessage(ctx, token, messageID, full)
			}
			if err != nil {
				logger.Warn("dropping message %s: %v", messageID, err)
				return
			}

			mu.Lock()
			messages = append(messages, msg)
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	return messages
}

func (s *Service) getMessage(ctx context.Context, token *oauth2.Token, id string, full bool) (*domain.MailMessage, error) {
	if full {
		return s.provider.GetMessageFull(ctx, token, id)
	}
	return s.provider.GetMessageMetadata(ctx, token, id)
}

// =============================================================================
// Sync pipeline
// =============================================================================

// Run executes one sync. It returns final counts so partial progress is
// legible even when chunks failed; only auth and listing failures are fatal.
func (s *Service) Run(ctx context.Context, jobType domain.JobType, direction domain.SyncDirection, progress ProgressFunc) (*domain.SyncResult, error) {
	start := time.Now()
	report := func(current, total int, phase string) {
		if progress != nil {
			progress(domain.JobProgress{Current: current, Total: total, Phase: phase})
		}
	}

	token, conn, err := s.auth.GetValidToken(ctx)
	if err != nil {
		return nil, err
	}

	report(0, 0, "listing")
	ids, err := s.listCandidates(ctx, token, conn, direction)
	if err != nil {
		return nil, err
	}

	result := &domain.SyncResult{Fetched: len(ids)}

	fresh, dups, err := s.filterProcessed(ctx, ids)
	if err != nil {
		return nil, err
	}
	result.Duplicates += dups

	full := jobType == domain.JobSyncFull
	chunks := chunkIDs(fresh, domain.ChunkSize)
	processed := 0

	for i, chunk := range chunks {
		if i > 0 {
			s.sleep(domain.InterChunkPause)
		}

		inserted, fetched, ok := s.processChunkWithRetry(ctx, token, conn, chunk, full)
		if !ok {
			result.Errors += len(chunk)
		} else {
			result.Stored += inserted
			result.Duplicates += fetched - inserted
		}

		processed += len(chunk)
		report(processed, len(fresh), fmt.Sprintf("chunk %d/%d", i+1, len(chunks)))
	}

	if err := s.connRepo.MarkSynced(ctx, conn.ID, time.Now()); err != nil {
		logger.Warn("failed to record sync completion for %s: %v", conn.Email, err)
	}

	result.Seconds = time.Since(start).Seconds()
	logger.Info("sync finished: fetched=%d stored=%d duplicates=%d errors=%d in %.1fs",
		result.Fetched, result.Stored, result.Duplicates, result.Errors, result.Seconds)
	return result, nil
}

// filterProcessed drops already-processed IDs, first against the cache, then
// against the database. Returns the surviving IDs in input order plus the
// number filtered out.
func (s *Service) filterProcessed(ctx context.Context, ids []string) ([]string, int, error) {
	if len(ids) == 0 {
		return nil, 0, nil
	}

	candidates := ids
	dups := 0

	if s.dedupCache != nil {
		seen, err := s.dedupCache.SeenAny(ctx, ids)
		if err != nil {
			// Cache trouble is not fatal; the database check still holds.
			logger.Warn("dedup cache lookup failed: %v", err)
		} else if len(seen) > 0 {
			filtered := make([]string, 0, len(ids))
			for _, id := range ids {
				if seen[id] {
					dups++
					continue
				}
				filtered = append(filtered, id)
			}
			candidates = filtered
		}
	}

	fresh, err := s.emailRepo.FilterNew(ctx, candidates)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to filter processed ids: %w", err)
	}
	dups += len(candidates) - len(fresh)

	return fresh, dups, nil
}

// processChunkWithRetry runs one chunk through fetch + commit, retrying the
// whole chunk with backoff. A chunk attempt fails when the commit errors or
// when a non-empty chunk yields zero fetched messages. Returns inserted rows,
// fetched messages and whether the chunk ultimately succeeded.
func (s *Service) processChunkWithRetry(ctx context.Context, token *oauth2.Token, conn *domain.Connection, chunk []string, full bool) (int, int, bool) {
	for attempt := 1; attempt <= domain.ChunkMaxAttempts; attempt++ {
		inserted, fetched, err := s.processChunk(ctx, token, conn, chunk, full)
		if err == nil {
			return inserted, fetched, true
		}

		logger.Warn("chunk attempt %d/%d failed: %v", attempt, domain.ChunkMaxAttempts, err)
		if attempt < domain.ChunkMaxAttempts {
			s.sleep(domain.ChunkRetryDelay(attempt))
		}
	}
	return 0, 0, false
}

func (s *Service) processChunk(ctx context.Context, token *oauth2.Token, conn *domain.Connection, chunk []string, full bool) (int, int, error) {
	messages := s.fetchDetails(ctx, token, chunk, full)
	if len(messages) == 0 && len(chunk) > 0 {
		return 0, 0, fmt.Errorf("no messages fetched for chunk of %d", len(chunk))
	}

	emails := make([]*domain.ProcessedEmail, 0, len(messages))
	for _, msg := range messages {
		email := &domain.ProcessedEmail{
			AccountEmail: conn.Email,
			MessageID:    msg.ID,
			Subject:      msg.Subject,
			Sender:       msg.From,
			SenderDomain: classify.ExtractDomain(msg.From),
			ReceivedAt:   parseReceivedAt(msg.RawDate),
			ProcessedAt:  time.Now(),
		}
		if full && s.classifier != nil {
			s.classifier.ScoreMessage(ctx, msg, email)
		}
		emails = append(emails, email)
	}

	inserted, err := s.emailRepo.InsertChunk(ctx, emails)
	if err != nil {
		return 0, 0, fmt.Errorf("chunk commit failed: %w", err)
	}

	if s.dedupCache != nil {
		committed := make([]string, 0, len(emails))
		for _, e := range emails {
			committed = append(committed, e.MessageID)
		}
		if err := s.dedupCache.MarkProcessed(ctx, committed, s.cfg.DedupTTL); err != nil {
			logger.Warn("failed to mark processed ids in cache: %v", err)
		}
	}

	return inserted, len(messages), nil
}

// parseReceivedAt parses the message's own Date header. An unparsable date
// falls back to ingestion time rather than dropping the message.
func parseReceivedAt(raw string) time.Time {
	if raw == "" {
		return time.Now()
	}
	if t, err := mail.ParseDate(raw); err == nil {
		return t
	}
	return time.Now()
}

func chunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = domain.ChunkSize
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
