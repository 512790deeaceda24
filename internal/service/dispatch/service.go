package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ignite/bulkmailer/internal/domain"
	"github.com/ignite/bulkmailer/internal/pkg/logger"
	"github.com/ignite/bulkmailer/internal/pkg/runlock"
)

// RunState reports the outcome of a dispatch request.
type RunState string

const (
	RunStarted        RunState = "started"
	RunAlreadyActive  RunState = "already_running"
	RunTargetNotFound RunState = "not_found"
)

const (
	// maxErrorLen bounds the provider error text stored per recipient.
	maxErrorLen = 500
	// saveAttempts bounds the internal retry of a recipient status write.
	saveAttempts = 3
	// saveRetryDelay spaces out status write retries.
	saveRetryDelay = 100 * time.Millisecond
)

// CreateInput carries the fields for a new campaign plus its parsed
// recipient rows.
type CreateInput struct {
	Title      string
	Subject    string
	Message    string
	Recipients []domain.RecipientInput
}

// CampaignStatus is a live snapshot of one campaign's send state. Counts
// are computed fresh from recipient rows on every call, never cached.
type CampaignStatus struct {
	Campaign   domain.Campaign
	Counts     domain.StatusCounts
	Recipients []domain.Recipient
}

// Service coordinates campaign creation and send runs. All public methods
// are safe for concurrent use if the underlying repository is
// concurrency-safe.
type Service struct {
	repo      Repository
	deliverer Deliverer
	locks     runlock.Locker

	wg sync.WaitGroup
}

// NewService creates a dispatch service. The locker enforces the
// one-run-per-campaign guarantee; pass runlock.NewMemory() for a single
// process or a Redis locker when several hosts share the database.
func NewService(repo Repository, deliverer Deliverer, locks runlock.Locker) *Service {
	return &Service{repo: repo, deliverer: deliverer, locks: locks}
}

// Create validates and persists a new campaign with its recipients.
// Rows with a blank email are dropped without error. Returns the campaign
// and the number of rows dropped.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, int, error) {
	if input.Title == "" {
		return nil, 0, fmt.Errorf("title is required")
	}
	if input.Subject == "" {
		return nil, 0, fmt.Errorf("subject is required")
	}
	if input.Message == "" {
		return nil, 0, fmt.Errorf("message is required")
	}

	kept := make([]domain.RecipientInput, 0, len(input.Recipients))
	skipped := 0
	for _, r := range input.Recipients {
		if r.Email == "" {
			skipped++
			continue
		}
		kept = append(kept, r)
	}

	c := &domain.Campaign{
		ID:        uuid.New().String(),
		Title:     input.Title,
		Subject:   input.Subject,
		Message:   input.Message,
		Total:     len(kept),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateCampaign(ctx, c, kept); err != nil {
		return nil, 0, err
	}
	logger.Info("campaign created", "campaign_id", c.ID, "recipients", len(kept), "skipped", skipped)
	return c, skipped, nil
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	return s.repo.GetCampaign(ctx, id)
}

// Overview pairs a campaign with its live recipient counts for listings.
type Overview struct {
	Campaign domain.Campaign
	Counts   domain.StatusCounts
}

// List returns all campaigns, newest first, each with counts computed fresh
// from its recipient rows.
func (s *Service) List(ctx context.Context) ([]Overview, error) {
	campaigns, err := s.repo.ListCampaigns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Overview, 0, len(campaigns))
	for _, c := range campaigns {
		counts, err := s.repo.CountByStatus(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, Overview{Campaign: c, Counts: counts})
	}
	return out, nil
}

// Status returns a fresh snapshot of the campaign's recipient counts and
// rows. Returns ErrNotFound if the campaign doesn't exist.
func (s *Service) Status(ctx context.Context, id string) (*CampaignStatus, error) {
	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountByStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	recipients, err := s.repo.Recipients(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CampaignStatus{Campaign: *c, Counts: counts, Recipients: recipients}, nil
}

// StartDispatch begins a send run for the campaign. Exactly one run per
// campaign may be active at a time; a second request while a run is active
// reports RunAlreadyActive without touching any recipient. Failed
// recipients are moved back to Pending before the run begins, so a
// re-dispatch retries earlier failures. Delivery happens in the background;
// StartDispatch returns as soon as the run is underway.
func (s *Service) StartDispatch(ctx context.Context, campaignID string) (RunState, error) {
	c, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		if err == ErrNotFound {
			return RunTargetNotFound, nil
		}
		return "", err
	}

	ok, err := s.locks.TryAcquire(ctx, campaignID)
	if err != nil {
		return "", fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return RunAlreadyActive, nil
	}

	moved, err := s.repo.ResetFailed(ctx, campaignID)
	if err != nil {
		if rerr := s.locks.Release(ctx, campaignID); rerr != nil {
			logger.Warn("release run lock", "campaign_id", campaignID, "error", rerr.Error())
		}
		return "", fmt.Errorf("reset failed recipients: %w", err)
	}
	if moved > 0 {
		logger.Info("failed recipients reset", "campaign_id", campaignID, "count", moved)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// The run outlives the HTTP request that triggered it.
		runCtx := context.Background()
		defer func() {
			if err := s.locks.Release(runCtx, campaignID); err != nil {
				logger.Warn("release run lock", "campaign_id", campaignID, "error", err.Error())
			}
		}()
		s.run(runCtx, c)
	}()

	return RunStarted, nil
}

// Wait blocks until all in-flight send runs have finished. Used for
// graceful shutdown and tests.
func (s *Service) Wait() {
	s.wg.Wait()
}

// run delivers every pending recipient of the campaign sequentially. Each
// outcome is persisted immediately, so a crash mid-run loses at most the
// message in flight. One recipient's failure never aborts the run.
func (s *Service) run(ctx context.Context, c *domain.Campaign) {
	recipients, err := s.repo.PendingRecipients(ctx, c.ID)
	if err != nil {
		logger.Error("load pending recipients", "campaign_id", c.ID, "error", err.Error())
		return
	}
	logger.Info("send run started", "campaign_id", c.ID, "pending", len(recipients))

	// Recipients sent by earlier runs still count toward progress.
	alreadySent := 0
	if counts, err := s.repo.CountByStatus(ctx, c.ID); err == nil {
		alreadySent = counts.Sent
	}

	sent, failed := 0, 0
	for _, r := range recipients {
		email := &OutboundEmail{
			ToName:  r.Name,
			ToEmail: r.Email,
			Subject: c.Subject,
			Body:    Render(c.Message, r.Name),
		}
		if err := s.deliverer.Deliver(ctx, email); err != nil {
			failed++
			logger.Warn("delivery failed",
				"campaign_id", c.ID, "recipient_id", r.ID,
				"email", r.Email, "error", err.Error())
			s.saveOutcome(ctx, r.ID, func() error {
				return s.repo.MarkFailed(ctx, r.ID, truncateError(err))
			})
			continue
		}
		sent++
		now := time.Now().UTC()
		s.saveOutcome(ctx, r.ID, func() error {
			return s.repo.MarkSent(ctx, r.ID, now)
		})
		// Keep the denormalized counter moving so list views track the run.
		if err := s.repo.SetProgress(ctx, c.ID, alreadySent+sent); err != nil {
			logger.Warn("update progress", "campaign_id", c.ID, "error", err.Error())
		}
	}

	counts, err := s.repo.CountByStatus(ctx, c.ID)
	if err != nil {
		logger.Error("count recipients", "campaign_id", c.ID, "error", err.Error())
	} else if err := s.repo.SetProgress(ctx, c.ID, counts.Sent); err != nil {
		logger.Error("update progress", "campaign_id", c.ID, "error", err.Error())
	}
	logger.Info("send run finished", "campaign_id", c.ID, "sent", sent, "failed", failed)
}

// saveOutcome writes one recipient's status with a bounded retry. A write
// that still fails after the last attempt is logged and abandoned; the
// recipient stays Pending and a later run picks it up.
func (s *Service) saveOutcome(ctx context.Context, recipientID string, write func() error) {
	var err error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		if err = write(); err == nil {
			return
		}
		if attempt < saveAttempts {
			time.Sleep(time.Duration(attempt) * saveRetryDelay)
		}
	}
	logger.Error("persist recipient status", "recipient_id", recipientID, "error", err.Error())
}

// truncateError bounds the provider error text stored per recipient. The
// cut lands on a rune boundary so the stored text stays valid UTF-8.
func truncateError(err error) string {
	msg := err.Error()
	if len(msg) <= maxErrorLen {
		return msg
	}
	cut := maxErrorLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
