package dispatch

import (
	"context"
	"time"

	"github.com/ignite/bulkmailer/internal/domain"
)

// Repository defines the data access contract for campaigns and their
// recipients. Implementations must be safe for concurrent use.
type Repository interface {
	// CreateCampaign inserts a campaign together with its recipient rows
	// in a single transaction.
	CreateCampaign(ctx context.Context, c *domain.Campaign, recipients []domain.RecipientInput) error

	// GetCampaign returns a single campaign. Returns ErrNotFound if it
	// doesn't exist.
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)

	// ListCampaigns returns all campaigns ordered by created_at DESC.
	ListCampaigns(ctx context.Context) ([]domain.Campaign, error)

	// PendingRecipients returns the campaign's recipients still in the
	// Pending state, in insertion order.
	PendingRecipients(ctx context.Context, campaignID string) ([]domain.Recipient, error)

	// ResetFailed atomically moves every Failed recipient of the campaign
	// back to Pending, clearing the stored error. Returns the number of
	// rows moved.
	ResetFailed(ctx context.Context, campaignID string) (int, error)

	// MarkSent records a successful delivery for one recipient.
	MarkSent(ctx context.Context, recipientID string, at time.Time) error

	// MarkFailed records a failed delivery attempt for one recipient.
	MarkFailed(ctx context.Context, recipientID, errMsg string) error

	// CountByStatus returns the campaign's recipient counts per status.
	CountByStatus(ctx context.Context, campaignID string) (domain.StatusCounts, error)

	// Recipients returns all of the campaign's recipients in insertion
	// order.
	Recipients(ctx context.Context, campaignID string) ([]domain.Recipient, error)

	// SetProgress updates the campaign's denormalized sent counter.
	SetProgress(ctx context.Context, campaignID string, progress int) error
}
