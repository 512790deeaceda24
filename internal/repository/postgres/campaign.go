// Package postgres provides PostgreSQL-backed repository implementations.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/bulkmailer/internal/domain"
	"github.com/ignite/bulkmailer/internal/service/dispatch"
)

// CampaignRepo implements dispatch.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

func (r *CampaignRepo) CreateCampaign(ctx context.Context, c *domain.Campaign, recipients []domain.RecipientInput) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO campaigns (id, title, subject, message, progress, total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.Title, c.Subject, c.Message, c.Progress, c.Total, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}

	if len(recipients) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO recipients (id, campaign_id, name, email, status)
			VALUES ($1, $2, $3, $4, $5)
		`)
		if err != nil {
			return fmt.Errorf("prepare recipients: %w", err)
		}
		defer stmt.Close()

		for _, in := range recipients {
			_, err := stmt.ExecContext(ctx, uuid.New().String(), c.ID, in.Name, in.Email, domain.RecipientPending)
			if err != nil {
				return fmt.Errorf("insert recipient: %w", err)
			}
		}
	}
	return tx.Commit()
}

func (r *CampaignRepo) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, subject, message, progress, total, created_at
		FROM campaigns
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Title, &c.Subject, &c.Message, &c.Progress, &c.Total, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, dispatch.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, subject, message, progress, total, created_at
		FROM campaigns
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(&c.ID, &c.Title, &c.Subject, &c.Message, &c.Progress, &c.Total, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) PendingRecipients(ctx context.Context, campaignID string) ([]domain.Recipient, error) {
	return r.recipientsWhere(ctx, `
		SELECT id, campaign_id, name, email, status, sent_at, COALESCE(error_message,'')
		FROM recipients
		WHERE campaign_id = $1 AND status = $2
		ORDER BY seq
	`, campaignID, domain.RecipientPending)
}

func (r *CampaignRepo) Recipients(ctx context.Context, campaignID string) ([]domain.Recipient, error) {
	return r.recipientsWhere(ctx, `
		SELECT id, campaign_id, name, email, status, sent_at, COALESCE(error_message,'')
		FROM recipients
		WHERE campaign_id = $1
		ORDER BY seq
	`, campaignID)
}

func (r *CampaignRepo) recipientsWhere(ctx context.Context, query string, args ...interface{}) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var rec domain.Recipient
		if err := rows.Scan(&rec.ID, &rec.CampaignID, &rec.Name, &rec.Email, &rec.Status, &rec.SentAt, &rec.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) ResetFailed(ctx context.Context, campaignID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recipients
		SET status = $1, error_message = NULL
		WHERE campaign_id = $2 AND status = $3
	`, domain.RecipientPending, campaignID, domain.RecipientFailed)
	if err != nil {
		return 0, fmt.Errorf("reset failed: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *CampaignRepo) MarkSent(ctx context.Context, recipientID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE recipients
		SET status = $1, sent_at = $2, error_message = NULL
		WHERE id = $3
	`, domain.RecipientSent, at, recipientID)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

func (r *CampaignRepo) MarkFailed(ctx context.Context, recipientID, errMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE recipients
		SET status = $1, error_message = $2
		WHERE id = $3
	`, domain.RecipientFailed, errMsg, recipientID)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func (r *CampaignRepo) CountByStatus(ctx context.Context, campaignID string) (domain.StatusCounts, error) {
	var c domain.StatusCounts
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = $2),
		       COUNT(*) FILTER (WHERE status = $3),
		       COUNT(*) FILTER (WHERE status = $4)
		FROM recipients
		WHERE campaign_id = $1
	`, campaignID, domain.RecipientSent, domain.RecipientFailed, domain.RecipientPending).
		Scan(&c.Total, &c.Sent, &c.Failed, &c.Pending)
	if err != nil {
		return domain.StatusCounts{}, fmt.Errorf("count recipients: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) SetProgress(ctx context.Context, campaignID string, progress int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET progress = $1 WHERE id = $2
	`, progress, campaignID)
	if err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return dispatch.ErrNotFound
	}
	return nil
}
