package domain

import "time"

// RecipientStatus enumerates the delivery states of a single recipient.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "Pending"
	RecipientSent    RecipientStatus = "Sent"
	RecipientFailed  RecipientStatus = "Failed"
)

// Recipient is one target address within a campaign. Recipients are created
// in bulk at campaign creation, mutated only by the dispatch coordinator
// during a run, and die with their campaign.
//
// Per-run state machine: Pending → Sent (terminal) or Pending → Failed
// (terminal until the next run's bulk reset). SentAt is set only on the
// transition to Sent; ErrorMessage only on the transition to Failed.
type Recipient struct {
	ID           string          `json:"id" db:"id"`
	CampaignID   string          `json:"campaign_id" db:"campaign_id"`
	Name         string          `json:"name" db:"name"`
	Email        string          `json:"email" db:"email"`
	Status       RecipientStatus `json:"status" db:"status"`
	SentAt       *time.Time      `json:"sent_at" db:"sent_at"`
	ErrorMessage string          `json:"error_message" db:"error_message"`
}

// RecipientInput is one parsed row from an uploaded recipient file, before
// it becomes a stored Recipient.
type RecipientInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}
