package domain

import "time"

// Campaign represents one bulk-send job: a message template targeted at a
// list of recipients. Content fields are immutable after creation; only the
// Progress/Total counters change as dispatch runs advance.
type Campaign struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Subject   string    `json:"subject" db:"subject"`
	Message   string    `json:"message" db:"message"`
	Progress  int       `json:"progress" db:"progress"`
	Total     int       `json:"total" db:"total"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// StatusCounts is the per-campaign aggregate derived from recipient rows.
// Invariant: Sent + Failed + Pending == Total.
type StatusCounts struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// Pct returns n as an integer-truncated percentage of Total, 0 when empty.
func (c StatusCounts) Pct(n int) int {
	if c.Total == 0 {
		return 0
	}
	return n * 100 / c.Total
}
