// Package drip schedules and delivers the fixed onboarding email sequence.
// Entries are created in bulk when an account appears and swept by a
// periodic batch run driven by an external scheduler.
package drip

import (
	"time"

	"github.com/google/uuid"
)

// Offsets are the day offsets from the account anchor at which onboarding
// emails go out. The gaps at 8, 10 and 12 are the reduced second-week
// cadence.
var Offsets = []int{0, 1, 2, 3, 4, 5, 6, 7, 9, 11, 13}

// DefaultRunLimit bounds a single sweep so a backlog cannot turn one run
// into an unbounded batch.
const DefaultRunLimit = 200

// Entry is one scheduled onboarding email. It transitions from pending
// (SentAt nil) to sent exactly once and is never deleted or re-created.
type Entry struct {
	ID           uuid.UUID  `json:"id"`
	UserID       string     `json:"user_id"`
	DayOffset    int        `json:"day_offset"`
	Template     string     `json:"template"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Pending reports whether the entry still awaits delivery.
func (e Entry) Pending() bool { return e.SentAt == nil }

// Recipient is the slice of user data the sweep needs to address an email.
type Recipient struct {
	ID    string
	Email string
	Name  string
}
