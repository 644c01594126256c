package usage

import (
	"time"

	"github.com/google/uuid"
)

// Event is one recorded strategy generation. Events are immutable: the
// system never updates or deletes them, and usage is never decremented.
type Event struct {
	ID        uuid.UUID
	UserID    string
	Problem   string
	Strategy  string
	CreatedAt time.Time
}

// Snapshot is the usage state returned to gating callers.
type Snapshot struct {
	Used          int
	Limit         int
	Allowed       bool
	MonthStart    time.Time
	FirstEventAt  *time.Time
	IsFollowupDue bool
}

// MonthStart returns the first instant of the calendar month containing t,
// in UTC. All quota windows are computed against it.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
