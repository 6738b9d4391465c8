package interactions

import (
	"errors"
	"time"
)

var (
	// ErrConsistency is returned when more than one interaction matches a
	// key that must be unique.
	ErrConsistency = errors.New("interaction consistency fault")

	// ErrSessionInactive is returned when a session is used after it was
	// committed, rolled back or closed.
	ErrSessionInactive = errors.New("interaction session is not active")

	// ErrNotFound is returned by lookups by ID that match nothing.
	ErrNotFound = errors.New("interaction not found")
)

// Interaction correlates an outbound message with later inbound callbacks
// that reference it.
type Interaction struct {
	ID             string
	CreatedAt      time.Time
	Bot            string
	Data           map[string]any
	MessageChannel string
	MessageTS      string
	TTL            *int // seconds after CreatedAt
	FollowupAction string
	FollowupAt     *time.Time
	FollowedUpAt   *time.Time
}

// Linked reports whether the interaction is attached to a message.
func (i *Interaction) Linked() bool {
	return i.MessageChannel != "" && i.MessageTS != ""
}

// Expired reports whether the TTL has elapsed at now.
func (i *Interaction) Expired(now time.Time) bool {
	if i.TTL == nil {
		return false
	}
	return now.After(i.CreatedAt.Add(time.Duration(*i.TTL) * time.Second))
}

// timeLayout is fixed width so stored values sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
