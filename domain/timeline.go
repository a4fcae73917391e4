package domain

import (
	"time"

	"github.com/google/uuid"
)

// Timeline names populated by the classifier rules.
const (
	TimelineHome     = "home"
	TimelineQuiet    = "quiet" // home without boosts
	TimelineMentions = "mentions"
)

// Timelines lists every standing timeline, in evaluation order.
var Timelines = []string{TimelineHome, TimelineQuiet, TimelineMentions}

// TimelineEntry is one append-only membership record. The
// (viewer, timeline, status) triple is unique; re-classification is an
// idempotent no-op.
type TimelineEntry struct {
	ViewerURI string
	Timeline  string
	StatusURI string
	CreatedAt time.Time
}

// Notification is the side effect of the mentions rule for remote
// authors. Unique per (actor, status).
type Notification struct {
	Id        uuid.UUID
	ActorURI  string // who gets notified
	StatusURI string
	Kind      string // "mention"
	CreatedAt time.Time
}
