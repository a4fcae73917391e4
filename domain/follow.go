package domain

import (
	"time"

	"github.com/google/uuid"
)

type FollowStatus string

const (
	FollowRequested FollowStatus = "requested"
	FollowAccepted  FollowStatus = "accepted"
	FollowRejected  FollowStatus = "rejected"
)

// Follow is a directed subscription edge actor -> target. At most one
// edge in {requested, accepted} exists per (actor, target) pair; creating
// a duplicate returns the existing edge.
type Follow struct {
	Id             uuid.UUID
	ActorURI       string
	TargetURI      string
	URI            string
	Status         FollowStatus
	InboxURI       string
	SharedInboxURI string
	CreatedAt      time.Time
}

// Active reports whether the edge still counts against the one-per-pair
// invariant.
func (f *Follow) Active() bool {
	return f.Status == FollowRequested || f.Status == FollowAccepted
}

// DeliveryInbox mirrors Actor.DeliveryInbox for the follower side of the
// edge, so delivery can be computed from the follow graph alone.
func (f *Follow) DeliveryInbox() string {
	if f.SharedInboxURI != "" {
		return f.SharedInboxURI
	}
	return f.InboxURI
}
