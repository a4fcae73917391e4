package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PublicMarker is the ActivityStreams public addressing collection.
const PublicMarker = "https://www.w3.org/ns/activitystreams#Public"

// FollowersSuffix terminates a followers-collection address.
const FollowersSuffix = "/followers"

type StatusKind string

const (
	KindNote  StatusKind = "Note"
	KindPoll  StatusKind = "Question"
	KindBoost StatusKind = "Announce"
)

// Status is one published content item: a plain note, a poll, or a boost
// referencing an original note by URI.
type Status struct {
	Id           uuid.UUID
	URI          string
	ActorURI     string
	Kind         StatusKind
	Content      string
	To           []string
	CC           []string
	InReplyToURI string
	BoostOfURI   string
	PollChoices  []string
	PollEndsAt   *time.Time
	Local        bool
	Sensitive    bool
	CreatedAt    time.Time
	EditedAt     *time.Time
}

func (s *Status) IsReply() bool {
	return s.InReplyToURI != ""
}

func (s *Status) IsBoost() bool {
	return s.Kind == KindBoost
}

// Audience is the union of the to and cc address lists, in order.
func (s *Status) Audience() []string {
	out := make([]string, 0, len(s.To)+len(s.CC))
	out = append(out, s.To...)
	out = append(out, s.CC...)
	return out
}

// IsPublic reports whether the public marker appears in the audience.
func (s *Status) IsPublic() bool {
	for _, addr := range s.Audience() {
		if addr == PublicMarker {
			return true
		}
	}
	return false
}

func (s *Status) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tActor: %s \n\tKind: %s \n\tContent: %s \n\tCreatedAt: %s)",
		s.Id, s.ActorURI, s.Kind, s.Content, s.CreatedAt)
}

// PollVote records one voter's pick on a poll status. The triple
// (status, voter, choice) is unique; re-delivered votes are no-ops.
type PollVote struct {
	Id        uuid.UUID
	StatusURI string
	VoterURI  string
	Choice    string
	CreatedAt time.Time
}
