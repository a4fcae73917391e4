package federation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ombekk/dugong/domain"
)

// ErrNotFound signals a missing actor profile that could not be fetched.
// Missing stored records are reported as nil results, not errors.
var ErrNotFound = errors.New("not found")

// Storage is the persistence capability set consumed by the distribution
// engine. Lookup methods return a nil record (and nil error) when the
// record does not exist. Write methods are idempotent where the schema
// can make them so, which is what keeps at-least-once job delivery and
// concurrent fan-out safe without locks.
type Storage interface {
	// Actors
	ActorByURI(uri string) (*domain.Actor, error)
	UpsertActor(a *domain.Actor) error
	DeleteRemoteActor(uri string) error
	LocalActorByUsername(username string) (*domain.Actor, error)
	LocalActorsByFollowersURI(uri string) ([]*domain.Actor, error)
	ActorsByFollowersURI(uri string) ([]*domain.Actor, error)

	// Statuses
	StatusByURI(uri string) (*domain.Status, error)
	CreateStatus(s *domain.Status) (bool, error)
	UpdateStatusContent(uri string, content string, editedAt time.Time) error
	DeleteStatus(uri string) error
	DeleteStatusesByActor(actorURI string) error

	// Follow graph
	IsFollowing(actorURI, targetURI string) (bool, error)
	ActiveFollow(actorURI, targetURI string) (*domain.Follow, error)
	CreateFollow(f *domain.Follow) (*domain.Follow, error)
	UpdateFollowStatus(id uuid.UUID, status domain.FollowStatus) error
	AcceptFollowByURI(uri string) error
	DeleteFollowByURI(uri string) error
	AcceptedFollowerActors(targetURI string) ([]*domain.Actor, error)
	FollowerSharedInboxes(targetURI string) ([]string, error)
	FollowsByInbox(inboxURI string) ([]*domain.Follow, error)

	// Timelines and side effects
	InsertTimelineEntry(viewerURI, timeline, statusURI string, at time.Time) error
	HasTimelineEntry(viewerURI, timeline, statusURI string) (bool, error)
	Timeline(viewerURI, timeline string, before time.Time, limit int) ([]*domain.Status, error)
	CreateNotification(n *domain.Notification) error
	CreatePollVote(v *domain.PollVote) error
}
