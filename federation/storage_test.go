package federation

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ombekk/dugong/domain"
)

// fakeStore is a map-backed Storage used by the engine tests. It mirrors
// the idempotency rules of the sqlite schema.
type fakeStore struct {
	mu            sync.Mutex
	actors        map[string]*domain.Actor
	statuses      map[string]*domain.Status
	follows       []*domain.Follow
	entries       map[string]bool
	notifications []*domain.Notification
	votes         []*domain.PollVote
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		actors:   make(map[string]*domain.Actor),
		statuses: make(map[string]*domain.Status),
		entries:  make(map[string]bool),
	}
}

func entryKey(viewerURI, timeline, statusURI string) string {
	return fmt.Sprintf("%s|%s|%s", viewerURI, timeline, statusURI)
}

func (f *fakeStore) addActor(a *domain.Actor) *domain.Actor {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.Id == uuid.Nil {
		a.Id = uuid.New()
	}
	if a.FetchedAt.IsZero() {
		a.FetchedAt = time.Now()
	}
	f.actors[a.URI] = a
	return a
}

func (f *fakeStore) addFollow(actorURI, targetURI string, status domain.FollowStatus) *domain.Follow {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl := &domain.Follow{
		Id:        uuid.New(),
		ActorURI:  actorURI,
		TargetURI: targetURI,
		URI:       fmt.Sprintf("https://test/follows/%s", uuid.New()),
		Status:    status,
		CreatedAt: time.Now(),
	}
	if a, ok := f.actors[actorURI]; ok {
		fl.InboxURI = a.InboxURI
		fl.SharedInboxURI = a.SharedInboxURI
	}
	f.follows = append(f.follows, fl)
	return fl
}

func (f *fakeStore) ActorByURI(uri string) (*domain.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.actors[uri], nil
}

func (f *fakeStore) UpsertActor(a *domain.Actor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.actors[a.URI]; ok && existing.Local {
		return nil
	}
	f.actors[a.URI] = a
	return nil
}

func (f *fakeStore) DeleteRemoteActor(uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.actors[uri]; ok && !a.Local {
		delete(f.actors, uri)
	}
	return nil
}

func (f *fakeStore) LocalActorByUsername(username string) (*domain.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.actors {
		if a.Local && a.Username == username {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) LocalActorsByFollowersURI(uri string) ([]*domain.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Actor
	for _, a := range f.actors {
		if a.Local && a.FollowersURI == uri {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ActorsByFollowersURI(uri string) ([]*domain.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Actor
	for _, a := range f.actors {
		if a.FollowersURI == uri {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) StatusByURI(uri string) (*domain.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[uri], nil
}

func (f *fakeStore) CreateStatus(s *domain.Status) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.statuses[s.URI]; ok {
		return false, nil
	}
	f.statuses[s.URI] = s
	return true, nil
}

func (f *fakeStore) UpdateStatusContent(uri string, content string, editedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.statuses[uri]; ok {
		s.Content = content
		s.EditedAt = &editedAt
	}
	return nil
}

func (f *fakeStore) DeleteStatus(uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.statuses, uri)
	for key := range f.entries {
		if len(key) >= len(uri) && key[len(key)-len(uri):] == uri {
			delete(f.entries, key)
		}
	}
	return nil
}

func (f *fakeStore) DeleteStatusesByActor(actorURI string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for uri, s := range f.statuses {
		if s.ActorURI == actorURI {
			delete(f.statuses, uri)
		}
	}
	return nil
}

func (f *fakeStore) IsFollowing(actorURI, targetURI string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fl := range f.follows {
		if fl.ActorURI == actorURI && fl.TargetURI == targetURI && fl.Status == domain.FollowAccepted {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ActiveFollow(actorURI, targetURI string) (*domain.Follow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fl := range f.follows {
		if fl.ActorURI == actorURI && fl.TargetURI == targetURI && fl.Active() {
			return fl, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateFollow(fl *domain.Follow) (*domain.Follow, error) {
	existing, _ := f.ActiveFollow(fl.ActorURI, fl.TargetURI)
	if existing != nil {
		return existing, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.follows = append(f.follows, fl)
	return fl, nil
}

func (f *fakeStore) UpdateFollowStatus(id uuid.UUID, status domain.FollowStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fl := range f.follows {
		if fl.Id == id {
			fl.Status = status
		}
	}
	return nil
}

func (f *fakeStore) AcceptFollowByURI(uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fl := range f.follows {
		if fl.URI == uri {
			fl.Status = domain.FollowAccepted
		}
	}
	return nil
}

func (f *fakeStore) DeleteFollowByURI(uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.follows[:0]
	for _, fl := range f.follows {
		if fl.URI != uri {
			kept = append(kept, fl)
		}
	}
	f.follows = kept
	return nil
}

func (f *fakeStore) AcceptedFollowerActors(targetURI string) ([]*domain.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Actor
	for _, fl := range f.follows {
		if fl.TargetURI == targetURI && fl.Status == domain.FollowAccepted {
			if a, ok := f.actors[fl.ActorURI]; ok {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) FollowerSharedInboxes(targetURI string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, fl := range f.follows {
		if fl.TargetURI != targetURI || fl.Status != domain.FollowAccepted {
			continue
		}
		inbox := fl.DeliveryInbox()
		if inbox == "" || seen[inbox] {
			continue
		}
		seen[inbox] = true
		out = append(out, inbox)
	}
	return out, nil
}

func (f *fakeStore) FollowsByInbox(inboxURI string) ([]*domain.Follow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Follow
	for _, fl := range f.follows {
		if fl.Active() && (fl.InboxURI == inboxURI || fl.SharedInboxURI == inboxURI) {
			out = append(out, fl)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertTimelineEntry(viewerURI, timeline, statusURI string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entryKey(viewerURI, timeline, statusURI)] = true
	return nil
}

func (f *fakeStore) HasTimelineEntry(viewerURI, timeline, statusURI string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[entryKey(viewerURI, timeline, statusURI)], nil
}

func (f *fakeStore) Timeline(viewerURI, timeline string, before time.Time, limit int) ([]*domain.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Status
	for uri, s := range f.statuses {
		if f.entries[entryKey(viewerURI, timeline, uri)] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateNotification(n *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.notifications {
		if existing.ActorURI == n.ActorURI && existing.StatusURI == n.StatusURI {
			return nil
		}
	}
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeStore) CreatePollVote(v *domain.PollVote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.votes {
		if existing.StatusURI == v.StatusURI && existing.VoterURI == v.VoterURI && existing.Choice == v.Choice {
			return nil
		}
	}
	f.votes = append(f.votes, v)
	return nil
}
