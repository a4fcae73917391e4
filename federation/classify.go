package federation

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/ombekk/dugong/domain"
)

// Classifier holds the standing timeline rules. Each rule decides, for a
// (viewer, status) pair, whether the status belongs in one timeline.
// Rules read durable storage and may recurse through reply chains.
type Classifier struct {
	store Storage
	log   *log.Logger
}

func NewClassifier(store Storage, logger *log.Logger) *Classifier {
	return &Classifier{store: store, log: logger}
}

// Rule is one timeline predicate. Match reports whether the status
// belongs in the rule's timeline for the given viewer.
type Rule struct {
	Timeline string
	Match    func(viewer *domain.Actor, st *domain.Status) (bool, error)
}

// Rules returns every standing rule, one per timeline.
func (c *Classifier) Rules() []Rule {
	return []Rule{
		{Timeline: domain.TimelineHome, Match: c.Home},
		{Timeline: domain.TimelineQuiet, Match: c.Quiet},
		{Timeline: domain.TimelineMentions, Match: c.Mentions},
	}
}

// Home decides membership in the primary timeline: own statuses, boosts
// whose original is not otherwise visible, and statuses whose reply chain
// stays within viewer-or-followed authors all the way to its root.
func (c *Classifier) Home(viewer *domain.Actor, st *domain.Status) (bool, error) {
	return c.home(viewer, st, make(map[string]bool))
}

// Quiet is Home with boosts excluded outright.
func (c *Classifier) Quiet(viewer *domain.Actor, st *domain.Status) (bool, error) {
	if st.IsBoost() {
		return false, nil
	}
	return c.home(viewer, st, make(map[string]bool))
}

func (c *Classifier) home(viewer *domain.Actor, st *domain.Status, visited map[string]bool) (bool, error) {
	// Reply-target ids come from untrusted remote input; a cycle is
	// treated as "excluded" instead of recursing forever.
	if visited[st.URI] {
		return false, nil
	}
	visited[st.URI] = true

	if st.ActorURI == viewer.URI {
		return true, nil
	}

	if st.IsBoost() {
		return c.homeBoost(viewer, st, visited)
	}

	followed, err := c.store.IsFollowing(viewer.URI, st.ActorURI)
	if err != nil {
		return false, err
	}
	if !followed {
		return false, nil
	}

	if !st.IsReply() {
		return true, nil
	}

	parent, err := c.store.StatusByURI(st.InReplyToURI)
	if err != nil {
		return false, err
	}
	if parent == nil {
		// Deleted or never-seen reply target excludes the whole branch.
		return false, nil
	}
	return c.home(viewer, parent, visited)
}

func (c *Classifier) homeBoost(viewer *domain.Actor, st *domain.Status, visited map[string]bool) (bool, error) {
	original, err := c.store.StatusByURI(st.BoostOfURI)
	if err != nil {
		return false, err
	}
	if original == nil {
		return false, nil
	}

	passes, err := c.home(viewer, original, visited)
	if err != nil {
		return false, err
	}
	if passes {
		// The original is independently visible; admit the boost only
		// when the viewer hasn't been handed the content yet.
		present, err := c.store.HasTimelineEntry(viewer.URI, domain.TimelineHome, original.URI)
		if err != nil {
			return false, err
		}
		return !present, nil
	}

	return c.store.IsFollowing(viewer.URI, st.ActorURI)
}

// Mentions decides membership in the mentions timeline: the viewer's own
// statuses, plus statuses whose text references the viewer's profile URL.
// A remote-authored mention also records a notification; local mentions
// are notified by the creation path itself, so no side effect here.
func (c *Classifier) Mentions(viewer *domain.Actor, st *domain.Status) (bool, error) {
	if st.IsBoost() {
		return false, nil
	}

	if st.ActorURI == viewer.URI {
		return true, nil
	}

	if !mentionsActor(st.Content, viewer.URI) {
		return false, nil
	}

	author, err := c.store.ActorByURI(st.ActorURI)
	if err != nil {
		return false, err
	}
	if author != nil && !author.Local {
		err := c.store.CreateNotification(&domain.Notification{
			Id:        uuid.New(),
			ActorURI:  viewer.URI,
			StatusURI: st.URI,
			Kind:      "mention",
			CreatedAt: time.Now(),
		})
		if err != nil {
			c.log.Warn("Failed to record mention notification", "viewer", viewer.URI, "status", st.URI, "err", err)
		}
	}

	return true, nil
}
