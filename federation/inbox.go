package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ombekk/dugong/domain"
	"github.com/ombekk/dugong/queue"
)

// ingest processes one verified inbound activity. Every branch is
// idempotent, so redelivery of the same job is harmless. Activities the
// node does not understand are logged and dropped.
func (e *Engine) ingest(ctx context.Context, p queue.IngestActivity) error {
	var activity Activity
	if err := json.Unmarshal(p.Body, &activity); err != nil {
		e.log.Warn("Dropping malformed activity", "err", err)
		return nil
	}

	// the HTTP layer verified the signature against p.ActorURI; an
	// envelope claiming a different actor is a forgery attempt
	if activity.Actor != p.ActorURI {
		e.log.Warn("Dropping activity with mismatched actor",
			"signed", p.ActorURI, "claimed", activity.Actor)
		return nil
	}

	e.log.Info("Processing activity", "type", activity.Type, "actor", activity.Actor)

	switch activity.Type {
	case "Follow":
		return e.ingestFollow(ctx, activity)
	case "Accept":
		return e.ingestAccept(activity)
	case "Undo":
		return e.ingestUndo(activity)
	case "Create":
		return e.ingestCreate(ctx, activity)
	case "Announce":
		return e.ingestAnnounce(ctx, activity)
	case "Update":
		return e.ingestUpdate(ctx, activity)
	case "Delete":
		return e.ingestDelete(activity)
	default:
		e.log.Debug("Ignoring unsupported activity type", "type", activity.Type)
		return nil
	}
}

// ingestFollow records a remote follow of a local actor and answers with
// an Accept unless the node is closed, in which case the edge waits in
// requested state for manual approval.
func (e *Engine) ingestFollow(ctx context.Context, activity Activity) error {
	targetURI, ok := activity.Object.(string)
	if !ok || targetURI == "" {
		e.log.Warn("Follow without a target, dropping", "activity", activity.ID)
		return nil
	}

	target, err := e.store.ActorByURI(targetURI)
	if err != nil {
		return err
	}
	if target == nil || !target.Local {
		e.log.Warn("Follow for unknown local actor, dropping", "target", targetURI)
		return nil
	}

	remote, err := e.directory.Resolve(ctx, activity.Actor)
	if err != nil {
		return fmt.Errorf("failed to resolve follower: %w", err)
	}

	status := domain.FollowAccepted
	if e.conf.Conf.Closed {
		status = domain.FollowRequested
	}

	follow, err := e.store.CreateFollow(&domain.Follow{
		Id:             uuid.New(),
		ActorURI:       remote.URI,
		TargetURI:      target.URI,
		URI:            activity.ID,
		Status:         status,
		InboxURI:       remote.InboxURI,
		SharedInboxURI: remote.SharedInboxURI,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return err
	}

	if follow.Status != domain.FollowAccepted {
		e.log.Info("Follow held for approval", "actor", remote.URI, "target", target.URI)
		return nil
	}

	accept := NewAccept(e.conf.Conf.SslDomain, target.URI, activity.ID, remote.URI)
	if err := e.deliverer.SendActivity(ctx, accept, remote.InboxURI, target); err != nil {
		return fmt.Errorf("failed to send accept: %w", err)
	}
	return nil
}

// ingestAccept marks an outbound follow request as accepted, keyed on
// the follow activity URI echoed inside the Accept.
func (e *Engine) ingestAccept(activity Activity) error {
	var inner Activity
	if err := decodeObject(activity.Object, &inner); err != nil {
		e.log.Warn("Accept with undecodable object, dropping", "err", err)
		return nil
	}
	if inner.Type != "Follow" || inner.ID == "" {
		e.log.Debug("Ignoring Accept of non-Follow object", "type", inner.Type)
		return nil
	}
	return e.store.AcceptFollowByURI(inner.ID)
}

// ingestUndo currently only handles Undo(Follow): the edge is removed
// entirely, so a later re-follow starts a fresh handshake.
func (e *Engine) ingestUndo(activity Activity) error {
	var inner Activity
	if err := decodeObject(activity.Object, &inner); err != nil {
		e.log.Warn("Undo with undecodable object, dropping", "err", err)
		return nil
	}
	if inner.Type != "Follow" || inner.ID == "" {
		e.log.Debug("Ignoring Undo of unsupported object", "type", inner.Type)
		return nil
	}
	return e.store.DeleteFollowByURI(inner.ID)
}

// ingestCreate stores an inbound Note or Question and fans it out to
// local timelines. A reply carrying a name that matches a choice of a
// local poll counts as a vote on that poll instead.
func (e *Engine) ingestCreate(ctx context.Context, activity Activity) error {
	var obj NoteObject
	if err := decodeObject(activity.Object, &obj); err != nil {
		e.log.Warn("Create with undecodable object, dropping", "err", err)
		return nil
	}
	if obj.ID == "" || obj.AttributedTo == "" {
		e.log.Warn("Create without id or author, dropping", "activity", activity.ID)
		return nil
	}

	if vote, err := e.recordPollVote(&obj); err != nil {
		return err
	} else if vote {
		return nil
	}

	if _, err := e.directory.Resolve(ctx, obj.AttributedTo); err != nil {
		return fmt.Errorf("failed to resolve author: %w", err)
	}

	st := statusFromObject(&obj)
	created, err := e.store.CreateStatus(st)
	if err != nil {
		return err
	}
	if !created {
		e.log.Debug("Status already stored", "status", st.URI)
	}

	return e.distributor.Distribute(ctx, st)
}

// recordPollVote checks the Mastodon voting convention: a nameless-body
// reply whose name equals one of the parent poll's choices. Returns true
// when the object was consumed as a vote.
func (e *Engine) recordPollVote(obj *NoteObject) (bool, error) {
	if obj.InReplyTo == "" || obj.Name == "" {
		return false, nil
	}

	parent, err := e.store.StatusByURI(obj.InReplyTo)
	if err != nil {
		return false, err
	}
	if parent == nil || parent.Kind != domain.KindPoll || !parent.Local {
		return false, nil
	}

	valid := false
	for _, choice := range parent.PollChoices {
		if choice == obj.Name {
			valid = true
			break
		}
	}
	if !valid {
		e.log.Warn("Vote for unknown poll choice, dropping",
			"poll", parent.URI, "choice", obj.Name)
		return true, nil
	}
	if parent.PollEndsAt != nil && time.Now().After(*parent.PollEndsAt) {
		e.log.Debug("Vote after poll closed, dropping", "poll", parent.URI)
		return true, nil
	}

	err = e.store.CreatePollVote(&domain.PollVote{
		Id:        uuid.New(),
		StatusURI: parent.URI,
		VoterURI:  obj.AttributedTo,
		Choice:    obj.Name,
		CreatedAt: time.Now(),
	})
	return true, err
}

// ingestAnnounce stores an inbound boost. The boosted original must be
// resolvable to exactly one stored note; if it cannot be fetched the
// boost is abandoned.
func (e *Engine) ingestAnnounce(ctx context.Context, activity Activity) error {
	originalURI, ok := activity.Object.(string)
	if !ok || originalURI == "" {
		e.log.Warn("Announce without object URI, dropping", "activity", activity.ID)
		return nil
	}

	if err := e.ensureOriginal(ctx, originalURI); err != nil {
		e.log.Warn("Abandoning boost, original unavailable", "original", originalURI, "err", err)
		return nil
	}

	if _, err := e.directory.Resolve(ctx, activity.Actor); err != nil {
		return fmt.Errorf("failed to resolve booster: %w", err)
	}

	st := &domain.Status{
		Id:         uuid.New(),
		URI:        activity.ID,
		ActorURI:   activity.Actor,
		Kind:       domain.KindBoost,
		BoostOfURI: originalURI,
		To:         activity.To,
		CC:         activity.CC,
		CreatedAt:  parseTime(activity.Published),
	}

	created, err := e.store.CreateStatus(st)
	if err != nil {
		return err
	}
	if !created {
		e.log.Debug("Boost already stored", "boost", st.URI)
	}

	return e.distributor.Distribute(ctx, st)
}

// ingestUpdate applies profile changes and status edits from the origin
// server. Remote content is otherwise immutable here.
func (e *Engine) ingestUpdate(ctx context.Context, activity Activity) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := decodeObject(activity.Object, &probe); err != nil {
		e.log.Warn("Update with undecodable object, dropping", "err", err)
		return nil
	}

	switch probe.Type {
	case "Person", "Service", "Application":
		// the refresh runs as its own job: a slow origin server must not
		// hold up the rest of this batch, and the activity id dedups
		// redelivered profile updates
		return e.dispatcher.Submit(ctx, queue.Job{
			ID:      "refresh:" + activity.ID,
			Payload: queue.RefreshActor{ActorURI: activity.Actor},
		})
	case string(domain.KindNote), string(domain.KindPoll):
		var obj NoteObject
		if err := decodeObject(activity.Object, &obj); err != nil {
			return nil
		}
		existing, err := e.store.StatusByURI(obj.ID)
		if err != nil {
			return err
		}
		if existing == nil || existing.ActorURI != activity.Actor {
			e.log.Warn("Ignoring update of unknown or foreign status", "status", obj.ID)
			return nil
		}
		editedAt := parseTime(obj.Updated)
		return e.store.UpdateStatusContent(obj.ID, obj.Content, editedAt)
	default:
		e.log.Debug("Ignoring update of unsupported object", "type", probe.Type)
		return nil
	}
}

// ingestDelete removes a tombstoned status, or everything a departed
// actor left behind when the actor deletes itself.
func (e *Engine) ingestDelete(activity Activity) error {
	objectURI := ""
	switch obj := activity.Object.(type) {
	case string:
		objectURI = obj
	default:
		var tomb Tombstone
		if err := decodeObject(activity.Object, &tomb); err != nil {
			e.log.Warn("Delete with undecodable object, dropping", "err", err)
			return nil
		}
		objectURI = tomb.ID
	}
	if objectURI == "" {
		return nil
	}

	if objectURI == activity.Actor {
		if err := e.store.DeleteStatusesByActor(activity.Actor); err != nil {
			return err
		}
		return e.store.DeleteRemoteActor(activity.Actor)
	}

	existing, err := e.store.StatusByURI(objectURI)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if existing.ActorURI != activity.Actor {
		e.log.Warn("Ignoring delete of foreign status", "status", objectURI, "actor", activity.Actor)
		return nil
	}
	return e.store.DeleteStatus(objectURI)
}

// decodeObject round-trips an embedded object through JSON into a
// concrete wire struct.
func decodeObject(object any, out any) error {
	raw, err := json.Marshal(object)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// statusFromObject maps a wire Note or Question to the stored form.
func statusFromObject(obj *NoteObject) *domain.Status {
	st := &domain.Status{
		Id:           uuid.New(),
		URI:          obj.ID,
		ActorURI:     obj.AttributedTo,
		Kind:         domain.StatusKind(obj.Type),
		Content:      obj.Content,
		InReplyToURI: obj.InReplyTo,
		To:           obj.To,
		CC:           obj.CC,
		CreatedAt:    parseTime(obj.Published),
	}
	for _, choice := range obj.OneOf {
		st.PollChoices = append(st.PollChoices, choice.Name)
	}
	if obj.EndTime != "" {
		if t, err := time.Parse(time.RFC3339, obj.EndTime); err == nil {
			st.PollEndsAt = &t
		}
	}
	return st
}

func parseTime(value string) time.Time {
	if value != "" {
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return t
		}
	}
	return time.Now()
}
