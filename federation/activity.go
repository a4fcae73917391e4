package federation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ombekk/dugong/domain"
)

const streamsContext = "https://www.w3.org/ns/activitystreams"

// Activity is the outer ActivityStreams envelope for both inbound
// parsing and outbound building.
type Activity struct {
	Context   any      `json:"@context,omitempty"`
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Actor     string   `json:"actor,omitempty"`
	Published string   `json:"published,omitempty"`
	To        []string `json:"to,omitempty"`
	CC        []string `json:"cc,omitempty"`
	Object    any      `json:"object,omitempty"`
}

// NoteObject is the wire form of a Note or Question status.
type NoteObject struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	AttributedTo string         `json:"attributedTo"`
	Content      string         `json:"content"`
	Published    string         `json:"published,omitempty"`
	Updated      string         `json:"updated,omitempty"`
	InReplyTo    string         `json:"inReplyTo,omitempty"`
	Name         string         `json:"name,omitempty"`
	To           []string       `json:"to,omitempty"`
	CC           []string       `json:"cc,omitempty"`
	OneOf        []ChoiceObject `json:"oneOf,omitempty"`
	EndTime      string         `json:"endTime,omitempty"`
}

// ChoiceObject is one selectable answer of a Question.
type ChoiceObject struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// Tombstone marks a deleted object in a Delete activity.
type Tombstone struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

func newActivityID(domainName string) string {
	return fmt.Sprintf("https://%s/activities/%s", domainName, uuid.New().String())
}

// StatusObject maps a stored status to its wire form.
func StatusObject(st *domain.Status) NoteObject {
	obj := NoteObject{
		ID:           st.URI,
		Type:         string(st.Kind),
		AttributedTo: st.ActorURI,
		Content:      st.Content,
		Published:    st.CreatedAt.Format(time.RFC3339),
		InReplyTo:    st.InReplyToURI,
		To:           st.To,
		CC:           st.CC,
	}
	if st.EditedAt != nil {
		obj.Updated = st.EditedAt.Format(time.RFC3339)
	}
	if st.Kind == domain.KindPoll {
		for _, choice := range st.PollChoices {
			obj.OneOf = append(obj.OneOf, ChoiceObject{Type: "Note", Name: choice})
		}
		if st.PollEndsAt != nil {
			obj.EndTime = st.PollEndsAt.Format(time.RFC3339)
		}
	}
	return obj
}

// NewCreate wraps a freshly authored status.
func NewCreate(domainName string, st *domain.Status) Activity {
	return Activity{
		Context:   streamsContext,
		ID:        newActivityID(domainName),
		Type:      "Create",
		Actor:     st.ActorURI,
		Published: st.CreatedAt.Format(time.RFC3339),
		To:        st.To,
		CC:        st.CC,
		Object:    StatusObject(st),
	}
}

// NewUpdate wraps an edited status.
func NewUpdate(domainName string, st *domain.Status) Activity {
	return Activity{
		Context: streamsContext,
		ID:      newActivityID(domainName),
		Type:    "Update",
		Actor:   st.ActorURI,
		To:      st.To,
		CC:      st.CC,
		Object:  StatusObject(st),
	}
}

// NewAnnounce wraps a boost of an original note.
func NewAnnounce(domainName string, st *domain.Status) Activity {
	return Activity{
		Context:   streamsContext,
		ID:        st.URI,
		Type:      "Announce",
		Actor:     st.ActorURI,
		Published: st.CreatedAt.Format(time.RFC3339),
		To:        st.To,
		CC:        st.CC,
		Object:    st.BoostOfURI,
	}
}

// NewDelete tombstones a deleted status.
func NewDelete(domainName string, actorURI string, statusURI string) Activity {
	return Activity{
		Context: streamsContext,
		ID:      newActivityID(domainName),
		Type:    "Delete",
		Actor:   actorURI,
		To:      []string{domain.PublicMarker},
		Object:  Tombstone{ID: statusURI, Type: "Tombstone"},
	}
}

// NewAccept acknowledges a remote Follow.
func NewAccept(domainName string, localActorURI string, followURI string, remoteActorURI string) Activity {
	return Activity{
		Context: streamsContext,
		ID:      newActivityID(domainName),
		Type:    "Accept",
		Actor:   localActorURI,
		Object: Activity{
			ID:     followURI,
			Type:   "Follow",
			Actor:  remoteActorURI,
			Object: localActorURI,
		},
	}
}

// NewFollow requests a subscription to a remote actor.
func NewFollow(domainName string, localActorURI string, remoteActorURI string) Activity {
	return Activity{
		Context: streamsContext,
		ID:      newActivityID(domainName),
		Type:    "Follow",
		Actor:   localActorURI,
		Object:  remoteActorURI,
	}
}

// NewUndo revokes a previously sent activity.
func NewUndo(domainName string, actorURI string, inner Activity) Activity {
	inner.Context = nil
	return Activity{
		Context: streamsContext,
		ID:      newActivityID(domainName),
		Type:    "Undo",
		Actor:   actorURI,
		Object:  inner,
	}
}
