package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/ombekk/dugong/domain"
	"github.com/ombekk/dugong/util"
)

// ActorResponse represents the JSON structure of an ActivityPub actor
type ActorResponse struct {
	Context           any    `json:"@context"`
	ID                string `json:"id"`
	Type              string `json:"type"`
	PreferredUsername string `json:"preferredUsername"`
	Name              string `json:"name"`
	Summary           string `json:"summary"`
	Inbox             string `json:"inbox"`
	Outbox            string `json:"outbox"`
	Followers         string `json:"followers"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	Icon struct {
		Type      string `json:"type"`
		MediaType string `json:"mediaType"`
		URL       string `json:"url"`
	} `json:"icon"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// Directory resolves actor identifiers to cached profiles, fetching and
// persisting fresh remote copies when absent or stale. Local actors are
// never fetched or overwritten.
type Directory struct {
	store  Storage
	client *http.Client
	log    *log.Logger
}

func NewDirectory(store Storage, logger *log.Logger) *Directory {
	return &Directory{
		store:  store,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}
}

// Resolve returns the actor behind uri. A cached local actor, or a remote
// copy refreshed within the staleness window, is returned unchanged. A
// stale or missing remote actor is fetched; on fetch failure the stale
// cached copy is returned if one exists, otherwise ErrNotFound.
func (d *Directory) Resolve(ctx context.Context, actorURI string) (*domain.Actor, error) {
	cached, err := d.store.ActorByURI(actorURI)
	if err != nil {
		return nil, err
	}
	if cached != nil && !cached.Stale(time.Now()) {
		return cached, nil
	}

	fetched, err := d.fetch(ctx, actorURI)
	if err != nil {
		if cached != nil {
			d.log.Warn("Actor refresh failed, serving stale copy", "actor", actorURI, "err", err)
			return cached, nil
		}
		return nil, fmt.Errorf("resolve %s: %w", actorURI, ErrNotFound)
	}

	// Keep the row identity stable across refreshes
	if cached != nil {
		fetched.Id = cached.Id
	}

	if err := d.store.UpsertActor(fetched); err != nil {
		return nil, fmt.Errorf("failed to store remote actor: %w", err)
	}

	return fetched, nil
}

// Refresh re-fetches a remote profile regardless of staleness, after a
// profile-change event from its origin. Local actors are left alone.
func (d *Directory) Refresh(ctx context.Context, actorURI string) (*domain.Actor, error) {
	cached, err := d.store.ActorByURI(actorURI)
	if err != nil {
		return nil, err
	}
	if cached != nil && cached.Local {
		return cached, nil
	}

	fetched, err := d.fetch(ctx, actorURI)
	if err != nil {
		if cached != nil {
			d.log.Warn("Actor refresh failed, keeping cached copy", "actor", actorURI, "err", err)
			return cached, nil
		}
		return nil, fmt.Errorf("refresh %s: %w", actorURI, ErrNotFound)
	}
	if cached != nil {
		fetched.Id = cached.Id
	}

	if err := d.store.UpsertActor(fetched); err != nil {
		return nil, fmt.Errorf("failed to store remote actor: %w", err)
	}

	return fetched, nil
}

// fetch retrieves an actor document from its origin server.
func (d *Directory) fetch(ctx context.Context, actorURI string) (*domain.Actor, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", actorURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.UserAgent())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("actor fetch failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var actor ActorResponse
	if err := json.Unmarshal(body, &actor); err != nil {
		return nil, fmt.Errorf("failed to parse actor JSON: %w", err)
	}

	if actor.ID == "" || actor.Inbox == "" || actor.PublicKey.PublicKeyPem == "" {
		return nil, fmt.Errorf("actor missing required fields")
	}

	domainName, err := extractDomain(actor.ID)
	if err != nil {
		return nil, err
	}

	return &domain.Actor{
		Id:             uuid.New(),
		URI:            actor.ID,
		Username:       actor.PreferredUsername,
		Domain:         domainName,
		DisplayName:    actor.Name,
		Summary:        actor.Summary,
		InboxURI:       actor.Inbox,
		SharedInboxURI: actor.Endpoints.SharedInbox,
		OutboxURI:      actor.Outbox,
		FollowersURI:   actor.Followers,
		PublicKeyPem:   actor.PublicKey.PublicKeyPem,
		AvatarURL:      actor.Icon.URL,
		Local:          false,
		FetchedAt:      time.Now(),
	}, nil
}

// FetchStatus retrieves a remote status document, used to resolve the
// original of a boost. Nothing is persisted here; the caller decides.
func (d *Directory) FetchStatus(ctx context.Context, statusURI string) (*domain.Status, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", statusURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.UserAgent())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status fetch failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var obj NoteObject
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("failed to parse status JSON: %w", err)
	}

	if obj.ID == "" || obj.AttributedTo == "" {
		return nil, fmt.Errorf("status missing required fields")
	}

	st := &domain.Status{
		Id:        uuid.New(),
		URI:       obj.ID,
		ActorURI:  obj.AttributedTo,
		Kind:      domain.StatusKind(obj.Type),
		Content:   obj.Content,
		To:        obj.To,
		CC:        obj.CC,
		CreatedAt: time.Now(),
	}
	if obj.Published != "" {
		if t, err := time.Parse(time.RFC3339, obj.Published); err == nil {
			st.CreatedAt = t
		}
	}
	st.InReplyToURI = obj.InReplyTo
	for _, choice := range obj.OneOf {
		st.PollChoices = append(st.PollChoices, choice.Name)
	}
	if obj.EndTime != "" {
		if t, err := time.Parse(time.RFC3339, obj.EndTime); err == nil {
			st.PollEndsAt = &t
		}
	}
	return st, nil
}

// extractDomain extracts the domain from an actor URI
// Example: "https://mastodon.social/users/alice" -> "mastodon.social"
func extractDomain(actorURI string) (string, error) {
	parsed, err := url.Parse(actorURI)
	if err != nil {
		return "", fmt.Errorf("invalid actor URI: %w", err)
	}

	return parsed.Host, nil
}
