package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActorStaleAfter is how long a cached remote profile stays fresh before
// the directory refreshes it on next reference.
const ActorStaleAfter = 30 * 24 * time.Hour

// Actor is a federated identity, local or remote. Local actors carry a
// private key and are marked with Local; their cached copy is never
// overwritten from the network.
type Actor struct {
	Id             uuid.UUID
	URI            string
	Username       string
	Domain         string
	DisplayName    string
	Summary        string
	InboxURI       string
	SharedInboxURI string
	OutboxURI      string
	FollowersURI   string
	PublicKeyPem   string
	PrivateKeyPem  string
	AvatarURL      string
	Local          bool
	FetchedAt      time.Time
}

func (a *Actor) Handle() string {
	return fmt.Sprintf("%s@%s", a.Username, a.Domain)
}

// DeliveryInbox is the endpoint outbound activities should be POSTed to,
// preferring the server-wide shared inbox when the actor advertises one.
func (a *Actor) DeliveryInbox() string {
	if a.SharedInboxURI != "" {
		return a.SharedInboxURI
	}
	return a.InboxURI
}

// Stale reports whether the cached copy should be refreshed from the
// network. Local actors are never stale.
func (a *Actor) Stale(now time.Time) bool {
	if a.Local {
		return false
	}
	return now.Sub(a.FetchedAt) >= ActorStaleAfter
}
