package queue

import (
	"encoding/json"
	"fmt"

	"github.com/ombekk/dugong/domain"
)

// Payload is the closed set of job kinds. Adding a kind means adding a
// variant here and a case to the handler's switch, so a missing handler
// is caught at review time instead of at runtime string lookup.
type Payload interface {
	Kind() string
}

// IngestActivity carries a raw inbound activity whose signature has
// already been verified, plus the verified sender.
type IngestActivity struct {
	Body     []byte
	ActorURI string
}

func (IngestActivity) Kind() string { return "ingest-activity" }

// PublishStatus carries a locally authored status to persist, fan out
// and push to remote followers.
type PublishStatus struct {
	Status domain.Status
}

func (PublishStatus) Kind() string { return "publish-status" }

// DeliverStatus pushes an already-stored local status to remote inboxes.
type DeliverStatus struct {
	StatusURI string
	Updated   bool
}

func (DeliverStatus) Kind() string { return "deliver-status" }

// RefreshActor re-resolves a remote profile after a profile-change event.
type RefreshActor struct {
	ActorURI string
}

func (RefreshActor) Kind() string { return "refresh-actor" }

// decodePayload rebuilds a stored payload from its kind tag, the inverse
// of the json encoding Submit writes to the ledger.
func decodePayload(kind string, data []byte) (Payload, error) {
	switch kind {
	case IngestActivity{}.Kind():
		var p IngestActivity
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case PublishStatus{}.Kind():
		var p PublishStatus
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case DeliverStatus{}.Kind():
		var p DeliverStatus
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case RefreshActor{}.Kind():
		var p RefreshActor
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown payload kind %q", kind)
	}
}
