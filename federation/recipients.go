package federation

import (
	"strings"

	"github.com/ombekk/dugong/domain"
)

// Recipients normalizes a status' addressing into the concrete list of
// actor URIs that are actually reachable. It only reads; expansion never
// touches the network.
type Recipients struct {
	store Storage
}

func NewRecipients(store Storage) *Recipients {
	return &Recipients{store: store}
}

// Resolve expands the given to/cc addresses. The public marker passes
// through and is placed first; a followers-collection address of a local
// actor expands into its accepted followers known to storage; any other
// address is kept only when it names a known actor. The result is
// deduplicated, preserving first-seen order.
func (r *Recipients) Resolve(addrs []string) ([]string, error) {
	public := false
	seen := make(map[string]bool)
	var actors []string

	add := func(uri string) {
		if uri == "" || seen[uri] {
			return
		}
		seen[uri] = true
		actors = append(actors, uri)
	}

	for _, addr := range addrs {
		switch {
		case addr == domain.PublicMarker:
			public = true

		case strings.HasSuffix(addr, domain.FollowersSuffix):
			owners, err := r.store.LocalActorsByFollowersURI(addr)
			if err != nil {
				return nil, err
			}
			if len(owners) == 0 {
				// Not a followers collection we host; fall back to the
				// plain actor lookup below.
				if known, err := r.knownActor(addr); err != nil {
					return nil, err
				} else if known {
					add(addr)
				}
				continue
			}
			for _, owner := range owners {
				followers, err := r.store.AcceptedFollowerActors(owner.URI)
				if err != nil {
					return nil, err
				}
				for _, follower := range followers {
					add(follower.URI)
				}
			}

		default:
			// Remote servers routinely address actors this node has never
			// heard of; those are silently dropped.
			known, err := r.knownActor(addr)
			if err != nil {
				return nil, err
			}
			if known {
				add(addr)
			}
		}
	}

	out := make([]string, 0, len(actors)+1)
	if public {
		out = append(out, domain.PublicMarker)
	}
	out = append(out, actors...)
	return out, nil
}

func (r *Recipients) knownActor(uri string) (bool, error) {
	a, err := r.store.ActorByURI(uri)
	if err != nil {
		return false, err
	}
	return a != nil, nil
}
