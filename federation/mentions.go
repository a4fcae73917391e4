package federation

import (
	"github.com/ombekk/dugong/domain"
	"github.com/ombekk/dugong/util"
)

// mentionsActor reports whether the rendered text directly references
// the actor's canonical profile URL.
func mentionsActor(content string, actorURI string) bool {
	return util.ContainsLink(content, actorURI)
}

// mentionedActors resolves every link in the text that names a known
// actor. Links to anything else are ignored.
func mentionedActors(store Storage, content string) ([]*domain.Actor, error) {
	var out []*domain.Actor
	seen := make(map[string]bool)
	for _, link := range util.ExtractLinks(content) {
		if seen[link] {
			continue
		}
		seen[link] = true
		a, err := store.ActorByURI(link)
		if err != nil {
			return nil, err
		}
		if a != nil {
			out = append(out, a)
		}
	}
	return out, nil
}
