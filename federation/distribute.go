package federation

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ombekk/dugong/domain"
	"golang.org/x/sync/errgroup"
)

// Distributor fans a stored status out into local per-viewer timelines.
// It performs no remote network I/O.
type Distributor struct {
	store      Storage
	recipients *Recipients
	classifier *Classifier
	log        *log.Logger
}

func NewDistributor(store Storage, recipients *Recipients, classifier *Classifier, logger *log.Logger) *Distributor {
	return &Distributor{store: store, recipients: recipients, classifier: classifier, log: logger}
}

// Distribute computes the candidate local viewers of the status and runs
// every classifier rule for each of them, persisting one timeline entry
// per positive match. Inserts are idempotent, so re-running after a
// redelivered job only does redundant no-op work.
func (d *Distributor) Distribute(ctx context.Context, st *domain.Status) error {
	candidates, err := d.candidateViewers(st)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	rules := d.classifier.Rules()

	g, _ := errgroup.WithContext(ctx)
	for _, viewer := range candidates {
		for _, rule := range rules {
			g.Go(func() error {
				match, err := rule.Match(viewer, st)
				if err != nil {
					return err
				}
				if !match {
					return nil
				}
				return d.store.InsertTimelineEntry(viewer.URI, rule.Timeline, st.URI, time.Now())
			})
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}

	d.log.Debug("Distributed status", "status", st.URI, "viewers", len(candidates))
	return nil
}

// candidateViewers collects the deduplicated set of local actors the
// status is addressed to: the resolved recipients (which already expand
// locally hosted follower collections), the author when local, and the
// local followers of any remote actor whose followers collection is
// addressed; their collection address is not a concrete actor id, yet
// those followers are exactly who the sending server meant.
func (d *Distributor) candidateViewers(st *domain.Status) ([]*domain.Actor, error) {
	seen := make(map[string]bool)
	var viewers []*domain.Actor
	add := func(a *domain.Actor) {
		if a == nil || !a.Local || seen[a.URI] {
			return
		}
		seen[a.URI] = true
		viewers = append(viewers, a)
	}

	resolved, err := d.recipients.Resolve(append(st.Audience(), st.ActorURI))
	if err != nil {
		return nil, err
	}
	for _, uri := range resolved {
		if uri == domain.PublicMarker {
			continue
		}
		a, err := d.store.ActorByURI(uri)
		if err != nil {
			return nil, err
		}
		add(a)
	}

	for _, addr := range st.Audience() {
		if !strings.HasSuffix(addr, domain.FollowersSuffix) {
			continue
		}
		owners, err := d.store.ActorsByFollowersURI(addr)
		if err != nil {
			return nil, err
		}
		for _, owner := range owners {
			if owner.Local {
				continue // already expanded by the recipient resolver
			}
			followers, err := d.store.AcceptedFollowerActors(owner.URI)
			if err != nil {
				return nil, err
			}
			for _, follower := range followers {
				add(follower)
			}
		}
	}

	return viewers, nil
}
