package federation

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/ombekk/dugong/domain"
	"github.com/ombekk/dugong/queue"
	"github.com/ombekk/dugong/util"
)

// Engine ties the distribution pipeline together and consumes jobs from
// the dispatcher. It is the single queue.Handler of the node.
type Engine struct {
	store       Storage
	directory   *Directory
	recipients  *Recipients
	classifier  *Classifier
	distributor *Distributor
	deliverer   *Deliverer
	conf        *util.AppConfig
	log         *log.Logger

	// set via Bind after the dispatcher is constructed around the engine
	dispatcher *queue.Dispatcher
}

func NewEngine(store Storage, conf *util.AppConfig, logger *log.Logger) *Engine {
	directory := NewDirectory(store, logger)
	recipients := NewRecipients(store)
	classifier := NewClassifier(store, logger)
	return &Engine{
		store:       store,
		directory:   directory,
		recipients:  recipients,
		classifier:  classifier,
		distributor: NewDistributor(store, recipients, classifier, logger),
		deliverer:   NewDeliverer(store, conf, DefaultUnreachablePolicy(), logger),
		conf:        conf,
		log:         logger,
	}
}

// Bind attaches the dispatcher the engine submits follow-on jobs to.
func (e *Engine) Bind(d *queue.Dispatcher) {
	e.dispatcher = d
}

// Directory exposes the actor directory for the HTTP layer, which needs
// it for signature verification and webfinger lookups.
func (e *Engine) Directory() *Directory {
	return e.directory
}

// Handle routes one job to its handler. The payload set is closed; a
// payload kind without a case here is a bug, logged and dropped rather
// than retried forever.
func (e *Engine) Handle(ctx context.Context, job queue.Job) error {
	switch p := job.Payload.(type) {
	case queue.IngestActivity:
		return e.ingest(ctx, p)
	case queue.PublishStatus:
		return e.publish(ctx, p.Status)
	case queue.DeliverStatus:
		return e.deliverStatus(ctx, p)
	case queue.RefreshActor:
		_, err := e.directory.Refresh(ctx, p.ActorURI)
		return err
	default:
		e.log.Warn("Dropping job with unhandled payload", "id", job.ID, "kind", job.Payload.Kind())
		return nil
	}
}

// publish persists a locally authored status, fans it out to local
// timelines and queues remote delivery. Safe to run more than once: the
// insert is keyed on the status URI and fan-out is idempotent.
func (e *Engine) publish(ctx context.Context, st domain.Status) error {
	author, err := e.store.ActorByURI(st.ActorURI)
	if err != nil {
		return err
	}
	if author == nil || !author.Local {
		return fmt.Errorf("publish: author %s is not a local actor", st.ActorURI)
	}

	if st.IsBoost() {
		if err := e.ensureOriginal(ctx, st.BoostOfURI); err != nil {
			e.log.Warn("Abandoning boost, original unavailable", "original", st.BoostOfURI, "err", err)
			return nil
		}
	}

	created, err := e.store.CreateStatus(&st)
	if err != nil {
		return err
	}
	if !created {
		e.log.Debug("Status already stored", "status", st.URI)
	}

	if err := e.distributor.Distribute(ctx, &st); err != nil {
		return err
	}

	return e.dispatcher.Submit(ctx, queue.Job{
		ID:      "deliver:" + st.URI,
		Payload: queue.DeliverStatus{StatusURI: st.URI},
	})
}

func (e *Engine) deliverStatus(ctx context.Context, p queue.DeliverStatus) error {
	st, err := e.store.StatusByURI(p.StatusURI)
	if err != nil {
		return err
	}
	if st == nil {
		// deleted between publish and delivery, nothing to push
		e.log.Debug("Status gone before delivery", "status", p.StatusURI)
		return nil
	}

	author, err := e.store.ActorByURI(st.ActorURI)
	if err != nil {
		return err
	}
	if author == nil {
		return fmt.Errorf("deliver: unknown author %s", st.ActorURI)
	}

	return e.deliverer.Deliver(ctx, st, author, p.Updated)
}

// ensureOriginal makes sure the boosted status is stored locally,
// fetching it from its origin when needed.
func (e *Engine) ensureOriginal(ctx context.Context, statusURI string) error {
	existing, err := e.store.StatusByURI(statusURI)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	original, err := e.directory.FetchStatus(ctx, statusURI)
	if err != nil {
		return err
	}
	if _, err := e.store.CreateStatus(original); err != nil {
		return err
	}
	return nil
}
