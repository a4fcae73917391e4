package federation

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ombekk/dugong/domain"
	"github.com/ombekk/dugong/util"
)

// UnreachablePolicy decides which low-level delivery errors mean a peer
// server is permanently gone, as opposed to transiently failing. Which
// codes belong here is policy, so callers can construct their own set.
type UnreachablePolicy struct {
	Errnos      map[syscall.Errno]bool
	DNSNotFound bool
}

// DefaultUnreachablePolicy treats refused connections, unreachable
// hosts/networks and non-temporary DNS failures as permanent. Timeouts
// and HTTP-level errors never match.
func DefaultUnreachablePolicy() UnreachablePolicy {
	return UnreachablePolicy{
		Errnos: map[syscall.Errno]bool{
			syscall.ECONNREFUSED: true,
			syscall.EHOSTUNREACH: true,
			syscall.ENETUNREACH:  true,
		},
		DNSNotFound: true,
	}
}

// Permanent classifies a delivery error.
func (p UnreachablePolicy) Permanent(err error) bool {
	if err == nil {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) && p.Errnos[errno] {
		return true
	}

	var dnsErr *net.DNSError
	if p.DNSNotFound && errors.As(err, &dnsErr) {
		return dnsErr.IsNotFound || !dnsErr.IsTemporary
	}

	return false
}

// errRemoteStatus reports a non-2xx inbox response; never permanent.
type errRemoteStatus struct {
	code int
}

func (e *errRemoteStatus) Error() string {
	return fmt.Sprintf("remote server returned status: %d", e.code)
}

// Deliverer pushes locally authored activities to remote inboxes and
// prunes follow edges pointing at permanently dead servers.
type Deliverer struct {
	store  Storage
	conf   *util.AppConfig
	client *http.Client
	policy UnreachablePolicy
	log    *log.Logger
}

func NewDeliverer(store Storage, conf *util.AppConfig, policy UnreachablePolicy, logger *log.Logger) *Deliverer {
	return &Deliverer{
		store:  store,
		conf:   conf,
		client: &http.Client{Timeout: 30 * time.Second},
		policy: policy,
		log:    logger,
	}
}

// Deliver signs and POSTs the activity wrapping the status to every
// remote inbox that must receive it: the shared inboxes of the author's
// accepted followers plus the inboxes of remote actors mentioned in the
// text. Targets are deduplicated by inbox URL and sent in parallel; one
// target's failure never blocks the others.
func (w *Deliverer) Deliver(ctx context.Context, st *domain.Status, author *domain.Actor, updated bool) error {
	if !author.Local || author.PrivateKeyPem == "" {
		return fmt.Errorf("deliver: author %s is not a local actor", author.URI)
	}

	var activity Activity
	switch {
	case st.IsBoost():
		activity = NewAnnounce(w.conf.Conf.SslDomain, st)
	case updated:
		activity = NewUpdate(w.conf.Conf.SslDomain, st)
	default:
		activity = NewCreate(w.conf.Conf.SslDomain, st)
	}

	inboxes, err := w.inboxTargets(st, author)
	if err != nil {
		return err
	}
	if len(inboxes) == 0 {
		w.log.Debug("No remote inboxes to deliver to", "status", st.URI)
		return nil
	}

	privateKey, err := ParsePrivateKey(author.PrivateKeyPem)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	body, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	keyID := fmt.Sprintf("%s#main-key", author.URI)

	var wg sync.WaitGroup
	for _, inbox := range inboxes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.send(ctx, inbox, body, privateKey, keyID); err != nil {
				w.handleFailure(inbox, err)
				return
			}
			w.log.Info("Delivered activity", "type", activity.Type, "inbox", inbox)
		}()
	}
	wg.Wait()

	return nil
}

// SendActivity signs and POSTs a single activity to a single inbox,
// used for handshake replies like Accept. The author must be local.
func (w *Deliverer) SendActivity(ctx context.Context, activity Activity, inboxURI string, author *domain.Actor) error {
	if !author.Local || author.PrivateKeyPem == "" {
		return fmt.Errorf("deliver: author %s is not a local actor", author.URI)
	}

	privateKey, err := ParsePrivateKey(author.PrivateKeyPem)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	body, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	keyID := fmt.Sprintf("%s#main-key", author.URI)
	if err := w.send(ctx, inboxURI, body, privateKey, keyID); err != nil {
		w.handleFailure(inboxURI, err)
		return err
	}
	return nil
}

// inboxTargets computes the deduplicated inbox URL set for the status.
func (w *Deliverer) inboxTargets(st *domain.Status, author *domain.Actor) ([]string, error) {
	seen := make(map[string]bool)
	var inboxes []string
	add := func(uri string) {
		if uri == "" || seen[uri] {
			return
		}
		seen[uri] = true
		inboxes = append(inboxes, uri)
	}

	shared, err := w.store.FollowerSharedInboxes(author.URI)
	if err != nil {
		return nil, err
	}
	for _, inbox := range shared {
		add(inbox)
	}

	mentioned, err := mentionedActors(w.store, st.Content)
	if err != nil {
		return nil, err
	}
	for _, actor := range mentioned {
		if actor.Local {
			continue
		}
		add(actor.InboxURI)
	}

	return inboxes, nil
}

// send signs and POSTs one activity to one inbox.
func (w *Deliverer) send(ctx context.Context, inboxURI string, body []byte, privateKey *rsa.PrivateKey, keyID string) error {
	hash := sha256.Sum256(body)
	digest := "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])

	req, err := http.NewRequestWithContext(ctx, "POST", inboxURI, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", util.UserAgent())
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", digest)

	if err := SignRequest(req, privateKey, keyID); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &errRemoteStatus{code: resp.StatusCode}
	}

	return nil
}

// handleFailure prunes follow edges behind permanently dead inboxes;
// everything else is only logged, retry is the dispatcher's concern.
func (w *Deliverer) handleFailure(inboxURI string, err error) {
	if !w.policy.Permanent(err) {
		w.log.Warn("Delivery failed", "inbox", inboxURI, "err", err)
		return
	}

	w.log.Info("Inbox permanently unreachable, rejecting its follows", "inbox", inboxURI, "err", err)

	follows, ferr := w.store.FollowsByInbox(inboxURI)
	if ferr != nil {
		w.log.Error("Failed to look up follows for dead inbox", "inbox", inboxURI, "err", ferr)
		return
	}
	for _, f := range follows {
		if uerr := w.store.UpdateFollowStatus(f.Id, domain.FollowRejected); uerr != nil {
			w.log.Error("Failed to reject follow", "follow", f.Id, "err", uerr)
		}
	}
}
