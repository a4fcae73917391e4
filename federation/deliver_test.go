package federation

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"syscall"
	"testing"

	"github.com/ombekk/dugong/domain"
	"github.com/ombekk/dugong/util"
)

func testKeypair(t *testing.T) (string, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	private := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	public := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
	})
	return string(private), string(public)
}

func testConf() *util.AppConfig {
	conf := &util.AppConfig{}
	conf.Conf.SslDomain = "here.test"
	conf.Conf.WithAp = true
	return conf
}

func localAuthor(t *testing.T, store *fakeStore) *domain.Actor {
	t.Helper()
	private, public := testKeypair(t)
	return store.addActor(&domain.Actor{
		URI:           "https://here.test/users/alice",
		Username:      "alice",
		Domain:        "here.test",
		FollowersURI:  "https://here.test/users/alice/followers",
		PublicKeyPem:  public,
		PrivateKeyPem: private,
		Local:         true,
	})
}

func TestDeliverDeduplicatesSharedInboxes(t *testing.T) {
	var mu sync.Mutex
	hits := map[string]int{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		if r.Header.Get("Signature") == "" {
			t.Error("Delivery must be signed")
		}
		if r.Header.Get("Digest") == "" {
			t.Error("Delivery must carry a digest")
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	store := newFakeStore()
	author := localAuthor(t, store)

	// two followers on the same server share one inbox
	sharedInbox := server.URL + "/inbox"
	for i := 0; i < 2; i++ {
		follower := store.addActor(&domain.Actor{
			URI:            fmt.Sprintf("https://far.test/users/f%d", i),
			InboxURI:       fmt.Sprintf("%s/users/f%d/inbox", server.URL, i),
			SharedInboxURI: sharedInbox,
		})
		store.addFollow(follower.URI, author.URI, domain.FollowAccepted)
	}
	// a mentioned remote actor on another path
	mentioned := store.addActor(&domain.Actor{
		URI:      "https://other.test/users/bob",
		InboxURI: server.URL + "/users/bob/inbox",
	})

	st := note("https://here.test/notes/1", author.URI)
	st.Local = true
	st.Content = fmt.Sprintf("hey [bob](%s)", mentioned.URI)

	w := NewDeliverer(store, testConf(), DefaultUnreachablePolicy(), testLogger())
	if err := w.Deliver(context.Background(), st, author, false); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if hits["/inbox"] != 1 {
		t.Errorf("Shared inbox should be POSTed exactly once, got %d", hits["/inbox"])
	}
	if hits["/users/bob/inbox"] != 1 {
		t.Errorf("Mentioned actor's inbox should be POSTed once, got %d", hits["/users/bob/inbox"])
	}
	total := 0
	for _, n := range hits {
		total += n
	}
	if total != 2 {
		t.Errorf("Expected 2 deliveries, got %d: %v", total, hits)
	}
}

func TestDeliverServerErrorKeepsFollows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := newFakeStore()
	author := localAuthor(t, store)
	follower := store.addActor(&domain.Actor{
		URI:      "https://far.test/users/bob",
		InboxURI: server.URL + "/inbox",
	})
	follow := store.addFollow(follower.URI, author.URI, domain.FollowAccepted)

	st := note("https://here.test/notes/1", author.URI)
	st.Local = true

	w := NewDeliverer(store, testConf(), DefaultUnreachablePolicy(), testLogger())
	if err := w.Deliver(context.Background(), st, author, false); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if follow.Status != domain.FollowAccepted {
		t.Errorf("HTTP-level failure must not reject follows, got %s", follow.Status)
	}
}

func TestDeliverConnectionRefusedRejectsFollows(t *testing.T) {
	// grab a port nobody listens on
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	deadInbox := fmt.Sprintf("http://%s/inbox", listener.Addr().String())
	listener.Close()

	store := newFakeStore()
	author := localAuthor(t, store)
	follower := store.addActor(&domain.Actor{
		URI:      "https://far.test/users/bob",
		InboxURI: deadInbox,
	})
	follow := store.addFollow(follower.URI, author.URI, domain.FollowAccepted)

	st := note("https://here.test/notes/1", author.URI)
	st.Local = true

	w := NewDeliverer(store, testConf(), DefaultUnreachablePolicy(), testLogger())
	if err := w.Deliver(context.Background(), st, author, false); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if follow.Status != domain.FollowRejected {
		t.Errorf("Connection refused should reject the follow edge, got %s", follow.Status)
	}
}

func TestDeliverRefusesNonLocalAuthor(t *testing.T) {
	store := newFakeStore()
	remote := store.addActor(&domain.Actor{URI: "https://far.test/users/bob"})

	st := note("https://far.test/notes/1", remote.URI)
	w := NewDeliverer(store, testConf(), DefaultUnreachablePolicy(), testLogger())
	if err := w.Deliver(context.Background(), st, remote, false); err == nil {
		t.Error("Delivering on behalf of a remote actor must fail")
	}
}

func TestUnreachablePolicyClassification(t *testing.T) {
	policy := DefaultUnreachablePolicy()

	cases := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"nil", nil, false},
		{"refused", &net.OpError{Err: syscall.ECONNREFUSED}, true},
		{"host unreachable", &net.OpError{Err: syscall.EHOSTUNREACH}, true},
		{"reset", &net.OpError{Err: syscall.ECONNRESET}, false},
		{"dns not found", &net.DNSError{IsNotFound: true}, true},
		{"dns temporary", &net.DNSError{IsTemporary: true}, false},
		{"http 500", &errRemoteStatus{code: 500}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := policy.Permanent(tc.err); got != tc.permanent {
			t.Errorf("%s: Permanent = %v, want %v", tc.name, got, tc.permanent)
		}
	}

	custom := UnreachablePolicy{Errnos: map[syscall.Errno]bool{syscall.ECONNRESET: true}}
	if !custom.Permanent(&net.OpError{Err: syscall.ECONNRESET}) {
		t.Error("Custom policy should honor its own errno set")
	}
	if custom.Permanent(&net.DNSError{IsNotFound: true}) {
		t.Error("Custom policy without DNSNotFound should ignore DNS errors")
	}

	if policy.Permanent(context.DeadlineExceeded) {
		t.Error("Timeouts are transient")
	}
}
