package federation

import (
	"context"
	"testing"
	"time"

	"github.com/ombekk/dugong/domain"
)

func distributorFixture() (*Distributor, *fakeStore) {
	store := newFakeStore()
	classifier := NewClassifier(store, testLogger())
	return NewDistributor(store, NewRecipients(store), classifier, testLogger()), store
}

func TestDistributeFansOutToLocalFollowers(t *testing.T) {
	d, store := distributorFixture()

	author := store.addActor(&domain.Actor{
		URI:          "https://here.test/users/alice",
		Username:     "alice",
		Local:        true,
		FollowersURI: "https://here.test/users/alice/followers",
	})
	follower := store.addActor(&domain.Actor{
		URI:      "https://here.test/users/bob",
		Username: "bob",
		Local:    true,
	})
	stranger := store.addActor(&domain.Actor{
		URI:      "https://here.test/users/carol",
		Username: "carol",
		Local:    true,
	})
	store.addFollow(follower.URI, author.URI, domain.FollowAccepted)

	st := note("https://here.test/notes/1", author.URI)
	st.Local = true
	st.CC = []string{author.FollowersURI}
	store.CreateStatus(st)

	if err := d.Distribute(context.Background(), st); err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}

	for _, timeline := range []string{domain.TimelineHome, domain.TimelineQuiet} {
		has, _ := store.HasTimelineEntry(follower.URI, timeline, st.URI)
		if !has {
			t.Errorf("Follower should see the status in %s", timeline)
		}
	}
	has, _ := store.HasTimelineEntry(author.URI, domain.TimelineHome, st.URI)
	if !has {
		t.Error("Author should see their own status in home")
	}
	has, _ = store.HasTimelineEntry(stranger.URI, domain.TimelineHome, st.URI)
	if has {
		t.Error("Unaddressed stranger should not receive the status")
	}
}

func TestDistributeExpandsRemoteFollowersCollection(t *testing.T) {
	d, store := distributorFixture()

	remote := store.addActor(&domain.Actor{
		URI:          "https://far.test/users/bob",
		FollowersURI: "https://far.test/users/bob/followers",
	})
	localFan := store.addActor(&domain.Actor{
		URI:      "https://here.test/users/alice",
		Username: "alice",
		Local:    true,
	})
	store.addFollow(localFan.URI, remote.URI, domain.FollowAccepted)

	st := note("https://far.test/notes/1", remote.URI)
	st.CC = []string{remote.FollowersURI}
	store.CreateStatus(st)

	if err := d.Distribute(context.Background(), st); err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}

	has, _ := store.HasTimelineEntry(localFan.URI, domain.TimelineHome, st.URI)
	if !has {
		t.Error("Local follower of the remote author should see the status")
	}
}

func TestDistributeIsIdempotent(t *testing.T) {
	d, store := distributorFixture()

	author := store.addActor(&domain.Actor{
		URI:      "https://here.test/users/alice",
		Username: "alice",
		Local:    true,
	})
	st := note("https://here.test/notes/1", author.URI)
	st.To = append(st.To, author.URI)
	store.CreateStatus(st)

	for i := 0; i < 2; i++ {
		if err := d.Distribute(context.Background(), st); err != nil {
			t.Fatalf("Distribute run %d failed: %v", i, err)
		}
	}

	entries, _ := store.Timeline(author.URI, domain.TimelineHome, time.Now().Add(time.Hour), 10)
	if len(entries) != 1 {
		t.Errorf("Expected exactly 1 home entry after redistribution, got %d", len(entries))
	}
}
