package db

import (
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/ombekk/dugong/domain"
	_ "modernc.org/sqlite"
)

// setupTestDB creates an in-memory database with the full schema.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	// a second pooled connection would see a different empty database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	db := &DB{db: sqlDB, log: log.New(io.Discard)}
	if err := db.RunMigrations(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func testActor(uri string, local bool) *domain.Actor {
	return &domain.Actor{
		Id:           uuid.New(),
		URI:          uri,
		Username:     "alice",
		Domain:       "example.com",
		InboxURI:     uri + "/inbox",
		FollowersURI: uri + "/followers",
		PublicKeyPem: "PEM",
		Local:        local,
		FetchedAt:    time.Now(),
	}
}

func testStatus(uri, actorURI string) *domain.Status {
	return &domain.Status{
		Id:        uuid.New(),
		URI:       uri,
		ActorURI:  actorURI,
		Kind:      domain.KindNote,
		Content:   "hello",
		To:        []string{domain.PublicMarker},
		CreatedAt: time.Now(),
	}
}

func TestUpsertActorNeverOverwritesLocal(t *testing.T) {
	db := setupTestDB(t)

	local := testActor("https://here.test/users/alice", true)
	local.DisplayName = "Alice"
	if err := db.CreateActor(local); err != nil {
		t.Fatalf("Failed to create local actor: %v", err)
	}

	impostor := testActor(local.URI, false)
	impostor.Id = local.Id
	impostor.DisplayName = "Mallory"
	if err := db.UpsertActor(impostor); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := db.ActorByURI(local.URI)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got.DisplayName != "Alice" {
		t.Errorf("Local actor was overwritten, got display name %q", got.DisplayName)
	}
	if !got.Local {
		t.Error("Local flag was cleared")
	}
}

func TestUpsertActorRefreshesRemote(t *testing.T) {
	db := setupTestDB(t)

	remote := testActor("https://far.test/users/bob", false)
	if err := db.CreateActor(remote); err != nil {
		t.Fatalf("Failed to create remote actor: %v", err)
	}

	updated := *remote
	updated.DisplayName = "Bob Updated"
	if err := db.UpsertActor(&updated); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, _ := db.ActorByURI(remote.URI)
	if got.DisplayName != "Bob Updated" {
		t.Errorf("Remote actor not refreshed, got %q", got.DisplayName)
	}
}

func TestActorByURIMissingReturnsNil(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.ActorByURI("https://nowhere.test/users/nobody")
	if err != nil {
		t.Fatalf("Expected nil error for missing actor, got %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil actor, got %v", got)
	}
}

func TestCreateStatusIsIdempotent(t *testing.T) {
	db := setupTestDB(t)

	st := testStatus("https://here.test/notes/1", "https://here.test/users/alice")
	created, err := db.CreateStatus(st)
	if err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if !created {
		t.Error("First insert should report created")
	}

	again := testStatus(st.URI, st.ActorURI)
	created, err = db.CreateStatus(again)
	if err != nil {
		t.Fatalf("Second insert failed: %v", err)
	}
	if created {
		t.Error("Second insert of same URI should be a no-op")
	}
}

func TestCreateFollowReturnsExistingActiveEdge(t *testing.T) {
	db := setupTestDB(t)

	first := &domain.Follow{
		Id:        uuid.New(),
		ActorURI:  "https://far.test/users/bob",
		TargetURI: "https://here.test/users/alice",
		URI:       "https://far.test/follows/1",
		Status:    domain.FollowAccepted,
		InboxURI:  "https://far.test/inbox",
		CreatedAt: time.Now(),
	}
	got, err := db.CreateFollow(first)
	if err != nil {
		t.Fatalf("First follow failed: %v", err)
	}
	if got.Id != first.Id {
		t.Error("First follow should be stored as given")
	}

	duplicate := &domain.Follow{
		Id:        uuid.New(),
		ActorURI:  first.ActorURI,
		TargetURI: first.TargetURI,
		URI:       "https://far.test/follows/2",
		Status:    domain.FollowRequested,
		CreatedAt: time.Now(),
	}
	got, err = db.CreateFollow(duplicate)
	if err != nil {
		t.Fatalf("Duplicate follow failed: %v", err)
	}
	if got.Id != first.Id {
		t.Error("Duplicate follow should return the existing active edge")
	}

	if err := db.UpdateFollowStatus(first.Id, domain.FollowRejected); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	got, err = db.CreateFollow(duplicate)
	if err != nil {
		t.Fatalf("Re-follow after rejection failed: %v", err)
	}
	if got.Id != duplicate.Id {
		t.Error("Re-follow after rejection should create a fresh edge")
	}
}

func TestFollowerSharedInboxesPrefersSharedAndDedupes(t *testing.T) {
	db := setupTestDB(t)

	target := "https://here.test/users/alice"
	follows := []*domain.Follow{
		{Id: uuid.New(), ActorURI: "https://far.test/users/a", TargetURI: target,
			URI: "f1", Status: domain.FollowAccepted,
			InboxURI: "https://far.test/users/a/inbox", SharedInboxURI: "https://far.test/inbox"},
		{Id: uuid.New(), ActorURI: "https://far.test/users/b", TargetURI: target,
			URI: "f2", Status: domain.FollowAccepted,
			InboxURI: "https://far.test/users/b/inbox", SharedInboxURI: "https://far.test/inbox"},
		{Id: uuid.New(), ActorURI: "https://other.test/users/c", TargetURI: target,
			URI: "f3", Status: domain.FollowAccepted,
			InboxURI: "https://other.test/users/c/inbox"},
		{Id: uuid.New(), ActorURI: "https://gone.test/users/d", TargetURI: target,
			URI: "f4", Status: domain.FollowRejected,
			InboxURI: "https://gone.test/users/d/inbox"},
	}
	for _, f := range follows {
		f.CreatedAt = time.Now()
		if _, err := db.CreateFollow(f); err != nil {
			t.Fatalf("Failed to create follow: %v", err)
		}
	}

	inboxes, err := db.FollowerSharedInboxes(target)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(inboxes) != 2 {
		t.Fatalf("Expected 2 distinct inboxes, got %d: %v", len(inboxes), inboxes)
	}

	seen := map[string]bool{}
	for _, inbox := range inboxes {
		seen[inbox] = true
	}
	if !seen["https://far.test/inbox"] {
		t.Error("Shared inbox should be preferred and collapsed")
	}
	if !seen["https://other.test/users/c/inbox"] {
		t.Error("Plain inbox should be used when no shared inbox exists")
	}
}

func TestTimelineEntryIsIdempotent(t *testing.T) {
	db := setupTestDB(t)

	viewer := "https://here.test/users/alice"
	status := "https://far.test/notes/1"
	now := time.Now()

	for i := 0; i < 3; i++ {
		if err := db.InsertTimelineEntry(viewer, domain.TimelineHome, status, now); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}

	has, err := db.HasTimelineEntry(viewer, domain.TimelineHome, status)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !has {
		t.Error("Entry should exist")
	}

	st := testStatus(status, "https://far.test/users/bob")
	if _, err := db.CreateStatus(st); err != nil {
		t.Fatalf("Status insert failed: %v", err)
	}

	entries, err := db.Timeline(viewer, domain.TimelineHome, time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("Timeline query failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected exactly 1 timeline entry, got %d", len(entries))
	}
}

func TestDeleteStatusRemovesTimelineEntries(t *testing.T) {
	db := setupTestDB(t)

	st := testStatus("https://far.test/notes/1", "https://far.test/users/bob")
	if _, err := db.CreateStatus(st); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	viewer := "https://here.test/users/alice"
	if err := db.InsertTimelineEntry(viewer, domain.TimelineHome, st.URI, time.Now()); err != nil {
		t.Fatalf("Timeline insert failed: %v", err)
	}

	if err := db.DeleteStatus(st.URI); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	got, _ := db.StatusByURI(st.URI)
	if got != nil {
		t.Error("Status should be gone")
	}
	has, _ := db.HasTimelineEntry(viewer, domain.TimelineHome, st.URI)
	if has {
		t.Error("Timeline entry should be gone with the status")
	}
}

func TestInsertJobDeduplicates(t *testing.T) {
	db := setupTestDB(t)

	fresh, err := db.InsertJob("ingest:abc", "ingest-activity", []byte(`{"Body":"e30="}`))
	if err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if !fresh {
		t.Error("First insert should be fresh")
	}

	fresh, err = db.InsertJob("ingest:abc", "ingest-activity", []byte(`{"Body":"e30="}`))
	if err != nil {
		t.Fatalf("Second insert failed: %v", err)
	}
	if fresh {
		t.Error("Second insert of same id should not be fresh")
	}
}

func TestJobLifecycle(t *testing.T) {
	db := setupTestDB(t)

	payload := []byte(`{"StatusURI":"https://here.test/notes/1"}`)
	if _, err := db.InsertJob("deliver:1", "deliver-status", payload); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	var got [][]byte
	err := db.ForEachPendingJob(func(id string, kind string, body []byte) error {
		if id != "deliver:1" || kind != "deliver-status" {
			t.Errorf("Unexpected pending row %s/%s", id, kind)
		}
		got = append(got, body)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachPendingJob failed: %v", err)
	}
	if len(got) != 1 || string(got[0]) != string(payload) {
		t.Fatalf("Pending rows = %q, want the stored payload", got)
	}

	if err := db.MarkJobDone("deliver:1"); err != nil {
		t.Fatalf("MarkJobDone failed: %v", err)
	}

	// done rows never replay, but still block resubmission of the id
	count := 0
	if err := db.ForEachPendingJob(func(string, string, []byte) error { count++; return nil }); err != nil {
		t.Fatalf("ForEachPendingJob failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Done job still pending, count = %d", count)
	}
	fresh, err := db.InsertJob("deliver:1", "deliver-status", payload)
	if err != nil {
		t.Fatalf("Insert after done failed: %v", err)
	}
	if fresh {
		t.Error("Done job id should stay recorded for deduplication")
	}
}

func TestDeleteJobReleasesId(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.InsertJob("publish:1", "publish-status", []byte("{}")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := db.DeleteJob("publish:1"); err != nil {
		t.Fatalf("DeleteJob failed: %v", err)
	}

	fresh, err := db.InsertJob("publish:1", "publish-status", []byte("{}"))
	if err != nil {
		t.Fatalf("Reinsert failed: %v", err)
	}
	if !fresh {
		t.Error("Deleted job id should be insertable again")
	}
}

func TestPollVoteCounts(t *testing.T) {
	db := setupTestDB(t)

	poll := "https://here.test/notes/poll"
	votes := []*domain.PollVote{
		{Id: uuid.New(), StatusURI: poll, VoterURI: "v1", Choice: "tea"},
		{Id: uuid.New(), StatusURI: poll, VoterURI: "v2", Choice: "tea"},
		{Id: uuid.New(), StatusURI: poll, VoterURI: "v3", Choice: "coffee"},
		// replay of v1's vote must not count twice
		{Id: uuid.New(), StatusURI: poll, VoterURI: "v1", Choice: "tea"},
	}
	for _, v := range votes {
		v.CreatedAt = time.Now()
		if err := db.CreatePollVote(v); err != nil {
			t.Fatalf("Vote failed: %v", err)
		}
	}

	counts, err := db.PollVoteCounts(poll)
	if err != nil {
		t.Fatalf("Count query failed: %v", err)
	}
	if counts["tea"] != 2 {
		t.Errorf("Expected 2 tea votes, got %d", counts["tea"])
	}
	if counts["coffee"] != 1 {
		t.Errorf("Expected 1 coffee vote, got %d", counts["coffee"])
	}
}

func TestNotificationUniquePerActorAndStatus(t *testing.T) {
	db := setupTestDB(t)

	n := &domain.Notification{
		Id:        uuid.New(),
		ActorURI:  "https://far.test/users/bob",
		StatusURI: "https://here.test/notes/1",
		Kind:      "mention",
		CreatedAt: time.Now(),
	}
	if err := db.CreateNotification(n); err != nil {
		t.Fatalf("First notification failed: %v", err)
	}
	n2 := *n
	n2.Id = uuid.New()
	if err := db.CreateNotification(&n2); err != nil {
		t.Fatalf("Duplicate notification should be a no-op, got: %v", err)
	}

	list, err := db.Notifications(n.ActorURI, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected 1 notification, got %d", len(list))
	}
}
