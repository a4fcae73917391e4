package db

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/ombekk/dugong/domain"
)

const (
	sqlFollowColumns = `id, actor_uri, target_uri, uri, status, inbox_uri, shared_inbox_uri, created_at`

	sqlInsertFollow = `INSERT INTO follows(id, actor_uri, target_uri, uri, status, inbox_uri, shared_inbox_uri, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	sqlSelectActiveFollow = `SELECT ` + sqlFollowColumns + ` FROM follows
		WHERE actor_uri = ? AND target_uri = ? AND status IN ('requested', 'accepted')`
	sqlSelectFollowByURI       = `SELECT ` + sqlFollowColumns + ` FROM follows WHERE uri = ?`
	sqlSelectAcceptedFollowers = `SELECT ` + sqlFollowColumns + ` FROM follows WHERE target_uri = ? AND status = 'accepted'`
	sqlSelectFollowsByInbox    = `SELECT ` + sqlFollowColumns + ` FROM follows
		WHERE status IN ('requested', 'accepted') AND (inbox_uri = ? OR shared_inbox_uri = ?)`
	sqlCountAcceptedFollow = `SELECT COUNT(1) FROM follows WHERE actor_uri = ? AND target_uri = ? AND status = 'accepted'`
	sqlUpdateFollowStatus  = `UPDATE follows SET status = ? WHERE id = ?`
	sqlUpdateFollowByURI   = `UPDATE follows SET status = ? WHERE uri = ?`
	sqlDeleteFollowByURI   = `DELETE FROM follows WHERE uri = ?`

	sqlSelectFollowerSharedInboxes = `SELECT DISTINCT COALESCE(NULLIF(shared_inbox_uri, ''), inbox_uri) FROM follows
		WHERE target_uri = ? AND status = 'accepted' AND COALESCE(NULLIF(shared_inbox_uri, ''), inbox_uri) != ''`

	sqlSelectAcceptedFollowerActors = `SELECT ` + sqlActorColumns + ` FROM actors
		WHERE uri IN (SELECT actor_uri FROM follows WHERE target_uri = ? AND status = 'accepted')`
)

func scanFollow(row interface{ Scan(...any) error }) (*domain.Follow, error) {
	var f domain.Follow
	var idStr string
	err := row.Scan(
		&idStr,
		&f.ActorURI,
		&f.TargetURI,
		&f.URI,
		&f.Status,
		&f.InboxURI,
		&f.SharedInboxURI,
		&f.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.Id, _ = uuid.Parse(idStr)
	return &f, nil
}

// CreateFollow inserts a follow edge. If an active edge already exists
// for the (actor, target) pair, the existing edge is returned instead.
func (db *DB) CreateFollow(f *domain.Follow) (*domain.Follow, error) {
	existing, err := db.ActiveFollow(f.ActorURI, f.TargetURI)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	err = db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFollow,
			f.Id.String(), f.ActorURI, f.TargetURI, f.URI,
			string(f.Status), f.InboxURI, f.SharedInboxURI, f.CreatedAt,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ActiveFollow returns the requested-or-accepted edge for the pair, or nil.
func (db *DB) ActiveFollow(actorURI, targetURI string) (*domain.Follow, error) {
	return scanFollow(db.db.QueryRow(sqlSelectActiveFollow, actorURI, targetURI))
}

// FollowByURI returns the edge created by the given Follow activity.
func (db *DB) FollowByURI(uri string) (*domain.Follow, error) {
	return scanFollow(db.db.QueryRow(sqlSelectFollowByURI, uri))
}

// IsFollowing reports whether actor has an accepted follow of target.
func (db *DB) IsFollowing(actorURI, targetURI string) (bool, error) {
	var n int
	err := db.db.QueryRow(sqlCountAcceptedFollow, actorURI, targetURI).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AcceptedFollowers returns the accepted edges pointing at target.
func (db *DB) AcceptedFollowers(targetURI string) ([]*domain.Follow, error) {
	return db.queryFollows(sqlSelectAcceptedFollowers, targetURI)
}

// AcceptedFollowerActors returns the cached actors behind the accepted
// follower edges of target. Followers without a cached actor are omitted.
func (db *DB) AcceptedFollowerActors(targetURI string) ([]*domain.Actor, error) {
	return db.queryActors(sqlSelectAcceptedFollowerActors, targetURI)
}

// FollowerSharedInboxes returns the deduplicated delivery endpoints of
// every accepted follower of target, preferring shared inboxes.
func (db *DB) FollowerSharedInboxes(targetURI string) ([]string, error) {
	rows, err := db.db.Query(sqlSelectFollowerSharedInboxes, targetURI)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inboxes []string
	for rows.Next() {
		var inbox string
		if err := rows.Scan(&inbox); err != nil {
			return inboxes, err
		}
		inboxes = append(inboxes, inbox)
	}
	return inboxes, rows.Err()
}

// FollowsByInbox returns every active edge whose delivery endpoint is the
// given inbox, used to prune follows after a permanent delivery failure.
func (db *DB) FollowsByInbox(inboxURI string) ([]*domain.Follow, error) {
	return db.queryFollows(sqlSelectFollowsByInbox, inboxURI, inboxURI)
}

// UpdateFollowStatus transitions a follow edge.
func (db *DB) UpdateFollowStatus(id uuid.UUID, status domain.FollowStatus) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateFollowStatus, string(status), id.String())
		return err
	})
}

// AcceptFollowByURI marks the follow created by the given activity URI
// as accepted, in response to a remote Accept.
func (db *DB) AcceptFollowByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateFollowByURI, string(domain.FollowAccepted), uri)
		return err
	})
}

// DeleteFollowByURI removes the follow created by the given activity URI,
// in response to a remote Undo.
func (db *DB) DeleteFollowByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollowByURI, uri)
		return err
	})
}

func (db *DB) queryFollows(query string, args ...any) ([]*domain.Follow, error) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var follows []*domain.Follow
	for rows.Next() {
		f, err := scanFollow(rows)
		if err != nil {
			return follows, err
		}
		follows = append(follows, f)
	}
	return follows, rows.Err()
}
