package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/ombekk/dugong/domain"
)

const (
	sqlInsertTimelineEntry = `INSERT OR IGNORE INTO timeline_entries(viewer_uri, timeline, status_uri, created_at)
		VALUES (?, ?, ?, ?)`

	sqlCountTimelineEntry = `SELECT COUNT(1) FROM timeline_entries WHERE viewer_uri = ? AND timeline = ? AND status_uri = ?`

	sqlSelectTimeline = `SELECT ` + sqlStatusColumns + ` FROM statuses
		WHERE uri IN (SELECT status_uri FROM timeline_entries WHERE viewer_uri = ? AND timeline = ? AND created_at < ?)
		ORDER BY created_at DESC LIMIT ?`

	sqlDeleteTimelineByStatus = `DELETE FROM timeline_entries WHERE status_uri = ?`

	sqlInsertNotification = `INSERT OR IGNORE INTO notifications(id, actor_uri, status_uri, kind, created_at)
		VALUES (?, ?, ?, ?, ?)`

	sqlSelectNotifications = `SELECT id, actor_uri, status_uri, kind, created_at FROM notifications
		WHERE actor_uri = ? ORDER BY created_at DESC LIMIT ?`

	sqlInsertPollVote = `INSERT OR IGNORE INTO poll_votes(id, status_uri, voter_uri, choice, created_at)
		VALUES (?, ?, ?, ?, ?)`

	sqlCountPollVotes = `SELECT choice, COUNT(1) FROM poll_votes WHERE status_uri = ? GROUP BY choice`
)

// InsertTimelineEntry records timeline membership. The triple is unique,
// so redundant classification work collapses to a no-op.
func (db *DB) InsertTimelineEntry(viewerURI, timeline, statusURI string, at time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertTimelineEntry, viewerURI, timeline, statusURI, at)
		return err
	})
}

// HasTimelineEntry reports whether the status is already part of the
// viewer's timeline.
func (db *DB) HasTimelineEntry(viewerURI, timeline, statusURI string) (bool, error) {
	var n int
	err := db.db.QueryRow(sqlCountTimelineEntry, viewerURI, timeline, statusURI).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Timeline returns the viewer's timeline page older than the cursor.
func (db *DB) Timeline(viewerURI, timeline string, before time.Time, limit int) ([]*domain.Status, error) {
	return db.queryStatuses(sqlSelectTimeline, viewerURI, timeline, before, limit)
}

// CreateNotification records a notification; duplicates are no-ops.
func (db *DB) CreateNotification(n *domain.Notification) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertNotification,
			n.Id.String(), n.ActorURI, n.StatusURI, n.Kind, n.CreatedAt)
		return err
	})
}

// Notifications returns the actor's recent notifications.
func (db *DB) Notifications(actorURI string, limit int) ([]*domain.Notification, error) {
	rows, err := db.db.Query(sqlSelectNotifications, actorURI, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		var n domain.Notification
		var idStr string
		if err := rows.Scan(&idStr, &n.ActorURI, &n.StatusURI, &n.Kind, &n.CreatedAt); err != nil {
			return out, err
		}
		n.Id, _ = uuid.Parse(idStr)
		out = append(out, &n)
	}
	return out, rows.Err()
}

// CreatePollVote records a vote; re-delivered votes are no-ops.
func (db *DB) CreatePollVote(v *domain.PollVote) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertPollVote,
			v.Id.String(), v.StatusURI, v.VoterURI, v.Choice, v.CreatedAt)
		return err
	})
}

// PollVoteCounts returns the per-choice tallies of a poll.
func (db *DB) PollVoteCounts(statusURI string) (map[string]int, error) {
	rows, err := db.db.Query(sqlCountPollVotes, statusURI)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var choice string
		var n int
		if err := rows.Scan(&choice, &n); err != nil {
			return counts, err
		}
		counts[choice] = n
	}
	return counts, rows.Err()
}
