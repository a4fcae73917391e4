package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/ombekk/dugong/domain"
)

const (
	sqlStatusColumns = `id, uri, actor_uri, kind, content, to_json, cc_json, in_reply_to_uri, boost_of_uri, poll_choices_json, poll_ends_at, local, sensitive, created_at, edited_at`

	sqlInsertStatus = `INSERT OR IGNORE INTO statuses(id, uri, actor_uri, kind, content, to_json, cc_json, in_reply_to_uri, boost_of_uri, poll_choices_json, poll_ends_at, local, sensitive, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlSelectStatusByURI      = `SELECT ` + sqlStatusColumns + ` FROM statuses WHERE uri = ?`
	sqlSelectStatusById       = `SELECT ` + sqlStatusColumns + ` FROM statuses WHERE id = ?`
	sqlSelectPublicLocalNotes = `SELECT ` + sqlStatusColumns + ` FROM statuses WHERE local = 1 AND kind != 'Announce' AND to_json LIKE '%activitystreams#Public%' ORDER BY created_at DESC LIMIT ?`
	sqlUpdateStatusContent    = `UPDATE statuses SET content = ?, edited_at = ? WHERE uri = ?`
	sqlDeleteStatusByURI      = `DELETE FROM statuses WHERE uri = ?`
	sqlDeleteStatusesByActor  = `DELETE FROM statuses WHERE actor_uri = ?`
)

func marshalAddrs(addrs []string) string {
	if len(addrs) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(addrs)
	return string(b)
}

func unmarshalAddrs(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	json.Unmarshal([]byte(s), &out)
	return out
}

func scanStatus(row interface{ Scan(...any) error }) (*domain.Status, error) {
	var s domain.Status
	var idStr, toJSON, ccJSON, choicesJSON string
	var localInt, sensitiveInt int
	var pollEndsAt, editedAt sql.NullTime
	err := row.Scan(
		&idStr,
		&s.URI,
		&s.ActorURI,
		&s.Kind,
		&s.Content,
		&toJSON,
		&ccJSON,
		&s.InReplyToURI,
		&s.BoostOfURI,
		&choicesJSON,
		&pollEndsAt,
		&localInt,
		&sensitiveInt,
		&s.CreatedAt,
		&editedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.Id, _ = uuid.Parse(idStr)
	s.To = unmarshalAddrs(toJSON)
	s.CC = unmarshalAddrs(ccJSON)
	s.PollChoices = unmarshalAddrs(choicesJSON)
	s.Local = localInt == 1
	s.Sensitive = sensitiveInt == 1
	if pollEndsAt.Valid {
		t := pollEndsAt.Time
		s.PollEndsAt = &t
	}
	if editedAt.Valid {
		t := editedAt.Time
		s.EditedAt = &t
	}
	return &s, nil
}

// CreateStatus stores a new status. A re-delivered status with a known
// URI is a no-op; the return value reports whether a row was written.
func (db *DB) CreateStatus(s *domain.Status) (bool, error) {
	created := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		local, sensitive := 0, 0
		if s.Local {
			local = 1
		}
		if s.Sensitive {
			sensitive = 1
		}
		var pollEndsAt any
		if s.PollEndsAt != nil {
			pollEndsAt = *s.PollEndsAt
		}
		res, err := tx.Exec(sqlInsertStatus,
			s.Id.String(), s.URI, s.ActorURI, string(s.Kind), s.Content,
			marshalAddrs(s.To), marshalAddrs(s.CC),
			s.InReplyToURI, s.BoostOfURI,
			marshalAddrs(s.PollChoices), pollEndsAt,
			local, sensitive, s.CreatedAt,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		created = n > 0
		return err
	})
	return created, err
}

// StatusByURI returns the stored status, or nil when unknown.
func (db *DB) StatusByURI(uri string) (*domain.Status, error) {
	return scanStatus(db.db.QueryRow(sqlSelectStatusByURI, uri))
}

// StatusById returns the stored status by its id, or nil when unknown.
func (db *DB) StatusById(id uuid.UUID) (*domain.Status, error) {
	return scanStatus(db.db.QueryRow(sqlSelectStatusById, id.String()))
}

// PublicLocalStatuses returns recent public local notes and polls.
func (db *DB) PublicLocalStatuses(limit int) ([]*domain.Status, error) {
	return db.queryStatuses(sqlSelectPublicLocalNotes, limit)
}

// UpdateStatusContent applies a status edit.
func (db *DB) UpdateStatusContent(uri string, content string, editedAt time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateStatusContent, content, editedAt, uri)
		return err
	})
}

// DeleteStatus removes a status and its timeline entries.
func (db *DB) DeleteStatus(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlDeleteStatusByURI, uri); err != nil {
			return err
		}
		_, err := tx.Exec(sqlDeleteTimelineByStatus, uri)
		return err
	})
}

// DeleteStatusesByActor removes every status authored by the actor,
// used when a remote account is deleted.
func (db *DB) DeleteStatusesByActor(actorURI string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteStatusesByActor, actorURI)
		return err
	})
}

func (db *DB) queryStatuses(query string, args ...any) ([]*domain.Status, error) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []*domain.Status
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return statuses, err
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}
