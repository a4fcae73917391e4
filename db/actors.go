package db

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/ombekk/dugong/domain"
)

const (
	sqlActorColumns = `id, uri, username, domain, display_name, summary, inbox_uri, shared_inbox_uri, outbox_uri, followers_uri, public_key_pem, private_key_pem, avatar_url, local, fetched_at`

	sqlInsertActor = `INSERT INTO actors(id, uri, username, domain, display_name, summary, inbox_uri, shared_inbox_uri, outbox_uri, followers_uri, public_key_pem, private_key_pem, avatar_url, local, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	// The local = 0 guard keeps refreshed remote profiles from ever
	// touching a local identity row.
	sqlUpsertActor = `INSERT INTO actors(id, uri, username, domain, display_name, summary, inbox_uri, shared_inbox_uri, outbox_uri, followers_uri, public_key_pem, private_key_pem, avatar_url, local, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(uri) DO UPDATE SET
			username = excluded.username,
			domain = excluded.domain,
			display_name = excluded.display_name,
			summary = excluded.summary,
			inbox_uri = excluded.inbox_uri,
			shared_inbox_uri = excluded.shared_inbox_uri,
			outbox_uri = excluded.outbox_uri,
			followers_uri = excluded.followers_uri,
			public_key_pem = excluded.public_key_pem,
			avatar_url = excluded.avatar_url,
			fetched_at = excluded.fetched_at
		WHERE actors.local = 0`

	sqlSelectActorByURI          = `SELECT ` + sqlActorColumns + ` FROM actors WHERE uri = ?`
	sqlSelectActorByUsername     = `SELECT ` + sqlActorColumns + ` FROM actors WHERE username = ? AND local = 1`
	sqlSelectLocalByFollowersURI = `SELECT ` + sqlActorColumns + ` FROM actors WHERE followers_uri = ? AND local = 1`
	sqlSelectByFollowersURI      = `SELECT ` + sqlActorColumns + ` FROM actors WHERE followers_uri = ?`
	sqlSelectLocalActors         = `SELECT ` + sqlActorColumns + ` FROM actors WHERE local = 1 ORDER BY username`
	sqlDeleteActorByURI          = `DELETE FROM actors WHERE uri = ? AND local = 0`
)

func scanActor(row interface{ Scan(...any) error }) (*domain.Actor, error) {
	var a domain.Actor
	var idStr string
	var localInt int
	err := row.Scan(
		&idStr,
		&a.URI,
		&a.Username,
		&a.Domain,
		&a.DisplayName,
		&a.Summary,
		&a.InboxURI,
		&a.SharedInboxURI,
		&a.OutboxURI,
		&a.FollowersURI,
		&a.PublicKeyPem,
		&a.PrivateKeyPem,
		&a.AvatarURL,
		&localInt,
		&a.FetchedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Id, _ = uuid.Parse(idStr)
	a.Local = localInt == 1
	return &a, nil
}

// CreateActor inserts a new actor row, local or remote, as-is.
func (db *DB) CreateActor(a *domain.Actor) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		local := 0
		if a.Local {
			local = 1
		}
		_, err := tx.Exec(sqlInsertActor,
			a.Id.String(), a.URI, a.Username, a.Domain, a.DisplayName, a.Summary,
			a.InboxURI, a.SharedInboxURI, a.OutboxURI, a.FollowersURI,
			a.PublicKeyPem, a.PrivateKeyPem, a.AvatarURL, local, a.FetchedAt,
		)
		return err
	})
}

// UpsertActor inserts or refreshes a cached remote profile. Local rows
// are write-protected from this path.
func (db *DB) UpsertActor(a *domain.Actor) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertActor,
			a.Id.String(), a.URI, a.Username, a.Domain, a.DisplayName, a.Summary,
			a.InboxURI, a.SharedInboxURI, a.OutboxURI, a.FollowersURI,
			a.PublicKeyPem, a.PrivateKeyPem, a.AvatarURL, a.FetchedAt,
		)
		return err
	})
}

// ActorByURI returns the cached actor, or nil when unknown.
func (db *DB) ActorByURI(uri string) (*domain.Actor, error) {
	return scanActor(db.db.QueryRow(sqlSelectActorByURI, uri))
}

// LocalActorByUsername returns the local actor with the given username.
func (db *DB) LocalActorByUsername(username string) (*domain.Actor, error) {
	return scanActor(db.db.QueryRow(sqlSelectActorByUsername, username))
}

// LocalActorsByFollowersURI returns the local actors whose followers
// collection is addressed by uri.
func (db *DB) LocalActorsByFollowersURI(uri string) ([]*domain.Actor, error) {
	return db.queryActors(sqlSelectLocalByFollowersURI, uri)
}

// ActorsByFollowersURI returns every cached actor, local or remote,
// whose followers collection is addressed by uri.
func (db *DB) ActorsByFollowersURI(uri string) ([]*domain.Actor, error) {
	return db.queryActors(sqlSelectByFollowersURI, uri)
}

// LocalActors returns every local actor.
func (db *DB) LocalActors() ([]*domain.Actor, error) {
	return db.queryActors(sqlSelectLocalActors)
}

// DeleteRemoteActor removes a cached remote profile. Local actors are
// never deleted through this path.
func (db *DB) DeleteRemoteActor(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteActorByURI, uri)
		return err
	})
}

func (db *DB) queryActors(query string, args ...any) ([]*domain.Actor, error) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actors []*domain.Actor
	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return actors, err
		}
		actors = append(actors, a)
	}
	return actors, rows.Err()
}
