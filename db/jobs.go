package db

import (
	"database/sql"
	"time"
)

const (
	sqlInsertJob         = `INSERT OR IGNORE INTO jobs(id, kind, payload, done, created_at) VALUES (?, ?, ?, 0, ?)`
	sqlDeleteJob         = `DELETE FROM jobs WHERE id = ?`
	sqlMarkJobDone       = `UPDATE jobs SET done = 1 WHERE id = ?`
	sqlSelectPendingJobs = `SELECT id, kind, payload FROM jobs WHERE done = 0 ORDER BY created_at ASC`
)

// InsertJob records a job's deduplication id together with its encoded
// payload. It returns false when the id was already seen, signalling the
// dispatcher to drop the duplicate.
func (db *DB) InsertJob(id string, kind string, payload []byte) (bool, error) {
	inserted := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlInsertJob, id, kind, payload, time.Now())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		inserted = n > 0
		return err
	})
	return inserted, err
}

// DeleteJob releases a deduplication id whose job never made it into the
// worker channel, so a later submit of the same id goes through.
func (db *DB) DeleteJob(id string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteJob, id)
		return err
	})
}

// MarkJobDone retires a handled job. The row stays as the deduplication
// record but is no longer replayed on startup.
func (db *DB) MarkJobDone(id string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlMarkJobDone, id)
		return err
	})
}

// ForEachPendingJob visits every job accepted but not yet marked done,
// oldest first. Rows are read out fully before fn runs, so fn may block
// without holding a transaction open.
func (db *DB) ForEachPendingJob(fn func(id string, kind string, payload []byte) error) error {
	type pendingJob struct {
		id      string
		kind    string
		payload []byte
	}
	var pending []pendingJob

	err := db.wrapTransaction(func(tx *sql.Tx) error {
		rows, err := tx.Query(sqlSelectPendingJobs)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var p pendingJob
			if err := rows.Scan(&p.id, &p.kind, &p.payload); err != nil {
				return err
			}
			pending = append(pending, p)
		}
		return rows.Err()
	})
	if err != nil {
		return err
	}

	for _, p := range pending {
		if err := fn(p.id, p.kind, p.payload); err != nil {
			return err
		}
	}
	return nil
}
