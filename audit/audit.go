// Package audit writes a best-effort row to a Postgres audit table for every
// job's terminal outcome (spec §10.6 Audit Log Store). Grounded on
// handlers/analytics/user_end.go's nil-db-means-noop posture and raw
// positional-placeholder insert style, re-targeted at job outcomes instead
// of USER_END trigger events.
package audit

import (
	"database/sql"
	"time"

	"github.com/archivekit/vaultline/config"
	"github.com/archivekit/vaultline/log"
	_ "github.com/lib/pq"
)

const tableName = "job_audit_log"

// Store records job outcomes. A nil db (AUDIT_DB_DSN unset, spec §6) makes
// every method a no-op, the same degrade-gracefully posture the teacher's
// analytics handler takes when no DB is configured.
type Store struct {
	db *sql.DB
}

// Open connects to the audit database named by dsn. An empty dsn returns a
// Store with no backing connection; callers do not need to branch on
// whether auditing is configured.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return &Store{}, nil
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Record is one terminal or intermediate job event: task id, channel, phase
// reached, outcome, error detail if any.
type Record struct {
	TaskID    string
	Channel   string
	Phase     string
	Outcome   string
	Detail    string
	Timestamp time.Time
}

// Write inserts a Record. Failures are logged and swallowed: audit logging
// must never fail a job (spec §10.6 "best-effort").
func (s *Store) Write(rec Record) {
	if s == nil || s.db == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.LogNoRequestID("panic writing audit record", "task_id", rec.TaskID, "recover", r)
		}
	}()

	insert := `insert into "` + tableName + `" (
		"task_id",
		"channel",
		"phase",
		"outcome",
		"detail",
		"timestamp_ms"
	) values ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.Exec(
		insert,
		rec.TaskID,
		rec.Channel,
		rec.Phase,
		rec.Outcome,
		rec.Detail,
		timestampMs(rec),
	)
	if err != nil {
		log.LogNoRequestID("error writing audit record", "task_id", rec.TaskID, "err", err.Error())
	}
}

func timestampMs(rec Record) int64 {
	if rec.Timestamp.IsZero() {
		return config.Clock.GetTime().UnixMilli()
	}
	return rec.Timestamp.UnixMilli()
}

// Close releases the underlying connection, if any.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
