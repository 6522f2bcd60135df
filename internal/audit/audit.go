// Package audit writes an insert-only decision trail to Postgres. Each turn
// produces one row: who asked, what the guardrail decided and why, and how
// long the pipeline took. Queries are hashed so the trail carries no raw
// user text.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"admin-gateway/internal/common/errors"
	"admin-gateway/internal/common/logger"
	"admin-gateway/internal/guardrail"
)

const insertRecord = `
	INSERT INTO guardrail_audit (
		session_id, query_hash, decision, reason, bypass_reason,
		topic, intent, language, latency_ms, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// Record is one audited turn.
type Record struct {
	SessionID string
	Query     string
	Verdict   guardrail.Verdict
	Intent    string
	Language  string
	Latency   time.Duration
}

// Trail persists audit records.
type Trail struct {
	db     *sql.DB
	logger logger.Logger
}

// NewTrail builds an audit trail on an open Postgres handle. A nil handle
// disables auditing.
func NewTrail(db *sql.DB, log logger.Logger) *Trail {
	return &Trail{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "audit_trail"}),
	}
}

// Enabled reports whether a database handle is configured.
func (t *Trail) Enabled() bool {
	return t.db != nil
}

// Insert writes one record. The query text is stored as a SHA-256 hash.
func (t *Trail) Insert(ctx context.Context, rec Record) error {
	if !t.Enabled() {
		return nil
	}

	_, err := t.db.ExecContext(ctx, insertRecord,
		rec.SessionID,
		HashQuery(rec.Query),
		string(rec.Verdict.Decision),
		nullable(string(rec.Verdict.Reason)),
		nullable(string(rec.Verdict.BypassReason)),
		nullable(rec.Verdict.Topic),
		nullable(rec.Intent),
		nullable(rec.Language),
		rec.Latency.Milliseconds(),
		time.Now().UTC(),
	)
	if err != nil {
		t.logger.Error("audit insert failed", map[string]interface{}{
			"session_id": rec.SessionID,
			"error":      err.Error(),
		})
		return errors.NewAuditInsertFailedError(err)
	}
	return nil
}

// HashQuery returns the hex SHA-256 of a query.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
