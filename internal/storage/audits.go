package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"auditx/internal"
)

// SaveSyncedAudits writes the raw documents and their normalized view models
// in one transaction. Documents without a normalized value only refresh the
// raw copy.
func (d *DB) SaveSyncedAudits(docs []internal.StoredDocument) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	docStmt, err := tx.Prepare(`
INSERT INTO documents (id, raw_json, fetchedAt) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET raw_json = excluded.raw_json, fetchedAt = excluded.fetchedAt
`)
	if err != nil {
		return err
	}
	defer docStmt.Close()

	auditStmt, err := tx.Prepare(`
INSERT INTO audits (id, auditId, status, overallScore, generatedAt, normalized_json, normalizedAt)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  auditId=excluded.auditId,
  status=excluded.status,
  overallScore=excluded.overallScore,
  generatedAt=excluded.generatedAt,
  normalized_json=excluded.normalized_json,
  normalizedAt=excluded.normalizedAt
`)
	if err != nil {
		return err
	}
	defer auditStmt.Close()

	for _, doc := range docs {
		if _, err := docStmt.Exec(doc.ID, string(doc.Raw), doc.FetchedAt); err != nil {
			return fmt.Errorf("save document %s: %w", doc.ID, err)
		}
		if doc.Normalized == nil {
			continue
		}
		if err := execAudit(auditStmt, *doc.Normalized); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ReplaceAudit stores a new view model for an audit that already exists.
func (d *DB) ReplaceAudit(a internal.NormalizedAudit) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	res, err := d.conn.Exec(`
UPDATE audits SET status = ?, overallScore = ?, normalized_json = ?, normalizedAt = ? WHERE id = ?
`, string(a.Status), a.OverallScore, string(payload), a.NormalizedAt, a.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("audit %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

func execAudit(stmt *sql.Stmt, a internal.NormalizedAudit) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(a.ID, a.AuditID, string(a.Status), a.OverallScore, a.GeneratedAt, string(payload), a.NormalizedAt)
	if err != nil {
		return fmt.Errorf("save audit %s: %w", a.ID, err)
	}
	return nil
}

// ListAudits returns normalized audits, newest first. An empty status or
// "all" returns every audit.
func (d *DB) ListAudits(status string) ([]internal.NormalizedAudit, error) {
	query := `SELECT normalized_json FROM audits`
	args := []any{}
	if status != "" && status != "all" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY generatedAt DESC, id ASC`

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.NormalizedAudit{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var a internal.NormalizedAudit
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAudit looks an audit up by document id first, then by auditId.
func (d *DB) GetAudit(id string) (internal.NormalizedAudit, error) {
	var payload string
	err := d.conn.QueryRow(`
SELECT normalized_json FROM audits WHERE id = ? OR auditId = ?
ORDER BY CASE WHEN id = ? THEN 0 ELSE 1 END LIMIT 1
`, id, id, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return internal.NormalizedAudit{}, fmt.Errorf("audit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return internal.NormalizedAudit{}, err
	}
	var a internal.NormalizedAudit
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return internal.NormalizedAudit{}, err
	}
	return a, nil
}

func (d *DB) GetDocument(id string) (internal.StoredDocument, error) {
	var doc internal.StoredDocument
	var raw string
	err := d.conn.QueryRow(`SELECT id, raw_json, fetchedAt FROM documents WHERE id = ?`, id).Scan(&doc.ID, &raw, &doc.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return internal.StoredDocument{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return internal.StoredDocument{}, err
	}
	doc.Raw = json.RawMessage(raw)
	return doc, nil
}

type StatusOverrideRow struct {
	AuditID  string
	Status   internal.AuditStatus
	Override internal.StatusOverride
}

func (d *DB) InsertStatusOverride(auditID string, status internal.AuditStatus, o internal.StatusOverride) error {
	_, err := d.conn.Exec(`
INSERT INTO status_overrides (auditId, status, previous, reviewer, note, appliedAt) VALUES (?, ?, ?, ?, ?, ?)
`, auditID, string(status), string(o.Previous), o.Reviewer, o.Note, o.AppliedAt)
	return err
}

// LatestStatusOverrides returns the most recent override per audit.
func (d *DB) LatestStatusOverrides() (map[string]StatusOverrideRow, error) {
	rows, err := d.conn.Query(`
SELECT s.auditId, s.status, s.previous, COALESCE(s.reviewer, ''), COALESCE(s.note, ''), s.appliedAt
FROM status_overrides s
JOIN (SELECT auditId, MAX(id) AS maxId FROM status_overrides GROUP BY auditId) latest
  ON latest.maxId = s.id
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]StatusOverrideRow{}
	for rows.Next() {
		var row StatusOverrideRow
		if err := rows.Scan(&row.AuditID, &row.Status, &row.Override.Previous, &row.Override.Reviewer, &row.Override.Note, &row.Override.AppliedAt); err != nil {
			return nil, err
		}
		out[row.AuditID] = row
	}
	return out, rows.Err()
}
