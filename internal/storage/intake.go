package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"auditx/internal"
)

const intakeColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef, subjectAuditId, auditId, matchStatus, matchConfidence, detectScore`

func scanIntakeEmail(scan func(dest ...any) error) (internal.IntakeEmailRow, error) {
	var row internal.IntakeEmailRow
	err := scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef,
		&row.SubjectAuditID, &row.AuditID, &row.MatchStatus, &row.MatchConfidence, &row.DetectScore,
	)
	return row, err
}

// UpsertIntakeEmail inserts a fetched message or refreshes its headers. The
// processing status of a known message is left alone.
func (d *DB) UpsertIntakeEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef string, status internal.IntakeStatus) (internal.IntakeEmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO intake_emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, string(status), rawRef)
	if err != nil {
		return internal.IntakeEmailRow{}, err
	}
	return d.GetIntakeEmail(provider, messageID)
}

// TagIntakeEmail records the audit ID a message names in its subject line.
func (d *DB) TagIntakeEmail(emailID int, auditID string) (internal.IntakeEmailRow, error) {
	if _, err := d.conn.Exec(`UPDATE intake_emails SET subjectAuditId = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, auditID, emailID); err != nil {
		return internal.IntakeEmailRow{}, err
	}
	return d.GetIntakeEmailByID(emailID)
}

func (d *DB) GetIntakeEmail(provider, messageID string) (internal.IntakeEmailRow, error) {
	row, err := scanIntakeEmail(d.conn.QueryRow(`SELECT `+intakeColumns+` FROM intake_emails WHERE provider = ? AND messageId = ?`, provider, messageID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return internal.IntakeEmailRow{}, fmt.Errorf("intake email %s/%s: %w", provider, messageID, ErrNotFound)
	}
	return row, err
}

func (d *DB) GetIntakeEmailByID(id int) (internal.IntakeEmailRow, error) {
	row, err := scanIntakeEmail(d.conn.QueryRow(`SELECT `+intakeColumns+` FROM intake_emails WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return internal.IntakeEmailRow{}, fmt.Errorf("intake email %d: %w", id, ErrNotFound)
	}
	return row, err
}

func (d *DB) ListIntakeEmailsByStatus(status internal.IntakeStatus, limit int) ([]internal.IntakeEmailRow, error) {
	rows, err := d.conn.Query(`SELECT `+intakeColumns+` FROM intake_emails WHERE status = ? ORDER BY receivedAt ASC, id ASC LIMIT ?`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.IntakeEmailRow
	for rows.Next() {
		row, err := scanIntakeEmail(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateIntakeStatus(emailID int, status internal.IntakeStatus) error {
	_, err := d.conn.Exec(`UPDATE intake_emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, string(status), emailID)
	return err
}

// SaveIntakeOutcome records the detection score and audit match for a
// processed message together with its final status.
func (d *DB) SaveIntakeOutcome(emailID int, status internal.IntakeStatus, detectScore float64, match *internal.MatchResult) error {
	var (
		auditID        *string
		matchStatus    *string
		confidence     *float64
		reason         *string
		candidatesJSON *string
	)
	if match != nil {
		auditID = match.AuditID
		ms := string(match.Status)
		mr := string(match.Reason)
		conf := match.Confidence
		blob, _ := json.Marshal(match.Candidates)
		cj := string(blob)
		matchStatus, reason, confidence, candidatesJSON = &ms, &mr, &conf, &cj
	}
	_, err := d.conn.Exec(`
UPDATE intake_emails SET
  status = ?, detectScore = ?, auditId = ?, matchStatus = ?, matchConfidence = ?, matchReason = ?, candidatesJson = ?,
  updatedAt = CURRENT_TIMESTAMP
WHERE id = ?
`, string(status), detectScore, auditID, matchStatus, confidence, reason, candidatesJSON, emailID)
	return err
}
