package storage

import (
	"encoding/json"

	"auditx/internal"
)

// UpsertUpload stores the latest state of an upload. emailID links uploads
// that came from an intake message.
func (d *DB) UpsertUpload(r internal.UploadRecord, emailID *int) error {
	_, err := d.conn.Exec(`
INSERT INTO uploads (id, auditId, emailId, fileName, blobName, contentType, size, status, progress, url, error, createdAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  status=excluded.status,
  progress=excluded.progress,
  url=excluded.url,
  error=excluded.error,
  updatedAt=CURRENT_TIMESTAMP
`, r.ID, r.AuditID, emailID, r.FileName, r.BlobName, r.ContentType, r.Size, string(r.Status), r.Progress, r.URL, r.Error, r.CreatedAt)
	return err
}

func (d *DB) ListUploads(auditID string) ([]internal.UploadRecord, error) {
	rows, err := d.conn.Query(`
SELECT id, auditId, fileName, blobName, COALESCE(contentType, ''), size, status, progress, COALESCE(url, ''), COALESCE(error, ''), createdAt
FROM uploads WHERE auditId = ? ORDER BY createdAt ASC, id ASC
`, auditID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.UploadRecord{}
	for rows.Next() {
		var r internal.UploadRecord
		if err := rows.Scan(&r.ID, &r.AuditID, &r.FileName, &r.BlobName, &r.ContentType, &r.Size, &r.Status, &r.Progress, &r.URL, &r.Error, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (d *DB) InsertRAGQuery(q internal.RAGQueryRecord) error {
	_, err := d.conn.Exec(`
INSERT INTO rag_queries (id, auditId, prompt, response, retrievalCount, processingMs, error, createdAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, q.ID, q.AuditID, q.Prompt, q.Response, q.RetrievalCount, q.ProcessingTimeMs, q.Error, q.CreatedAt)
	return err
}

// ListRAGQueries returns the newest queries first; an empty auditID lists
// every audit.
func (d *DB) ListRAGQueries(auditID string, limit int) ([]internal.RAGQueryRecord, error) {
	rows, err := d.conn.Query(`
SELECT id, COALESCE(auditId, ''), prompt, COALESCE(response, ''), retrievalCount, processingMs, COALESCE(error, ''), createdAt
FROM rag_queries WHERE (? = '' OR auditId = ?) ORDER BY createdAt DESC LIMIT ?
`, auditID, auditID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RAGQueryRecord
	for rows.Next() {
		var q internal.RAGQueryRecord
		if err := rows.Scan(&q.ID, &q.AuditID, &q.Prompt, &q.Response, &q.RetrievalCount, &q.ProcessingTimeMs, &q.Error, &q.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (d *DB) InsertSubmission(s internal.PartnerSubmission) error {
	filesJSON, _ := json.Marshal(s.Files)
	_, err := d.conn.Exec(`
INSERT INTO submissions (id, date, specialization, auditId, filesJson, status) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET status = excluded.status, filesJson = excluded.filesJson
`, s.ID, s.Date, s.Specialization, s.AuditID, string(filesJSON), string(s.Status))
	return err
}

// ListSubmissions returns partner submissions, newest first.
func (d *DB) ListSubmissions() ([]internal.PartnerSubmission, error) {
	rows, err := d.conn.Query(`
SELECT id, date, specialization, COALESCE(auditId, ''), filesJson, status
FROM submissions ORDER BY date DESC, createdAt DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.PartnerSubmission{}
	for rows.Next() {
		var s internal.PartnerSubmission
		var filesJSON string
		if err := rows.Scan(&s.ID, &s.Date, &s.Specialization, &s.AuditID, &filesJSON, &s.Status); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(filesJSON), &s.Files)
		if s.Files == nil {
			s.Files = []string{}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
