package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS documents (
  id TEXT PRIMARY KEY,
  raw_json TEXT NOT NULL,
  fetchedAt TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audits (
  id TEXT PRIMARY KEY,
  auditId TEXT NOT NULL,
  status TEXT NOT NULL,
  overallScore REAL NOT NULL,
  generatedAt TEXT,
  normalized_json TEXT NOT NULL,
  normalizedAt TEXT NOT NULL,
  FOREIGN KEY(id) REFERENCES documents(id)
);
CREATE INDEX IF NOT EXISTS idx_audits_auditId ON audits(auditId);
CREATE INDEX IF NOT EXISTS idx_audits_status ON audits(status);

CREATE TABLE IF NOT EXISTS status_overrides (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  auditId TEXT NOT NULL,
  status TEXT NOT NULL,
  previous TEXT NOT NULL,
  reviewer TEXT,
  note TEXT,
  appliedAt TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_status_overrides_auditId ON status_overrides(auditId);

CREATE TABLE IF NOT EXISTS intake_emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  subjectAuditId TEXT,
  auditId TEXT,
  matchStatus TEXT,
  matchConfidence REAL,
  matchReason TEXT,
  candidatesJson TEXT,
  detectScore REAL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS uploads (
  id TEXT PRIMARY KEY,
  auditId TEXT NOT NULL,
  emailId INTEGER,
  fileName TEXT NOT NULL,
  blobName TEXT NOT NULL,
  contentType TEXT,
  size INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  progress INTEGER NOT NULL DEFAULT 0,
  url TEXT,
  error TEXT,
  createdAt TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(emailId) REFERENCES intake_emails(id)
);
CREATE INDEX IF NOT EXISTS idx_uploads_auditId ON uploads(auditId);

CREATE TABLE IF NOT EXISTS rag_queries (
  id TEXT PRIMARY KEY,
  auditId TEXT,
  prompt TEXT NOT NULL,
  response TEXT,
  retrievalCount INTEGER NOT NULL DEFAULT 0,
  processingMs INTEGER NOT NULL DEFAULT 0,
  error TEXT,
  createdAt TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
  id TEXT PRIMARY KEY,
  date TEXT NOT NULL,
  specialization TEXT NOT NULL,
  auditId TEXT,
  filesJson TEXT NOT NULL,
  status TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  kind TEXT NOT NULL,
  emailId INTEGER,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// InsertRun records one sync or intake pass. emailID is nil for runs that
// are not tied to a message.
func (d *DB) InsertRun(traceID, kind string, emailID *int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, kind, emailId, timingsJson, countsJson) VALUES (?, ?, ?, ?, ?)`,
		traceID, kind, emailID, string(timingsJSON), string(countsJSON))
	return err
}

type RunRow struct {
	TraceID   string
	Kind      string
	EmailID   *int
	Counts    map[string]int
	CreatedAt string
}

func (d *DB) ListRuns(kind string, limit int) ([]RunRow, error) {
	rows, err := d.conn.Query(`
SELECT traceId, kind, emailId, countsJson, createdAt
FROM runs WHERE kind = ? ORDER BY id DESC LIMIT ?
`, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var row RunRow
		var countsJSON string
		if err := rows.Scan(&row.TraceID, &row.Kind, &row.EmailID, &countsJSON, &row.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(countsJSON), &row.Counts)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
