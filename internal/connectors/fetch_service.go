package connectors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"auditx/internal"
	"auditx/internal/metrics"
	"auditx/internal/storage"
)

const untaggedMailDir = "general"

var subjectAuditPattern = regexp.MustCompile(`(?i)\bAUD-\d{4}-\d{3,}\b`)

// SubjectAuditID returns the first audit identifier named in a subject line,
// upper-cased, or "".
func SubjectAuditID(subject string) string {
	return strings.ToUpper(subjectAuditPattern.FindString(subject))
}

// FetchService pulls messages from a connector, keeps the raw copy on disk
// under the audit the subject names and records each message for intake.
type FetchService struct {
	db         *storage.DB
	connector  MailConnector
	rawMailDir string
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// FetchResult counts messages seen, stored and new to the intake table.
// Tagged counts stored messages whose subject names an audit. Pending lists
// new messages awaiting processing.
type FetchResult struct {
	Fetched int
	Stored  int
	New     int
	Tagged  int
	Pending []internal.IntakeEmailRow
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, logger *zap.Logger, m *metrics.Metrics) *FetchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FetchService{db: db, connector: connector, rawMailDir: rawMailDir, logger: logger, metrics: m}
}

func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	result := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		_, lookupErr := s.db.GetIntakeEmail(msg.Provider, msg.MessageID)
		isNew := errors.Is(lookupErr, storage.ErrNotFound)
		if lookupErr != nil && !isNew {
			return result, lookupErr
		}

		row, err := s.store(msg)
		if err != nil {
			return result, err
		}
		result.Stored++
		if row.SubjectAuditID != nil {
			result.Tagged++
		}
		if isNew {
			result.New++
			result.Pending = append(result.Pending, row)
			s.metrics.IncIntake(string(internal.IntakeFetched))
		}
	}

	s.logger.Info("intake fetch complete",
		zap.String("label", label),
		zap.Int("count", result.Fetched),
		zap.Int("new", result.New),
		zap.Int("tagged", result.Tagged),
	)
	return result, nil
}

// store writes the raw message once per content hash into
// {rawMailDir}/{auditId|general}/ and upserts its intake row.
func (s *FetchService) store(msg internal.FetchedMailMessage) (internal.IntakeEmailRow, error) {
	sum := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(sum[:])

	auditID := SubjectAuditID(msg.Subject)
	dir := untaggedMailDir
	if auditID != "" {
		dir = auditID
	}
	rawPath := filepath.Join(s.rawMailDir, dir, hash+".eml")
	if err := os.MkdirAll(filepath.Dir(rawPath), 0o755); err != nil {
		return internal.IntakeEmailRow{}, err
	}
	if _, err := os.Stat(rawPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return internal.IntakeEmailRow{}, err
		}
	}

	row, err := s.db.UpsertIntakeEmail(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, rawPath, internal.IntakeFetched)
	if err != nil || auditID == "" {
		return row, err
	}
	return s.db.TagIntakeEmail(row.ID, auditID)
}
