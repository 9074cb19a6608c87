package connectors

import (
	"context"
	"fmt"
	"strings"

	"auditx/internal"
	"auditx/internal/config"
	"auditx/internal/connectors/gmail"
	"auditx/internal/connectors/imap"
)

// MailConnector pulls evidence submissions from a mailbox.
type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// NewMailConnector builds the connector named by INTAKE_PROVIDER.
func NewMailConnector(ctx context.Context, cfg config.Config) (MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.IntakeProvider)) {
	case "gmail", "":
		return gmail.NewConnector(ctx, cfg)
	case "imap":
		return imap.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unknown intake provider %q", cfg.IntakeProvider)
	}
}
