package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"auditx/internal"
	"auditx/internal/config"
)

const provider = "imap"

// Connector reads evidence submissions from one IMAP mailbox. A nil tlsConfig
// means a plaintext session.
type Connector struct {
	addr      string
	tlsConfig *tls.Config
	user      string
	password  string
	markSeen  bool
	now       func() time.Time
}

func NewConnector(cfg config.Config) (*Connector, error) {
	for _, req := range [][2]string{
		{"IMAP_HOST", cfg.IMAPHost},
		{"IMAP_USER", cfg.IMAPUser},
		{"IMAP_PASSWORD", cfg.IMAPPassword},
	} {
		if err := cfg.Require(req[0], req[1]); err != nil {
			return nil, err
		}
	}

	c := &Connector{
		addr:     net.JoinHostPort(cfg.IMAPHost, strconv.Itoa(cfg.IMAPPort)),
		user:     cfg.IMAPUser,
		password: cfg.IMAPPassword,
		markSeen: cfg.IMAPMarkSeen,
		now:      time.Now,
	}
	if cfg.IMAPSecure {
		c.tlsConfig = &tls.Config{ServerName: cfg.IMAPHost, MinVersion: tls.VersionTLS12}
	}
	return c, nil
}

func (c *Connector) dial() (*imapclient.Client, error) {
	if c.tlsConfig != nil {
		return imapclient.DialTLS(c.addr, c.tlsConfig)
	}
	return imapclient.Dial(c.addr)
}

// FetchInbox downloads up to max unseen messages from the label mailbox,
// newest last. The session is closed when ctx is cancelled.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	client, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", c.addr, err)
	}
	defer client.Logout()

	stop := context.AfterFunc(ctx, func() { _ = client.Terminate() })
	defer stop()

	if err := client.Login(c.user, c.password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := client.Select(label, false); err != nil {
		return nil, fmt.Errorf("imap select %q: %w", label, err)
	}

	pending, err := unseen(client, max)
	if err != nil || pending == nil {
		return nil, err
	}

	out, fetched, err := c.download(client, pending)
	if err != nil {
		return nil, err
	}

	if c.markSeen && !fetched.Empty() {
		flags := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := client.Store(fetched, flags, []interface{}{imap.SeenFlag}, nil); err != nil {
			return nil, fmt.Errorf("imap mark seen: %w", err)
		}
	}
	return out, nil
}

// unseen returns the newest max unseen sequence numbers, or nil when the
// mailbox has nothing new.
func unseen(client *imapclient.Client, max int) (*imap.SeqSet, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if max > 0 && len(ids) > max {
		ids = ids[len(ids)-max:]
	}
	set := new(imap.SeqSet)
	set.AddNum(ids...)
	return set, nil
}

// download peeks at full message bodies so the server-side seen flag only
// changes through the explicit store afterwards. The second result holds the
// messages actually read.
func (c *Connector) download(client *imapclient.Client, set *imap.SeqSet) ([]internal.FetchedMailMessage, *imap.SeqSet, error) {
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() { done <- client.Fetch(set, items, messages) }()

	var out []internal.FetchedMailMessage
	fetched := new(imap.SeqSet)
	var readErr error
	for msg := range messages {
		if msg == nil || readErr != nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			readErr = err
			continue
		}
		out = append(out, toFetched(msg, raw, c.now()))
		fetched.AddNum(msg.SeqNum)
	}

	if err := <-done; err != nil {
		return nil, nil, fmt.Errorf("imap fetch: %w", err)
	}
	if readErr != nil {
		return nil, nil, readErr
	}
	return out, fetched, nil
}

func toFetched(msg *imap.Message, raw []byte, now time.Time) internal.FetchedMailMessage {
	messageID := ""
	subject := ""
	from := ""
	if msg.Envelope != nil {
		messageID = msg.Envelope.MessageId
		subject = msg.Envelope.Subject
		from = formatAddresses(msg.Envelope.From)
	}
	if messageID == "" {
		messageID = fmt.Sprintf("imap-%d", msg.Uid)
	}

	received := now.UTC().Format(time.RFC3339)
	if !msg.InternalDate.IsZero() {
		received = msg.InternalDate.UTC().Format(time.RFC3339)
	}

	return internal.FetchedMailMessage{
		Provider:   provider,
		MessageID:  messageID,
		Subject:    subject,
		From:       from,
		ReceivedAt: received,
		Raw:        raw,
	}
}

func formatAddresses(addrs []*imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		email := strings.Trim(strings.Join([]string{a.MailboxName, a.HostName}, "@"), "@")
		if a.PersonalName != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.PersonalName, email))
		} else {
			parts = append(parts, email)
		}
	}
	return strings.Join(parts, ", ")
}
