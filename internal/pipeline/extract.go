package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"auditx/internal"
	"auditx/internal/util"
)

const (
	KindPDF  = "pdf"
	KindXLSX = "xlsx"
	KindHTML = "html"
	KindEML  = "eml"
	KindText = "text"
)

// ErrUnsupportedEvidence is returned for evidence that is stored but has no
// text to index (images, archives, office formats without a reader).
var ErrUnsupportedEvidence = errors.New("unsupported evidence format")

var ignorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^--+$`),
	regexp.MustCompile(`(?i)^thanks`),
	regexp.MustCompile(`(?i)^(best|kind) regards`),
	regexp.MustCompile(`(?i)^sent from my`),
	regexp.MustCompile(`(?i)^(tel|phone|mobile)[:\s]`),
	regexp.MustCompile(`^>`),
}

type EvidenceMessage struct {
	Subject     string
	From        string
	Text        string
	HTML        string
	Attachments []internal.EvidenceFile
}

func (m EvidenceMessage) AttachmentNames() []string {
	out := make([]string, 0, len(m.Attachments))
	for _, att := range m.Attachments {
		out = append(out, att.Name)
	}
	return out
}

// EvidenceText is the plain text pulled out of one evidence file.
type EvidenceText struct {
	FileName string
	Kind     string
	Text     string
}

func ParseEvidenceEmail(raw []byte) (EvidenceMessage, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return EvidenceMessage{}, err
	}

	msg := EvidenceMessage{
		Subject: env.GetHeader("Subject"),
		From:    env.GetHeader("From"),
		Text:    env.Text,
		HTML:    env.HTML,
	}
	for i, att := range env.Attachments {
		name := strings.TrimSpace(att.FileName)
		if name == "" {
			name = fmt.Sprintf("attachment-%d", i+1)
		}
		msg.Attachments = append(msg.Attachments, internal.EvidenceFile{
			Name:        name,
			ContentType: att.ContentType,
			Content:     att.Content,
		})
	}
	return msg, nil
}

// BodyText returns the message body without quoted replies and signature
// noise, falling back to the HTML part when there is no plain text.
func (m EvidenceMessage) BodyText() string {
	text := m.Text
	if strings.TrimSpace(text) == "" && m.HTML != "" {
		text = htmlText(m.HTML)
	}
	lines := []string{}
	for _, line := range splitLines(text) {
		if isLikelyNoise(line) {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func EvidenceKind(fileName, contentType string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".pdf":
		return KindPDF
	case ".xlsx", ".xlsm":
		return KindXLSX
	case ".html", ".htm":
		return KindHTML
	case ".eml":
		return KindEML
	case ".txt", ".md", ".csv", ".json", ".log", ".yaml", ".yml":
		return KindText
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/pdf":
		return KindPDF
	case mediaType == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return KindXLSX
	case mediaType == "text/html":
		return KindHTML
	case mediaType == "message/rfc822":
		return KindEML
	case strings.HasPrefix(mediaType, "text/"):
		return KindText
	}
	return ""
}

func ExtractEvidenceText(fileName, contentType string, content []byte) (EvidenceText, error) {
	out := EvidenceText{FileName: fileName, Kind: EvidenceKind(fileName, contentType)}

	var (
		text string
		err  error
	)
	switch out.Kind {
	case KindPDF:
		text, err = pdfText(content)
	case KindXLSX:
		text, err = xlsxText(content)
	case KindHTML:
		text = htmlText(string(content))
	case KindEML:
		text, err = emlText(content)
	case KindText:
		text = strings.Join(splitLines(string(content)), "\n")
	default:
		return out, fmt.Errorf("%s: %w", fileName, ErrUnsupportedEvidence)
	}
	if err != nil {
		return out, fmt.Errorf("extract %s: %w", fileName, err)
	}
	out.Text = text
	return out, nil
}

func pdfText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	lines := []string{}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		lines = append(lines, splitLines(text)...)
	}
	return strings.Join(lines, "\n"), nil
}

func xlsxText(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	defer f.Close()

	lines := []string{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		lines = append(lines, "## "+sheet)
		for _, row := range rows {
			cells := normalizeCells(row)
			if len(cells) == 0 {
				continue
			}
			lines = append(lines, strings.Join(cells, " | "))
		}
	}
	return strings.Join(lines, "\n"), nil
}

// htmlText renders headings, paragraphs, list items and table rows one per
// line; table cells are joined with " | ".
func htmlText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script,style,head").Remove()

	lines := []string{}
	doc.Find("h1,h2,h3,h4,p,li,tr").Each(func(_ int, sel *goquery.Selection) {
		if goquery.NodeName(sel) == "tr" {
			cells := []string{}
			sel.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.NormalizeSpaces(cell.Text()))
			})
			if row := strings.Join(cells, " | "); strings.Trim(row, " |") != "" {
				lines = append(lines, row)
			}
			return
		}
		if sel.Closest("table").Length() > 0 {
			return
		}
		if text := util.NormalizeSpaces(sel.Text()); text != "" {
			lines = append(lines, text)
		}
	})
	if len(lines) == 0 {
		return util.NormalizeSpaces(doc.Text())
	}
	return strings.Join(lines, "\n")
}

// emlText flattens a forwarded message: its body followed by the text of
// any attachments that have a reader. Nested messages are not descended.
func emlText(content []byte) (string, error) {
	msg, err := ParseEvidenceEmail(content)
	if err != nil {
		return "", err
	}
	parts := []string{}
	if msg.Subject != "" {
		parts = append(parts, "Subject: "+msg.Subject)
	}
	if body := msg.BodyText(); body != "" {
		parts = append(parts, body)
	}
	for _, att := range msg.Attachments {
		kind := EvidenceKind(att.Name, att.ContentType)
		if kind == "" || kind == KindEML {
			continue
		}
		extracted, err := ExtractEvidenceText(att.Name, att.ContentType, att.Content)
		if err != nil || extracted.Text == "" {
			continue
		}
		parts = append(parts, "## "+att.Name, extracted.Text)
	}
	return strings.Join(parts, "\n"), nil
}

func splitLines(text string) []string {
	parts := util.SplitLines(text)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isLikelyNoise(line string) bool {
	for _, re := range ignorePatterns {
		if re.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		if c = util.NormalizeSpaces(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
