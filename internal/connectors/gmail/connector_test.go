package gmail

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRaw = "Message-ID: <abc@partner.example>\r\n" +
	"From: Dana Partner <dana@partner.example>\r\n" +
	"Subject: Evidence for AUD-2026-0042\r\n" +
	"Date: Fri, 13 Feb 2026 19:20:09 +0100 (CET)\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"See attached.\r\n"

func TestDecodeBase64URL(t *testing.T) {
	raw := []byte(sampleRaw)
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding} {
		got, err := decodeBase64URL(enc.EncodeToString(raw))
		require.NoError(t, err)
		assert.Equal(t, raw, got)
	}

	_, err := decodeBase64URL("***")
	assert.Error(t, err)
}

func TestMessageFromRaw(t *testing.T) {
	now := time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC)
	msg := messageFromRaw("18d9f", []byte(sampleRaw), now)

	assert.Equal(t, "gmail", msg.Provider)
	assert.Equal(t, "<abc@partner.example>", msg.MessageID)
	assert.Equal(t, "Evidence for AUD-2026-0042", msg.Subject)
	assert.Equal(t, "Dana Partner <dana@partner.example>", msg.From)
	assert.Equal(t, "2026-02-13T18:20:09Z", msg.ReceivedAt)
}

func TestMessageFromRawWithoutHeaders(t *testing.T) {
	now := time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC)
	msg := messageFromRaw("18d9f", []byte("Subject: hi\r\n\r\nbody"), now)

	assert.Equal(t, "18d9f", msg.MessageID)
	assert.Equal(t, "2026-02-14T08:00:00Z", msg.ReceivedAt)
}

func TestMailDate(t *testing.T) {
	for _, v := range []string{
		"Fri, 13 Feb 2026 19:20:09 +0100",
		"Fri, 13 Feb 2026 19:20:09 +0100 (CET)",
		"13 Feb 2026 19:20:09 +0100",
	} {
		got, err := mailDate(v)
		require.NoError(t, err, v)
		assert.Equal(t, time.Date(2026, 2, 13, 18, 20, 9, 0, time.UTC), got.UTC())
	}
	_, err := mailDate("yesterday")
	assert.Error(t, err)
}
