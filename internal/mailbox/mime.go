package mailbox

import (
	"bytes"
	"io"
	"strings"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// parseMIMEBody parses a raw RFC 2822 message using go-message and
// returns the first text/plain and text/html inline parts. Attachments
// are skipped without being read into memory.
func parseMIMEBody(raw []byte) (textBody string, htmlBody string) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// Not a parseable message; treat the whole thing as plain text.
		return string(raw), ""
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		switch {
		case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			htmlBody = string(body)
		case strings.HasPrefix(contentType, "text/plain") && textBody == "":
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			textBody = string(body)
		}
	}

	return textBody, htmlBody
}
