package imapx

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"
)

// AttachmentPart is one non-text MIME part carried by a message.
type AttachmentPart struct {
	FileName    string
	ContentType string
	Disposition string
	Data        []byte
}

// ParsedMessage is the full fetched content of one message.
type ParsedMessage struct {
	Envelope    EnvelopeSummary
	PlainText   string
	HTML        string
	Headers     map[string]string
	Attachments []AttachmentPart
	ContentHash string
}

// Header names copied into the persisted header summary.
var keptHeaders = []string{
	"From", "To", "Cc", "Reply-To", "Date", "Subject", "Message-Id", "List-Unsubscribe",
}

// parseRawMessage fills parsed from a raw RFC 5322 body. Parsing is
// best-effort: a malformed message degrades to plain text, never an
// error, so one bad message cannot stall backfill.
func parseRawMessage(raw []byte, parsed *ParsedMessage) {
	sum := sha256.Sum256(raw)
	parsed.ContentHash = hex.EncodeToString(sum[:])

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		parsed.PlainText = string(raw)
		return
	}
	defer mr.Close()

	parsed.Headers = make(map[string]string)
	for _, name := range keptHeaders {
		if v := mr.Header.Get(name); v != "" {
			parsed.Headers[name] = v
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				if parsed.PlainText == "" {
					parsed.PlainText = string(body)
				}
			case strings.HasPrefix(contentType, "text/html"):
				if parsed.HTML == "" {
					parsed.HTML = string(body)
				}
			default:
				// Non-text inline parts (embedded images, calendar
				// invites) are kept as attachments rather than dropped.
				disposition, dispParams, _ := h.ContentDisposition()
				if disposition == "" {
					disposition = "inline"
				}
				filename := dispParams["filename"]
				if filename == "" {
					_, typeParams, _ := h.ContentType()
					filename = typeParams["name"]
				}
				parsed.Attachments = append(parsed.Attachments, AttachmentPart{
					FileName:    filename,
					ContentType: contentType,
					Disposition: disposition,
					Data:        body,
				})
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			disposition, _, _ := h.ContentDisposition()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			parsed.Attachments = append(parsed.Attachments, AttachmentPart{
				FileName:    filename,
				ContentType: contentType,
				Disposition: disposition,
				Data:        body,
			})
		}
	}
}
