package mailtext

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// Envelope is everything needed to build one outbound message
type Envelope struct {
	FromName   string
	From       string
	ToName     string
	To         string
	Subject    string
	TextBody   string
	HTMLBody   string
	InReplyTo  string
	References string // space separated message ids
	Date       time.Time
}

// Compose builds a multipart/alternative message and returns it together with
// the Message-ID it was given (without angle brackets).
func Compose(env Envelope) ([]byte, string, error) {
	var h mail.Header
	if env.Date.IsZero() {
		env.Date = time.Now()
	}
	h.SetDate(env.Date)
	h.SetAddressList("From", []*mail.Address{{Name: env.FromName, Address: env.From}})
	h.SetAddressList("To", []*mail.Address{{Name: env.ToName, Address: env.To}})
	h.SetSubject(env.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, "", fmt.Errorf("failed to generate message id: %w", err)
	}
	messageID, err := h.MessageID()
	if err != nil {
		return nil, "", err
	}
	if id := trimID(env.InReplyTo); id != "" {
		h.SetMsgIDList("In-Reply-To", []string{id})
	}
	if refs := splitIDs(env.References); len(refs) > 0 {
		h.SetMsgIDList("References", refs)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create message writer: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, "", err
	}
	if err := writePart(tw, "text/plain", env.TextBody); err != nil {
		return nil, "", err
	}
	if env.HTMLBody != "" {
		if err := writePart(tw, "text/html", env.HTMLBody); err != nil {
			return nil, "", err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), messageID, nil
}

func writePart(tw *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := tw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return err
	}
	return w.Close()
}

func trimID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}

func splitIDs(s string) []string {
	var ids []string
	for _, f := range strings.Fields(s) {
		if id := trimID(f); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// JoinIDs renders message ids as a References header value
func JoinIDs(ids []string) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = trimID(id); id != "" {
			parts = append(parts, "<"+id+">")
		}
	}
	return strings.Join(parts, " ")
}
