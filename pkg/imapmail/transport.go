// Package imapmail is the IMAP/SMTP mail transport for mailboxes without
// Gmail API access.
package imapmail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"raid-mail-agent/internal/conversation/domain"
	"raid-mail-agent/pkg/mailtext"
)

// Transport reads the agent inbox over IMAP and sends over SMTP.
// History markers are IMAP UIDs.
type Transport struct {
	imapAddr  string
	smtpAddr  string
	username  string
	password  string
	fromName  string
	fromEmail string
	lookback  uint32
	security  SMTPSecurity
	tlsConfig *tls.Config
}

// SMTPSecurity selects how the SMTP connection is protected
type SMTPSecurity string

const (
	SMTPStartTLS SMTPSecurity = "starttls"
	SMTPTLS      SMTPSecurity = "tls"
	// SMTPPlain is for local relays only
	SMTPPlain SMTPSecurity = "none"
)

func NewTransport(imapAddr, smtpAddr, username, password, fromName, fromEmail string, lookback uint32) *Transport {
	if lookback == 0 {
		lookback = 100
	}
	return &Transport{
		imapAddr:  imapAddr,
		smtpAddr:  smtpAddr,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
		lookback:  lookback,
		security:  SMTPStartTLS,
	}
}

// WithSMTPSecurity sets the SMTP connection mode. A nil tlsConfig uses the
// system roots with the server host name.
func (t *Transport) WithSMTPSecurity(security SMTPSecurity, tlsConfig *tls.Config) *Transport {
	if security != "" {
		t.security = security
	}
	t.tlsConfig = tlsConfig
	return t
}

func (t *Transport) dialSMTP() (*smtp.Client, error) {
	switch t.security {
	case SMTPStartTLS:
		return smtp.DialStartTLS(t.smtpAddr, t.tlsConfig)
	case SMTPTLS:
		return smtp.DialTLS(t.smtpAddr, t.tlsConfig)
	case SMTPPlain:
		return smtp.Dial(t.smtpAddr)
	default:
		return nil, fmt.Errorf("unknown SMTP security %q", t.security)
	}
}

// Connect dials the IMAP server and logs in. The caller must Logout.
func (t *Transport) Connect(options *imapclient.Options) (*imapclient.Client, error) {
	client, err := imapclient.DialTLS(t.imapAddr, options)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", t.imapAddr, err)
	}
	if err := client.Login(t.username, t.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("authentication failed for %s: %w", t.username, err)
	}
	return client, nil
}

// FetchChanges returns inbox messages with a UID above since. With since 0
// the last lookback messages are returned.
func (t *Transport) FetchChanges(ctx context.Context, mailbox string, since uint64) (*domain.ChangeSet, error) {
	client, err := t.Connect(nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	selected, err := client.Select("INBOX", &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return nil, fmt.Errorf("selecting INBOX: %w", err)
	}
	if selected.NumMessages == 0 {
		return &domain.ChangeSet{HistoryID: since}, nil
	}

	var numSet imap.NumSet
	if since == 0 {
		start := uint32(1)
		if selected.NumMessages > t.lookback {
			start = selected.NumMessages - t.lookback + 1
		}
		var seqSet imap.SeqSet
		seqSet.AddRange(start, selected.NumMessages)
		numSet = seqSet
	} else {
		var uidSet imap.UIDSet
		uidSet.AddRange(imap.UID(since+1), 0)
		numSet = uidSet
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(numSet, &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	changes := &domain.ChangeSet{HistoryID: since}
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			return nil, fmt.Errorf("collecting message data: %w", err)
		}
		uid := uint64(buf.UID)
		// "n:*" always matches the last message, even below n
		if since > 0 && uid <= since {
			continue
		}
		raw, err := ParseMessage(buf.FindBodySection(bodySection))
		if err != nil {
			return nil, fmt.Errorf("parsing message uid %d: %w", uid, err)
		}
		changes.Messages = append(changes.Messages, raw)
		if uid > changes.HistoryID {
			changes.HistoryID = uid
		}
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}
	return changes, ctx.Err()
}

// Send delivers a message over SMTP. A message that starts a thread becomes
// the thread root.
func (t *Transport) Send(ctx context.Context, out *domain.OutboundMail) (*domain.SentMail, error) {
	now := time.Now()
	raw, messageID, err := mailtext.Compose(mailtext.Envelope{
		FromName:   t.fromName,
		From:       t.fromEmail,
		ToName:     out.ToName,
		To:         out.To,
		Subject:    out.Subject,
		TextBody:   out.TextBody,
		HTMLBody:   out.HTMLBody,
		InReplyTo:  out.InReplyTo,
		References: out.References,
		Date:       now,
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := t.dialSMTP()
	if err != nil {
		return nil, fmt.Errorf("connecting to SMTP %s: %w", t.smtpAddr, err)
	}
	defer client.Close()
	if t.username != "" {
		if err := client.Auth(sasl.NewPlainClient("", t.username, t.password)); err != nil {
			return nil, fmt.Errorf("smtp auth failed for %s: %w", t.username, err)
		}
	}
	if err := client.SendMail(t.fromEmail, []string{out.To}, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("smtp send: %w", err)
	}
	if err := client.Quit(); err != nil {
		log.Printf("[IMAP] SMTP quit after sending to %s: %v", out.To, err)
	}

	threadID := out.ThreadID
	if threadID == "" {
		threadID = messageID
	}
	return &domain.SentMail{ThreadID: threadID, MessageID: messageID, RFCMessageID: messageID, Timestamp: now}, nil
}

// ParseMessage converts a raw RFC 5322 message. The thread id is the root of
// its References chain and the message id is its Message-ID.
func ParseMessage(raw []byte) (*domain.RawMessage, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty message")
	}
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer mr.Close()

	h := mr.Header
	msg := &domain.RawMessage{}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.FromName = from[0].Name
		msg.From = strings.ToLower(from[0].Address)
	}
	msg.To = mailtext.ParseAddressList(h.Get("To"))
	msg.Cc = mailtext.ParseAddressList(h.Get("Cc"))
	msg.Subject, _ = h.Subject()
	msg.Date, _ = h.Date()

	messageID, err := h.MessageID()
	if err != nil || messageID == "" {
		messageID = strings.Trim(strings.TrimSpace(h.Get("Message-Id")), "<>")
	}
	if messageID == "" {
		return nil, errors.New("message has no Message-ID")
	}
	refs, _ := h.MsgIDList("References")
	inReplyTo, _ := h.MsgIDList("In-Reply-To")
	msg.ID = messageID
	msg.RFCMessageID = messageID
	msg.ThreadID = mailtext.ThreadRoot(refs, inReplyTo, messageID)

	var plain, html string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(contentType, "text/plain") && plain == "":
			plain = string(body)
		case strings.HasPrefix(contentType, "text/html") && html == "":
			html = string(body)
		}
	}

	if plain != "" {
		msg.Body = mailtext.CleanBody(plain, false, "")
	} else {
		msg.Body = mailtext.CleanBody(html, true, "")
	}
	return msg, nil
}
