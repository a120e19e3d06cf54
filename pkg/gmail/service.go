package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"raid-mail-agent/internal/conversation/domain"
	"raid-mail-agent/pkg/mailtext"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const user = "me"

// Service is the Gmail API mail transport for the agent mailbox
type Service struct {
	clientID     string
	clientSecret string
	refreshToken string
	fromName     string
	fromEmail    string
	lookback     int64
	clientOpts   []option.ClientOption
}

// notifyTokenSource logs whenever the access token is refreshed
type notifyTokenSource struct {
	src     oauth2.TokenSource
	current *oauth2.Token
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.current == nil || s.current.AccessToken != t.AccessToken {
		s.current = t
		log.Printf("[Gmail] Access token refreshed, expires %s", t.Expiry.Format(time.RFC3339))
	}
	return t, nil
}

func NewService(clientID, clientSecret, refreshToken, fromName, fromEmail string, lookback int64) *Service {
	if lookback <= 0 {
		lookback = 100
	}
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		fromName:     fromName,
		fromEmail:    fromEmail,
		lookback:     lookback,
	}
}

// WithClientOptions replaces OAuth with the given client options
func (s *Service) WithClientOptions(opts ...option.ClientOption) *Service {
	s.clientOpts = opts
	return s
}

// GetGmailService creates a Gmail client authorised with the agent's refresh token
func (s *Service) GetGmailService(ctx context.Context) (*gmail.Service, error) {
	if len(s.clientOpts) > 0 {
		return gmail.NewService(ctx, s.clientOpts...)
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailModifyScope},
	}
	token := &oauth2.Token{RefreshToken: s.refreshToken, TokenType: "Bearer", Expiry: time.Now()}
	source := &notifyTokenSource{src: config.TokenSource(ctx, token)}

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, source)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %v", err)
	}
	return srv, nil
}

// FetchChanges returns inbox messages added after the history marker since.
// When since is 0 or has expired (404) the most recent inbox messages are
// listed instead.
func (s *Service) FetchChanges(ctx context.Context, mailbox string, since uint64) (*domain.ChangeSet, error) {
	srv, err := s.GetGmailService(ctx)
	if err != nil {
		return nil, err
	}
	if since == 0 {
		return s.listRecent(ctx, srv)
	}

	var ids []string
	seen := make(map[string]bool)
	newest := since
	call := srv.Users.History.List(user).StartHistoryId(since).HistoryTypes("messageAdded").LabelId("INBOX")
	err = call.Pages(ctx, func(resp *gmail.ListHistoryResponse) error {
		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil || seen[added.Message.Id] {
					continue
				}
				seen[added.Message.Id] = true
				ids = append(ids, added.Message.Id)
			}
		}
		if resp.HistoryId > newest {
			newest = resp.HistoryId
		}
		return nil
	})
	if isNotFound(err) {
		log.Printf("[Gmail] History %d for %s expired, listing recent messages", since, mailbox)
		return s.listRecent(ctx, srv)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to list history: %w", err)
	}

	messages, err := s.getMessages(ctx, srv, ids)
	if err != nil {
		return nil, err
	}
	return &domain.ChangeSet{Messages: messages, HistoryID: newest}, nil
}

func (s *Service) listRecent(ctx context.Context, srv *gmail.Service) (*domain.ChangeSet, error) {
	profile, err := srv.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to get profile: %w", err)
	}
	resp, err := srv.Users.Messages.List(user).Q("in:inbox").MaxResults(s.lookback).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to list messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	messages, err := s.getMessages(ctx, srv, ids)
	if err != nil {
		return nil, err
	}
	return &domain.ChangeSet{Messages: messages, HistoryID: profile.HistoryId}, nil
}

func (s *Service) getMessages(ctx context.Context, srv *gmail.Service, ids []string) ([]*domain.RawMessage, error) {
	messages := make([]*domain.RawMessage, 0, len(ids))
	for _, id := range ids {
		msg, err := srv.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
		if isNotFound(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("unable to get message %s: %w", id, err)
		}
		messages = append(messages, convertGmailMessage(msg))
	}
	return messages, nil
}

// Send delivers a message, threading it into ThreadID when set
func (s *Service) Send(ctx context.Context, out *domain.OutboundMail) (*domain.SentMail, error) {
	srv, err := s.GetGmailService(ctx)
	if err != nil {
		return nil, err
	}

	raw, messageID, err := mailtext.Compose(mailtext.Envelope{
		FromName:   s.fromName,
		From:       s.fromEmail,
		ToName:     out.ToName,
		To:         out.To,
		Subject:    out.Subject,
		TextBody:   out.TextBody,
		HTMLBody:   out.HTMLBody,
		InReplyTo:  out.InReplyTo,
		References: out.References,
	})
	if err != nil {
		return nil, err
	}

	msg := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: out.ThreadID,
	}
	sent, err := srv.Users.Messages.Send(user, msg).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to send email: %w", err)
	}

	ts := time.Now()
	if sent.InternalDate > 0 {
		ts = time.UnixMilli(sent.InternalDate)
	}
	return &domain.SentMail{ThreadID: sent.ThreadId, MessageID: sent.Id, RFCMessageID: messageID, Timestamp: ts}, nil
}

// Watch starts push notifications for the inbox on topicName and returns the
// mailbox history id and the watch expiration
func (s *Service) Watch(ctx context.Context, topicName string) (uint64, time.Time, error) {
	srv, err := s.GetGmailService(ctx)
	if err != nil {
		return 0, time.Time{}, err
	}

	// Only one push client is allowed per mailbox
	_ = srv.Users.Stop(user).Context(ctx).Do()

	log.Printf("[Gmail] Starting watch on topic: %s", topicName)
	resp, err := srv.Users.Watch(user, &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("unable to watch mailbox: %w", err)
	}
	expiration := time.UnixMilli(resp.Expiration)
	log.Printf("[Gmail] Watch started. Expiration: %s, HistoryId: %d", expiration.Format(time.RFC3339), resp.HistoryId)
	return resp.HistoryId, expiration, nil
}

// Stop stops push notifications for the mailbox
func (s *Service) Stop(ctx context.Context) error {
	srv, err := s.GetGmailService(ctx)
	if err != nil {
		return err
	}
	if err := srv.Users.Stop(user).Context(ctx).Do(); err != nil {
		return fmt.Errorf("unable to stop mailbox watch: %w", err)
	}
	return nil
}

// Profile returns the mailbox address and current history id, failing when
// the credentials are not usable
func (s *Service) Profile(ctx context.Context) (string, uint64, error) {
	srv, err := s.GetGmailService(ctx)
	if err != nil {
		return "", 0, err
	}
	profile, err := srv.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return "", 0, errors.New("invalid or expired gmail credentials")
	}
	return profile.EmailAddress, profile.HistoryId, nil
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func convertGmailMessage(msg *gmail.Message) *domain.RawMessage {
	raw := &domain.RawMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
	}
	if msg.InternalDate > 0 {
		raw.Date = time.UnixMilli(msg.InternalDate)
	}
	if msg.Payload == nil {
		raw.Body = strings.TrimSpace(msg.Snippet)
		return raw
	}

	headers := msg.Payload.Headers
	raw.FromName, raw.From = mailtext.ParseAddress(getHeader(headers, "From"))
	raw.To = mailtext.ParseAddressList(getHeader(headers, "To"))
	raw.Cc = mailtext.ParseAddressList(getHeader(headers, "Cc"))
	raw.Subject = getHeader(headers, "Subject")
	raw.RFCMessageID = strings.Trim(strings.TrimSpace(getHeader(headers, "Message-ID")), "<>")
	if raw.Date.IsZero() {
		if d, err := time.Parse(time.RFC1123Z, getHeader(headers, "Date")); err == nil {
			raw.Date = d
		}
	}

	body, isHTML := getEmailBody(msg.Payload)
	raw.Body = mailtext.CleanBody(body, isHTML, msg.Snippet)
	return raw
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

// getEmailBody prefers the text/plain part and falls back to text/html
func getEmailBody(payload *gmail.MessagePart) (string, bool) {
	if payload.Body != nil && payload.Body.Data != "" && len(payload.Parts) == 0 {
		if data, err := decodeBody(payload.Body.Data); err == nil {
			return data, payload.MimeType == "text/html"
		}
	}

	var htmlBody, plainBody string
	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Body != nil && part.Body.Data != "" && part.Filename == "" {
				switch part.MimeType {
				case "text/html":
					if data, err := decodeBody(part.Body.Data); err == nil && htmlBody == "" {
						htmlBody = data
					}
				case "text/plain":
					if data, err := decodeBody(part.Body.Data); err == nil && plainBody == "" {
						plainBody = data
					}
				}
			}
			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}
	findBody(payload.Parts)

	if plainBody != "" {
		return plainBody, false
	}
	return htmlBody, htmlBody != ""
}

func decodeBody(data string) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(data)
	}
	return string(decoded), err
}
