package imapmail

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raid-mail-agent/internal/conversation/domain"
)

const reply = "From: Jane Doe <Jane@Uni.edu>\r\n" +
	"To: Rafael <agent@raid.club>\r\n" +
	"Cc: friend@uni.edu\r\n" +
	"Subject: Re: Welcome to RAID!\r\n" +
	"Date: Mon, 03 Mar 2025 10:00:00 +1100\r\n" +
	"Message-ID: <m1@mail.uni.edu>\r\n" +
	"In-Reply-To: <root@raid.club>\r\n" +
	"References: <root@raid.club>\r\n" +
	"Content-Type: multipart/alternative; boundary=b1\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"I study CS and love robotics.\r\n" +
	"\r\n" +
	"On Mon, 3 Mar 2025, Rafael <agent@raid.club> wrote:\r\n" +
	"> Welcome!\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>I study CS and love robotics.</p>\r\n" +
	"--b1--\r\n"

func TestParseMessage(t *testing.T) {
	msg, err := ParseMessage([]byte(reply))
	require.NoError(t, err)

	assert.Equal(t, "m1@mail.uni.edu", msg.ID)
	assert.Equal(t, "m1@mail.uni.edu", msg.RFCMessageID)
	assert.Equal(t, "root@raid.club", msg.ThreadID)
	assert.Equal(t, "jane@uni.edu", msg.From)
	assert.Equal(t, "Jane Doe", msg.FromName)
	assert.Equal(t, []string{"agent@raid.club"}, msg.To)
	assert.Equal(t, []string{"friend@uni.edu"}, msg.Cc)
	assert.Equal(t, "Re: Welcome to RAID!", msg.Subject)
	assert.Equal(t, "I study CS and love robotics.", msg.Body)
	assert.Equal(t, 2025, msg.Date.Year())
}

func TestParseMessageHTMLOnlyNewThread(t *testing.T) {
	raw := "From: bob@uni.edu\r\nTo: agent@raid.club\r\nSubject: Hi\r\nMessage-ID: <b1@uni.edu>\r\nContent-Type: text/html\r\n\r\n<div>Hello&nbsp;there</div>"
	msg, err := ParseMessage([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "b1@uni.edu", msg.ThreadID)
	assert.Equal(t, "Hello there", msg.Body)

	_, err = ParseMessage([]byte("From: bob@uni.edu\r\n\r\nno id"))
	assert.Error(t, err)
	_, err = ParseMessage(nil)
	assert.Error(t, err)
}

// recordingBackend is an in-memory SMTP server that keeps delivered messages
type recordingBackend struct {
	mu       sync.Mutex
	messages []string
	rcpts    []string
}

func (b *recordingBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &recordingSession{backend: b}, nil
}

type recordingSession struct {
	backend *recordingBackend
	authed  bool
}

func (s *recordingSession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *recordingSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != "agent" || password != "secret" {
			return errors.New("invalid credentials")
		}
		s.authed = true
		return nil
	}), nil
}

func (s *recordingSession) Mail(from string, _ *smtp.MailOptions) error {
	if !s.authed {
		return smtp.ErrAuthRequired
	}
	return nil
}

func (s *recordingSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.rcpts = append(s.backend.rcpts, to)
	return nil
}

func (s *recordingSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.messages = append(s.backend.messages, string(data))
	return nil
}

func (s *recordingSession) Reset() {}

func (s *recordingSession) Logout() error { return nil }

func startSMTP(t *testing.T, tlsConfig *tls.Config) (*recordingBackend, string) {
	backend := &recordingBackend{}
	server := smtp.NewServer(backend)
	server.Domain = "localhost"
	server.AllowInsecureAuth = true
	server.TLSConfig = tlsConfig
	server.ReadTimeout = 5 * time.Second
	server.WriteTimeout = 5 * time.Second

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go server.Serve(l)
	t.Cleanup(func() { server.Close() })
	return backend, l.Addr().String()
}

// selfSignedTLS returns a server config for 127.0.0.1 and a client config
// that trusts it.
func selfSignedTLS(t *testing.T) (server, client *tls.Config) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "raid test smtp"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(cert)
	server = &tls.Config{Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key, Leaf: cert}}}
	client = &tls.Config{RootCAs: roots, ServerName: "127.0.0.1"}
	return server, client
}

func TestSend(t *testing.T) {
	serverTLS, clientTLS := selfSignedTLS(t)
	backend, addr := startSMTP(t, serverTLS)
	transport := NewTransport("", addr, "agent", "secret", "Rafael", "agent@raid.club", 0).
		WithSMTPSecurity(SMTPStartTLS, clientTLS)

	sent, err := transport.Send(context.Background(), &domain.OutboundMail{
		To:       "jane@uni.edu",
		ToName:   "Jane",
		Subject:  "Welcome to RAID!",
		TextBody: "Hi Jane",
		HTMLBody: "<p>Hi Jane</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, sent.MessageID, sent.ThreadID)
	assert.Equal(t, sent.MessageID, sent.RFCMessageID)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.messages, 1)
	assert.Equal(t, []string{"jane@uni.edu"}, backend.rcpts)

	parsed, err := ParseMessage([]byte(backend.messages[0]))
	require.NoError(t, err)
	assert.Equal(t, sent.MessageID, parsed.ID)
	assert.Equal(t, "agent@raid.club", parsed.From)
	assert.True(t, strings.HasPrefix(parsed.Body, "Hi Jane"))
}

func TestSendReplyKeepsThread(t *testing.T) {
	backend, addr := startSMTP(t, nil)
	transport := NewTransport("", addr, "agent", "secret", "Rafael", "agent@raid.club", 0).
		WithSMTPSecurity(SMTPPlain, nil)

	sent, err := transport.Send(context.Background(), &domain.OutboundMail{
		ThreadID:   "root@raid.club",
		To:         "jane@uni.edu",
		Subject:    "Re: Welcome to RAID!",
		TextBody:   "Great!",
		InReplyTo:  "m1@mail.uni.edu",
		References: "<root@raid.club> <m1@mail.uni.edu>",
	})
	require.NoError(t, err)
	assert.Equal(t, "root@raid.club", sent.ThreadID)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.messages, 1)
	parsed, err := ParseMessage([]byte(backend.messages[0]))
	require.NoError(t, err)
	assert.Equal(t, "root@raid.club", parsed.ThreadID)
}

func TestSendRequiresStartTLSByDefault(t *testing.T) {
	backend, addr := startSMTP(t, nil)
	transport := NewTransport("", addr, "agent", "secret", "Rafael", "agent@raid.club", 0)

	_, err := transport.Send(context.Background(), &domain.OutboundMail{To: "jane@uni.edu", TextBody: "x"})
	assert.ErrorContains(t, err, "STARTTLS")

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Empty(t, backend.messages)
}

func TestSendUnknownSecurity(t *testing.T) {
	transport := NewTransport("", "127.0.0.1:1", "", "", "Rafael", "agent@raid.club", 0).
		WithSMTPSecurity("ssl3", nil)

	_, err := transport.Send(context.Background(), &domain.OutboundMail{To: "jane@uni.edu", TextBody: "x"})
	assert.ErrorContains(t, err, "unknown SMTP security")
}

func TestSendWrongCredentials(t *testing.T) {
	_, addr := startSMTP(t, nil)
	transport := NewTransport("", addr, "agent", "nope", "Rafael", "agent@raid.club", 0).
		WithSMTPSecurity(SMTPPlain, nil)

	_, err := transport.Send(context.Background(), &domain.OutboundMail{To: "jane@uni.edu", TextBody: "x"})
	assert.Error(t, err)
}
