// Package mailer builds MIME messages and hands them to an SMTP relay.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recruit-cli/internal/resilience"
)

const provider = "smtp"

// Message is one outbound email.
type Message struct {
	From    string
	To      string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
	Headers map[string]string
}

// Receipt is the relay's acceptance of a message.
type Receipt struct {
	MessageID  string
	AcceptedAt time.Time
}

// Sender delivers a message. Failures are classified resilience errors.
type Sender interface {
	Send(ctx context.Context, msg Message) (*Receipt, error)
}

// Account is the SMTP relay a sender authenticates against.
type Account struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Build renders msg as an RFC 5322 message with a multipart/alternative
// body. The returned id is the Message-ID without angle brackets.
func Build(msg Message, date time.Time) ([]byte, string, error) {
	from, err := mail.ParseAddress(msg.From)
	if err != nil {
		return nil, "", eris.Wrapf(err, "mailer: parse from %q", msg.From)
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return nil, "", eris.Wrapf(err, "mailer: parse to %q", msg.To)
	}

	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{to})
	if msg.ReplyTo != "" {
		replyTo, err := mail.ParseAddress(msg.ReplyTo)
		if err != nil {
			return nil, "", eris.Wrapf(err, "mailer: parse reply-to %q", msg.ReplyTo)
		}
		h.SetAddressList("Reply-To", []*mail.Address{replyTo})
	}
	h.SetSubject(msg.Subject)
	id := uuid.New().String() + "@" + domainOf(from.Address)
	h.SetMessageID(id)
	for k, v := range msg.Headers {
		h.Set(k, v)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, "", eris.Wrap(err, "mailer: create writer")
	}
	alt, err := mw.CreateInline()
	if err != nil {
		return nil, "", eris.Wrap(err, "mailer: create inline")
	}
	if msg.Text != "" {
		if err := writePart(alt, "text/plain", msg.Text); err != nil {
			return nil, "", err
		}
	}
	if err := writePart(alt, "text/html", msg.HTML); err != nil {
		return nil, "", err
	}
	if err := alt.Close(); err != nil {
		return nil, "", eris.Wrap(err, "mailer: close inline")
	}
	if err := mw.Close(); err != nil {
		return nil, "", eris.Wrap(err, "mailer: close message")
	}
	return buf.Bytes(), id, nil
}

func writePart(alt *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := alt.CreatePart(ph)
	if err != nil {
		return eris.Wrapf(err, "mailer: create %s part", contentType)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return eris.Wrapf(err, "mailer: write %s part", contentType)
	}
	return eris.Wrapf(w.Close(), "mailer: close %s part", contentType)
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}

// SMTP sends through one relay account, upgrading to TLS when offered.
type SMTP struct {
	account Account
	timeout time.Duration
	now     func() time.Time
}

// NewSMTP creates an SMTP sender for acct.
func NewSMTP(acct Account) *SMTP {
	if acct.Port == 0 {
		acct.Port = 587
	}
	return &SMTP{
		account: acct,
		timeout: 30 * time.Second,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Send delivers msg. SMTP 4xx replies are transient (421 and 452 are
// throttling and count as rate limited); 5xx replies are permanent.
func (s *SMTP) Send(ctx context.Context, msg Message) (*Receipt, error) {
	now := s.now()
	raw, id, err := Build(msg, now)
	if err != nil {
		return nil, resilience.NewPermanent(provider, err)
	}
	from, _ := mail.ParseAddress(msg.From)
	to, _ := mail.ParseAddress(msg.To)

	if err := s.deliver(ctx, from.Address, to.Address, raw); err != nil {
		return nil, classify(err)
	}
	return &Receipt{MessageID: id, AcceptedAt: now}, nil
}

func (s *SMTP) deliver(ctx context.Context, from, to string, raw []byte) error {
	addr := net.JoinHostPort(s.account.Host, strconv.Itoa(s.account.Port))
	d := net.Dialer{Timeout: s.timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return eris.Wrapf(err, "dial %s", addr)
	}
	deadline := time.Now().Add(s.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, s.account.Host)
	if err != nil {
		conn.Close() //nolint:errcheck
		return eris.Wrap(err, "smtp handshake")
	}
	defer c.Close() //nolint:errcheck

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.account.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return eris.Wrap(err, "starttls")
		}
	}
	if s.account.Username != "" {
		auth := smtp.PlainAuth("", s.account.Username, s.account.Password, s.account.Host)
		if err := c.Auth(auth); err != nil {
			return eris.Wrap(err, "auth")
		}
	}
	if err := c.Mail(from); err != nil {
		return eris.Wrap(err, "mail from")
	}
	if err := c.Rcpt(to); err != nil {
		return eris.Wrap(err, "rcpt to")
	}
	w, err := c.Data()
	if err != nil {
		return eris.Wrap(err, "data")
	}
	if _, err := w.Write(raw); err != nil {
		return eris.Wrap(err, "write body")
	}
	if err := w.Close(); err != nil {
		return eris.Wrap(err, "end data")
	}
	return eris.Wrap(c.Quit(), "quit")
}

func classify(err error) error {
	var tpErr *textproto.Error
	if !errors.As(err, &tpErr) {
		return resilience.NewTransient(provider, err, 0)
	}
	switch {
	case tpErr.Code == 421 || tpErr.Code == 452:
		return resilience.NewRateLimited(provider, err)
	case tpErr.Code >= 400 && tpErr.Code < 500:
		return resilience.NewTransient(provider, err, 0)
	default:
		p := resilience.NewPermanent(provider, err)
		p.StatusCode = tpErr.Code
		return p
	}
}
