package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
)

// SendFunc matches smtp.SendMail
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Sender delivers email through an SMTP relay. It implements interfaces.EmailSender.
type Sender struct {
	addr     string
	host     string
	from     string
	username string
	password string
	send     SendFunc
	now      func() time.Time
}

// Option is a functional option for Sender
type Option func(*Sender)

// WithAuth enables PLAIN authentication against the relay
func WithAuth(username, password string) Option {
	return func(s *Sender) {
		s.username = username
		s.password = password
	}
}

// WithSendFunc replaces smtp.SendMail
func WithSendFunc(f SendFunc) Option {
	return func(s *Sender) {
		s.send = f
	}
}

// New creates a Sender for the relay at addr (host:port)
func New(addr, from string, opts ...Option) (*Sender, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid SMTP address", goerr.V("addr", addr))
	}
	if _, err := mail.ParseAddress(from); err != nil {
		return nil, goerr.Wrap(err, "invalid sender address", goerr.V("from", from))
	}

	s := &Sender{
		addr: addr,
		host: host,
		from: from,
		send: smtp.SendMail,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SendEmail sends a multipart/alternative message
func (s *Sender) SendEmail(ctx context.Context, to, subject, textBody, htmlBody string) error {
	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return goerr.Wrap(err, "malformed recipient",
			goerr.V("to", to), goerr.T(model.TagPermanent))
	}
	if err := ctx.Err(); err != nil {
		return goerr.Wrap(err, "email send cancelled", goerr.T(model.TagTransient))
	}

	msg, err := s.compose(rcpt.Address, subject, textBody, htmlBody)
	if err != nil {
		return goerr.Wrap(err, "failed to compose email", goerr.T(model.TagPermanent))
	}

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	if err := s.send(s.addr, auth, s.from, []string{rcpt.Address}, msg); err != nil {
		return goerr.Wrap(err, "failed to send email",
			goerr.V("to", rcpt.Address), classify(err))
	}
	return nil
}

func (s *Sender) compose(to, subject, textBody, htmlBody string) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", textBody},
		{"text/html; charset=UTF-8", htmlBody},
	}
	for _, p := range parts {
		if p.content == "" {
			continue
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Type", p.contentType)
		h.Set("Content-Transfer-Encoding", "quoted-printable")
		w, err := mw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(p.content)); err != nil {
			return nil, err
		}
		if err := qp.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	headers := []string{
		"From: " + s.from,
		"To: " + to,
		"Subject: " + encodeHeader(subject),
		"Date: " + s.now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q", mw.Boundary()),
	}
	msg.WriteString(strings.Join(headers, "\r\n"))
	msg.WriteString("\r\n\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func encodeHeader(v string) string {
	v = strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
	return mime.QEncoding.Encode("UTF-8", v)
}

// classify maps SMTP reply codes: 5xx is permanent, everything else may succeed later
func classify(err error) goerr.Option {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return goerr.T(model.TagPermanent)
	}
	return goerr.T(model.TagTransient)
}
