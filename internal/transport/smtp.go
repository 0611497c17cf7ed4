package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"
)

// Signer adds a DKIM signature to a rendered message. *dkim.Signer satisfies it.
type Signer interface {
	Sign(message []byte, from string) ([]byte, error)
}

// SMTPConfig describes the relay used by the SMTP transport.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	Helo        string
	DefaultFrom string
}

// SMTP delivers messages through a relay, upgrading with STARTTLS when the
// server offers it and authenticating with PLAIN when credentials are set.
type SMTP struct {
	cfg    SMTPConfig
	signer Signer
	now    func() time.Time
	dialer *net.Dialer
}

// NewSMTP returns an SMTP transport. signer may be nil.
func NewSMTP(cfg SMTPConfig, signer Signer) *SMTP {
	if cfg.Helo == "" {
		cfg.Helo = "localhost"
	}
	return &SMTP{
		cfg:    cfg,
		signer: signer,
		now:    time.Now,
		dialer: &net.Dialer{Timeout: 30 * time.Second},
	}
}

func (s *SMTP) Send(ctx context.Context, msg Message) error {
	fromRaw := msg.From
	if fromRaw == "" {
		fromRaw = s.cfg.DefaultFrom
	}
	from, err := mail.ParseAddress(fromRaw)
	if err != nil {
		return fmt.Errorf("parse from %q: %w", fromRaw, err)
	}
	to, err := ParseAddressList(msg.To)
	if err != nil {
		return err
	}
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}
	cc, err := ParseAddressList(msg.Cc)
	if err != nil {
		return err
	}

	data, err := Compose(msg, from, to, cc, s.now())
	if err != nil {
		return err
	}
	if s.signer != nil {
		if data, err = s.signer.Sign(data, from.Address); err != nil {
			return err
		}
	}

	rcpts := make([]string, 0, len(to)+len(cc))
	for _, a := range append(to, cc...) {
		rcpts = append(rcpts, a.Address)
	}
	return s.deliver(ctx, from.Address, rcpts, data)
}

func (s *SMTP) deliver(ctx context.Context, from string, rcpts []string, data []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("set deadline: %w", err)
		}
	}
	// Unblock any in-progress read or write when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("new client: %w", wrapCtx(ctx, err))
	}
	defer client.Close()

	if err := client.Hello(s.cfg.Helo); err != nil {
		return fmt.Errorf("helo: %w", wrapCtx(ctx, err))
	}

	if ok, _ := client.Extension("STARTTLS"); ok {
		tlsConf := &tls.Config{
			ServerName: s.cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConf); err != nil {
			return fmt.Errorf("starttls: %w", wrapCtx(ctx, err))
		}
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", wrapCtx(ctx, err))
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", wrapCtx(ctx, err))
	}
	for _, rcpt := range rcpts {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, wrapCtx(ctx, err))
		}
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data start: %w", wrapCtx(ctx, err))
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("data write: %w", wrapCtx(ctx, err))
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("data close: %w", wrapCtx(ctx, err))
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("quit: %w", wrapCtx(ctx, err))
	}
	return nil
}

// wrapCtx attaches the context error so callers can detect timeouts.
func wrapCtx(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w (%w)", err, ctxErr)
	}
	return err
}

var _ Transport = (*SMTP)(nil)
