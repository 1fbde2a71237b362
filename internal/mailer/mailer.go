package mailer

import (
	"context"
	"fmt"
	"net"
	"net/smtp"

	"go.uber.org/zap"

	"github.com/nigeier/dk-vertragsmgmt-sub000/internal/config"
)

// Message is one outbound notification. All sends are best-effort: callers
// log failures and carry on with their primary operation.
type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender picks the SMTP implementation when a host is configured and a
// logged no-op otherwise.
func NewSender(cfg config.SMTPConfig, logger *zap.Logger) Sender {
	if cfg.Enabled() {
		return &SMTPSender{cfg: cfg, logger: logger.With(zap.String("component", "smtp_sender"))}
	}
	return &LogSender{logger: logger.With(zap.String("component", "log_sender"))}
}

// LogSender stands in when no SMTP server is configured.
type LogSender struct {
	logger *zap.Logger
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email delivery disabled, dropping message",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}

// SMTPSender delivers through a plain SMTP server. Every send is bounded by
// the configured timeout so a slow server cannot stall a nightly batch.
type SMTPSender struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	raw := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.cfg.From, msg.To, msg.Subject, msg.Body)
	if _, err := w.Write([]byte(raw)); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close data: %w", err)
	}
	return client.Quit()
}
