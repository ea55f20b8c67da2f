// Package mail содержит транспорт транзакционных писем.
package mail

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

// SMTPConfig описывает подключение к почтовому серверу.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTP отправляет письма через SMTP сервер.
type SMTP struct {
	dialer *gomail.Dialer
	from   string
	logger *log.Entry
}

// NewSMTP создаёт SMTP транспорт.
func NewSMTP(cfg SMTPConfig) *SMTP {
	return &SMTP{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: log.WithField("component", "mailer"),
	}
}

// Send отправляет письмо. gomail не принимает контекст, поэтому отправка идёт в отдельной
// горутине, а Send возвращается по истечении ctx. Письмо при этом может всё же уйти.
func (s *SMTP) Send(ctx context.Context, msg domain.MailMessage) error {
	m := buildMessage(s.from, msg)

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", msg.To, err)
		}
		s.logger.WithFields(log.Fields{"to": msg.To, "subject": msg.Subject}).Info("email sent")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s: %w", msg.To, ctx.Err())
	}
}

func buildMessage(from string, msg domain.MailMessage) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)

	for _, att := range msg.Attachments {
		body := att.Body
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		m.Attach(att.Filename,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(body)
				return err
			}),
			gomail.SetHeader(map[string][]string{"Content-Type": {contentType}}),
		)
	}
	return m
}

var _ domain.Mailer = (*SMTP)(nil)
