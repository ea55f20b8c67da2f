package mail

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

// Log — транспорт для локальной разработки: письмо только логируется.
type Log struct {
	logger *log.Entry
}

// NewLog создаёт логирующий транспорт.
func NewLog(logger *log.Entry) *Log {
	if logger == nil {
		logger = log.WithField("component", "mailer")
	}
	return &Log{logger: logger}
}

func (l *Log) Send(ctx context.Context, msg domain.MailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	names := make([]string, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		names = append(names, att.Filename)
	}
	l.logger.WithFields(log.Fields{
		"to":          msg.To,
		"subject":     msg.Subject,
		"attachments": names,
	}).Info("email delivery skipped, log transport")
	return nil
}

var _ domain.Mailer = (*Log)(nil)
