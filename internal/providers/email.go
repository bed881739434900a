package providers

import (
	"context"
	"errors"

	"monitoring-service/internal/config"
	"monitoring-service/internal/models"
	"monitoring-service/internal/permanent"
	"monitoring-service/pkg/email"
)

type EmailSender struct {
	client *email.Client
}

func NewEmailSender(cfg config.EmailConfig) (*EmailSender, error) {
	if cfg.SMTPServer == "" || cfg.SMTPPort == 0 {
		return nil, errors.New("missing Email configuration: SMTP server or port is empty")
	}
	return &EmailSender{client: email.NewClient(cfg.SMTPServer, cfg.SMTPPort, cfg.Username, cfg.Password, cfg.FromName)}, nil
}

func NewEmailSenderWithClient(client *email.Client) *EmailSender {
	return &EmailSender{client: client}
}

func (s *EmailSender) Channel() models.ChannelType { return models.ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, req models.NotificationRequest) error {
	if err := email.ValidateAddress(req.Recipient); err != nil {
		return permanent.Mark(err)
	}
	return runBlocking(ctx, func() error {
		return s.client.Send(req.Recipient, req.Subject, req.Body)
	})
}
