package providers

import (
	"context"
	"errors"
	"strings"

	"monitoring-service/internal/config"
	"monitoring-service/internal/models"
	"monitoring-service/internal/permanent"
	"monitoring-service/pkg/sms"
)

type SMSSender struct {
	send func(to, body string) error
}

func NewSMSSender(cfg config.SMSConfig) (*SMSSender, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.FromNumber == "" {
		return nil, errors.New("missing SMS configuration: AccountSID, AuthToken, or FromNumber is empty")
	}
	client := sms.NewClient(cfg.AccountSID, cfg.AuthToken, cfg.FromNumber)
	return &SMSSender{send: client.Send}, nil
}

func (s *SMSSender) Channel() models.ChannelType { return models.ChannelSMS }

func (s *SMSSender) Send(ctx context.Context, req models.NotificationRequest) error {
	to := strings.TrimSpace(req.Recipient)
	if err := sms.ValidateNumber(to); err != nil {
		return permanent.Mark(err)
	}
	text := req.Body
	if req.Subject != "" {
		text = req.Subject + "\n" + req.Body
	}
	err := runBlocking(ctx, func() error { return s.send(to, text) })
	if sms.IsRejected(err) {
		return permanent.Mark(err)
	}
	return err
}
