package providers

import (
	"context"

	"monitoring-service/internal/config"
	"monitoring-service/internal/models"
	"monitoring-service/internal/permanent"
	"monitoring-service/pkg/telegram"
)

type TelegramSender struct {
	client *telegram.Client
}

func NewTelegramSender(cfg config.TelegramConfig) (*TelegramSender, error) {
	client, err := telegram.NewClient(cfg.BotToken, cfg.RateLimit, "")
	if err != nil {
		return nil, err
	}
	return &TelegramSender{client: client}, nil
}

func NewTelegramSenderWithClient(client *telegram.Client) *TelegramSender {
	return &TelegramSender{client: client}
}

func (s *TelegramSender) Channel() models.ChannelType { return models.ChannelTelegram }

func (s *TelegramSender) Send(ctx context.Context, req models.NotificationRequest) error {
	chatID, err := telegram.ParseChatID(req.Recipient)
	if err != nil {
		return permanent.Mark(err)
	}
	if err := s.client.Send(ctx, chatID, req.Subject, req.Body); err != nil {
		if telegram.IsRejected(err) {
			return permanent.Mark(err)
		}
		return err
	}
	return nil
}
