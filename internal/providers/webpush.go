package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"monitoring-service/internal/config"
	"monitoring-service/internal/models"
	"monitoring-service/internal/permanent"
)

// PushFrame is written to the push gateway for every notification.
type PushFrame struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Priority  string `json:"priority"`
}

// PushAck is the gateway's reply to a PushFrame.
type PushAck struct {
	ID       string `json:"id"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Rejected bool   `json:"rejected,omitempty"`
}

// WebPushSender forwards notifications to a push gateway over a websocket,
// one short-lived connection per message.
type WebPushSender struct {
	url    string
	token  string
	dialer *websocket.Dialer
}

func NewWebPushSender(cfg config.PushConfig) (*WebPushSender, error) {
	if cfg.GatewayURL == "" {
		return nil, errors.New("missing push gateway URL")
	}
	return &WebPushSender{
		url:    cfg.GatewayURL,
		token:  cfg.Token,
		dialer: &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
	}, nil
}

func (s *WebPushSender) Channel() models.ChannelType { return models.ChannelWebPush }

func (s *WebPushSender) Send(ctx context.Context, req models.NotificationRequest) error {
	header := http.Header{}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}
	conn, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return permanent.Mark(fmt.Errorf("push gateway refused connection: %s", resp.Status))
		}
		return fmt.Errorf("dial push gateway: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}

	frame := PushFrame{
		ID:        req.ID,
		Recipient: req.Recipient,
		Title:     req.Subject,
		Body:      req.Body,
		Priority:  req.Priority.String(),
	}
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("write push frame: %w", err)
	}

	var ack PushAck
	if err := conn.ReadJSON(&ack); err != nil {
		return fmt.Errorf("read push ack: %w", err)
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	if !ack.OK {
		err := fmt.Errorf("push gateway rejected %s: %s", req.ID, ack.Error)
		if ack.Rejected {
			return permanent.Mark(err)
		}
		return err
	}
	return nil
}
