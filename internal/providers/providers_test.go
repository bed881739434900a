package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monitoring-service/internal/config"
	"monitoring-service/internal/models"
	"monitoring-service/internal/permanent"
	"monitoring-service/pkg/email"
	"monitoring-service/pkg/telegram"
)

func notification(channel models.ChannelType, recipient string) models.NotificationRequest {
	return models.NotificationRequest{
		ID:        "req-1",
		Recipient: recipient,
		Channel:   channel,
		Subject:   "Pulse alert",
		Body:      "value 150 outside limits [60, 100]",
		Priority:  models.PriorityCritical,
	}
}

func TestRegistryResolve(t *testing.T) {
	sent := 0
	reg := NewRegistry(SenderFunc{Type: models.ChannelEmail, Fn: func(context.Context, models.NotificationRequest) error {
		sent++
		return nil
	}})

	s, err := reg.Resolve(models.ChannelEmail)
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), notification(models.ChannelEmail, "a@b.c")))
	assert.Equal(t, 1, sent)

	_, err = reg.Resolve(models.ChannelSMS)
	assert.ErrorIs(t, err, ErrUnknownChannel)
	assert.True(t, permanent.Is(err))
	assert.Equal(t, []models.ChannelType{models.ChannelEmail}, reg.Channels())
}

func TestEmailSender(t *testing.T) {
	var to []string
	client := email.NewClient("smtp.example.org", 25, "alerts@example.org", "", "Ward").
		WithSendFunc(func(_ string, _ smtp.Auth, _ string, rcpt []string, _ []byte) error {
			to = rcpt
			return nil
		})
	sender := NewEmailSenderWithClient(client)

	require.NoError(t, sender.Send(context.Background(), notification(models.ChannelEmail, "nurse@example.org")))
	assert.Equal(t, []string{"nurse@example.org"}, to)

	err := sender.Send(context.Background(), notification(models.ChannelEmail, "nobody"))
	assert.True(t, permanent.Is(err))

	_, err = NewEmailSender(config.EmailConfig{})
	assert.Error(t, err)
}

func TestEmailSenderHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	client := email.NewClient("smtp.example.org", 25, "alerts@example.org", "", "").
		WithSendFunc(func(string, smtp.Auth, string, []string, []byte) error {
			<-release
			return nil
		})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := NewEmailSenderWithClient(client).Send(ctx, notification(models.ChannelEmail, "nurse@example.org"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, permanent.Is(err))
}

func TestSMSSender(t *testing.T) {
	var gotTo, gotBody string
	sender := &SMSSender{send: func(to, body string) error {
		gotTo, gotBody = to, body
		return nil
	}}

	require.NoError(t, sender.Send(context.Background(), notification(models.ChannelSMS, " +84901234567 ")))
	assert.Equal(t, "+84901234567", gotTo)
	assert.Equal(t, "Pulse alert\nvalue 150 outside limits [60, 100]", gotBody)

	err := sender.Send(context.Background(), notification(models.ChannelSMS, "0901234567"))
	assert.True(t, permanent.Is(err))

	sender.send = func(string, string) error { return errors.New("connection reset") }
	err = sender.Send(context.Background(), notification(models.ChannelSMS, "+84901234567"))
	require.Error(t, err)
	assert.False(t, permanent.Is(err))
}

func TestTelegramSender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":-100123,"type":"group"}}}`))
	}))
	defer srv.Close()

	client, err := telegram.NewClient("123:abc", 5, srv.URL)
	require.NoError(t, err)
	sender := NewTelegramSenderWithClient(client)

	require.NoError(t, sender.Send(context.Background(), notification(models.ChannelTelegram, "-100123")))
	err = sender.Send(context.Background(), notification(models.ChannelTelegram, "ward three"))
	assert.True(t, permanent.Is(err))
}

func pushGateway(t *testing.T, reply func(PushFrame) PushAck) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var frame PushFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		_ = conn.WriteJSON(reply(frame))
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebPushSender(t *testing.T) {
	frames := make(chan PushFrame, 1)
	srv := pushGateway(t, func(f PushFrame) PushAck {
		frames <- f
		return PushAck{ID: f.ID, OK: true}
	})
	defer srv.Close()

	sender, err := NewWebPushSender(config.PushConfig{GatewayURL: wsURL(srv), Token: "token"})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, sender.Send(ctx, notification(models.ChannelWebPush, "device-9")))
	got := <-frames
	assert.Equal(t, "device-9", got.Recipient)
	assert.Equal(t, "Critical", got.Priority)
}

func TestWebPushSenderFailures(t *testing.T) {
	srv := pushGateway(t, func(f PushFrame) PushAck {
		if f.Recipient == "gone" {
			return PushAck{ID: f.ID, Error: "unknown subscriber", Rejected: true}
		}
		return PushAck{ID: f.ID, Error: "gateway busy"}
	})
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sender, err := NewWebPushSender(config.PushConfig{GatewayURL: wsURL(srv), Token: "token"})
	require.NoError(t, err)

	err = sender.Send(ctx, notification(models.ChannelWebPush, "gone"))
	assert.True(t, permanent.Is(err))

	err = sender.Send(ctx, notification(models.ChannelWebPush, "busy"))
	require.Error(t, err)
	assert.False(t, permanent.Is(err))

	unauthorized, err := NewWebPushSender(config.PushConfig{GatewayURL: wsURL(srv)})
	require.NoError(t, err)
	err = unauthorized.Send(ctx, notification(models.ChannelWebPush, "device-9"))
	assert.True(t, permanent.Is(err))
}
