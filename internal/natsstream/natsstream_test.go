package natsstream

import (
	"context"
	"net"
	"os/exec"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer runs a local nats-server with JetStream, skipping when the
// binary is not installed.
func startServer(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()

	cmd := exec.Command("nats-server", "-js", "-p", strconv.Itoa(port), "-sd", t.TempDir())
	if err := cmd.Start(); err != nil {
		t.Skipf("nats-server is required for this test: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		_, _ = cmd.Process.Wait()
	})

	url := "nats://127.0.0.1:" + strconv.Itoa(port)
	require.Eventually(t, func() bool {
		nc, err := nats.Connect(url)
		if err != nil {
			return false
		}
		nc.Close()
		return true
	}, 8*time.Second, 100*time.Millisecond)
	return url
}

func TestDurableName(t *testing.T) {
	assert.Equal(t, "monitoring-patient_metrics_v1", durableName("monitoring", "patient.metrics v1"))
}

func TestPublishFetchCommit(t *testing.T) {
	url := startServer(t)
	bus, err := Connect(url, "MONITORING_TEST", []string{"alert_events"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	src, err := bus.Source("alert_events", "monitoring", 30*time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, bus.Publish(ctx, "alert_events", []byte("p-1"), []byte(`{"id":"a-1"}`)))

	msg, err := src.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alert_events", msg.Topic)
	assert.Equal(t, []byte("p-1"), msg.Key)
	assert.JSONEq(t, `{"id":"a-1"}`, string(msg.Value))
	assert.Equal(t, int64(1), msg.Offset)
	require.NoError(t, src.Commit(ctx, msg))

	short, cancelShort := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancelShort()
	_, err = src.Fetch(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, src.Close())
}
