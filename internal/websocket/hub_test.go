package websocket_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/linemk/order-service/internal/domain/models"
	"github.com/linemk/order-service/internal/events"
	"github.com/linemk/order-service/internal/lib/metrics"
	"github.com/linemk/order-service/internal/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*websocket.Hub, *metrics.Metrics, string) {
	t.Helper()

	m := metrics.New(prometheus.NewRegistry())
	hub := websocket.NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), m)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)

	return hub, m, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHub_BroadcastsPublishedEvents(t *testing.T) {
	hub, m, url := startHub(t)

	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSClients))

	evt := events.OrderEvent{
		Type:        events.TypeOrderStatusChanged,
		OrderID:     "order-1",
		OrderNumber: "ORD-1",
		Status:      models.StatusShipped,
	}
	require.NoError(t, hub.Publish(context.Background(), evt))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg websocket.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, events.TypeOrderStatusChanged, msg.Type)
	assert.Equal(t, "order-1", msg.Data.OrderID)
	assert.Equal(t, models.StatusShipped, msg.Data.Status)
	assert.NotEmpty(t, msg.Timestamp)
}

func TestHub_UnregistersOnClose(t *testing.T) {
	hub, _, url := startHub(t)

	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PublishWithoutClients(t *testing.T) {
	hub, _, _ := startHub(t)
	assert.NoError(t, hub.Publish(context.Background(), events.OrderEvent{Type: events.TypeOrderCreated}))
}
