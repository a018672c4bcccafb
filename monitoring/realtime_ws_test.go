package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialMonitor(t *testing.T, m *Monitor) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(m.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for m.GetStats().ConnectedClients != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var envelope Message
	if err := json.Unmarshal(payload, &envelope); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return envelope
}

func TestMonitorLifecycle(t *testing.T) {
	m := NewMonitor(nil)

	if err := m.SendHeartbeat(); err == nil {
		t.Fatal("expected error before Start")
	}
	if err := m.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Start(); err == nil {
		t.Fatal("expected error on double Start")
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Stop(); err == nil {
		t.Fatal("expected error on double Stop")
	}
}

func TestMonitorBroadcastsPrediction(t *testing.T) {
	m := NewMonitor(nil)
	if err := m.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Stop()

	conn := dialMonitor(t, m)

	sent := PredictionMessage{
		RequestID:   "req-1",
		InstanceIdx: 0,
		Label:       1,
		ClassName:   "grignolino",
		Confidence:  0.8,
		Timestamp:   time.Now().UTC(),
	}
	if err := m.SendPrediction(sent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	envelope := readEnvelope(t, conn)
	if envelope.Type != PredictionEvent {
		t.Fatalf("unexpected message type: %s", envelope.Type)
	}
	if envelope.ID == "" {
		t.Fatal("expected message id")
	}

	var event PredictionMessage
	if err := json.Unmarshal(envelope.Data, &event); err != nil {
		t.Fatalf("invalid event payload: %v", err)
	}
	if event.RequestID != "req-1" || event.Label != 1 || event.ClassName != "grignolino" {
		t.Fatalf("unexpected event: %+v", event)
	}

	stats := m.GetStats()
	if stats.MessagesSent == 0 {
		t.Fatal("expected messages_sent to advance")
	}
	if stats.ConnectedClients != 1 {
		t.Fatalf("expected 1 connected client, got %d", stats.ConnectedClients)
	}
}

func TestMonitorHeartbeatAndStatus(t *testing.T) {
	m := NewMonitor(nil)
	if err := m.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Stop()

	conn := dialMonitor(t, m)

	if err := m.SendHeartbeat(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if envelope := readEnvelope(t, conn); envelope.Type != Heartbeat {
		t.Fatalf("unexpected message type: %s", envelope.Type)
	}

	if err := m.SendSystemStatus(SystemStatusMessage{Component: "training", Status: "ok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if envelope := readEnvelope(t, conn); envelope.Type != SystemStatus {
		t.Fatalf("unexpected message type: %s", envelope.Type)
	}
}
