package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"garage-sentry-backend/config"
	"garage-sentry-backend/internal/accessory"
	"garage-sentry-backend/internal/door"
	"garage-sentry-backend/internal/reconciler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockAccessory is a mock implementation of the Accessory interface.
type mockAccessory struct {
	mu        sync.Mutex
	state     reconciler.State
	requested []door.TargetState
}

func (m *mockAccessory) Info() accessory.Info {
	return accessory.Info{Name: "Garage Door", Manufacturer: accessory.Manufacturer, Model: accessory.Model, SerialNumber: "abc123"}
}

func (m *mockAccessory) State() reconciler.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockAccessory) SetTargetState(ctx context.Context, requested door.TargetState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requested = append(m.requested, requested)
}

func (m *mockAccessory) requests() []door.TargetState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]door.TargetState(nil), m.requested...)
}

func setupDoorRouter(acc *mockAccessory, hub *Hub) *gin.Engine {
	handler := NewHandler(acc, nil, &webpush.Options{VAPIDPublicKey: "public"}, hub, zap.NewNop())
	return NewRouter(handler, &config.ServerConfig{RateLimitPerSec: 100, RateLimitBurst: 100, CacheTTLSeconds: 60})
}

func TestGetAccessory(t *testing.T) {
	router := setupDoorRouter(&mockAccessory{}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/accessory", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"name":"Garage Door","manufacturer":"GarageSentry","model":"Garage Door","serial_number":"abc123"}`, w.Body.String())
}

func TestGetDoor(t *testing.T) {
	acc := &mockAccessory{state: reconciler.State{
		Current:          door.StateOpening,
		Target:           door.TargetOpen,
		Operating:        true,
		LastKnownClosed:  true,
		LastCommandError: "device request failed",
	}}
	router := setupDoorRouter(acc, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/door", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"current_state":"OPENING",
		"target_state":"OPEN",
		"operating":true,
		"last_known_closed":true,
		"last_command_error":"device request failed"
	}`, w.Body.String())
}

func TestPutDoorTarget(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		want     []door.TargetState
	}{
		{"open", `{"target_state":"OPEN"}`, http.StatusAccepted, []door.TargetState{door.TargetOpen}},
		{"closed lowercase", `{"target_state":"closed"}`, http.StatusAccepted, []door.TargetState{door.TargetClosed}},
		{"unknown value", `{"target_state":"AJAR"}`, http.StatusBadRequest, nil},
		{"missing field", `{}`, http.StatusBadRequest, nil},
		{"malformed json", `{`, http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := &mockAccessory{}
			router := setupDoorRouter(acc, nil)

			w := httptest.NewRecorder()
			req, _ := http.NewRequest("PUT", "/api/door/target", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusAccepted {
				assert.JSONEq(t, `{"acknowledged":true}`, w.Body.String())
			}
			assert.Equal(t, tt.want, acc.requests())
		})
	}
}

func TestGetVAPIDPublicKey(t *testing.T) {
	router := setupDoorRouter(&mockAccessory{}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/vapid_public_key", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"public"}`, w.Body.String())
}

func TestGetDoorEvents_Unavailable(t *testing.T) {
	router := setupDoorRouter(&mockAccessory{}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/door/events", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetDoorEvents(t *testing.T) {
	hub := NewHub(zap.NewNop())
	acc := &mockAccessory{state: reconciler.State{Current: door.StateClosed, Target: door.TargetClosed, LastKnownClosed: true}}
	srv := httptest.NewServer(setupDoorRouter(acc, hub))
	defer srv.Close()
	defer hub.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/door/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	readMessage := func() map[string]any {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}

	initial := readMessage()
	assert.Equal(t, MessageTypeState, initial["type"])
	payload := initial["payload"].(map[string]any)
	assert.Equal(t, "CLOSED", payload["current_state"])
	assert.Equal(t, "CLOSED", payload["target_state"])

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.PublishUpdate(reconciler.Update{
		Current: door.StateOpening,
		Target:  door.TargetOpen,
		Reason:  reconciler.ReasonCommanded,
		At:      time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC),
	}))

	update := readMessage()
	assert.Equal(t, MessageTypeUpdate, update["type"])
	payload = update["payload"].(map[string]any)
	assert.Equal(t, "OPENING", payload["current_state"])
	assert.Equal(t, "OPEN", payload["target_state"])
	assert.Equal(t, "commanded", payload["reason"])
	assert.Equal(t, "2026-10-17T08:00:00Z", payload["at"])
}
