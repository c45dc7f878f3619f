package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"garage-sentry-backend/config"
	"garage-sentry-backend/internal/accessory"
	"garage-sentry-backend/internal/api"
	"garage-sentry-backend/internal/device"
	"garage-sentry-backend/internal/gateway"
	"garage-sentry-backend/internal/model"
	"garage-sentry-backend/internal/poller"
	"garage-sentry-backend/internal/reconciler"
	"garage-sentry-backend/internal/store"
)

// fakeCloud simulates the device cloud API for a single door.
type fakeCloud struct {
	mu      sync.Mutex
	closed  bool
	stuck   bool
	toggles int
}

func (f *fakeCloud) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/v1/devices/abc123/door_status":
		result := "Door Open"
		if f.closed {
			result = device.ClosedStatus
		}
		json.NewEncoder(w).Encode(map[string]any{"name": "door_status", "result": result})
	case r.Method == http.MethodPost && r.URL.Path == "/v1/devices/abc123/door_toggle":
		f.toggles++
		if !f.stuck {
			f.closed = !f.closed
		}
		json.NewEncoder(w).Encode(map[string]any{"return_value": 1})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeCloud) setStuck(stuck bool) {
	f.mu.Lock()
	f.stuck = stuck
	f.mu.Unlock()
}

// TestDoorLifecycle drives the door through a confirmed open and an
// obstructed close over the HTTP API and checks the registry row follows.
func TestDoorLifecycle(t *testing.T) {
	// --- Test Setup ---
	testDB, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, _ := testDB.DB()
	defer sqlDB.Close()
	require.NoError(t, testDB.AutoMigrate(&model.Accessory{}, &model.PushSubscription{}))
	appStore := store.NewGormStore(testDB)

	cloud := &fakeCloud{closed: true}
	cloudServer := httptest.NewServer(cloud)
	defer cloudServer.Close()

	cfg := &config.Config{
		Device: config.DeviceConfig{
			AccessToken:       "token",
			DeviceID:          "abc123",
			URL:               cloudServer.URL + "/v1",
			PollRateMillis:    20,
			DoorTimeoutMillis: 100,
		},
		// The assertions below poll the API far faster than a real client.
		Server: config.ServerConfig{RateLimitPerSec: 10000, RateLimitBurst: 10000},
	}
	cfg.ApplyDefaults()
	logger := zap.NewNop()

	client, err := device.NewClient(&cfg.Device, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := gateway.New(client, logger)
	rec := reconciler.New(client, gw, reconciler.Options{DoorTimeout: cfg.Device.DoorTimeout, Logger: logger})
	gw.SetReporter(rec)
	initial := rec.Initialize(ctx)

	info := accessory.NewInfo(&cfg.Device)
	adapter := accessory.New(rec, info, logger)
	rec.AddListener(adapter)
	require.NoError(t, accessory.Register(ctx, appStore, info, initial))
	adapter.AddPublisher(accessory.NewRegistryPublisher(appStore, info.SerialNumber))

	go rec.Run(ctx)
	go adapter.Run(ctx)
	gw.Start(ctx)
	go poller.New(client, rec, cfg.Device.PollRate, logger).Run(ctx)

	handler := api.NewHandler(adapter, appStore, nil, api.NewHub(logger), logger)
	router := api.NewRouter(handler, &cfg.Server)

	getDoor := func() map[string]any {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/api/door", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		var state map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
		return state
	}
	putTarget := func(target string) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPut, "/api/door/target", strings.NewReader(`{"target_state":"`+target+`"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusAccepted, w.Code)
	}
	storedState := func() string {
		var acc model.Accessory
		if err := testDB.First(&acc, "serial_number = ?", "abc123").Error; err != nil {
			return ""
		}
		return acc.CurrentState
	}

	// --- Initial state ---
	state := getDoor()
	assert.Equal(t, "CLOSED", state["current_state"])
	assert.Equal(t, "CLOSED", state["target_state"])
	assert.Equal(t, "CLOSED", storedState())

	// --- Open, confirmed after the door timeout ---
	putTarget("OPEN")
	state = getDoor()
	assert.Equal(t, "OPENING", state["current_state"])
	assert.Equal(t, true, state["operating"])

	assert.Eventually(t, func() bool {
		s := getDoor()
		return s["current_state"] == "OPEN" && s["operating"] == false
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return storedState() == "OPEN" }, 2*time.Second, 10*time.Millisecond)

	// --- Already open: acknowledged without a command ---
	putTarget("OPEN")
	assert.Equal(t, "OPEN", getDoor()["current_state"])

	// --- Close, but the door does not move ---
	cloud.setStuck(true)
	putTarget("CLOSED")
	assert.Equal(t, "CLOSED", getDoor()["current_state"])

	assert.Eventually(t, func() bool {
		s := getDoor()
		return s["current_state"] == "STOPPED" && s["target_state"] == "OPEN"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return storedState() == "STOPPED" }, 2*time.Second, 10*time.Millisecond)

	cloud.mu.Lock()
	assert.Equal(t, 2, cloud.toggles)
	cloud.mu.Unlock()
}
