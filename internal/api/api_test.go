package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/poolstation-bridge/internal/coordinator"
	"github.com/thatsimonsguy/poolstation-bridge/internal/entity"
	"github.com/thatsimonsguy/poolstation-bridge/internal/integration"
	"github.com/thatsimonsguy/poolstation-bridge/internal/model"
)

type fakeRegistry struct {
	pools     []*integration.Pool
	reauthErr error
	reauthed  []string
}

func (f *fakeRegistry) Pools() []*integration.Pool { return f.pools }

func (f *fakeRegistry) Pool(id string) (*integration.Pool, bool) {
	for _, p := range f.pools {
		if p.Info.ID == id {
			return p, true
		}
	}
	return nil, false
}

func (f *fakeRegistry) Reauthenticate(_ context.Context, email, _ string) error {
	f.reauthed = append(f.reauthed, email)
	return f.reauthErr
}

type fakeController struct {
	err  error
	sent []float64
}

func (f *fakeController) record(v float64) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeController) SetTargetPH(_ context.Context, _ string, v float64) error {
	return f.record(v)
}

func (f *fakeController) SetTargetORP(_ context.Context, _ string, v int) error {
	return f.record(float64(v))
}

func (f *fakeController) SetTargetClPPM(_ context.Context, _ string, v float64) error {
	return f.record(v)
}

func (f *fakeController) SetTargetElectrolysis(_ context.Context, _ string, v int) error {
	return f.record(float64(v))
}

type testEnv struct {
	srv      *httptest.Server
	registry *fakeRegistry
	ctl      *fakeController
	hub      *Hub
	coord    *coordinator.Coordinator
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	hub := NewHub()
	info := model.Pool{ID: "p1", Alias: "Backyard"}
	coord := coordinator.New(info, func(context.Context) (*model.Snapshot, error) {
		return &model.Snapshot{
			CurrentPH:   model.Float(7.2),
			Temperature: model.Float(27),
			TargetPH:    model.Float(7.4),
			FetchedAt:   time.Now(),
		}, nil
	}, coordinator.WithListener(hub.Publish), coordinator.WithRefreshCooldown(time.Hour))
	require.NoError(t, coord.FirstRefresh(context.Background()))

	ctl := &fakeController{}
	registry := &fakeRegistry{pools: []*integration.Pool{{
		Info:        info,
		Coordinator: coord,
		Points:      entity.Build(coord, ctl),
	}}}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("poolstation_up 1\n"))
	})
	srv := httptest.NewServer(NewServer(registry, hub, metrics).Router())
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testEnv{srv: srv, registry: registry, ctl: ctl, hub: hub, coord: coord}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestGetPools(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, http.MethodGet, "/api/pools", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	pools := decode[[]PoolResponse](t, resp)
	require.Len(t, pools, 1)
	assert.Equal(t, "p1", pools[0].ID)
	assert.Equal(t, "Backyard", pools[0].Alias)
	assert.Equal(t, "ready", pools[0].State)
	assert.True(t, pools[0].Ready)
	assert.Equal(t, coordinator.DefaultMaxAuthRetries, pools[0].AuthRetries)
	assert.True(t, pools[0].LastUpdateSuccess)
	assert.NotNil(t, pools[0].LastUpdate)
}

func TestGetPool(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, http.MethodGet, "/api/pools/p1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decode[PoolDetailResponse](t, resp)
	require.NotNil(t, detail.Snapshot)
	assert.Equal(t, 7.2, *detail.Snapshot.CurrentPH)
	assert.Nil(t, detail.Snapshot.SaltConcentration)

	resp = env.do(t, http.MethodGet, "/api/pools/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Pool not found", decode[ErrorResponse](t, resp).Error)
}

func TestGetEntities(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, http.MethodGet, "/api/pools/p1/entities", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entities := decode[[]EntityResponse](t, resp)
	assert.Len(t, entities, len(entity.Sensors)+len(entity.BinarySensors)+len(entity.Numbers))

	byKey := map[string]EntityResponse{}
	for _, e := range entities {
		byKey[e.Key] = e
	}

	temp := byKey["temperature"]
	assert.True(t, temp.Available)
	assert.Equal(t, 27.0, temp.State)
	assert.Equal(t, "°C", temp.Unit)
	assert.Equal(t, "p1_temperature", temp.UniqueID)
	assert.Equal(t, "Backyard Temperature", temp.Name)

	salt := byKey["salt_concentration"]
	assert.False(t, salt.Available)
	assert.Nil(t, salt.State)

	ph := byKey["target_ph"]
	require.NotNil(t, ph.Min)
	assert.Equal(t, 6.0, *ph.Min)
	assert.Equal(t, 8.0, *ph.Max)
	assert.Nil(t, temp.Min)
}

func TestSetNumber(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       any
		ctlErr     error
		wantStatus int
	}{
		{"valid", "/api/pools/p1/numbers/target_ph", map[string]float64{"value": 7.1}, nil, http.StatusOK},
		{"out of range", "/api/pools/p1/numbers/target_ph", map[string]float64{"value": 9}, nil, http.StatusBadRequest},
		{"missing value", "/api/pools/p1/numbers/target_ph", map[string]string{}, nil, http.StatusBadRequest},
		{"unknown number", "/api/pools/p1/numbers/pH", map[string]float64{"value": 7}, nil, http.StatusNotFound},
		{"unknown pool", "/api/pools/p9/numbers/target_ph", map[string]float64{"value": 7}, nil, http.StatusNotFound},
		{"controller failure", "/api/pools/p1/numbers/target_ph", map[string]float64{"value": 7}, errors.New("rejected"), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t)
			env.ctl.err = tt.ctlErr

			resp := env.do(t, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantStatus == http.StatusOK {
				e := decode[EntityResponse](t, resp)
				assert.Equal(t, 7.1, e.State)
				assert.Equal(t, []float64{7.1}, env.ctl.sent)
				assert.Equal(t, 7.1, *env.coord.Snapshot().TargetPH)
			} else {
				assert.Equal(t, 7.4, *env.coord.Snapshot().TargetPH)
			}
		})
	}
}

func TestRefreshPool_Debounced(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, http.MethodPost, "/api/pools/p1/refresh", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/pools/p1/refresh", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestReauthenticate(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		err        error
		wantStatus int
	}{
		{"success", ReauthRequest{Email: "a@example.com", Password: "pw"}, nil, http.StatusOK},
		{"missing password", ReauthRequest{Email: "a@example.com"}, nil, http.StatusBadRequest},
		{"rejected", ReauthRequest{Email: "a@example.com", Password: "pw"}, integration.ErrAuthFailed, http.StatusUnauthorized},
		{"unreachable", ReauthRequest{Email: "a@example.com", Password: "pw"}, integration.ErrNotReady, http.StatusServiceUnavailable},
		{"storage", ReauthRequest{Email: "a@example.com", Password: "pw"}, errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t)
			env.registry.reauthErr = tt.err

			resp := env.do(t, http.MethodPost, "/api/reauth", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestServer(t)

	resp := env.do(t, http.MethodOptions, "/api/pools", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestEvents(t *testing.T) {
	env := setupTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var initial Event
	require.NoError(t, conn.ReadJSON(&initial))
	assert.Equal(t, "p1", initial.PoolID)
	assert.Equal(t, 7.4, *initial.Snapshot.TargetPH)

	env.coord.ApplyUpdate(func(s *model.Snapshot) { s.TargetPH = model.Float(7.0) })

	var update Event
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, "Backyard", update.Alias)
	assert.Equal(t, 7.0, *update.Snapshot.TargetPH)
	assert.Equal(t, 1, env.hub.Subscribers())
}
