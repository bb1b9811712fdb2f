package poolstation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, 2*time.Second)
}

func TestLogin(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/login", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Email != "me@example.com" || req.Password != "secret" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(loginResponse{Token: "tok-123"})
	})

	token, err := client.Login(context.Background(), "me@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)

	// bad credentials come back as a 500, not a 401
	_, err = client.Login(context.Background(), "me@example.com", "wrong")
	var re *ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusInternalServerError, re.StatusCode)
}

func TestListPools(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`[{"id":"p1","alias":"Backyard"},{"id":"p2","alias":"Spa"}]`))
	})

	pools, err := client.ListPools(context.Background(), "good")
	require.NoError(t, err)
	require.Len(t, pools, 2)
	assert.Equal(t, "Backyard", pools[0].Alias)

	_, err = client.ListPools(context.Background(), "expired")
	assert.ErrorIs(t, err, ErrAuthentication)
	var re *ResponseError
	assert.False(t, errors.As(err, &re))
}

func TestFetchPool(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/pools/p1", r.URL.Path)
		w.Write([]byte(`{"current_ph":7.21,"temperature":26.5,"current_orp":null,"waterflow_problem":false}`))
	})

	snap, err := client.FetchPool(context.Background(), "good", "p1")
	require.NoError(t, err)
	require.NotNil(t, snap.CurrentPH)
	assert.InDelta(t, 7.21, *snap.CurrentPH, 0.001)
	assert.Nil(t, snap.CurrentORP)
	assert.Nil(t, snap.SaltConcentration)
	require.NotNil(t, snap.WaterflowProblem)
	assert.False(t, *snap.WaterflowProblem)
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestFetchPool_ServerErrorIsResponseError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
		w.Write([]byte("upstream timeout"))
	})

	_, err := client.FetchPool(context.Background(), "good", "p1")
	var re *ResponseError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusGatewayTimeout, re.StatusCode)
	assert.Equal(t, "upstream timeout", re.Message)
}

func TestFetchPool_InvalidBody(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	})

	_, err := client.FetchPool(context.Background(), "good", "p1")
	var re *ResponseError
	assert.ErrorAs(t, err, &re)
}

func TestSetTargets(t *testing.T) {
	var got map[string]any
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/pools/p1/targets", r.URL.Path)
		got = map[string]any{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	ctx := context.Background()
	require.NoError(t, client.SetTargetPH(ctx, "good", "p1", 7.2))
	assert.Equal(t, map[string]any{"target_ph": 7.2}, got)

	require.NoError(t, client.SetTargetORP(ctx, "good", "p1", 700))
	assert.Equal(t, map[string]any{"target_orp": float64(700)}, got)

	require.NoError(t, client.SetTargetClPPM(ctx, "good", "p1", 1.5))
	assert.Equal(t, map[string]any{"target_clppm": 1.5}, got)

	require.NoError(t, client.SetTargetElectrolysis(ctx, "good", "p1", 80))
	assert.Equal(t, map[string]any{"target_percentage_electrolysis": float64(80)}, got)
}

func TestClientError_Timeout(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	client.client.Timeout = 20 * time.Millisecond

	_, err := client.ListPools(context.Background(), "good")
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Timeout())
}

func TestClientError_Unreachable(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:1", time.Second)

	_, err := client.ListPools(context.Background(), "good")
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.False(t, ce.Timeout())
	assert.False(t, errors.Is(err, ErrAuthentication))
}
