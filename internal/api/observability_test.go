package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pong-arena/internal/config"
	"pong-arena/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugServerBindsLocalhost(t *testing.T) {
	tests := []struct {
		name          string
		listenAddr    string
		allowExternal bool
		want          string
	}{
		{"default", "127.0.0.1:6060", false, "127.0.0.1:6060"},
		{"localhost alias", "localhost:6060", false, "localhost:6060"},
		{"external forced local", "0.0.0.0:6060", false, "127.0.0.1:6060"},
		{"other port forced local", "127.0.0.1:7070", false, "127.0.0.1:6060"},
		{"external allowed", "0.0.0.0:6060", true, "0.0.0.0:6060"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultObservability()
			cfg.ListenAddr = tt.listenAddr
			cfg.AllowExternal = tt.allowExternal

			assert.Equal(t, tt.want, debugServer(cfg).Addr)
		})
	}
}

func TestDebugServerBasicAuth(t *testing.T) {
	cfg := config.DefaultObservability()
	cfg.BasicAuthUser = "ops"
	cfg.BasicAuthPass = "secret"

	ts := httptest.NewServer(debugServer(cfg).Handler)
	defer ts.Close()

	get := func(user, pass string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
		require.NoError(t, err)
		if user != "" {
			req.SetBasicAuth(user, pass)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	resp := get("", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")

	assert.Equal(t, http.StatusUnauthorized, get("ops", "wrong").StatusCode)

	resp = get("ops", "secret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))

	assert.Equal(t, http.StatusOK, get("ops", "secret").StatusCode)
}

func TestDebugServerWithoutCredentials(t *testing.T) {
	ts := httptest.NewServer(debugServer(config.DefaultObservability()).Handler)
	defer ts.Close()

	for _, path := range []string{"/health", "/metrics"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestRecordTickUpdatesMatchMetrics(t *testing.T) {
	bounces := testutil.ToFloat64(paddleBounces)
	points := testutil.ToFloat64(pointsScored.WithLabelValues("2"))
	finished := testutil.ToFloat64(matchesFinished)

	RecordTick(game.TickResult{
		Snapshot: game.Snapshot{
			Player1: game.PlayerSnapshot{ID: "a"},
			Player2: game.PlayerSnapshot{ID: "b"},
			Status:  "game-over",
		},
		Outcome: game.Outcome{Advanced: true, Bounce: game.Slot1, Scored: game.Slot2, GameOver: true},
	})

	assert.Equal(t, bounces+1, testutil.ToFloat64(paddleBounces))
	assert.Equal(t, points+1, testutil.ToFloat64(pointsScored.WithLabelValues("2")))
	assert.Equal(t, finished+1, testutil.ToFloat64(matchesFinished))
	assert.Equal(t, 2.0, testutil.ToFloat64(seatedPlayers))
	assert.Equal(t, float64(game.PhaseGameOver), testutil.ToFloat64(matchPhase))

	// A quiet tick leaves the counters alone
	RecordTick(game.TickResult{
		Snapshot: game.Snapshot{Player1: game.PlayerSnapshot{ID: "a"}, Status: "waiting"},
	})

	assert.Equal(t, bounces+1, testutil.ToFloat64(paddleBounces))
	assert.Equal(t, points+1, testutil.ToFloat64(pointsScored.WithLabelValues("2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(seatedPlayers))
	assert.Equal(t, float64(game.PhaseWaiting), testutil.ToFloat64(matchPhase))
}

func TestMetricsMiddlewareLabelsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(metricsMiddleware)
	r.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	matched := requestTotal.WithLabelValues("GET", "/things/{id}", http.StatusText(http.StatusTeapot))
	before := testutil.ToFloat64(matched)

	for _, path := range []string{"/things/1", "/things/2"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
	}

	// Recorded after the handler returns, which may trail the response
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(matched) == before+2
	}, time.Second, 5*time.Millisecond)
}
