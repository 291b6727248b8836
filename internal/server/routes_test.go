package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/berfenger/zeropv2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, healthy bool) (*Server, func()) {
	as := actor.NewActorSystem()
	pid := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch ctx.Message().(type) {
		case domain.ActorHealthRequest:
			ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: healthy})
		case domain.GetFeedInStatusRequest:
			ctx.Respond(domain.GetFeedInStatusResponse{
				Enabled:           true,
				State:             "active",
				TargetFeedInWatts: -800,
			})
		}
	}))
	s := &Server{
		rootContext:    as.Root,
		masterActor:    pid,
		requestTimeout: time.Second,
	}
	return s, as.Shutdown
}

func TestHealthCheckHandler(t *testing.T) {
	for _, healthy := range []bool{true, false} {
		s, shutdown := testServer(t, healthy)

		rec := httptest.NewRecorder()
		s.RegisterRoutes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
		if healthy {
			assert.Equal(t, http.StatusOK, rec.Code)
		} else {
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		}
		shutdown()
	}
}

func TestStatusHandler(t *testing.T) {
	s, shutdown := testServer(t, true)
	defer shutdown()

	rec := httptest.NewRecorder()
	s.RegisterRoutes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["enabled"])
	assert.Equal(t, "active", body["state"])
	assert.Equal(t, -800.0, body["target_feed_in_watts"])
	assert.NotContains(t, body, "ResponseError")
}
