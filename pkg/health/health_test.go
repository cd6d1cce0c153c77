package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(h http.HandlerFunc) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestReady_ManualSwitch(t *testing.T) {
	r := New(1)

	w := serve(r.Ready)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"service":"not ready"}}`, w.Body.String())

	r.SetReady(true)
	w = serve(r.Ready)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestThreshold(t *testing.T) {
	r := New(2)
	r.SetReady(true)

	fail := true
	r.Add(Readiness, "db", time.Second, func(context.Context) error {
		if fail {
			return errors.New("connection refused")
		}
		return nil
	})

	ctx := context.Background()
	r.evaluate(ctx)
	assert.Equal(t, http.StatusOK, serve(r.Ready).Code, "one failure is tolerated")

	r.evaluate(ctx)
	w := serve(r.Ready)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"db":"connection refused"}}`, w.Body.String())

	fail = false
	r.evaluate(ctx)
	assert.Equal(t, http.StatusOK, serve(r.Ready).Code)
}

func TestLiveIgnoresReadiness(t *testing.T) {
	r := New(1)
	r.Add(Readiness, "db", time.Second, func(context.Context) error { return errors.New("down") })
	r.Add(Liveness, "goroutines", time.Second, Goroutines(1<<20))
	r.evaluate(context.Background())

	assert.Equal(t, http.StatusOK, serve(r.Live).Code)
}

func TestCheckTimeout(t *testing.T) {
	r := New(1)
	r.Add(Liveness, "slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	r.evaluate(context.Background())

	assert.Equal(t, http.StatusServiceUnavailable, serve(r.Live).Code)
}

func TestRun_StopsOnCancel(t *testing.T) {
	r := New(1)
	calls := make(chan struct{}, 10)
	r.Add(Liveness, "tick", time.Second, func(context.Context) error {
		calls <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, time.Hour) }()

	<-calls
	cancel()
	require.NoError(t, <-done)
}

func TestBacklog(t *testing.T) {
	depth := 3
	check := Backlog(func() int { return depth }, 5)
	require.NoError(t, check(context.Background()))

	depth = 6
	require.Error(t, check(context.Background()))
}
