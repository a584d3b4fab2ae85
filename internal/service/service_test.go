package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	s := New(Config{})

	assert.Equal(t, 30*time.Second, s.config.HealthCheckInterval)
	assert.Equal(t, "mqtt-clients", s.config.Name)
	assert.Equal(t, StatusStopped, s.Status())
}

func TestStart_FirstTokenStartsService(t *testing.T) {
	var started []string
	s := New(Config{OnStart: func(token string) { started = append(started, token) }})

	s.Start("mqtt://a.local:1883")
	s.Start("mqtt://a.local:1883")
	s.Start("mqtt://b.local:1883")

	require.True(t, s.IsRunning(), "status = %v", s.Status())
	assert.Len(t, started, 2, "OnStart runs once per distinct token")

	tokens := s.Tokens()
	require.Len(t, tokens, 2)
	assert.Equal(t, "mqtt://a.local:1883", tokens[0])

	require.NoError(t, s.Stop(context.Background()))
}

func TestStop_RunsHookSynchronously(t *testing.T) {
	var hookDone atomic.Bool
	s := New(Config{OnStop: func(context.Context) error {
		time.Sleep(20 * time.Millisecond)
		hookDone.Store(true)
		return nil
	}})
	s.Start("mqtt://a.local:1883")

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, hookDone.Load(), "Stop returned before OnStop finished")
	assert.Equal(t, StatusStopped, s.Status())
	assert.Empty(t, s.Tokens())
}

func TestStop_ReturnsHookError(t *testing.T) {
	hookErr := errors.New("one client failed")
	s := New(Config{OnStop: func(context.Context) error { return hookErr }})
	s.Start("mqtt://a.local:1883")

	err := s.Stop(context.Background())
	require.ErrorIs(t, err, hookErr)
	assert.ErrorIs(t, s.LastError(), hookErr)
}

func TestStop_WhenStoppedIsNoop(t *testing.T) {
	called := false
	s := New(Config{OnStop: func(context.Context) error { called = true; return nil }})

	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, called, "OnStop ran for a service that never started")
}

func TestSetOnStop(t *testing.T) {
	s := New(Config{})
	called := false
	s.SetOnStop(func(context.Context) error { called = true; return nil })
	s.Start("t")

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, called, "hook set after construction was not run")
}

func TestHealthMonitor(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	s := New(Config{
		HealthCheckInterval: 10 * time.Millisecond,
		HealthCheckFunc: func(context.Context) map[string]bool {
			mu.Lock()
			defer mu.Unlock()
			calls++
			return map[string]bool{"mqtt://a.local:1883": true, "mqtt://b.local:1883": false}
		},
	})
	s.Start("mqtt://a.local:1883")

	require.Eventually(t, func() bool { return s.Stats().HealthFailures > 0 }, 2*time.Second, 5*time.Millisecond)

	stats := s.Stats()
	assert.Equal(t, 1, stats.HealthFailures)
	assert.Equal(t, StatusRunning, stats.Status)

	require.NoError(t, s.Stop(context.Background()))

	mu.Lock()
	after := calls
	mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, after, calls, "health checks continued after Stop")
}

func TestStartAfterStop(t *testing.T) {
	s := New(Config{})
	s.Start("a")
	require.NoError(t, s.Stop(context.Background()))

	s.Start("b")
	assert.True(t, s.IsRunning(), "status = %v after restart", s.Status())
	assert.GreaterOrEqual(t, s.Uptime(), time.Duration(0))
	_ = s.Stop(context.Background())
}
