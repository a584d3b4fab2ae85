package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-clientwrap/internal/client"
	"github.com/nerrad567/gray-logic-clientwrap/internal/dispatch"
	"github.com/nerrad567/gray-logic-clientwrap/internal/engine/enginetest"
	"github.com/nerrad567/gray-logic-clientwrap/internal/mqtterr"
	"github.com/nerrad567/gray-logic-clientwrap/internal/settings"
)

type hostRecorder struct {
	mu     sync.Mutex
	tokens []string
}

func (h *hostRecorder) Start(token string) {
	h.mu.Lock()
	h.tokens = append(h.tokens, token)
	h.mu.Unlock()
}

func (h *hostRecorder) get() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.tokens...)
}

func mustParse(t *testing.T, raw string) settings.BrokerAddress {
	t.Helper()
	addr, err := settings.ParseBrokerAddress(raw)
	require.NoError(t, err)
	return addr
}

func newTestRegistry(host Host) (*Registry, *enginetest.Factory) {
	factory := &enginetest.Factory{}
	return New(Options{Host: host, Engines: factory.New}), factory
}

// =============================================================================
// Resolution Tests
// =============================================================================

func TestResolveOrCreateReturnsSingleClient(t *testing.T) {
	host := &hostRecorder{}
	reg, factory := newTestRegistry(host)
	ctx := context.Background()
	cfg := settings.DefaultConnectionConfig()

	first, err := reg.ResolveOrCreate(ctx, mustParse(t, "mqtt://Broker.Local:1883"), cfg, dispatch.Handlers{})
	require.NoError(t, err)
	second, err := reg.ResolveOrCreate(ctx, mustParse(t, "tcp://broker.local:1883"), cfg, dispatch.Handlers{})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, factory.Built(), 1)
	assert.Equal(t, []string{"mqtt://broker.local:1883"}, host.get())
	assert.Equal(t, 1, reg.Len())
}

func TestResolveOrCreateFoldsTLSIntoKey(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	ctx := context.Background()

	secure := settings.DefaultConnectionConfig()
	secure.TLS.Enabled = true

	a, err := reg.ResolveOrCreate(ctx, mustParse(t, "mqtt://broker.local:8883"), secure, dispatch.Handlers{})
	require.NoError(t, err)
	b, err := reg.ResolveOrCreate(ctx, mustParse(t, "mqtts://broker.local:8883"), secure, dispatch.Handlers{})
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, []string{"mqtts://broker.local:8883"}, reg.Keys())
}

func TestResolveOrCreateConcurrent(t *testing.T) {
	reg, factory := newTestRegistry(nil)
	addr := mustParse(t, "mqtt://broker.local")

	var wg sync.WaitGroup
	results := make([]*client.Client, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := reg.ResolveOrCreate(context.Background(), addr, settings.DefaultConnectionConfig(), dispatch.Handlers{})
			assert.NoError(t, err)
			results[i] = c
		}()
	}
	wg.Wait()

	for _, c := range results {
		assert.Same(t, results[0], c)
	}
	assert.Len(t, factory.Built(), 1)
}

func TestConfigDriftKeepsExistingClient(t *testing.T) {
	var drifted []string
	factory := &enginetest.Factory{}
	reg := New(Options{
		Engines: factory.New,
		OnConfigDrift: func(addr string, existing, requested settings.ConnectionConfig) {
			drifted = append(drifted, addr)
			assert.Equal(t, settings.Modern, existing.Version)
			assert.Equal(t, settings.Legacy, requested.Version)
		},
	})
	ctx := context.Background()
	addr := mustParse(t, "mqtt://broker.local")

	first, err := reg.ResolveOrCreate(ctx, addr, settings.DefaultConnectionConfig(), dispatch.Handlers{})
	require.NoError(t, err)

	legacy := settings.DefaultConnectionConfig()
	legacy.Version = settings.Legacy
	second, err := reg.ResolveOrCreate(ctx, addr, legacy, dispatch.Handlers{})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, settings.Modern, second.Version())
	assert.Equal(t, []string{"mqtt://broker.local:1883"}, drifted)

	_, err = reg.ResolveOrCreate(ctx, addr, settings.DefaultConnectionConfig(), dispatch.Handlers{})
	require.NoError(t, err)
	assert.Len(t, drifted, 1, "an identical config is not drift")
}

func TestResolveOrCreateFactoryError(t *testing.T) {
	factory := &enginetest.Factory{Err: errors.New("no engine")}
	host := &hostRecorder{}
	reg := New(Options{Host: host, Engines: factory.New})

	_, err := reg.ResolveOrCreate(context.Background(), mustParse(t, "mqtt://broker.local"), settings.DefaultConnectionConfig(), dispatch.Handlers{})

	assert.Error(t, err)
	assert.Zero(t, reg.Len())
	assert.Empty(t, host.get())
}

// =============================================================================
// Registration Tests
// =============================================================================

func TestRegisterRejectsDuplicate(t *testing.T) {
	host := &hostRecorder{}
	reg, _ := newTestRegistry(host)
	addr := mustParse(t, "mqtt://broker.local")
	cfg := settings.DefaultConnectionConfig()

	a := client.New(addr, cfg, enginetest.New(settings.Modern), dispatch.Handlers{}, client.Options{})
	b := client.New(addr, cfg, enginetest.New(settings.Modern), dispatch.Handlers{}, client.Options{})

	require.NoError(t, reg.Register(a))
	require.NoError(t, reg.Register(a), "re-registering the same client is harmless")
	assert.ErrorIs(t, reg.Register(b), ErrDuplicateClient)

	got, ok := reg.Get(addr, cfg)
	require.True(t, ok)
	assert.Same(t, a, got, "a duplicate never replaces the registered client")
	assert.Equal(t, []string{"mqtt://broker.local:1883"}, host.get(), "only the inserting call announces the client")
}

func TestRegisterAfterTeardownAnnouncesAgain(t *testing.T) {
	host := &hostRecorder{}
	reg, _ := newTestRegistry(host)
	ctx := context.Background()

	c, err := reg.ResolveOrCreate(ctx, mustParse(t, "mqtt://broker.local"), settings.DefaultConnectionConfig(), dispatch.Handlers{})
	require.NoError(t, err)
	require.NoError(t, reg.Teardown(ctx))

	require.NoError(t, reg.Register(c))
	assert.Equal(t, []string{"mqtt://broker.local:1883", "mqtt://broker.local:1883"}, host.get())
	assert.Equal(t, 1, reg.Len())
}

func TestGetFoldsTLSIntoKey(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	ctx := context.Background()
	addr := mustParse(t, "mqtt://broker.local:8883")
	cfg := settings.DefaultConnectionConfig()
	cfg.TLS.Enabled = true

	c, err := reg.ResolveOrCreate(ctx, addr, cfg, dispatch.Handlers{})
	require.NoError(t, err)

	got, ok := reg.Get(addr, cfg)
	require.True(t, ok)
	assert.Same(t, c, got)

	_, ok = reg.Get(addr, settings.DefaultConnectionConfig())
	assert.False(t, ok, "the plain address names a different client")
}

func TestDeregister(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	addr := mustParse(t, "mqtt://broker.local")
	cfg := settings.DefaultConnectionConfig()

	a := client.New(addr, cfg, enginetest.New(settings.Modern), dispatch.Handlers{}, client.Options{})
	b := client.New(addr, cfg, enginetest.New(settings.Modern), dispatch.Handlers{}, client.Options{})
	require.NoError(t, reg.Register(a))

	assert.ErrorIs(t, reg.Deregister(b), ErrNotRegistered, "only the registered client can be removed")
	require.NoError(t, reg.Deregister(a))
	assert.ErrorIs(t, reg.Deregister(a), ErrNotRegistered)
	assert.Zero(t, reg.Len())
}

// =============================================================================
// Teardown Tests
// =============================================================================

func TestTeardownContinuesPastFailures(t *testing.T) {
	reg, factory := newTestRegistry(nil)
	ctx := context.Background()

	for _, raw := range []string{"mqtt://a.local", "mqtt://b.local", "mqtt://c.local"} {
		c, err := reg.ResolveOrCreate(ctx, mustParse(t, raw), settings.DefaultConnectionConfig(), dispatch.Handlers{})
		require.NoError(t, err)
		require.NoError(t, c.Connect(ctx))
	}
	fakes := factory.Built()
	require.Len(t, fakes, 3)
	fakes[1].DisconnectErr = errors.New("broken pipe")

	err := reg.Teardown(ctx)

	var te *TeardownError
	require.ErrorAs(t, err, &te)
	require.Len(t, te.Failures, 1)
	assert.Contains(t, te.Failures, "mqtt://b.local:1883")
	assert.ErrorIs(t, err, mqtterr.ClientException)

	assert.Zero(t, reg.Len())
	for _, f := range fakes {
		assert.Equal(t, 1, f.CallCount("disconnect"), "every client gets its disconnect")
		assert.False(t, f.IsConnected())
	}
}

func TestTeardownWaitsForInFlightConnect(t *testing.T) {
	gate := make(chan struct{})
	factory := &enginetest.Factory{Prepare: func(f *enginetest.Fake) { f.ConnectGate = gate }}
	reg := New(Options{Engines: factory.New})
	ctx := context.Background()

	c, err := reg.ResolveOrCreate(ctx, mustParse(t, "mqtt://slow.local"), settings.DefaultConnectionConfig(), dispatch.Handlers{})
	require.NoError(t, err)

	connectErr := make(chan error, 1)
	go func() { connectErr <- c.Connect(ctx) }()
	fake := factory.Built()[0]
	require.Eventually(t, func() bool { return fake.CallCount("connect") == 1 }, time.Second, time.Millisecond)

	teardownErr := make(chan error, 1)
	go func() { teardownErr <- reg.Teardown(ctx) }()

	select {
	case err := <-teardownErr:
		t.Fatalf("teardown returned before the connect finished: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	require.NoError(t, <-connectErr)
	require.NoError(t, <-teardownErr)

	assert.Zero(t, reg.Len())
	assert.Equal(t, client.Disconnected, c.State())
	assert.False(t, fake.IsConnected())
	assert.Equal(t, 1, fake.CallCount("disconnect"))
}

func TestTeardownCancelsConnectPastDeadline(t *testing.T) {
	factory := &enginetest.Factory{Prepare: func(f *enginetest.Fake) { f.ConnectGate = make(chan struct{}) }}
	reg := New(Options{Engines: factory.New})

	c, err := reg.ResolveOrCreate(context.Background(), mustParse(t, "mqtt://stuck.local"), settings.DefaultConnectionConfig(), dispatch.Handlers{})
	require.NoError(t, err)

	connectErr := make(chan error, 1)
	go func() { connectErr <- c.Connect(context.Background()) }()
	fake := factory.Built()[0]
	require.Eventually(t, func() bool { return fake.CallCount("connect") == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, reg.Teardown(ctx))

	assert.ErrorIs(t, <-connectErr, mqtterr.ClientClosed)
	assert.Zero(t, reg.Len())
	assert.Equal(t, client.Disconnected, c.State())
	assert.False(t, fake.IsConnected())
}

func TestTeardownEmpty(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	assert.NoError(t, reg.Teardown(context.Background()))
}

func TestHealth(t *testing.T) {
	reg, _ := newTestRegistry(nil)
	ctx := context.Background()

	up, err := reg.ResolveOrCreate(ctx, mustParse(t, "mqtt://up.local"), settings.DefaultConnectionConfig(), dispatch.Handlers{})
	require.NoError(t, err)
	require.NoError(t, up.Connect(ctx))
	_, err = reg.ResolveOrCreate(ctx, mustParse(t, "mqtt://down.local"), settings.DefaultConnectionConfig(), dispatch.Handlers{})
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{
		"mqtt://up.local:1883":   true,
		"mqtt://down.local:1883": false,
	}, reg.Health(ctx))

	require.NoError(t, reg.Teardown(ctx))
}
