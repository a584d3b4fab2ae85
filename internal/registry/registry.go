package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-clientwrap/internal/client"
	"github.com/nerrad567/gray-logic-clientwrap/internal/dispatch"
	"github.com/nerrad567/gray-logic-clientwrap/internal/engine"
	"github.com/nerrad567/gray-logic-clientwrap/internal/settings"
)

// Host is the background service that keeps clients alive. Start is called
// with the canonical address each time a client is created.
type Host interface {
	Start(token string)
}

// HostFunc adapts a function to Host.
type HostFunc func(token string)

// Start implements Host.
func (f HostFunc) Start(token string) { f(token) }

// Logger is the logging interface the registry writes to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configure a Registry.
type Options struct {
	// Host is signalled for every new client. Optional.
	Host Host

	// Engines builds the engine for a new client. Defaults to
	// engine.NewFactory with Logger.
	Engines engine.Factory

	Logger Logger

	// Client is passed to every client the registry creates.
	Client client.Options

	// OnConfigDrift is called when ResolveOrCreate finds a client whose
	// config differs from the requested one. The existing client is kept.
	OnConfigDrift func(addr string, existing, requested settings.ConnectionConfig)
}

// Registry keeps at most one client per canonical broker address.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - ResolveOrCreate holds the registry lock while building a client, so
//     concurrent callers for one address get the same client.
type Registry struct {
	opts Options

	mu      sync.Mutex
	clients map[string]*client.Client
}

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Engines == nil {
		opts.Engines = engine.NewFactory(engine.Options{Logger: opts.Logger})
	}
	if opts.Client.Logger == nil {
		opts.Client.Logger = opts.Logger
	}
	return &Registry{
		opts:    opts,
		clients: make(map[string]*client.Client),
	}
}

// key canonicalises addr, folding TLS enablement into the scheme.
func key(addr settings.BrokerAddress, cfg settings.ConnectionConfig) string {
	return addr.WithTLS(cfg.TLS.Enabled).String()
}

// ResolveOrCreate returns the client registered for addr, creating,
// registering and announcing one when there is none.
//
// An existing client always wins. When its config differs from cfg the
// drift is logged at warn level and reported through OnConfigDrift; h is
// not applied to it.
func (r *Registry) ResolveOrCreate(_ context.Context, addr settings.BrokerAddress, cfg settings.ConnectionConfig, h dispatch.Handlers) (*client.Client, error) {
	k := key(addr, cfg)

	r.mu.Lock()
	if c, ok := r.clients[k]; ok {
		r.mu.Unlock()
		r.checkDrift(k, c.Config(), cfg)
		return c, nil
	}

	c, err := client.Build(r.opts.Engines, addr, cfg, h, r.opts.Client)
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("creating client for %s: %w", k, err)
	}
	r.clients[k] = c
	r.mu.Unlock()

	r.opts.Logger.Info("mqtt client registered", "broker", k, "version", c.Version().String())
	if r.opts.Host != nil {
		r.opts.Host.Start(k)
	}
	return c, nil
}

func (r *Registry) checkDrift(k string, existing, requested settings.ConnectionConfig) {
	if existing == requested.Normalized() {
		return
	}
	r.opts.Logger.Warn("mqtt client reused with a different config; existing config kept",
		"broker", k,
		"existing_version", existing.Version.String(),
		"requested_version", requested.Normalized().Version.String(),
	)
	if r.opts.OnConfigDrift != nil {
		r.opts.OnConfigDrift(k, existing, requested)
	}
}

// Register adds c under its own address and announces it to the host, as
// ResolveOrCreate does. It never replaces an existing entry; registering
// the same client twice is a no-op.
func (r *Registry) Register(c *client.Client) error {
	k := c.Address().String()

	r.mu.Lock()
	if existing, ok := r.clients[k]; ok {
		r.mu.Unlock()
		if existing == c {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDuplicateClient, k)
	}
	r.clients[k] = c
	r.mu.Unlock()

	r.opts.Logger.Info("mqtt client registered", "broker", k, "version", c.Version().String())
	if r.opts.Host != nil {
		r.opts.Host.Start(k)
	}
	return nil
}

// Deregister removes c if it is the client registered for its address.
func (r *Registry) Deregister(c *client.Client) error {
	k := c.Address().String()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.clients[k]; !ok || existing != c {
		return fmt.Errorf("%w: %s", ErrNotRegistered, k)
	}
	delete(r.clients, k)
	return nil
}

// Get returns the client ResolveOrCreate would return for addr and cfg,
// without creating one.
func (r *Registry) Get(addr settings.BrokerAddress, cfg settings.ConnectionConfig) (*client.Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[key(addr, cfg)]
	return c, ok
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Keys returns the registered addresses, sorted.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.clients))
	for k := range r.clients {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Teardown closes every client concurrently, waits for all of them, then
// empties the registry. A client still connecting is closed once its
// connect returns (see client.Close). A failing client never stops the
// others; the failures are returned as a *TeardownError.
func (r *Registry) Teardown(ctx context.Context) error {
	r.mu.Lock()
	snapshot := make(map[string]*client.Client, len(r.clients))
	for k, c := range r.clients {
		snapshot[k] = c
	}
	r.mu.Unlock()

	var (
		failMu   sync.Mutex
		failures = make(map[string]error)
	)

	var g errgroup.Group
	for k, c := range snapshot {
		g.Go(func() error {
			if err := c.Close(ctx); err != nil {
				failMu.Lock()
				failures[k] = err
				failMu.Unlock()
				r.opts.Logger.Warn("mqtt client failed to disconnect during teardown", "broker", k, "error", err)
			}
			// Never cancel siblings: every client gets its disconnect.
			return nil
		})
	}
	_ = g.Wait()

	r.mu.Lock()
	for k, c := range snapshot {
		if r.clients[k] == c {
			delete(r.clients, k)
		}
	}
	r.mu.Unlock()

	r.opts.Logger.Info("mqtt registry torn down", "clients", len(snapshot), "failures", len(failures))

	if len(failures) > 0 {
		return &TeardownError{Failures: failures}
	}
	return nil
}

// Health reports the connection state of every registered client.
func (r *Registry) Health(_ context.Context) map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool, len(r.clients))
	for k, c := range r.clients {
		out[k] = c.IsConnected()
	}
	return out
}
