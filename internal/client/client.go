package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-clientwrap/internal/dispatch"
	"github.com/nerrad567/gray-logic-clientwrap/internal/engine"
	"github.com/nerrad567/gray-logic-clientwrap/internal/mqtterr"
	"github.com/nerrad567/gray-logic-clientwrap/internal/settings"
	"github.com/nerrad567/gray-logic-clientwrap/internal/topic"
)

// DefaultPublishTimeout bounds the wait for a publish acknowledgement when
// the caller passes no timeout.
const DefaultPublishTimeout = 2000 * time.Millisecond

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Logger is the logging interface the client writes to.
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

// Options tune a Client. The zero value is usable.
type Options struct {
	Logger Logger

	// Dispatch tunes the status dispatcher's queue.
	Dispatch dispatch.Options
}

// Client is one MQTT connection to one broker, for either protocol
// generation.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Engine commands are serialised by a per-client mutex.
//   - State checks never wait for an in-flight command, so Connect and
//     Disconnect fail fast instead of queueing.
type Client struct {
	addr   settings.BrokerAddress
	cfg    settings.ConnectionConfig
	engine engine.Engine
	disp   *dispatch.Dispatcher
	logger Logger

	stateMu sync.RWMutex
	state   State

	// connectDone is closed when the connect that entered Connecting
	// returns; cancelConnect aborts it. Both are guarded by stateMu.
	connectDone   chan struct{}
	cancelConnect context.CancelFunc

	// opMu serialises engine commands.
	opMu sync.Mutex
}

// New wraps eng, which must have been built for addr and cfg. cfg is
// copied; later changes to the caller's value have no effect.
func New(addr settings.BrokerAddress, cfg settings.ConnectionConfig, eng engine.Engine, h dispatch.Handlers, opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Dispatch.Logger == nil {
		opts.Dispatch.Logger = opts.Logger
	}

	c := &Client{
		addr:   addr.WithTLS(cfg.TLS.Enabled),
		cfg:    cfg.Normalized(),
		engine: eng,
		logger: opts.Logger,
	}
	opts.Dispatch.OnConnectionLost = c.handleConnectionLost
	c.disp = dispatch.New(h, opts.Dispatch)
	return c
}

// Build creates the engine with factory and wraps it.
func Build(factory engine.Factory, addr settings.BrokerAddress, cfg settings.ConnectionConfig, h dispatch.Handlers, opts Options) (*Client, error) {
	eng, err := factory(addr, cfg)
	if err != nil {
		return nil, err
	}
	return New(addr, cfg, eng, h, opts), nil
}

// Address returns the canonical broker address.
func (c *Client) Address() settings.BrokerAddress { return c.addr }

// Config returns the client's copy of its configuration.
func (c *Client) Config() settings.ConnectionConfig { return c.cfg }

// Version returns the protocol generation in use.
func (c *Client) Version() settings.ProtocolVersion { return c.engine.Version() }

// State returns the lifecycle state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected reports whether the state is Connected. It does not check
// the broker.
func (c *Client) IsConnected() bool {
	return c.State() == Connected
}

// Stats returns the status dispatcher counters.
func (c *Client) Stats() dispatch.Stats {
	return c.disp.Stats()
}

// SetHandlers replaces the status handlers. Events already queued are
// delivered to the new set.
func (c *Client) SetHandlers(h dispatch.Handlers) {
	c.disp.Swap(h)
}

// transition moves from one of from to to, or returns the current state.
func (c *Client) transition(to State, from ...State) (State, bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	for _, f := range from {
		if c.state == f {
			c.state = to
			return f, true
		}
	}
	return c.state, false
}

func (c *Client) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Connect opens the session. It fails fast unless the client is
// Disconnected.
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.stateMu.Lock()
	switch c.state {
	case Disconnected:
	case Connecting:
		c.stateMu.Unlock()
		return mqtterr.New(mqtterr.ConnectInProgress, "connect already in progress")
	case Connected:
		c.stateMu.Unlock()
		return mqtterr.New(mqtterr.ClientAlreadyConnected, "client is already connected")
	default:
		c.stateMu.Unlock()
		return mqtterr.New(mqtterr.ClientDisconnecting, "client is disconnecting")
	}
	c.state = Connecting
	done := make(chan struct{})
	c.connectDone = done
	c.cancelConnect = cancel
	c.stateMu.Unlock()
	defer close(done)

	c.opMu.Lock()
	defer c.opMu.Unlock()

	// The dispatcher is live before CONNECT so the initial ConnectComplete
	// and any early messages reach the handlers.
	c.disp.Start()
	c.engine.SetCallback(c.disp)

	if err := c.engine.Connect(ctx); err != nil {
		c.engine.SetCallback(nil)
		c.disp.Stop()
		c.setState(Disconnected)

		c.logger.Warn("mqtt connect failed", "broker", c.addr.String(), "version", c.Version().String(), "error", err)
		return mqtterr.Translate(err, "connect to "+c.addr.String()+" failed")
	}

	c.setState(Connected)
	c.logger.Info("mqtt connected", "broker", c.addr.String(), "version", c.Version().String())
	return nil
}

// Publish sends payload to name and waits up to timeout for the local
// acknowledgement. A zero timeout means DefaultPublishTimeout.
func (c *Client) Publish(ctx context.Context, name string, payload []byte, qos settings.QoS, retained bool, timeout time.Duration) error {
	if !c.IsConnected() {
		return mqtterr.New(mqtterr.ClientNotConnected, "publish: client is not connected")
	}
	if err := topic.ValidateName(name); err != nil {
		return &mqtterr.Error{Kind: mqtterr.ClientException, Code: mqtterr.ClientException.Code(), Message: err.Error(), Err: err}
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	qos = settings.QoSFromLevel(int(qos))
	if err := c.engine.Publish(ctx, name, payload, qos.Level(), retained); err != nil {
		return mqtterr.Translate(err, "publish to "+name+" failed")
	}
	return nil
}

// Subscribe registers filter at the given QoS. Its wait is bounded by ctx
// and the configured connect timeout.
func (c *Client) Subscribe(ctx context.Context, filter string, qos settings.QoS) error {
	if !c.IsConnected() {
		return mqtterr.New(mqtterr.ClientNotConnected, "subscribe: client is not connected")
	}
	if err := topic.ValidateFilter(filter); err != nil {
		return &mqtterr.Error{Kind: mqtterr.ClientException, Code: mqtterr.ClientException.Code(), Message: err.Error(), Err: err}
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	qos = settings.QoSFromLevel(int(qos))
	if err := c.engine.Subscribe(ctx, filter, qos.Level()); err != nil {
		return mqtterr.Translate(err, "subscribe to "+filter+" failed")
	}
	c.logger.Debug("mqtt subscribed", "broker", c.addr.String(), "filter", filter, "qos", qos.Level())
	return nil
}

// Unsubscribe removes one or more filters in a single request.
func (c *Client) Unsubscribe(ctx context.Context, filters ...string) error {
	if !c.IsConnected() {
		return mqtterr.New(mqtterr.ClientNotConnected, "unsubscribe: client is not connected")
	}
	if len(filters) == 0 {
		return mqtterr.New(mqtterr.ClientException, "unsubscribe: no topics given")
	}
	for _, f := range filters {
		if err := topic.ValidateFilter(f); err != nil {
			return &mqtterr.Error{Kind: mqtterr.ClientException, Code: mqtterr.ClientException.Code(), Message: err.Error(), Err: err}
		}
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	if err := c.engine.Unsubscribe(ctx, filters...); err != nil {
		return mqtterr.Translate(err, "unsubscribe failed")
	}
	return nil
}

// Disconnect closes the session. It is a no-op when already disconnected
// or disconnecting, and fails fast while a connect is in progress.
//
// The client ends Disconnected even when the engine reports a failure;
// that failure is still returned.
func (c *Client) Disconnect(ctx context.Context) error {
	if current, ok := c.transition(Disconnecting, Connected); !ok {
		if current == Connecting {
			return mqtterr.New(mqtterr.ConnectInProgress, "cannot disconnect while connecting")
		}
		if current == Disconnected {
			// A lost connection leaves the dispatcher running to deliver the loss.
			c.disp.Stop()
		}
		return nil
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()
	defer c.setState(Disconnected)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	err := c.engine.Disconnect(ctx)
	c.engine.SetCallback(nil)
	c.disp.Stop()

	if err != nil {
		c.logger.Warn("mqtt disconnect reported an error", "broker", c.addr.String(), "error", err)
		return mqtterr.Translate(err, "disconnect from "+c.addr.String()+" failed")
	}
	c.logger.Info("mqtt disconnected", "broker", c.addr.String())
	return nil
}

// Close disconnects the client whatever its state. Unlike Disconnect it
// does not fail while a connect is in flight: it waits for that connect to
// finish, cancelling it once ctx is done, and then disconnects.
func (c *Client) Close(ctx context.Context) error {
	for {
		c.stateMu.RLock()
		state, done, cancel := c.state, c.connectDone, c.cancelConnect
		c.stateMu.RUnlock()

		if state != Connecting {
			return c.Disconnect(ctx)
		}

		select {
		case <-done:
		case <-ctx.Done():
			c.logger.Warn("mqtt connect cancelled by close", "broker", c.addr.String())
			cancel()
			<-done
		}
	}
}

// handleConnectionLost runs on the engine goroutine. Without automatic
// reconnect the engine will not come back, so the client leaves Connected.
// The dispatcher keeps running so the loss event is delivered.
func (c *Client) handleConnectionLost() {
	if c.cfg.AutoReconnect {
		return
	}
	if _, ok := c.transition(Disconnected, Connected); ok {
		c.logger.Warn("mqtt connection lost", "broker", c.addr.String())
	}
}
