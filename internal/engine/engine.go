package engine

import (
	"context"

	"github.com/nerrad567/gray-logic-clientwrap/internal/settings"
)

// Engine is the capability set every protocol generation provides.
//
// Methods block until the broker acknowledges or ctx ends. Failures carry a
// numeric reason code (see ReasonError). Implementations are not required to
// be safe for concurrent command issuance; callers serialise commands.
type Engine interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error
	Subscribe(ctx context.Context, filter string, qos byte) error
	Unsubscribe(ctx context.Context, filters ...string) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	// SetCallback installs the event receiver. nil removes it; events raised
	// while no receiver is installed are dropped.
	SetCallback(ev Events)

	Version() settings.ProtocolVersion
}

// Events receives what the engine observes on its own goroutines.
//
// The MQTT 3.1.1 engine only raises MessageArrived, ConnectionLost and
// DeliveryComplete.
type Events interface {
	ConnectComplete(reconnect bool, serverURI string)
	MessageArrived(msg Message)
	ConnectionLost(props Properties)
	DeliveryComplete(messageID int)
	ProtocolError(err error)
	AuthArrived(reasonCode int, props Properties)
}

// Message is an inbound PUBLISH as the engine decoded it.
type Message struct {
	Topic     string
	Payload   []byte
	ID        int
	QoS       byte
	Retained  bool
	Duplicate bool
}

// Properties are the MQTT 5 packet properties attached to disconnect and
// auth events. The MQTT 3.1.1 engine only fills ReasonString.
//
// ReasonCode is a taxonomy code (or an unmapped raw code) and is only
// meaningful when HasReasonCode is set.
type Properties struct {
	ReasonCode    int
	HasReasonCode bool

	ReasonString     string
	ServerReference  string
	ContentType      string
	ResponseTopic    string
	AssignedClientID string
	AuthMethod       string
	ResponseInfo     string
}

// Factory builds an engine for a broker address and config.
type Factory func(addr settings.BrokerAddress, cfg settings.ConnectionConfig) (Engine, error)

// Logger is the logging interface engines write to.
// *logging.Logger and *slog.Logger satisfy it.
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

// Options tune engine construction. The zero value is usable.
type Options struct {
	// TLS builds the secure transport when TLS is enabled.
	// DefaultTLSProvider is used when nil.
	TLS TLSProvider

	Logger Logger
}

func (o Options) withDefaults() Options {
	if o.TLS == nil {
		o.TLS = DefaultTLSProvider{}
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o
}

// New builds the engine matching cfg.Version. It is the only place the
// protocol generation is chosen.
func New(addr settings.BrokerAddress, cfg settings.ConnectionConfig, opts Options) (Engine, error) {
	opts = opts.withDefaults()
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	addr = addr.WithTLS(cfg.TLS.Enabled)
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Version {
	case settings.Legacy:
		return newLegacy(addr, cfg, opts), nil
	default:
		return newModern(addr, cfg, opts), nil
	}
}

// NewFactory returns a Factory that calls New with opts.
func NewFactory(opts Options) Factory {
	return func(addr settings.BrokerAddress, cfg settings.ConnectionConfig) (Engine, error) {
		return New(addr, cfg, opts)
	}
}
