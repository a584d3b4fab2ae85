package clientwrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-clientwrap/internal/client"
	"github.com/nerrad567/gray-logic-clientwrap/internal/dispatch"
	"github.com/nerrad567/gray-logic-clientwrap/internal/registry"
	"github.com/nerrad567/gray-logic-clientwrap/internal/settings"
)

// Wrapper is the entry point for applications: one broker, one protocol
// generation, one set of status handlers.
//
// The underlying client is owned by the registry; Wrapper only holds a
// reference. Two Wrappers for the same broker share one client.
type Wrapper struct {
	reg    *registry.Registry
	client *client.Client
}

// New resolves the client for rawAddr through reg, creating it when the
// broker has none. h is installed only when a new client is created; use
// SetStatusHandlers to replace the handlers of a shared client.
func New(ctx context.Context, reg *registry.Registry, rawAddr string, cfg settings.ConnectionConfig, h dispatch.Handlers) (*Wrapper, error) {
	addr, err := settings.ParseBrokerAddress(rawAddr)
	if err != nil {
		return nil, err
	}
	return NewWithAddress(ctx, reg, addr, cfg, h)
}

// NewWithAddress is New for an already parsed address.
func NewWithAddress(ctx context.Context, reg *registry.Registry, addr settings.BrokerAddress, cfg settings.ConnectionConfig, h dispatch.Handlers) (*Wrapper, error) {
	c, err := reg.ResolveOrCreate(ctx, addr, cfg, h)
	if err != nil {
		return nil, err
	}
	return &Wrapper{reg: reg, client: c}, nil
}

// Address returns the canonical broker address.
func (w *Wrapper) Address() string { return w.client.Address().String() }

// Version returns the protocol generation in use.
func (w *Wrapper) Version() settings.ProtocolVersion { return w.client.Version() }

// Connect opens the session. If an earlier Disconnect removed the client
// from the registry, it is registered again first; that fails with
// registry.ErrDuplicateClient when another client has taken the address
// in the meantime.
func (w *Wrapper) Connect(ctx context.Context) error {
	if err := w.reg.Register(w.client); err != nil {
		if errors.Is(err, registry.ErrDuplicateClient) {
			return fmt.Errorf("reconnecting %s: %w", w.Address(), err)
		}
		return err
	}
	return w.client.Connect(ctx)
}

// Publish sends payload to topic. timeout bounds the wait for the
// acknowledgement; zero means client.DefaultPublishTimeout.
func (w *Wrapper) Publish(ctx context.Context, topic string, payload []byte, qos settings.QoS, retained bool, timeout time.Duration) error {
	return w.client.Publish(ctx, topic, payload, qos, retained, timeout)
}

// Subscribe registers a topic filter.
func (w *Wrapper) Subscribe(ctx context.Context, filter string, qos settings.QoS) error {
	return w.client.Subscribe(ctx, filter, qos)
}

// Unsubscribe removes one or more topic filters.
func (w *Wrapper) Unsubscribe(ctx context.Context, filters ...string) error {
	return w.client.Unsubscribe(ctx, filters...)
}

// Disconnect closes the session and removes the client from the registry.
// The disconnect error, if any, is returned after deregistration.
func (w *Wrapper) Disconnect(ctx context.Context) error {
	err := w.client.Disconnect(ctx)
	if derr := w.reg.Deregister(w.client); derr != nil && !errors.Is(derr, registry.ErrNotRegistered) {
		return errors.Join(err, derr)
	}
	return err
}

// IsConnected reports whether the client is connected.
func (w *Wrapper) IsConnected() bool {
	return w.client.IsConnected()
}

// SetStatusHandlers replaces the status handlers of the shared client.
func (w *Wrapper) SetStatusHandlers(h dispatch.Handlers) {
	w.client.SetHandlers(h)
}

// Stats returns the client's status-event counters.
func (w *Wrapper) Stats() dispatch.Stats {
	return w.client.Stats()
}
