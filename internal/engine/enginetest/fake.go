// Package enginetest provides an in-memory engine.Engine for tests.
package enginetest

import (
	"context"
	"sync"

	"github.com/nerrad567/gray-logic-clientwrap/internal/engine"
	"github.com/nerrad567/gray-logic-clientwrap/internal/mqtterr"
	"github.com/nerrad567/gray-logic-clientwrap/internal/settings"
	"github.com/nerrad567/gray-logic-clientwrap/internal/topic"
)

// Call records one command issued to a Fake.
type Call struct {
	Op       string
	Topic    string
	Topics   []string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Fake is a scriptable engine. Set the *Err fields to make the next
// matching command fail; set Block to make commands wait for ctx.
//
// Published messages are looped back to matching subscriptions, each
// delivered once even when several filters match.
type Fake struct {
	mu sync.Mutex

	ConnectErr     error
	PublishErr     error
	SubscribeErr   error
	UnsubscribeErr error
	DisconnectErr  error

	// Block makes every command wait until ctx ends.
	Block bool

	// ConnectGate, when set, holds Connect until it is closed or ctx ends.
	ConnectGate chan struct{}

	version   settings.ProtocolVersion
	connected bool
	events    engine.Events
	subs      map[string]byte
	calls     []Call
	nextID    int
}

// New returns a disconnected fake of the given protocol generation.
func New(version settings.ProtocolVersion) *Fake {
	return &Fake{version: version, subs: make(map[string]byte)}
}

// Factory returns an engine.Factory handing out fakes and recording them.
type Factory struct {
	mu    sync.Mutex
	Err   error
	built []*Fake

	// Prepare, if set, configures every fake before it is returned.
	Prepare func(f *Fake)
}

// New implements engine.Factory.
func (f *Factory) New(_ settings.BrokerAddress, cfg settings.ConnectionConfig) (engine.Engine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	fake := New(cfg.Normalized().Version)
	if f.Prepare != nil {
		f.Prepare(fake)
	}
	f.built = append(f.built, fake)
	return fake, nil
}

// Built returns every fake created so far.
func (f *Factory) Built() []*Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Fake(nil), f.built...)
}

func (f *Fake) record(c Call) {
	f.calls = append(f.calls, c)
}

// Calls returns the recorded commands.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns how many commands named op were issued.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *Fake) block(ctx context.Context, op string) error {
	f.mu.Lock()
	block := f.Block
	f.mu.Unlock()
	if !block {
		return nil
	}
	<-ctx.Done()
	if ctx.Err() == context.DeadlineExceeded {
		return &engine.ReasonError{Code: mqtterr.ClientTimeout.Code(), Message: op + " timed out", Err: ctx.Err()}
	}
	return &engine.ReasonError{Code: mqtterr.ClientClosed.Code(), Message: op + " cancelled", Err: ctx.Err()}
}

func (f *Fake) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.record(Call{Op: "connect"})
	err := f.ConnectErr
	gate := f.ConnectGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return &engine.ReasonError{Code: mqtterr.ClientClosed.Code(), Message: "connect cancelled", Err: ctx.Err()}
		}
	}
	if err := f.block(ctx, "connect"); err != nil {
		return err
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.connected = true
	ev := f.events
	f.mu.Unlock()

	if ev != nil && f.version == settings.Modern {
		ev.ConnectComplete(false, "fake")
	}
	return nil
}

func (f *Fake) Publish(ctx context.Context, name string, payload []byte, qos byte, retained bool) error {
	f.mu.Lock()
	f.record(Call{Op: "publish", Topic: name, Payload: append([]byte(nil), payload...), QoS: qos, Retained: retained})
	err := f.PublishErr
	f.mu.Unlock()

	if err := f.block(ctx, "publish"); err != nil {
		return err
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.nextID++
	id := f.nextID
	ev := f.events
	var grant byte
	matched := false
	for filter, q := range f.subs {
		if topic.Match(filter, name) {
			if !matched || q > grant {
				grant = q
			}
			matched = true
		}
	}
	f.mu.Unlock()

	if ev == nil {
		return nil
	}
	ev.DeliveryComplete(id)
	if matched {
		ev.MessageArrived(engine.Message{
			Topic:    name,
			Payload:  append([]byte(nil), payload...),
			ID:       id,
			QoS:      min(qos, grant),
			Retained: retained,
		})
	}
	return nil
}

func (f *Fake) Subscribe(ctx context.Context, filter string, qos byte) error {
	f.mu.Lock()
	f.record(Call{Op: "subscribe", Topic: filter, QoS: qos})
	err := f.SubscribeErr
	f.mu.Unlock()

	if err := f.block(ctx, "subscribe"); err != nil {
		return err
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.subs[filter] = qos
	f.mu.Unlock()
	return nil
}

func (f *Fake) Unsubscribe(ctx context.Context, filters ...string) error {
	f.mu.Lock()
	f.record(Call{Op: "unsubscribe", Topics: append([]string(nil), filters...)})
	err := f.UnsubscribeErr
	f.mu.Unlock()

	if err := f.block(ctx, "unsubscribe"); err != nil {
		return err
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	for _, filter := range filters {
		delete(f.subs, filter)
	}
	f.mu.Unlock()
	return nil
}

func (f *Fake) Disconnect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(Call{Op: "disconnect"})
	f.connected = false
	return f.DisconnectErr
}

func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Fake) SetCallback(ev engine.Events) {
	f.mu.Lock()
	f.events = ev
	f.mu.Unlock()
}

func (f *Fake) Version() settings.ProtocolVersion { return f.version }

// Events returns the installed receiver.
func (f *Fake) Events() engine.Events {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events
}

// DropConnection simulates the broker going away.
func (f *Fake) DropConnection(props engine.Properties) {
	f.mu.Lock()
	f.connected = false
	ev := f.events
	f.mu.Unlock()
	if ev != nil {
		ev.ConnectionLost(props)
	}
}

// Deliver simulates an inbound message.
func (f *Fake) Deliver(msg engine.Message) {
	if ev := f.Events(); ev != nil {
		ev.MessageArrived(msg)
	}
}

var _ engine.Engine = (*Fake)(nil)
