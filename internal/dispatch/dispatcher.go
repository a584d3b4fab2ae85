package dispatch

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-clientwrap/internal/engine"
	"github.com/nerrad567/gray-logic-clientwrap/internal/mqtterr"
)

// Dispatcher defaults.
const (
	DefaultQueueSize      = 256
	DefaultEnqueueTimeout = time.Second
)

// Handlers are the caller's status callbacks. Nil funcs are skipped.
//
// OnConnectComplete, OnProtocolError and OnAuthExchange are only raised by
// MQTT 5 clients.
type Handlers struct {
	OnConnectComplete     func(reconnect bool, serverURI string)
	OnMessageArrived      func(topic string, payload PacketPayload)
	OnConnectionLost      func(props ProtocolProperties)
	OnPublishAcknowledged func(messageID int)

	// OnProtocolError receives nil when the engine reported an error
	// without detail.
	OnProtocolError func(err *mqtterr.Error)
	OnAuthExchange  func(props ProtocolProperties)
}

// Logger is the logging interface the dispatcher writes to.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options tune a Dispatcher. Zero values take the defaults.
type Options struct {
	QueueSize      int
	EnqueueTimeout time.Duration
	Logger         Logger

	// OnConnectionLost runs on the engine goroutine before the event is
	// queued. The owning client uses it to track its state.
	OnConnectionLost func()
}

// Stats counts events since the dispatcher was created.
type Stats struct {
	Delivered uint64
	Dropped   uint64
	Panics    uint64
}

// event is one queued callback, applied to the handler set current at
// delivery time.
type event struct {
	name string
	call func(h *Handlers)
}

// Dispatcher adapts engine events to Handlers.
//
// Engines call the engine.Events methods on their own goroutines. Each event
// is translated and queued; a single goroutine delivers the queue in order,
// so handlers never run concurrently with each other. An engine goroutine
// waits at most EnqueueTimeout for room in the queue, after which the event
// is dropped and counted.
type Dispatcher struct {
	handlers atomic.Pointer[Handlers]
	opts     Options

	mu      sync.RWMutex // guards queue against close during enqueue
	queue   chan event
	running bool
	done    chan struct{}

	// deliverer is the goroutine id of the delivery loop currently
	// invoking handlers, 0 when none is.
	deliverer atomic.Uint64

	delivered atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64
}

// New returns a stopped dispatcher delivering to h.
func New(h Handlers, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.EnqueueTimeout <= 0 {
		opts.EnqueueTimeout = DefaultEnqueueTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	d := &Dispatcher{opts: opts}
	d.Swap(h)
	return d
}

// Swap replaces the handler set. Events delivered after Swap returns see
// the new set; no event sees a mix of old and new handlers.
func (d *Dispatcher) Swap(h Handlers) {
	d.handlers.Store(&h)
}

// Handlers returns the current handler set.
func (d *Dispatcher) Handlers() Handlers {
	return *d.handlers.Load()
}

// Start launches the delivery goroutine. It is a no-op when running.
//
// After a Stop issued from a handler the previous goroutine may still be
// draining; the new one delivers nothing until it has finished.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}

	prev := d.done
	d.queue = make(chan event, d.opts.QueueSize)
	d.done = make(chan struct{})
	d.running = true
	go d.deliver(prev, d.queue, d.done)
}

// Stop delivers everything already queued, then stops the goroutine.
// Events raised after Stop are dropped. It is a no-op when stopped.
//
// Called from a handler, Stop closes the queue and returns at once; the
// remaining events are delivered after the handler returns.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.queue)
	done := d.done
	d.mu.Unlock()

	if id := d.deliverer.Load(); id != 0 && id == goroutineID() {
		return
	}
	<-done
}

// Running reports whether the delivery goroutine is active.
func (d *Dispatcher) Running() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Stats returns the event counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Panics:    d.panics.Load(),
	}
}

func (d *Dispatcher) deliver(prev <-chan struct{}, queue <-chan event, done chan<- struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}

	id := goroutineID()
	d.deliverer.Store(id)
	defer d.deliverer.CompareAndSwap(id, 0)

	for ev := range queue {
		d.invoke(ev)
	}
}

// goroutineID parses the current goroutine's id from its stack header,
// "goroutine 42 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	if i := strings.IndexByte(field, ' '); i > 0 {
		field = field[:i]
	}
	id, _ := strconv.ParseUint(field, 10, 64)
	return id
}

// invoke runs one event against the handler set loaded exactly once.
func (d *Dispatcher) invoke(ev event) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.opts.Logger.Error("status handler panic recovered",
				"handler", ev.name,
				"panic", r,
			)
		}
	}()

	ev.call(d.handlers.Load())
	d.delivered.Add(1)
}

func (d *Dispatcher) enqueue(ev event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.running {
		d.dropped.Add(1)
		d.opts.Logger.Debug("status event dropped, dispatcher stopped", "event", ev.name)
		return
	}

	select {
	case d.queue <- ev:
		return
	default:
	}

	timer := time.NewTimer(d.opts.EnqueueTimeout)
	defer timer.Stop()

	select {
	case d.queue <- ev:
	case <-timer.C:
		d.dropped.Add(1)
		d.opts.Logger.Warn("status event dropped, delivery queue full",
			"event", ev.name,
			"queue_size", d.opts.QueueSize,
		)
	}
}

// =============================================================================
// engine.Events
// =============================================================================

func (d *Dispatcher) ConnectComplete(reconnect bool, serverURI string) {
	d.enqueue(event{name: "connect_complete", call: func(h *Handlers) {
		if h.OnConnectComplete != nil {
			h.OnConnectComplete(reconnect, serverURI)
		}
	}})
}

func (d *Dispatcher) MessageArrived(msg engine.Message) {
	payload := payloadFrom(msg)
	topic := msg.Topic
	d.enqueue(event{name: "message_arrived", call: func(h *Handlers) {
		if h.OnMessageArrived != nil {
			h.OnMessageArrived(topic, payload)
		}
	}})
}

func (d *Dispatcher) ConnectionLost(props engine.Properties) {
	if d.opts.OnConnectionLost != nil {
		d.opts.OnConnectionLost()
	}

	pp := propertiesFrom(props)
	d.enqueue(event{name: "connection_lost", call: func(h *Handlers) {
		if h.OnConnectionLost != nil {
			h.OnConnectionLost(pp)
		}
	}})
}

func (d *Dispatcher) DeliveryComplete(messageID int) {
	d.enqueue(event{name: "publish_acknowledged", call: func(h *Handlers) {
		if h.OnPublishAcknowledged != nil {
			h.OnPublishAcknowledged(messageID)
		}
	}})
}

func (d *Dispatcher) ProtocolError(err error) {
	var unified *mqtterr.Error
	if err != nil {
		unified, _ = mqtterr.Translate(err, "protocol error").(*mqtterr.Error)
	}
	d.enqueue(event{name: "protocol_error", call: func(h *Handlers) {
		if h.OnProtocolError != nil {
			h.OnProtocolError(unified)
		}
	}})
}

func (d *Dispatcher) AuthArrived(reasonCode int, props engine.Properties) {
	pp := propertiesFrom(props)
	if !props.HasReasonCode {
		pp.RawCode = reasonCode
	}
	d.enqueue(event{name: "auth_exchange", call: func(h *Handlers) {
		if h.OnAuthExchange != nil {
			h.OnAuthExchange(pp)
		}
	}})
}

var _ engine.Events = (*Dispatcher)(nil)
