package engine

import (
	"context"
	"errors"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-clientwrap/internal/mqtterr"
	"github.com/nerrad567/gray-logic-clientwrap/internal/settings"
)

// legacy drives an MQTT 3.1.1 session through paho.mqtt.golang.
//
// The Paho client is built on first Connect and reused afterwards; Paho
// supports reconnecting the same client after Disconnect.
type legacy struct {
	addr     settings.BrokerAddress
	cfg      settings.ConnectionConfig
	clientID string
	tls      TLSProvider
	logger   Logger

	mu     sync.RWMutex
	client pahomqtt.Client
	events Events
}

func newLegacy(addr settings.BrokerAddress, cfg settings.ConnectionConfig, opts Options) *legacy {
	return &legacy{
		addr:     addr,
		cfg:      cfg,
		clientID: effectiveClientID(cfg),
		tls:      opts.TLS,
		logger:   opts.Logger,
	}
}

func (l *legacy) Version() settings.ProtocolVersion { return settings.Legacy }

func (l *legacy) SetCallback(ev Events) {
	l.mu.Lock()
	l.events = ev
	l.mu.Unlock()
}

func (l *legacy) getEvents() Events {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.events
}

func (l *legacy) getClient() pahomqtt.Client {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.client
}

// Connect opens the session and waits for CONNACK, bounded by the
// configured connect timeout.
func (l *legacy) Connect(ctx context.Context) error {
	c := l.getClient()
	if c == nil {
		tlsCfg, err := resolveTLS(l.tls, l.addr, l.cfg.TLS)
		if err != nil {
			return err
		}

		opts := buildLegacyOptions(l.addr, l.cfg, l.clientID, tlsCfg)
		opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, m pahomqtt.Message) {
			l.handleMessage(m)
		})
		opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			l.handleConnectionLost(err)
		})

		c = pahomqtt.NewClient(opts)
		l.mu.Lock()
		l.client = c
		l.mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.ConnectTimeout)
	defer cancel()

	token := c.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		// Stop Paho from completing the attempt behind our back.
		c.Disconnect(0)
		return waitError(ctx, "connect", ctx.Err())
	}

	if err := token.Error(); err != nil {
		var rc byte = legacyNetworkError
		if ct, ok := token.(*pahomqtt.ConnectToken); ok && ct.ReturnCode() != legacyAccepted {
			rc = ct.ReturnCode()
		}
		return &ReasonError{Code: legacyConnectCode(rc), Message: "connect to " + l.addr.String(), Err: err}
	}

	l.logger.Debug("mqtt 3.1.1 session established", "broker", l.addr.String(), "client_id", l.clientID)
	return nil
}

// Publish sends one message and waits for the QoS handshake to finish.
// DeliveryComplete is raised with the packet identifier on success.
func (l *legacy) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	c := l.getClient()
	if c == nil || !c.IsConnected() {
		return reasonError(mqtterr.ClientNotConnected, "publish", pahomqtt.ErrNotConnected)
	}

	token := c.Publish(topic, qos, retained, payload)
	if err := l.wait(ctx, "publish", token); err != nil {
		return err
	}

	var id int
	if pt, ok := token.(*pahomqtt.PublishToken); ok {
		id = int(pt.MessageID())
	}
	if ev := l.getEvents(); ev != nil {
		ev.DeliveryComplete(id)
	}
	return nil
}

// Subscribe registers filter. Inbound messages reach Events.MessageArrived
// through the default publish handler.
func (l *legacy) Subscribe(ctx context.Context, filter string, qos byte) error {
	c := l.getClient()
	if c == nil || !c.IsConnected() {
		return reasonError(mqtterr.ClientNotConnected, "subscribe", pahomqtt.ErrNotConnected)
	}

	token := c.Subscribe(filter, qos, nil)
	if err := l.wait(ctx, "subscribe", token); err != nil {
		return err
	}

	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		if granted, found := st.Result()[filter]; found && granted >= 0x80 {
			return reasonError(mqtterr.SubscribeFailed, "broker rejected subscription to "+filter, nil)
		}
	}
	return nil
}

func (l *legacy) Unsubscribe(ctx context.Context, filters ...string) error {
	c := l.getClient()
	if c == nil || !c.IsConnected() {
		return reasonError(mqtterr.ClientNotConnected, "unsubscribe", pahomqtt.ErrNotConnected)
	}
	return l.wait(ctx, "unsubscribe", c.Unsubscribe(filters...))
}

// Disconnect ends the session. Paho's disconnect cannot fail, so neither
// can this.
func (l *legacy) Disconnect(_ context.Context) error {
	c := l.getClient()
	if c == nil || !c.IsConnectionOpen() {
		return nil
	}
	c.Disconnect(disconnectQuiesce)
	return nil
}

func (l *legacy) IsConnected() bool {
	c := l.getClient()
	return c != nil && c.IsConnectionOpen()
}

// wait blocks on a Paho token or ctx and classifies the outcome.
func (l *legacy) wait(ctx context.Context, op string, token pahomqtt.Token) error {
	select {
	case <-token.Done():
	case <-ctx.Done():
		return waitError(ctx, op, ctx.Err())
	}

	err := token.Error()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pahomqtt.ErrNotConnected):
		return reasonError(mqtterr.ClientNotConnected, op, err)
	default:
		return reasonError(mqtterr.ClientException, op, err)
	}
}

func (l *legacy) handleMessage(m pahomqtt.Message) {
	ev := l.getEvents()
	if ev == nil {
		return
	}
	ev.MessageArrived(Message{
		Topic:     m.Topic(),
		Payload:   m.Payload(),
		ID:        int(m.MessageID()),
		QoS:       m.Qos(),
		Retained:  m.Retained(),
		Duplicate: m.Duplicate(),
	})
}

func (l *legacy) handleConnectionLost(err error) {
	l.logger.Warn("mqtt 3.1.1 connection lost", "broker", l.addr.String(), "error", err)

	ev := l.getEvents()
	if ev == nil {
		return
	}
	var props Properties
	if err != nil {
		props.ReasonString = err.Error()
	}
	ev.ConnectionLost(props)
}
