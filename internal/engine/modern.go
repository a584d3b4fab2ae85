package engine

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/packets"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nerrad567/gray-logic-clientwrap/internal/mqtterr"
	"github.com/nerrad567/gray-logic-clientwrap/internal/settings"
)

// reasonContinueAuth asks the broker for the next step of an enhanced
// authentication exchange.
const reasonContinueAuth = 0x18

// modern drives an MQTT 5 session through paho.golang.
//
// A paho.Client accepts Connect once, so every connect attempt dials a new
// network connection and builds a new client. Callbacks from a client that
// is no longer current are ignored.
type modern struct {
	addr     settings.BrokerAddress
	cfg      settings.ConnectionConfig
	clientID string
	tls      TLSProvider
	logger   Logger

	mu        sync.RWMutex
	conn      *paho.Client
	connected bool
	closing   bool
	stopRetry chan struct{} // non-nil while the reconnect loop runs
	events    Events

	lastID atomic.Uint32
}

func newModern(addr settings.BrokerAddress, cfg settings.ConnectionConfig, opts Options) *modern {
	return &modern{
		addr:     addr,
		cfg:      cfg,
		clientID: effectiveClientID(cfg),
		tls:      opts.TLS,
		logger:   opts.Logger,
	}
}

func (m *modern) Version() settings.ProtocolVersion { return settings.Modern }

func (m *modern) SetCallback(ev Events) {
	m.mu.Lock()
	m.events = ev
	m.mu.Unlock()
}

func (m *modern) getEvents() Events {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.events
}

// current returns the established client, or nil.
func (m *modern) current() *paho.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.connected {
		return nil
	}
	return m.conn
}

func (m *modern) isCurrent(c *paho.Client) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn == c && !m.closing
}

func (m *modern) IsConnected() bool {
	return m.current() != nil
}

// Connect dials the broker and runs the CONNECT/CONNACK exchange, bounded by
// the configured connect timeout. ConnectComplete is raised on success.
func (m *modern) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.closing = false
	m.mu.Unlock()

	if _, err := m.open(ctx); err != nil {
		return err
	}
	m.connectComplete(false)
	return nil
}

func (m *modern) open(ctx context.Context) (*paho.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	nc, err := m.dial(ctx)
	if err != nil {
		return nil, err
	}

	var c *paho.Client
	c = paho.NewClient(paho.ClientConfig{
		ClientID:      m.clientID,
		Conn:          nc,
		AuthHandler:   &authRelay{m: m},
		PacketTimeout: m.cfg.ConnectTimeout,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				m.handlePublish(c, pr.Packet)
				return true, nil
			},
		},
		OnServerDisconnect: func(d *paho.Disconnect) { m.handleServerDisconnect(c, d) },
		OnClientError:      func(err error) { m.handleClientError(c, err) },
	})

	// Installed before CONNECT so nothing published right after CONNACK is lost.
	m.mu.Lock()
	m.conn = c
	m.connected = false
	m.mu.Unlock()

	ca, err := c.Connect(ctx, buildConnectPacket(m.cfg, m.clientID))
	if err != nil {
		m.mu.Lock()
		if m.conn == c {
			m.conn = nil
		}
		m.mu.Unlock()
		_ = nc.Close()
		return nil, m.connectError(ctx, ca, err)
	}

	m.mu.Lock()
	m.connected = m.conn == c
	m.mu.Unlock()

	if ca != nil && ca.Properties != nil && ca.Properties.AssignedClientID != "" {
		m.logger.Info("broker assigned client id", "broker", m.addr.String(), "client_id", ca.Properties.AssignedClientID)
	}
	m.logger.Debug("mqtt 5 session established", "broker", m.addr.String(), "client_id", m.clientID)
	return c, nil
}

func (m *modern) dial(ctx context.Context) (net.Conn, error) {
	tlsCfg, err := resolveTLS(m.tls, m.addr, m.cfg.TLS)
	if err != nil {
		return nil, err
	}

	d := &net.Dialer{}
	var nc net.Conn
	if tlsCfg != nil {
		td := &tls.Dialer{NetDialer: d, Config: tlsCfg}
		nc, err = td.DialContext(ctx, "tcp", m.addr.HostPort())
	} else {
		nc, err = d.DialContext(ctx, "tcp", m.addr.HostPort())
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, waitError(ctx, "connect", err)
		}
		return nil, reasonError(mqtterr.ServerConnectError, "connect to "+m.addr.String(), err)
	}

	// tls.Conn is not safe for concurrent writes.
	return packets.NewThreadSafeConn(nc), nil
}

func (m *modern) connectError(ctx context.Context, ca *paho.Connack, err error) error {
	if ca != nil && ca.ReasonCode >= 0x80 {
		msg := "broker refused connection"
		if ca.Properties != nil && ca.Properties.ReasonString != "" {
			msg = ca.Properties.ReasonString
		}
		return &ReasonError{Code: modernCode(ca.ReasonCode, mqtterr.ServerConnectError), Message: msg, Err: err}
	}
	if ctx.Err() != nil {
		return waitError(ctx, "connect", err)
	}
	return reasonError(mqtterr.ServerConnectError, "connect to "+m.addr.String(), err)
}

func (m *modern) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	c := m.current()
	if c == nil {
		return reasonError(mqtterr.ClientNotConnected, "publish", nil)
	}

	pr, err := c.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Retain:  retained,
		Payload: payload,
	})
	if err != nil {
		if pr != nil && pr.ReasonCode >= 0x80 {
			msg := "broker rejected publish"
			if pr.Properties != nil && pr.Properties.ReasonString != "" {
				msg = pr.Properties.ReasonString
			}
			return &ReasonError{Code: modernCode(pr.ReasonCode, mqtterr.UnexpectedError), Message: msg, Err: err}
		}
		return m.opError(ctx, "publish", err)
	}

	if ev := m.getEvents(); ev != nil {
		ev.DeliveryComplete(m.deliveryID(qos))
	}
	return nil
}

func (m *modern) Subscribe(ctx context.Context, filter string, qos byte) error {
	c := m.current()
	if c == nil {
		return reasonError(mqtterr.ClientNotConnected, "subscribe", nil)
	}

	sa, err := c.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: filter, QoS: qos}},
	})
	if err != nil {
		if sa != nil && len(sa.Reasons) > 0 && sa.Reasons[0] >= 0x80 {
			return &ReasonError{Code: modernCode(sa.Reasons[0], mqtterr.SubscribeFailed), Message: "broker rejected subscription to " + filter, Err: err}
		}
		return m.opError(ctx, "subscribe", err)
	}
	return nil
}

func (m *modern) Unsubscribe(ctx context.Context, filters ...string) error {
	c := m.current()
	if c == nil {
		return reasonError(mqtterr.ClientNotConnected, "unsubscribe", nil)
	}

	ua, err := c.Unsubscribe(ctx, &paho.Unsubscribe{Topics: filters})
	if err != nil {
		if ua != nil {
			for _, r := range ua.Reasons {
				if r >= 0x80 {
					return &ReasonError{Code: modernCode(r, mqtterr.UnexpectedError), Message: "broker rejected unsubscribe", Err: err}
				}
			}
		}
		return m.opError(ctx, "unsubscribe", err)
	}
	return nil
}

// Disconnect sends DISCONNECT and stops any reconnect loop. Loss events
// raised by the teardown are suppressed.
func (m *modern) Disconnect(_ context.Context) error {
	m.mu.Lock()
	m.closing = true
	c := m.conn
	m.conn = nil
	m.connected = false
	stop := m.stopRetry
	m.stopRetry = nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if c == nil {
		return nil
	}
	if err := c.Disconnect(&paho.Disconnect{ReasonCode: 0}); err != nil {
		return reasonError(mqtterr.ClientException, "disconnect", err)
	}
	return nil
}

func (m *modern) opError(ctx context.Context, op string, err error) error {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded):
		return waitError(ctx, op, err)
	case errors.Is(err, paho.ErrConnectionLost):
		return reasonError(mqtterr.ConnectionLost, op, err)
	default:
		return reasonError(mqtterr.ClientException, op, err)
	}
}

// deliveryID numbers a completed publish. QoS 0 has no packet id and
// reports 0, matching the 3.1.1 driver. paho.golang does not expose packet
// identifiers, so QoS 1 and 2 take the next id of a local 1..65535 sequence.
func (m *modern) deliveryID(qos byte) int {
	if qos == 0 {
		return 0
	}
	return int((m.lastID.Add(1)-1)%65535) + 1
}

func (m *modern) handlePublish(c *paho.Client, p *paho.Publish) {
	if p == nil || !m.isCurrent(c) {
		return
	}
	ev := m.getEvents()
	if ev == nil {
		return
	}
	ev.MessageArrived(Message{
		Topic:    p.Topic,
		Payload:  p.Payload,
		ID:       int(p.PacketID),
		QoS:      p.QoS,
		Retained: p.Retain,
	})
}

func (m *modern) handleServerDisconnect(c *paho.Client, d *paho.Disconnect) {
	// Codes below 0x80 are normal closures and have no taxonomy entry.
	var props Properties
	if d.ReasonCode >= 0x80 {
		props.ReasonCode = modernCode(d.ReasonCode, mqtterr.UnexpectedError)
		props.HasReasonCode = true
	}
	if d.Properties != nil {
		props.ReasonString = d.Properties.ReasonString
		props.ServerReference = d.Properties.ServerReference
	}
	m.lost(c, props, nil)
}

func (m *modern) handleClientError(c *paho.Client, err error) {
	m.lost(c, Properties{ReasonString: err.Error()}, reasonError(mqtterr.ConnectionLost, "connection error", err))
}

// lost retires c once, raising ProtocolError (when protoErr is set) and
// then ConnectionLost. paho.golang may report one failure several times.
func (m *modern) lost(c *paho.Client, props Properties, protoErr error) {
	m.mu.Lock()
	if m.conn != c || m.closing {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.connected = false
	ev := m.events
	var stop chan struct{}
	if m.cfg.AutoReconnect && m.stopRetry == nil {
		stop = make(chan struct{})
		m.stopRetry = stop
	}
	m.mu.Unlock()

	m.logger.Warn("mqtt 5 connection lost", "broker", m.addr.String(), "reason", props.ReasonString)

	if ev != nil {
		if protoErr != nil {
			ev.ProtocolError(protoErr)
		}
		ev.ConnectionLost(props)
	}
	if stop != nil {
		go m.reconnect(stop)
	}
}

// reconnect retries open every retry interval until it succeeds or stop
// is closed.
func (m *modern) reconnect(stop chan struct{}) {
	ticker := time.NewTicker(retryInterval(m.cfg))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		c, err := m.open(context.Background())
		if err != nil {
			m.logger.Debug("mqtt 5 reconnect attempt failed", "broker", m.addr.String(), "error", err)
			continue
		}

		select {
		case <-stop:
			// Disconnect raced the attempt.
			m.mu.Lock()
			if m.conn == c {
				m.conn = nil
				m.connected = false
			}
			m.mu.Unlock()
			_ = c.Disconnect(&paho.Disconnect{ReasonCode: 0})
			return
		default:
		}

		m.mu.Lock()
		if m.stopRetry == stop {
			m.stopRetry = nil
		}
		m.mu.Unlock()

		m.connectComplete(true)
		return
	}
}

func (m *modern) connectComplete(reconnect bool) {
	if ev := m.getEvents(); ev != nil {
		ev.ConnectComplete(reconnect, m.addr.String())
	}
}

// authRelay surfaces enhanced-authentication packets as AuthArrived events.
// It answers every challenge with "continue authentication" and no data.
type authRelay struct {
	m *modern
}

func (a *authRelay) Authenticate(in *paho.Auth) *paho.Auth {
	var props Properties
	if in.Properties != nil {
		props.AuthMethod = in.Properties.AuthMethod
		props.ReasonString = in.Properties.ReasonString
	}
	if ev := a.m.getEvents(); ev != nil {
		ev.AuthArrived(int(in.ReasonCode), props)
	}
	return &paho.Auth{
		ReasonCode: reasonContinueAuth,
		Properties: &paho.AuthProperties{AuthMethod: props.AuthMethod},
	}
}

func (a *authRelay) Authenticated() {
	if ev := a.m.getEvents(); ev != nil {
		ev.AuthArrived(0, Properties{})
	}
}
