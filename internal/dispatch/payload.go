package dispatch

import (
	"github.com/nerrad567/gray-logic-clientwrap/internal/engine"
	"github.com/nerrad567/gray-logic-clientwrap/internal/mqtterr"
	"github.com/nerrad567/gray-logic-clientwrap/internal/settings"
)

// PacketPayload is an inbound message body with its delivery metadata.
// Its flags are fixed at construction.
type PacketPayload struct {
	value     []byte
	messageID int
	qos       settings.QoS
	retained  bool
	duplicate bool
}

// PayloadOption sets an optional flag on a PacketPayload.
type PayloadOption func(*PacketPayload)

// Retained marks the payload as a retained message.
func Retained(v bool) PayloadOption {
	return func(p *PacketPayload) { p.retained = v }
}

// Duplicate marks the payload as a redelivery.
func Duplicate(v bool) PayloadOption {
	return func(p *PacketPayload) { p.duplicate = v }
}

// NewPacketPayload builds a payload. value is copied; qos is coerced to a
// valid level.
func NewPacketPayload(value []byte, messageID int, qos settings.QoS, opts ...PayloadOption) PacketPayload {
	p := PacketPayload{
		value:     append([]byte(nil), value...),
		messageID: messageID,
		qos:       settings.QoSFromLevel(int(qos)),
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Value returns a copy of the message body.
func (p PacketPayload) Value() []byte { return append([]byte(nil), p.value...) }

// String returns the body as text.
func (p PacketPayload) String() string { return string(p.value) }

func (p PacketPayload) MessageID() int     { return p.messageID }
func (p PacketPayload) QoS() settings.QoS  { return p.qos }
func (p PacketPayload) Retained() bool     { return p.retained }
func (p PacketPayload) Duplicate() bool    { return p.duplicate }
func (p PacketPayload) Len() int           { return len(p.value) }

func payloadFrom(msg engine.Message) PacketPayload {
	return NewPacketPayload(msg.Payload, msg.ID, settings.QoS(msg.QoS),
		Retained(msg.Retained), Duplicate(msg.Duplicate))
}

// ProtocolProperties are the packet properties attached to connection-lost
// and authentication events.
type ProtocolProperties struct {
	// ReturnCode is the taxonomy entry for RawCode, nil when the event
	// carried no code or the code is unmapped.
	ReturnCode *mqtterr.Kind
	RawCode    int

	ReasonString     string
	ServerReference  string
	ContentType      string
	ResponseTopic    string
	AssignedClientID string
	AuthMethod       string
	ResponseInfo     string
}

// HasReturnCode reports whether ReturnCode is set.
func (p ProtocolProperties) HasReturnCode() bool { return p.ReturnCode != nil }

func propertiesFrom(props engine.Properties) ProtocolProperties {
	out := ProtocolProperties{
		ReasonString:     props.ReasonString,
		ServerReference:  props.ServerReference,
		ContentType:      props.ContentType,
		ResponseTopic:    props.ResponseTopic,
		AssignedClientID: props.AssignedClientID,
		AuthMethod:       props.AuthMethod,
		ResponseInfo:     props.ResponseInfo,
	}
	if props.HasReasonCode {
		out.RawCode = props.ReasonCode
		if kind, ok := mqtterr.Lookup(props.ReasonCode); ok {
			out.ReturnCode = &kind
		}
	}
	return out
}
