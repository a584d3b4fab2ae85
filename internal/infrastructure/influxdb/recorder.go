package influxdb

import (
	"github.com/nerrad567/gray-logic-clientwrap/internal/dispatch"
	"github.com/nerrad567/gray-logic-clientwrap/internal/mqtterr"
)

// Measurement names written by the Recorder.
const (
	MeasurementConnect   = "mqtt_connect"
	MeasurementMessage   = "mqtt_message"
	MeasurementLost      = "mqtt_connection_lost"
	MeasurementDelivered = "mqtt_delivered"
	MeasurementError     = "mqtt_protocol_error"
	MeasurementAuth      = "mqtt_auth"
)

// Recorder turns a client's status events into time-series points.
//
// Every point is tagged with the broker address. Message points are also
// tagged with the topic; payload contents are never recorded.
type Recorder struct {
	w      PointWriter
	broker string
}

// NewRecorder returns a Recorder writing to w on behalf of broker.
func NewRecorder(w PointWriter, broker string) *Recorder {
	return &Recorder{w: w, broker: broker}
}

// Wrap returns handlers that record each event and then call the matching
// handler in next, if any.
func (r *Recorder) Wrap(next dispatch.Handlers) dispatch.Handlers {
	return dispatch.Handlers{
		OnConnectComplete: func(reconnect bool, serverURI string) {
			r.write(MeasurementConnect, nil, map[string]interface{}{
				"reconnect":  reconnect,
				"server_uri": serverURI,
			})
			if next.OnConnectComplete != nil {
				next.OnConnectComplete(reconnect, serverURI)
			}
		},
		OnMessageArrived: func(topic string, p dispatch.PacketPayload) {
			r.write(MeasurementMessage, map[string]string{"topic": topic}, map[string]interface{}{
				"bytes":    p.Len(),
				"qos":      int(p.QoS()),
				"retained": p.Retained(),
			})
			if next.OnMessageArrived != nil {
				next.OnMessageArrived(topic, p)
			}
		},
		OnConnectionLost: func(props dispatch.ProtocolProperties) {
			r.write(MeasurementLost, nil, propertyFields(props))
			if next.OnConnectionLost != nil {
				next.OnConnectionLost(props)
			}
		},
		OnPublishAcknowledged: func(messageID int) {
			r.write(MeasurementDelivered, nil, map[string]interface{}{"message_id": messageID})
			if next.OnPublishAcknowledged != nil {
				next.OnPublishAcknowledged(messageID)
			}
		},
		OnProtocolError: func(err *mqtterr.Error) {
			kind := mqtterr.Unknown
			if err != nil {
				kind = err.Kind
			}
			r.write(MeasurementError, map[string]string{"kind": kind.String()}, map[string]interface{}{"count": 1})
			if next.OnProtocolError != nil {
				next.OnProtocolError(err)
			}
		},
		OnAuthExchange: func(props dispatch.ProtocolProperties) {
			r.write(MeasurementAuth, nil, propertyFields(props))
			if next.OnAuthExchange != nil {
				next.OnAuthExchange(props)
			}
		},
	}
}

func (r *Recorder) write(measurement string, tags map[string]string, fields map[string]interface{}) {
	all := map[string]string{"broker": r.broker}
	for k, v := range tags {
		all[k] = v
	}
	r.w.WritePoint(measurement, all, fields)
}

// propertyFields flattens the properties a point can carry. A point needs at
// least one field, so has_code is always present.
func propertyFields(props dispatch.ProtocolProperties) map[string]interface{} {
	fields := map[string]interface{}{"has_code": props.HasReturnCode()}
	if props.HasReturnCode() {
		fields["kind"] = props.ReturnCode.String()
	}
	if props.HasReturnCode() || props.RawCode != 0 {
		fields["code"] = props.RawCode
	}
	if props.ReasonString != "" {
		fields["reason"] = props.ReasonString
	}
	if props.AuthMethod != "" {
		fields["auth_method"] = props.AuthMethod
	}
	return fields
}
