package influxdb_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-clientwrap/internal/dispatch"
	"github.com/nerrad567/gray-logic-clientwrap/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-clientwrap/internal/mqtterr"
	"github.com/nerrad567/gray-logic-clientwrap/internal/settings"
)

type point struct {
	measurement string
	tags        map[string]string
	fields      map[string]interface{}
}

type fakeWriter struct {
	mu     sync.Mutex
	points []point
}

func (f *fakeWriter) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, point{measurement, tags, fields})
}

func (f *fakeWriter) last(t *testing.T) point {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.points)
	return f.points[len(f.points)-1]
}

func dispatchHandlers() dispatch.Handlers { return dispatch.Handlers{} }

func TestRecorderMessage(t *testing.T) {
	w := &fakeWriter{}
	var seen string
	h := influxdb.NewRecorder(w, "mqtt://broker.local:1883").Wrap(dispatch.Handlers{
		OnMessageArrived: func(topic string, p dispatch.PacketPayload) { seen = topic + "=" + p.String() },
	})

	h.OnMessageArrived("sensors/42", dispatch.NewPacketPayload([]byte("21.5"), 3, settings.AtLeastOnce, dispatch.Retained(true)))

	assert.Equal(t, "sensors/42=21.5", seen, "inner handler still called")
	p := w.last(t)
	assert.Equal(t, influxdb.MeasurementMessage, p.measurement)
	assert.Equal(t, map[string]string{"broker": "mqtt://broker.local:1883", "topic": "sensors/42"}, p.tags)
	assert.Equal(t, 4, p.fields["bytes"])
	assert.Equal(t, 1, p.fields["qos"])
	assert.Equal(t, true, p.fields["retained"])
}

func TestRecorderNilInnerHandlers(t *testing.T) {
	w := &fakeWriter{}
	h := influxdb.NewRecorder(w, "mqtt://b:1883").Wrap(dispatch.Handlers{})

	h.OnConnectComplete(true, "mqtt://b:1883")
	h.OnPublishAcknowledged(9)
	h.OnProtocolError(nil)
	h.OnAuthExchange(dispatch.ProtocolProperties{AuthMethod: "SCRAM"})
	h.OnConnectionLost(dispatch.ProtocolProperties{})

	require.Len(t, w.points, 5)
	assert.Equal(t, influxdb.MeasurementConnect, w.points[0].measurement)
	assert.Equal(t, true, w.points[0].fields["reconnect"])
	assert.Equal(t, 9, w.points[1].fields["message_id"])
	assert.Equal(t, mqtterr.Unknown.String(), w.points[2].tags["kind"])
	assert.Equal(t, "SCRAM", w.points[3].fields["auth_method"])
	assert.Equal(t, false, w.points[4].fields["has_code"])
}

func TestRecorderConnectionLostCode(t *testing.T) {
	w := &fakeWriter{}
	lost := 0
	h := influxdb.NewRecorder(w, "mqtt://b:1883").Wrap(dispatch.Handlers{
		OnConnectionLost: func(dispatch.ProtocolProperties) { lost++ },
	})

	kind := mqtterr.NotAuthorized
	h.OnConnectionLost(dispatch.ProtocolProperties{ReturnCode: &kind, RawCode: kind.Code(), ReasonString: "bye"})

	assert.Equal(t, 1, lost)
	p := w.last(t)
	assert.Equal(t, influxdb.MeasurementLost, p.measurement)
	assert.Equal(t, kind.Code(), p.fields["code"])
	assert.Equal(t, kind.String(), p.fields["kind"])
	assert.Equal(t, "bye", p.fields["reason"])
}

func TestRecorderProtocolErrorKind(t *testing.T) {
	w := &fakeWriter{}
	h := influxdb.NewRecorder(w, "mqtt://b:1883").Wrap(dispatch.Handlers{})

	h.OnProtocolError(&mqtterr.Error{Kind: mqtterr.MalformedPacket, Code: mqtterr.MalformedPacket.Code()})

	assert.Equal(t, mqtterr.MalformedPacket.String(), w.last(t).tags["kind"])
}
