//go:build integration

package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-clientwrap/internal/settings"
)

// Integration tests against a real broker.
// These tests require a running MQTT broker at 127.0.0.1:1883 that speaks
// both MQTT 3.1.1 and MQTT 5 (e.g. mosquitto 2.x).
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/engine/...

// recorder collects events for assertions.
type recorder struct {
	mu        sync.Mutex
	messages  []Message
	delivered []int
	connects  int
	arrived   chan struct{}
}

func newRecorder() *recorder { return &recorder{arrived: make(chan struct{}, 16)} }

func (r *recorder) ConnectComplete(bool, string) {
	r.mu.Lock()
	r.connects++
	r.mu.Unlock()
}

func (r *recorder) MessageArrived(msg Message) {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	r.arrived <- struct{}{}
}

func (r *recorder) ConnectionLost(Properties) {}

func (r *recorder) DeliveryComplete(id int) {
	r.mu.Lock()
	r.delivered = append(r.delivered, id)
	r.mu.Unlock()
}

func (r *recorder) ProtocolError(error)         {}
func (r *recorder) AuthArrived(int, Properties) {}

func integrationConfig(version settings.ProtocolVersion) settings.ConnectionConfig {
	cfg := settings.DefaultConnectionConfig()
	cfg.Version = version
	cfg.ConnectTimeout = 5 * time.Second
	return cfg
}

// TestIntegration_RoundTrip publishes to a subscribed filter and expects the
// message back exactly once, for both drivers.
func TestIntegration_RoundTrip(t *testing.T) {
	addr, err := settings.ParseBrokerAddress("mqtt://127.0.0.1:1883")
	require.NoError(t, err)

	for _, version := range []settings.ProtocolVersion{settings.Legacy, settings.Modern} {
		t.Run(version.String(), func(t *testing.T) {
			eng, err := New(addr, integrationConfig(version), Options{})
			require.NoError(t, err)

			rec := newRecorder()
			eng.SetCallback(rec)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			require.NoError(t, eng.Connect(ctx))
			defer eng.Disconnect(context.Background())
			assert.True(t, eng.IsConnected())

			base := fmt.Sprintf("clientwrap/int/%d/%d", version, time.Now().UnixNano())
			require.NoError(t, eng.Subscribe(ctx, base+"/+", 2))
			require.NoError(t, eng.Publish(ctx, base+"/temp", []byte("21.5"), 2, false))

			select {
			case <-rec.arrived:
			case <-ctx.Done():
				t.Fatal("message not received")
			}

			// Allow a duplicate to show up if the engine were to send one.
			time.Sleep(200 * time.Millisecond)

			rec.mu.Lock()
			defer rec.mu.Unlock()
			require.Len(t, rec.messages, 1)
			assert.Equal(t, base+"/temp", rec.messages[0].Topic)
			assert.Equal(t, "21.5", string(rec.messages[0].Payload))
			assert.Len(t, rec.delivered, 1)
			if version == settings.Modern {
				assert.Equal(t, 1, rec.connects)
			}

			require.NoError(t, eng.Unsubscribe(ctx, base+"/+"))
		})
	}
}
