// Package engine adapts the two Paho MQTT libraries to one capability set.
//
// Two drivers implement Engine:
//
//   - MQTT 3.1.1 via github.com/eclipse/paho.mqtt.golang
//   - MQTT 5 via github.com/eclipse/paho.golang/paho
//
// New picks the driver from ConnectionConfig.Version. Nothing outside this
// package knows which library is in use.
//
// # Events
//
// Drivers report what they observe through the Events interface, on their
// own goroutines. Receivers must not block: the client installs a
// dispatch.Dispatcher, which queues events for ordered delivery.
//
// The 3.1.1 driver raises MessageArrived, ConnectionLost and
// DeliveryComplete only. The MQTT 5 driver additionally raises
// ConnectComplete (initial connect and every automatic reconnect),
// ProtocolError and AuthArrived.
//
// # Errors
//
// Every failure is a *ReasonError whose Code is a taxonomy code when the
// driver could classify the failure (see package mqtterr), otherwise the
// raw MQTT 5 reason code. mqtterr.Translate does the final mapping.
//
// # Reconnect
//
// With AutoReconnect the 3.1.1 driver relies on Paho's built-in reconnect.
// The MQTT 5 driver runs its own loop, retrying every RetryInterval
// (at least one second) until it reconnects or Disconnect is called.
package engine
