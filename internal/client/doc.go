// Package client implements one MQTT connection for either protocol
// generation.
//
// A Client owns an engine.Engine and a dispatch.Dispatcher and runs a small
// state machine:
//
//	Disconnected -> Connecting -> Connected -> Disconnecting -> Disconnected
//
// Publish, Subscribe and Unsubscribe require Connected and fail with
// mqtterr.ClientNotConnected otherwise, without touching the engine. Connect
// from any state but Disconnected fails at once with ConnectInProgress,
// ClientAlreadyConnected or ClientDisconnecting. Disconnect is idempotent.
//
// Every failure is an *mqtterr.Error.
//
// When the connection drops and AutoReconnect is off, the client moves to
// Disconnected on its own. With AutoReconnect it stays Connected while the
// engine reconnects; commands issued during the gap fail with the engine's
// error.
package client
