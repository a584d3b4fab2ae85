// Package registry keeps at most one MQTT client per broker endpoint.
//
// Clients are keyed by the canonical broker address (see
// settings.BrokerAddress.String), with TLS enablement folded into the
// scheme, so "tcp://Broker:1883" and "mqtt://broker:1883" share a client.
//
// ResolveOrCreate returns the existing client or builds a new one through
// the engine factory, registers it and signals the Host with the canonical
// address. The first registration wins: a later request with a different
// config gets the existing client, and the mismatch is logged and reported
// through Options.OnConfigDrift.
//
// Teardown disconnects every client concurrently, waits for all of them and
// clears the registry even when some fail. The failures come back as a
// *TeardownError.
package registry
