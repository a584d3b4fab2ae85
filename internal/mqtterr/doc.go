// Package mqtterr is the error taxonomy shared by both MQTT protocol
// generations.
//
// Every failure surfaced by a client operation is an *Error carrying a Kind.
// Kinds have stable numeric codes so that a reason code raised by either the
// MQTT 3.1.1 or the MQTT 5 engine can be looked up directly:
//
//	kind, ok := mqtterr.Lookup(32104) // ClientNotConnected, true
//
// # Unmapped codes
//
// A code no Kind owns is never rethrown raw. Translate wraps it as Unknown
// and keeps the original code in Error.Code, for every operation.
//
// # Scopes
//
// Some kinds can only be raised by one protocol generation (MQTT 5 reason
// codes, for example). Kind.Scope reports which.
package mqtterr
