// Package settings holds the value types a client is configured with: the
// broker address, connection options, TLS settings, and the QoS and protocol
// version enumerations.
//
// Out-of-range QoS levels and protocol versions never propagate. They are
// coerced to AtMostOnce and MQTT 5 respectively:
//
//	settings.QoSFromLevel(7)      // AtMostOnce
//	settings.VersionFromValue(3)  // Modern
package settings
