// Package influxdb records MQTT client events in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched point writing, and health monitoring, and adds a
// Recorder that turns dispatcher status events into points.
//
// # Measurements
//
//   - mqtt_connect: connect completions (reconnect, server_uri)
//   - mqtt_message: inbound messages (bytes, qos, retained; tagged by topic)
//   - mqtt_connection_lost: losses with the disconnect reason, if any
//   - mqtt_delivered: publish acknowledgements (message_id)
//   - mqtt_protocol_error: protocol errors tagged by kind
//   - mqtt_auth: authentication exchanges
//
// Every point is tagged with the broker address. Payloads are not stored.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	handlers = influxdb.NewRecorder(client, addr.String()).Wrap(handlers)
//
// # Error Handling
//
// Writes are non-blocking; batch errors arrive through SetOnError wrapped
// in ErrWriteFailed. Connection and health check errors are returned directly.
package influxdb
