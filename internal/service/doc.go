// Package service provides the background service that keeps MQTT clients
// alive.
//
// The client registry signals Start with a broker token whenever it creates
// a client. The service records the token, moves to running on the first
// one and monitors client health periodically. Stop runs the OnStop hook
// (normally the registry teardown) synchronously and reports its error.
//
// Features:
//   - Idempotent Start per token
//   - Periodic health checks with recovery logging
//   - Synchronous teardown on Stop
//
// Example usage:
//
//	svc := service.New(service.DefaultConfig("mqtt-clients"))
//	reg := registry.New(registry.Options{Host: svc})
//	svc.SetHealthCheck(reg.Health)
//	svc.SetOnStop(reg.Teardown)
//
//	defer svc.Stop(context.Background())
package service
