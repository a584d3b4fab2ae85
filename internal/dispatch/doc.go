// Package dispatch delivers engine events to caller status handlers.
//
// A Dispatcher sits between an engine and the caller's Handlers. Engines
// report raw events on their I/O goroutines; the dispatcher translates them
// into PacketPayload and ProtocolProperties values, with reason codes looked
// up in the mqtterr taxonomy, and queues them for a single delivery
// goroutine.
//
// Guarantees:
//   - Events are delivered in the order the engine raised them.
//   - Handlers never run concurrently with each other.
//   - A handler panic is recovered and logged; delivery continues.
//   - Swap replaces the whole handler set at once.
//   - Stop delivers what is already queued before returning.
//
// An engine goroutine never blocks longer than Options.EnqueueTimeout. When
// the queue stays full that long the event is dropped, logged at warn level
// and counted in Stats.
package dispatch
