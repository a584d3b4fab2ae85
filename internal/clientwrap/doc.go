// Package clientwrap is the application-facing MQTT facade.
//
// A Wrapper hides the protocol generation behind one API. Every operation
// blocks the calling goroutine and honours ctx; run it in a goroutine to
// get asynchronous behaviour. Failures are *mqtterr.Error values, classified
// with errors.Is:
//
//	w, err := clientwrap.New(ctx, reg, "mqtt://broker.local:1883", cfg, dispatch.Handlers{
//	    OnMessageArrived: func(topic string, p dispatch.PacketPayload) {
//	        log.Printf("%s: %s", topic, p)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	if err := w.Connect(ctx); errors.Is(err, mqtterr.AuthenticationFailed) {
//	    ...
//	}
//
// Wrappers for the same broker share the registry's single client.
// Disconnect removes that client from the registry; a later Connect
// registers it again.
package clientwrap
