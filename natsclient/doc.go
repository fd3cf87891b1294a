// Package natsclient manages the NATS connection behind the NATS bus backend.
//
// A Client owns one *nats.Conn. It tracks connection status, reports it on
// the bus gauge when metrics are configured, and forwards disconnect,
// reconnect and close events to optional callbacks so the bus layer can
// tell modules their source went away.
//
// Basic Usage:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("swaybar"),
//	    natsclient.WithDisconnectCallback(func(err error) {
//	        // surface a transient block
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
//	unsubscribe, err := client.Subscribe(ctx, "org.bluez.hci0", func(ctx context.Context, data []byte) {
//	    // decode property changes
//	})
//
// Reconnection is left to nats.go (infinite by default). Close drains the
// connection within the drain timeout or the context deadline, whichever is
// shorter.
package natsclient
