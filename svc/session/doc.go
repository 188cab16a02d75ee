// Package session owns the signed-in state of the application.
//
// An Orchestrator composes the auth gateway, the profile service and the
// media repository. It mirrors the provider session, loads or creates the
// profile of the signed-in identity and publishes every change as a State
// snapshot:
//
//	o := session.New(gateway, profiles, images, session.WithLogger(log))
//	if err := o.Start(ctx); err != nil {
//		return err
//	}
//	defer o.Close()
//
//	sub := o.Subscribe(ctx)
//	for msg := range sub.Receive(ctx) {
//		render(msg.Data)
//	}
//
// Provider events are consumed in order on a single goroutine. Profile loads
// are tagged with the identity they were issued for; a load that completes
// after the identity changed is discarded.
package session
