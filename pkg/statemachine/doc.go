// Package statemachine implements a small generic finite state machine.
//
// States and events are any comparable types, usually string-based enums:
//
//	type Phase string
//	type Event string
//
//	m := statemachine.MustNew[Phase, Event]("idle",
//		statemachine.WithTransition[Phase, Event]("idle", "running", "start"),
//		statemachine.WithTransitionFrom[Phase, Event]([]Phase{"idle", "running"}, "stopped", "stop"),
//	)
//	next, err := m.Fire(ctx, "start", nil)
//
// Guards select among competing transitions, actions run before the state
// changes and can veto it, and listeners observe completed transitions.
package statemachine
