package statemachine

// Option configures a Machine during construction.
type Option[S, E comparable] func(*Machine[S, E]) error

// TransitionOption attaches guards or actions to a transition.
type TransitionOption[S, E comparable] func(*Transition[S, E])

func WithTransition[S, E comparable](from, to S, event E, opts ...TransitionOption[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) error {
		t := build(from, to, event, opts)
		m.AddTransition(from, to, event, t.Guards, t.Actions)
		return nil
	}
}

// WithTransitionFrom registers the same edge from each state in froms.
func WithTransitionFrom[S, E comparable](froms []S, to S, event E, opts ...TransitionOption[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) error {
		if len(froms) == 0 {
			return ErrNoSourceStates
		}
		var zero S
		t := build(zero, to, event, opts)
		m.AddTransitionFrom(froms, to, event, t.Guards, t.Actions)
		return nil
	}
}

func WithListener[S, E comparable](fn Listener[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) error {
		m.OnTransition(fn)
		return nil
	}
}

func WithGuard[S, E comparable](g Guard[S, E]) TransitionOption[S, E] {
	return func(t *Transition[S, E]) {
		if g != nil {
			t.Guards = append(t.Guards, g)
		}
	}
}

func WithAction[S, E comparable](a Action[S, E]) TransitionOption[S, E] {
	return func(t *Transition[S, E]) {
		if a != nil {
			t.Actions = append(t.Actions, a)
		}
	}
}

func build[S, E comparable](from, to S, event E, opts []TransitionOption[S, E]) Transition[S, E] {
	t := Transition[S, E]{From: from, To: to, Event: event}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}
