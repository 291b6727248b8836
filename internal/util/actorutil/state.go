package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorState is one behavior of an actor with a name for health and status
// reports.
type ActorState interface {
	Name() string
	Receive(actor.Context)
}

// ActorWithStates switches between named states. The names mirror the
// behavior stack, so the current one is always known.
type ActorWithStates struct {
	Behavior actor.Behavior
	names    []string
}

// Become replaces the whole stack with state.
func (s *ActorWithStates) Become(state ActorState) {
	s.names = append(s.names[:0], state.Name())
	s.Behavior.Become(state.Receive)
}

func (s *ActorWithStates) BecomeStacked(state ActorState) {
	s.names = append(s.names, state.Name())
	s.Behavior.BecomeStacked(state.Receive)
}

// UnbecomeStacked goes back to the previous state. The bottom state is
// never popped.
func (s *ActorWithStates) UnbecomeStacked() {
	if len(s.names) <= 1 {
		return
	}
	s.names = s.names[:len(s.names)-1]
	s.Behavior.UnbecomeStacked()
}

// StateName is the name of the current state, empty before the first Become.
func (s *ActorWithStates) StateName() string {
	if len(s.names) == 0 {
		return ""
	}
	return s.names[len(s.names)-1]
}
