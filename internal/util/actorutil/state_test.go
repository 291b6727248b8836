package actorutil

import (
	"testing"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
)

type namedState string

func (s namedState) Name() string            { return string(s) }
func (s namedState) Receive(_ actor.Context) {}

func TestActorWithStatesNames(t *testing.T) {
	s := ActorWithStates{Behavior: actor.NewBehavior()}
	assert.Equal(t, "", s.StateName())

	s.Become(namedState("starting"))
	assert.Equal(t, "starting", s.StateName())

	s.Become(namedState("active"))
	s.BecomeStacked(namedState("evaluating"))
	assert.Equal(t, "evaluating", s.StateName())

	s.UnbecomeStacked()
	assert.Equal(t, "active", s.StateName())

	// popping the bottom state keeps its name
	s.UnbecomeStacked()
	assert.Equal(t, "active", s.StateName())

	s.BecomeStacked(namedState("evaluating"))
	s.Become(namedState("done"))
	assert.Equal(t, "done", s.StateName())
	s.UnbecomeStacked()
	assert.Equal(t, "done", s.StateName())
}
