package prober

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/carprober/internal/core"
	fsmutil "github.com/autopeer-io/carprober/internal/pkg/util/fsm"
	"github.com/autopeer-io/carprober/internal/registry"
	"github.com/autopeer-io/carprober/pkg/log"
)

const (
	StateSearching = "searching"
	StateConnected = "connected"
)

const (
	// EventDetected carries the detected connection as its only argument.
	EventDetected = "event_detected"
	// EventLost drops the connection after a failed keepalive or shutdown.
	EventLost = "event_lost"
)

// connection is the argument of EventDetected.
type connection struct {
	brand core.Brand
	port  int
}

// FiniteStateMachine mirrors the prober's lifecycle into the registry.
type FiniteStateMachine struct {
	*fsm.FSM

	registry *registry.Registry
}

func NewFiniteStateMachine(reg *registry.Registry) *FiniteStateMachine {
	f := &FiniteStateMachine{registry: reg}

	events := fsm.Events{
		{Name: EventDetected, Src: []string{StateSearching}, Dst: StateConnected},
		{Name: EventLost, Src: []string{StateConnected}, Dst: StateSearching},
	}

	callbacks := fsm.Callbacks{
		"enter_" + StateConnected: fsmutil.WrapEvent(f.ActionEnterConnected),
		"enter_" + StateSearching: fsmutil.WrapEvent(f.ActionEnterSearching),
		"enter_state": func(_ context.Context, e *fsm.Event) {
			log.Debug("Prober state changed", "event", e.Event, "from", e.Src, "to", e.Dst)
		},
	}

	f.FSM = fsm.NewFSM(StateSearching, events, callbacks)
	return f
}

// ActionEnterConnected publishes the detected connection.
func (f *FiniteStateMachine) ActionEnterConnected(_ context.Context, e *fsm.Event) error {
	if len(e.Args) == 0 {
		return fmt.Errorf("%s: missing connection argument", e.Event)
	}
	c, ok := e.Args[0].(connection)
	if !ok {
		return fmt.Errorf("%s: unexpected argument %T", e.Event, e.Args[0])
	}
	f.registry.SetConnection(c.brand, core.LoopbackHost, c.port)
	return nil
}

// ActionEnterSearching clears the registry. The caller closes the session
// afterwards, so no reader sees connected without a live session.
func (f *FiniteStateMachine) ActionEnterSearching(context.Context, *fsm.Event) error {
	f.registry.Reset()
	return nil
}
