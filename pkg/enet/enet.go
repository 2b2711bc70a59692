package enet

import (
	"github.com/threadkit/threadkit-go/pkg/thread"
)

// New splits engine into a controller, a runner and a driver sharing state.
// The runner must be started before the driver moves any packet.
func New(engine *thread.Engine, state *State) (*Controller, *Runner, *Driver) {
	ctrl := &Controller{h: engine.Handle()}
	runner := &Runner{engine: engine, state: state}
	drv := &Driver{h: engine.Handle(), state: state}
	return ctrl, runner, drv
}
