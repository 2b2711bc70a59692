package mesh

import (
	"fmt"

	"github.com/threadkit/threadkit-go/pkg/log"
)

// The engine captures radio frames and host-visible state. The node adds
// what only it can see: partition changes and frames it discards.

func (n *Node) captureState(entity log.StateEntity, name, from, to string) {
	if !n.capture {
		return
	}
	n.plog.Log(n.origin().Stamp(log.Event{
		Timestamp: n.cfg.Clock(),
		Layer:     log.LayerMesh,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: from,
			NewState: to,
			Name:     name,
		},
	}))
}

func (n *Node) captureError(layer log.Layer, peer, op string, err error) {
	if !n.capture || err == nil {
		return
	}
	n.plog.Log(n.origin().Stamp(log.Event{
		Timestamp: n.cfg.Clock(),
		Layer:     layer,
		Category:  log.CategoryError,
		Peer:      peer,
		Error:     &log.ErrorEventData{Layer: layer, Message: err.Error(), Context: op},
	}))
}

func (n *Node) origin() log.Origin {
	return log.Origin{InstanceID: n.instanceID, ExtAddress: n.ext}
}

// partitionName labels the current partition in capture events.
func (n *Node) partitionName() string {
	if !n.mle.role.Attached() {
		return ""
	}
	return fmt.Sprintf("partition %08x", n.mle.leader.PartitionID)
}
