// Package sim provides an in-memory IEEE 802.15.4 medium for tests and
// simulations.
//
// Radios attached to the same Medium hear every frame sent on their channel.
// Receivers filter by PAN ID and destination address the way a real radio's
// frame filter does, unless configured as promiscuous. Frames that request an
// acknowledgment are reported as TxAck when at least one listening radio
// accepted them, and TxNoAck otherwise.
//
//	m := sim.NewMedium()
//	a, b := m.NewRadio(), m.NewRadio()
//	go engineA.Run(ctx, a)
//	go engineB.Run(ctx, b)
package sim
