// Package mqttbridge implements a virtual 802.15.4 medium over an MQTT
// broker.
//
// Every radio publishes its frames on <root>/<channel> and subscribes to
// <root>/+. A frame travels in a small protobuf-encoded envelope:
//
//	1: sender  bytes   (random per radio)
//	2: channel uint32
//	3: psdu    bytes
//	4: rssi    sint32  (optional, simulated signal strength)
//
// Receivers drop their own frames, frames on other channels and, unless
// promiscuous, frames not addressed to them. The broker gives no link-layer
// acknowledgement, so every transmission completes with radio.TxAck.
package mqttbridge
