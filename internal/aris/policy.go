package aris

import "impulse/internal/wire"

// SelectProtocol maps a robot's capability index to the pub/sub protocol
// it bootstraps the swarm with. High-capability robots carry DDS, mid-range
// robots run Zenoh, everything else falls back to MQTT.
func SelectProtocol(capability int32) wire.Protocol {
	switch {
	case capability >= 90:
		return wire.ProtocolDDSRTPS
	case capability >= 60:
		return wire.ProtocolZenoh
	default:
		return wire.ProtocolMQTT
	}
}

// ShouldShareInfoWith decides whether a peer's record is worth tracking.
// Robots at or above capability 90 are interesting to everyone; below that,
// both sides must clear the same tier. The policy is symmetric and monotone
// in both arguments, and it gates registry writes only — protocol adoption
// is never filtered by it.
func ShouldShareInfoWith(own, other int32) bool {
	if own >= 90 || other >= 90 {
		return true
	}
	if own >= 60 && other >= 60 {
		return true
	}
	if own >= 50 && other >= 50 {
		return true
	}
	return own >= 25 && other >= 25
}
