package aris

import (
	"testing"

	"impulse/internal/wire"
)

func TestSelectProtocol(t *testing.T) {
	tests := []struct {
		capability int32
		want       wire.Protocol
	}{
		{100, wire.ProtocolDDSRTPS},
		{90, wire.ProtocolDDSRTPS},
		{89, wire.ProtocolZenoh},
		{60, wire.ProtocolZenoh},
		{59, wire.ProtocolMQTT},
		{25, wire.ProtocolMQTT},
		{0, wire.ProtocolMQTT},
	}
	for _, tt := range tests {
		if got := SelectProtocol(tt.capability); got != tt.want {
			t.Errorf("SelectProtocol(%d) = %s, want %s", tt.capability, got, tt.want)
		}
	}
}

func TestShouldShareInfoWith(t *testing.T) {
	tests := []struct {
		own, other int32
		want       bool
	}{
		{95, 5, true},   // high capability is interesting to everyone
		{5, 95, true},
		{90, 0, true},
		{60, 60, true},
		{60, 24, false}, // other misses every shared tier
		{59, 59, true},  // both clear the 50 tier
		{50, 50, true},
		{49, 49, true}, // both clear the 25 tier
		{25, 25, true},
		{25, 24, false},
		{24, 24, false},
		{0, 0, false},
	}
	for _, tt := range tests {
		if got := ShouldShareInfoWith(tt.own, tt.other); got != tt.want {
			t.Errorf("ShouldShareInfoWith(%d, %d) = %v, want %v", tt.own, tt.other, got, tt.want)
		}
	}
}

func TestShouldShareInfoWithSymmetric(t *testing.T) {
	caps := []int32{0, 10, 24, 25, 49, 50, 59, 60, 89, 90, 100}
	for _, a := range caps {
		for _, b := range caps {
			if ShouldShareInfoWith(a, b) != ShouldShareInfoWith(b, a) {
				t.Errorf("policy asymmetric for (%d, %d)", a, b)
			}
		}
	}
}

func TestShouldShareInfoWithMonotone(t *testing.T) {
	caps := []int32{0, 10, 24, 25, 49, 50, 59, 60, 89, 90, 100}
	for _, own := range caps {
		for i := 1; i < len(caps); i++ {
			lower, higher := caps[i-1], caps[i]
			if ShouldShareInfoWith(own, lower) && !ShouldShareInfoWith(own, higher) {
				t.Errorf("raising other from %d to %d lost trust at own=%d", lower, higher, own)
			}
		}
	}
}
