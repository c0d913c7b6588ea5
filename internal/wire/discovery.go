package wire

import (
	"fmt"
	"time"
)

// DiscoverySize is the encoded size of a Discovery record in bytes.
const DiscoverySize = 8 + 8 + IPv6StrLen + 24 + 1 + 4

// Discovery is the periodic self-announcement a robot broadcasts on the
// generic multicast group. JoinTime is set once at startup and never
// changes; Timestamp is refreshed on every rebroadcast, so peers compute a
// robot's age as now − JoinTime, not now − Timestamp.
type Discovery struct {
	Timestamp       uint64
	JoinTime        uint64
	IPv6            string
	ZeroRef         GeoPoint
	Orchestrator    bool
	CapabilityIndex int32
}

func (m *Discovery) Size() int { return DiscoverySize }

func (m *Discovery) SetTimestamp(ts uint64) { m.Timestamp = ts }

func (m *Discovery) Encode() []byte {
	e := newEncoder(DiscoverySize)
	e.u64(m.Timestamp)
	e.u64(m.JoinTime)
	e.str(m.IPv6, IPv6StrLen)
	e.geo(m.ZeroRef)
	e.bool(m.Orchestrator)
	e.i32(m.CapabilityIndex)
	return e.buf
}

func (m *Discovery) Decode(data []byte) error {
	if err := checkSize(len(data), DiscoverySize); err != nil {
		return err
	}
	d := &decoder{buf: data}
	m.Timestamp = d.u64()
	m.JoinTime = d.u64()
	m.IPv6 = d.str(IPv6StrLen)
	m.ZeroRef = d.geo()
	m.Orchestrator = d.bool()
	m.CapabilityIndex = d.i32()
	return nil
}

func (m *Discovery) String() string {
	joined := time.UnixMilli(int64(m.JoinTime)).Format("15:04:05")
	return fmt.Sprintf("Discovery{capability=%d, orchestrator=%t, joined=%s}",
		m.CapabilityIndex, m.Orchestrator, joined)
}
