package wire

import "fmt"

// Fixed slot counts in an AgentMessage. Unused slots encode as empty
// strings so the record keeps its fixed wire size.
const (
	MaxParticipants  = 10
	MaxIPv6Addresses = 3
)

// RobotNameLen is the fixed slot width for robot names.
const RobotNameLen = 32

// PublicKeyLen is the fixed slot width for the (unverified) public key.
const PublicKeyLen = 64

// AgentMessageSize is the encoded size of an AgentMessage record in bytes.
const AgentMessageSize = 8 + PublicKeyLen + UUIDStrLen + 1 + 24 +
	MaxParticipants*UUIDStrLen + 4 + 4 + 4 + MaxIPv6Addresses*IPv6StrLen + 4 + RobotNameLen

// AgentMessage is the full ARIS gossip record. PublicKey is a placeholder
// that is never verified anywhere; identity is unauthenticated.
type AgentMessage struct {
	Timestamp        uint64
	PublicKey        string
	UUID             string
	Orchestrator     bool
	ZeroRef          GeoPoint
	ParticipantUUIDs []string // at most MaxParticipants entries
	CapabilityIndex  int32
	Medium           Medium
	Protocol         Protocol
	IPv6Addresses    []string // at most MaxIPv6Addresses entries
	RobotID          uint32
	RobotName        string
}

func (m *AgentMessage) Size() int { return AgentMessageSize }

func (m *AgentMessage) SetTimestamp(ts uint64) { m.Timestamp = ts }

func (m *AgentMessage) Encode() []byte {
	e := newEncoder(AgentMessageSize)
	e.u64(m.Timestamp)
	e.str(m.PublicKey, PublicKeyLen)
	e.str(m.UUID, UUIDStrLen)
	e.bool(m.Orchestrator)
	e.geo(m.ZeroRef)
	for i := 0; i < MaxParticipants; i++ {
		e.str(slot(m.ParticipantUUIDs, i), UUIDStrLen)
	}
	e.i32(m.CapabilityIndex)
	e.u32(uint32(m.Medium))
	e.u32(uint32(m.Protocol))
	for i := 0; i < MaxIPv6Addresses; i++ {
		e.str(slot(m.IPv6Addresses, i), IPv6StrLen)
	}
	e.u32(m.RobotID)
	e.str(m.RobotName, RobotNameLen)
	return e.buf
}

func (m *AgentMessage) Decode(data []byte) error {
	if err := checkSize(len(data), AgentMessageSize); err != nil {
		return err
	}
	d := &decoder{buf: data}
	m.Timestamp = d.u64()
	m.PublicKey = d.str(PublicKeyLen)
	m.UUID = d.str(UUIDStrLen)
	m.Orchestrator = d.bool()
	m.ZeroRef = d.geo()
	m.ParticipantUUIDs = readSlots(d, MaxParticipants, UUIDStrLen)
	m.CapabilityIndex = d.i32()
	m.Medium = Medium(d.u32())
	m.Protocol = Protocol(int32(d.u32()))
	m.IPv6Addresses = readSlots(d, MaxIPv6Addresses, IPv6StrLen)
	m.RobotID = d.u32()
	m.RobotName = d.str(RobotNameLen)
	return nil
}

func (m *AgentMessage) String() string {
	return fmt.Sprintf("AgentMessage{name=%s, uuid=%s, capability=%d, protocol=%s, robot_id=%d}",
		m.RobotName, m.UUID, m.CapabilityIndex, m.Protocol, m.RobotID)
}

func slot(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

// readSlots collects the populated prefix of a fixed-capacity string array.
func readSlots(d *decoder, count, width int) []string {
	var out []string
	for i := 0; i < count; i++ {
		if v := d.str(width); v != "" {
			out = append(out, v)
		}
	}
	return out
}
