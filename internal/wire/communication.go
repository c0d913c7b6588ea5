package wire

import "fmt"

// CommunicationSize is the encoded size of a Communication record in bytes.
const CommunicationSize = 8 + 1 + 1

// Communication advertises the middleware and payload encoding a robot is
// willing to speak.
type Communication struct {
	Timestamp         uint64
	TransportType     TransportType
	SerializationType SerializationType
}

func (m *Communication) Size() int { return CommunicationSize }

func (m *Communication) SetTimestamp(ts uint64) { m.Timestamp = ts }

func (m *Communication) Encode() []byte {
	e := newEncoder(CommunicationSize)
	e.u64(m.Timestamp)
	e.u8(uint8(m.TransportType))
	e.u8(uint8(m.SerializationType))
	return e.buf
}

func (m *Communication) Decode(data []byte) error {
	if err := checkSize(len(data), CommunicationSize); err != nil {
		return err
	}
	d := &decoder{buf: data}
	m.Timestamp = d.u64()
	m.TransportType = TransportType(d.u8())
	m.SerializationType = SerializationType(d.u8())
	return nil
}

func (m *Communication) String() string {
	return fmt.Sprintf("Communication{transport_type=%s, serialization_type=%s}",
		m.TransportType, m.SerializationType)
}
