package wire

import "fmt"

// PositionSize is the encoded size of a Position record in bytes.
const PositionSize = 8 + 48

// Position carries a robot's timestamped pose.
type Position struct {
	Timestamp uint64
	Pose      Pose
}

func (m *Position) Size() int { return PositionSize }

func (m *Position) SetTimestamp(ts uint64) { m.Timestamp = ts }

func (m *Position) Encode() []byte {
	e := newEncoder(PositionSize)
	e.u64(m.Timestamp)
	e.f64(m.Pose.X)
	e.f64(m.Pose.Y)
	e.f64(m.Pose.Z)
	e.f64(m.Pose.Roll)
	e.f64(m.Pose.Pitch)
	e.f64(m.Pose.Yaw)
	return e.buf
}

func (m *Position) Decode(data []byte) error {
	if err := checkSize(len(data), PositionSize); err != nil {
		return err
	}
	d := &decoder{buf: data}
	m.Timestamp = d.u64()
	m.Pose.X = d.f64()
	m.Pose.Y = d.f64()
	m.Pose.Z = d.f64()
	m.Pose.Roll = d.f64()
	m.Pose.Pitch = d.f64()
	m.Pose.Yaw = d.f64()
	return nil
}

func (m *Position) String() string {
	return fmt.Sprintf("Position{point=(%.2f,%.2f,%.2f), angle=(roll=%.2f,pitch=%.2f,yaw=%.2f), timestamp=%d}",
		m.Pose.X, m.Pose.Y, m.Pose.Z, m.Pose.Roll, m.Pose.Pitch, m.Pose.Yaw, m.Timestamp)
}
