// Package wire defines the fixed-layout binary records exchanged between
// robots. Every record encodes field by field in little-endian order into a
// buffer of exactly Size() bytes; a decoder rejects any buffer of a different
// length, which is the only framing check on the multicast path.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Message is the contract every wire record implements.
type Message interface {
	// Encode returns the record as exactly Size() bytes.
	Encode() []byte
	// Decode fails unless data is exactly Size() bytes.
	Decode(data []byte) error
	// Size is constant per record type.
	Size() int
	// SetTimestamp refreshes the record's timestamp field (milliseconds).
	SetTimestamp(ts uint64)
	String() string
}

// IPv6StrLen is the fixed slot width for textual IPv6 addresses
// (INET6_ADDRSTRLEN).
const IPv6StrLen = 46

// UUIDStrLen is the fixed slot width for textual UUIDs (36 chars + NUL).
const UUIDStrLen = 37

// TransportType identifies a pub/sub middleware a robot can speak.
type TransportType uint8

const (
	TransportDDS TransportType = iota
	TransportZenoh
	TransportZeroMQ
	TransportMQTT
)

func (t TransportType) String() string {
	switch t {
	case TransportDDS:
		return "dds"
	case TransportZenoh:
		return "zenoh"
	case TransportZeroMQ:
		return "zeromq"
	case TransportMQTT:
		return "mqtt"
	default:
		return "unknown"
	}
}

// SerializationType identifies a payload encoding a robot can speak.
type SerializationType uint8

const (
	SerializationROS SerializationType = iota
	SerializationCapnProto
	SerializationFlatBuffers
	SerializationJSON
	SerializationProtobuf
)

func (s SerializationType) String() string {
	switch s {
	case SerializationROS:
		return "ros"
	case SerializationCapnProto:
		return "capnproto"
	case SerializationFlatBuffers:
		return "flatbuffers"
	case SerializationJSON:
		return "json"
	case SerializationProtobuf:
		return "protobuf"
	default:
		return "unknown"
	}
}

// Protocol is the middleware a robot network settles on during bootstrap.
type Protocol int32

const (
	ProtocolNone    Protocol = -1
	ProtocolDDSRTPS Protocol = 0
	ProtocolZenoh   Protocol = 1
	ProtocolMQTT    Protocol = 2
)

func (p Protocol) String() string {
	switch p {
	case ProtocolNone:
		return "NONE"
	case ProtocolDDSRTPS:
		return "DDS/RTPS"
	case ProtocolZenoh:
		return "ZENOH"
	case ProtocolMQTT:
		return "MQTT"
	default:
		return "UNKNOWN"
	}
}

// Medium identifies the physical link an announcement was made on.
type Medium uint32

const (
	MediumWiFi5GHz   Medium = 1
	MediumCellular5G Medium = 2
)

// GeoPoint is a geographic reference point (degrees, degrees, metres).
type GeoPoint struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// Pose is a 3D position plus orientation.
type Pose struct {
	X, Y, Z          float64
	Roll, Pitch, Yaw float64
}

// encoder writes fixed-width fields into a preallocated buffer.
type encoder struct {
	buf []byte
	off int
}

func newEncoder(size int) *encoder {
	return &encoder{buf: make([]byte, size)}
}

func (e *encoder) u8(v uint8) {
	e.buf[e.off] = v
	e.off++
}

func (e *encoder) bool(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) u32(v uint32) {
	binary.LittleEndian.PutUint32(e.buf[e.off:], v)
	e.off += 4
}

func (e *encoder) i32(v int32) {
	e.u32(uint32(v))
}

func (e *encoder) u64(v uint64) {
	binary.LittleEndian.PutUint64(e.buf[e.off:], v)
	e.off += 8
}

func (e *encoder) f64(v float64) {
	e.u64(math.Float64bits(v))
}

// str writes s into a fixed slot of width n, NUL padded. The last byte of
// the slot always stays NUL so decoders on either side see a terminated
// string even for maximum-length values.
func (e *encoder) str(s string, n int) {
	if len(s) > n-1 {
		s = s[:n-1]
	}
	copy(e.buf[e.off:e.off+n], s)
	e.off += n
}

func (e *encoder) geo(g GeoPoint) {
	e.f64(g.Latitude)
	e.f64(g.Longitude)
	e.f64(g.Altitude)
}

// decoder reads fixed-width fields from a validated buffer.
type decoder struct {
	buf []byte
	off int
}

func (d *decoder) u8() uint8 {
	v := d.buf[d.off]
	d.off++
	return v
}

func (d *decoder) bool() bool {
	return d.u8() != 0
}

func (d *decoder) u32() uint32 {
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

func (d *decoder) i32() int32 {
	return int32(d.u32())
}

func (d *decoder) u64() uint64 {
	v := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v
}

func (d *decoder) f64() float64 {
	return math.Float64frombits(d.u64())
}

// str reads a fixed slot of width n, truncating at the first NUL.
func (d *decoder) str(n int) string {
	slot := d.buf[d.off : d.off+n]
	d.off += n
	for i, b := range slot {
		if b == 0 {
			return string(slot[:i])
		}
	}
	return string(slot)
}

func (d *decoder) geo() GeoPoint {
	return GeoPoint{Latitude: d.f64(), Longitude: d.f64(), Altitude: d.f64()}
}

func checkSize(got, want int) error {
	if got != want {
		return fmt.Errorf("wire: buffer is %d bytes, record is %d", got, want)
	}
	return nil
}
