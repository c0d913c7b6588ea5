// Package lora implements the long-range serial-radio network interface:
// the byte-level framing spoken to the radio node firmware, the blocking
// command/response correlation, and the listener/heartbeat loops.
package lora

import (
	"bytes"
	"encoding/binary"
	"net"
)

// Serial command bytes understood by the radio node firmware.
const (
	CmdSendMessage  byte = 0x01
	CmdSetIPv6      byte = 0x02
	CmdGetStatus    byte = 0x03
	CmdSetConfig    byte = 0x04
	CmdResetNode    byte = 0x05
	CmdGetNeighbors byte = 0x06
)

// Response discriminators sent by the radio node.
const (
	RespAck     byte = 0x80
	RespNack    byte = 0x81
	RespStatus  byte = 0x82
	RespMessage byte = 0x83
	RespError   byte = 0x84
)

// Error codes carried in NACK/ERROR responses.
const (
	ErrInvalidCommand byte = 0x01
	ErrInvalidIPv6    byte = 0x02
	ErrRadioFailure   byte = 0x03
	ErrBufferOverflow byte = 0x04
	ErrTimeout        byte = 0x05
	ErrChecksumFailed byte = 0x06
)

// Config subtypes for CmdSetConfig.
const (
	cfgTxPower   byte = 0x01
	cfgFrequency byte = 0x02
	cfgHopLimit  byte = 0x03
)

// frameHeader is the magic every response packet starts with.
var frameHeader = []byte{0xAA, 0xBB, 0xCC, 0xDD}

// headerLen covers the magic plus the discriminator byte.
const headerLen = 5

// messageHeadLen is the fixed prefix of a MESSAGE body:
// broadcast flag + source IPv6 + big-endian payload length.
const messageHeadLen = 1 + 16 + 2

// BroadcastIPv6 is the radio mesh's all-nodes destination.
const BroadcastIPv6 = "ffff:ffff:ffff:ffff:ffff:ffff:ffff:ffff"

// packet is one complete response frame with the magic stripped.
type packet struct {
	respType byte
	body     []byte
}

// parser accumulates raw serial bytes and extracts complete response
// packets. Bytes preceding a magic header are discarded; when no header is
// present the whole buffer is dropped, a deliberate simplicity tradeoff
// that cannot recover a packet spanning a discarded boundary. Partial
// packets stay buffered across feeds.
type parser struct {
	buf []byte
}

// feed appends data and returns every packet that is now complete.
func (p *parser) feed(data []byte) []packet {
	p.buf = append(p.buf, data...)

	var packets []packet
	for len(p.buf) >= headerLen {
		pos := bytes.Index(p.buf, frameHeader)
		if pos < 0 {
			p.buf = nil
			break
		}
		if pos > 0 {
			p.buf = p.buf[pos:]
		}
		if len(p.buf) < headerLen {
			break
		}

		respType := p.buf[4]
		expected := headerLen
		switch respType {
		case RespAck:
			expected += 1
		case RespNack:
			expected += 2
		case RespStatus:
			expected += statusBodyLen
		case RespMessage:
			if len(p.buf) < headerLen+messageHeadLen {
				return packets // need the length bytes first
			}
			msgLen := int(binary.BigEndian.Uint16(p.buf[headerLen+17 : headerLen+19]))
			expected += messageHeadLen + msgLen
		case RespError:
			expected += 1
		}

		if len(p.buf) < expected {
			break
		}

		body := make([]byte, expected-headerLen)
		copy(body, p.buf[headerLen:expected])
		p.buf = p.buf[expected:]
		packets = append(packets, packet{respType: respType, body: body})
	}
	return packets
}

// statusBodyLen is the fixed STATUS body size:
// IPv6 + radio flag + tx power + frequency + hop limit + uptime.
const statusBodyLen = 16 + 1 + 1 + 4 + 1 + 2

// Status is a point-in-time snapshot of the remote radio node, overwritten
// wholesale on each successful fetch.
type Status struct {
	CurrentIPv6   string
	RadioActive   bool
	TxPower       uint8
	FrequencyHz   uint32
	HopLimit      uint8
	UptimeSeconds uint16
}

// parseStatus decodes a STATUS body. Multi-byte integers are big-endian on
// this link, unlike the LAN records.
func parseStatus(body []byte) (Status, bool) {
	if len(body) < statusBodyLen {
		return Status{}, false
	}
	return Status{
		CurrentIPv6:   net.IP(body[:16]).String(),
		RadioActive:   body[16] != 0,
		TxPower:       body[17],
		FrequencyHz:   binary.BigEndian.Uint32(body[18:22]),
		HopLimit:      body[22],
		UptimeSeconds: binary.BigEndian.Uint16(body[23:25]),
	}, true
}

// inboundMessage is a decoded MESSAGE body.
type inboundMessage struct {
	broadcast bool
	srcAddr   string
	payload   []byte
}

func parseMessage(body []byte) (inboundMessage, bool) {
	if len(body) < messageHeadLen {
		return inboundMessage{}, false
	}
	msgLen := int(binary.BigEndian.Uint16(body[17:19]))
	if len(body) < messageHeadLen+msgLen {
		return inboundMessage{}, false
	}
	return inboundMessage{
		broadcast: body[0] != 0,
		srcAddr:   net.IP(body[1:17]).String(),
		payload:   body[messageHeadLen : messageHeadLen+msgLen],
	}, true
}

// ipv6Bytes converts a textual IPv6 address to its 16-byte form.
func ipv6Bytes(addr string) ([]byte, bool) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return nil, false
	}
	b := ip.To16()
	if b == nil {
		return nil, false
	}
	return b, true
}
