package lora

import (
	"bytes"
	"testing"
)

// statusBody builds a valid 25-byte STATUS body. The leading IPv6 bytes
// double as the correlation key on this protocol, so tests pick addresses
// whose first byte matches the command they answer.
func statusBody(ipv6 [16]byte, active byte, txPower byte, freqHz uint32, hop byte, uptime uint16) []byte {
	body := make([]byte, 0, statusBodyLen)
	body = append(body, ipv6[:]...)
	body = append(body, active, txPower)
	body = append(body, byte(freqHz>>24), byte(freqHz>>16), byte(freqHz>>8), byte(freqHz))
	body = append(body, hop)
	body = append(body, byte(uptime>>8), byte(uptime))
	return body
}

func framed(respType byte, body []byte) []byte {
	pkt := append([]byte{}, frameHeader...)
	pkt = append(pkt, respType)
	return append(pkt, body...)
}

func TestParser_SinglePacket(t *testing.T) {
	var p parser
	pkts := p.feed(framed(RespAck, []byte{CmdSendMessage}))
	if len(pkts) != 1 {
		t.Fatalf("got %d packets, want 1", len(pkts))
	}
	if pkts[0].respType != RespAck {
		t.Errorf("respType = %#02x, want ACK", pkts[0].respType)
	}
	if !bytes.Equal(pkts[0].body, []byte{CmdSendMessage}) {
		t.Errorf("body = %v", pkts[0].body)
	}
}

func TestParser_ResyncAfterGarbagePrefix(t *testing.T) {
	var ipv6 [16]byte
	ipv6[0] = CmdGetStatus
	ipv6[15] = 0x01
	status := framed(RespStatus, statusBody(ipv6, 1, 20, 868_000_000, 3, 3600))

	// Corrupted partial header, then garbage, then a valid packet.
	stream := append([]byte{0xAA, 0xBB, 0x00, 0x12, 0x34}, status...)

	var p parser
	pkts := p.feed(stream)
	if len(pkts) != 1 {
		t.Fatalf("got %d packets, want exactly 1", len(pkts))
	}
	parsed, ok := parseStatus(pkts[0].body)
	if !ok {
		t.Fatal("status body rejected")
	}
	if parsed.FrequencyHz != 868_000_000 {
		t.Errorf("FrequencyHz = %d, want 868000000", parsed.FrequencyHz)
	}
	if parsed.UptimeSeconds != 3600 {
		t.Errorf("UptimeSeconds = %d, want 3600", parsed.UptimeSeconds)
	}
}

func TestParser_NoHeaderDropsBuffer(t *testing.T) {
	var p parser
	if pkts := p.feed([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}); len(pkts) != 0 {
		t.Fatalf("got %d packets from garbage", len(pkts))
	}
	if len(p.buf) != 0 {
		t.Errorf("buffer not dropped: %d bytes retained", len(p.buf))
	}
}

func TestParser_PartialPacketAccumulates(t *testing.T) {
	nack := framed(RespNack, []byte{CmdSetIPv6, ErrInvalidIPv6})

	var p parser
	if pkts := p.feed(nack[:3]); len(pkts) != 0 {
		t.Fatal("packet emitted from partial header")
	}
	if pkts := p.feed(nack[3:6]); len(pkts) != 0 {
		t.Fatal("packet emitted from incomplete body")
	}
	pkts := p.feed(nack[6:])
	if len(pkts) != 1 {
		t.Fatalf("got %d packets, want 1", len(pkts))
	}
	if pkts[0].respType != RespNack {
		t.Errorf("respType = %#02x, want NACK", pkts[0].respType)
	}
	if !bytes.Equal(pkts[0].body, []byte{CmdSetIPv6, ErrInvalidIPv6}) {
		t.Errorf("body = %v", pkts[0].body)
	}
}

func TestParser_MessagePayloadLengthHonored(t *testing.T) {
	payload := []byte("hello over the air")
	body := make([]byte, 0, messageHeadLen+len(payload))
	body = append(body, 1) // broadcast
	src := make([]byte, 16)
	src[0] = 0xfd
	src[15] = 0x2a
	body = append(body, src...)
	body = append(body, byte(len(payload)>>8), byte(len(payload)))
	body = append(body, payload...)

	frame := framed(RespMessage, body)

	var p parser
	// Deliver the frame one byte at a time; nothing may be emitted early.
	for n := 0; n < len(frame)-1; n++ {
		if pkts := p.feed(frame[n : n+1]); len(pkts) != 0 {
			t.Fatalf("packet emitted after %d bytes", n+1)
		}
	}
	pkts := p.feed(frame[len(frame)-1:])
	if len(pkts) != 1 {
		t.Fatalf("got %d packets, want 1", len(pkts))
	}

	msg, ok := parseMessage(pkts[0].body)
	if !ok {
		t.Fatal("message body rejected")
	}
	if !msg.broadcast {
		t.Error("broadcast flag lost")
	}
	if msg.srcAddr != "fd00::2a" {
		t.Errorf("srcAddr = %s, want fd00::2a", msg.srcAddr)
	}
	if !bytes.Equal(msg.payload, payload) {
		t.Errorf("payload = %q, want %q", msg.payload, payload)
	}
}

func TestParser_BackToBackPackets(t *testing.T) {
	stream := append(framed(RespAck, []byte{CmdSendMessage}),
		framed(RespError, []byte{ErrRadioFailure})...)

	var p parser
	pkts := p.feed(stream)
	if len(pkts) != 2 {
		t.Fatalf("got %d packets, want 2", len(pkts))
	}
	if pkts[0].respType != RespAck || pkts[1].respType != RespError {
		t.Errorf("types = %#02x, %#02x", pkts[0].respType, pkts[1].respType)
	}
}

func TestParseStatus_RejectsShortBody(t *testing.T) {
	if _, ok := parseStatus(make([]byte, statusBodyLen-1)); ok {
		t.Error("short status body accepted")
	}
}

func TestParseStatus_Fields(t *testing.T) {
	var ipv6 [16]byte
	ipv6[0] = 0xfd
	ipv6[15] = 0x07
	status, ok := parseStatus(statusBody(ipv6, 1, 14, 433_000_000, 5, 120))
	if !ok {
		t.Fatal("valid status body rejected")
	}
	if status.CurrentIPv6 != "fd00::7" {
		t.Errorf("CurrentIPv6 = %s, want fd00::7", status.CurrentIPv6)
	}
	if !status.RadioActive {
		t.Error("RadioActive = false")
	}
	if status.TxPower != 14 {
		t.Errorf("TxPower = %d, want 14", status.TxPower)
	}
	if status.FrequencyHz != 433_000_000 {
		t.Errorf("FrequencyHz = %d", status.FrequencyHz)
	}
	if status.HopLimit != 5 {
		t.Errorf("HopLimit = %d, want 5", status.HopLimit)
	}
	if status.UptimeSeconds != 120 {
		t.Errorf("UptimeSeconds = %d, want 120", status.UptimeSeconds)
	}
}
