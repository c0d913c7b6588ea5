package lora

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakePort simulates the radio node firmware on the far end of the serial
// link. Reads drain a response buffer; writes invoke an optional responder.
type fakePort struct {
	mu      sync.Mutex
	rx      bytes.Buffer
	writes  [][]byte
	respond func(frame []byte) []byte
	closed  bool
}

func (f *fakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, io.EOF
	}
	if f.rx.Len() == 0 {
		return 0, nil // behaves like a serial read timeout
	}
	return f.rx.Read(p)
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, io.ErrClosedPipe
	}
	frame := make([]byte, len(p))
	copy(frame, p)
	f.writes = append(f.writes, frame)
	if f.respond != nil {
		if resp := f.respond(frame); resp != nil {
			f.rx.Write(resp)
		}
	}
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// inject pushes unsolicited bytes from the radio, as relayed mesh traffic
// would arrive.
func (f *fakePort) inject(data []byte) {
	f.mu.Lock()
	f.rx.Write(data)
	f.mu.Unlock()
}

func (f *fakePort) writtenCommands() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	copy(out, f.writes)
	return out
}

// startTestInterface wires an Interface to a fakePort and starts it. The
// fake answers GET_STATUS with an address whose first byte echoes the
// command, matching the firmware's correlation scheme.
func startTestInterface(t *testing.T, port *fakePort) *Interface {
	t.Helper()

	if port.respond == nil {
		port.respond = func(frame []byte) []byte {
			if len(frame) > 0 && frame[0] == CmdGetStatus {
				var ipv6 [16]byte
				ipv6[0] = CmdGetStatus
				ipv6[15] = 0x01
				return framed(RespStatus, statusBody(ipv6, 1, 20, 868_000_000, 3, 42))
			}
			return nil
		}
	}

	iface, err := New("/dev/ttyTEST", "fd00:dead:beef::1", zerolog.Nop())
	if err != nil {
		t.Fatalf("new interface: %v", err)
	}
	iface.openPort = func(string) (Port, error) { return port, nil }
	iface.SetCommandTimeout(500 * time.Millisecond)

	if err := iface.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	t.Cleanup(iface.Stop)
	return iface
}

func TestInterface_StartSetsNodeAddressAndFetchesStatus(t *testing.T) {
	port := &fakePort{}
	iface := startTestInterface(t, port)

	if !iface.Connected() {
		t.Error("interface not connected after start")
	}

	var sawSetIPv6, sawGetStatus bool
	for _, frame := range port.writtenCommands() {
		switch frame[0] {
		case CmdSetIPv6:
			sawSetIPv6 = true
			if len(frame) != 17 {
				t.Errorf("SET_IPV6 frame is %d bytes, want 17", len(frame))
			}
		case CmdGetStatus:
			sawGetStatus = true
		}
	}
	if !sawSetIPv6 {
		t.Error("SET_IPV6 never written")
	}
	if !sawGetStatus {
		t.Error("GET_STATUS never written")
	}

	status := iface.LastStatus()
	if status.FrequencyHz != 868_000_000 {
		t.Errorf("FrequencyHz = %d, want 868000000", status.FrequencyHz)
	}
	if status.UptimeSeconds != 42 {
		t.Errorf("UptimeSeconds = %d, want 42", status.UptimeSeconds)
	}
}

func TestInterface_FetchStatusTimesOut(t *testing.T) {
	port := &fakePort{respond: func(frame []byte) []byte {
		// Answer only the SET_IPV6-era traffic with silence; all status
		// queries go unanswered.
		return nil
	}}

	iface, err := New("/dev/ttyTEST", "fd00:dead:beef::1", zerolog.Nop())
	if err != nil {
		t.Fatalf("new interface: %v", err)
	}
	iface.openPort = func(string) (Port, error) { return port, nil }
	iface.SetCommandTimeout(100 * time.Millisecond)

	if err := iface.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer iface.Stop()

	start := time.Now()
	if _, err := iface.FetchStatus(); err == nil {
		t.Fatal("status fetch succeeded with a silent radio")
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("timed out after %v, want >= 100ms", elapsed)
	}
}

func TestInterface_SendMessageFrameLayout(t *testing.T) {
	port := &fakePort{}
	iface := startTestInterface(t, port)

	payload := []byte("agent gossip")
	if err := iface.SendMessage("fd00::2a", 0, payload); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	var frame []byte
	for _, w := range port.writtenCommands() {
		if w[0] == CmdSendMessage {
			frame = w
		}
	}
	if frame == nil {
		t.Fatal("SEND_MESSAGE never written")
	}

	// [cmd][len u16 BE][dest ipv6 16][payload]
	wantLen := 1 + 2 + 16 + len(payload)
	if len(frame) != wantLen {
		t.Fatalf("frame is %d bytes, want %d", len(frame), wantLen)
	}
	if got := int(frame[1])<<8 | int(frame[2]); got != len(payload) {
		t.Errorf("payload length field = %d, want %d", got, len(payload))
	}
	if frame[3] != 0xfd {
		t.Errorf("dest address starts with %#02x, want 0xfd", frame[3])
	}
	if !bytes.Equal(frame[19:], payload) {
		t.Errorf("payload = %q, want %q", frame[19:], payload)
	}
}

func TestInterface_SendMessageRejectsBadAddress(t *testing.T) {
	port := &fakePort{}
	iface := startTestInterface(t, port)

	if err := iface.SendMessage("not-an-address", 0, []byte("x")); err == nil {
		t.Error("invalid destination accepted")
	}
}

func TestInterface_InboundMessageReachesCallbackAndQueue(t *testing.T) {
	port := &fakePort{}
	iface := startTestInterface(t, port)

	type received struct {
		payload []byte
		from    string
	}
	ch := make(chan received, 1)
	iface.SetCallback(func(payload []byte, fromAddr string, _ uint16) {
		ch <- received{payload: payload, from: fromAddr}
	})

	payload := []byte("relayed discovery")
	body := []byte{1} // broadcast
	src := make([]byte, 16)
	src[0] = 0xfd
	src[15] = 0x0b
	body = append(body, src...)
	body = append(body, byte(len(payload)>>8), byte(len(payload)))
	body = append(body, payload...)
	port.inject(framed(RespMessage, body))

	select {
	case got := <-ch:
		if !bytes.Equal(got.payload, payload) {
			t.Errorf("payload = %q, want %q", got.payload, payload)
		}
		if got.from != "fd00::b" {
			t.Errorf("fromAddr = %s, want fd00::b", got.from)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}

	if !iface.HasMessages() {
		t.Fatal("inbox empty after delivery")
	}
	msgs := iface.PendingMessages()
	if len(msgs) != 1 {
		t.Fatalf("inbox has %d messages, want 1", len(msgs))
	}
	if !msgs[0].Broadcast {
		t.Error("broadcast flag lost")
	}
	if iface.HasMessages() {
		t.Error("inbox not drained")
	}
}

func TestInterface_StopIsIdempotentAndRestartable(t *testing.T) {
	port := &fakePort{}
	iface := startTestInterface(t, port)

	iface.Stop()
	iface.Stop()
	if iface.Connected() {
		t.Error("connected after stop")
	}

	// A fresh port stands in for re-opening the device.
	iface.openPort = func(string) (Port, error) { return &fakePort{respond: port.respond}, nil }
	if err := iface.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if !iface.Connected() {
		t.Error("not connected after restart")
	}
	iface.Stop()
}

func TestInterface_StartFailsWhenDeviceMissing(t *testing.T) {
	iface, err := New("/dev/ttyTEST", "fd00::1", zerolog.Nop())
	if err != nil {
		t.Fatalf("new interface: %v", err)
	}
	iface.openPort = func(string) (Port, error) {
		return nil, io.ErrUnexpectedEOF
	}
	if err := iface.Start(); err == nil {
		t.Error("start succeeded without a device")
	}
}

func TestNew_RequiresValidNodeAddress(t *testing.T) {
	if _, err := New("/dev/ttyUSB0", "", zerolog.Nop()); err == nil {
		t.Error("empty node address accepted")
	}
	if _, err := New("/dev/ttyUSB0", "bogus", zerolog.Nop()); err == nil {
		t.Error("bogus node address accepted")
	}
}
