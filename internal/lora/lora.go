package lora

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"impulse/internal/netif"
)

const (
	defaultCommandTimeout = 5 * time.Second
	serialReadTimeout     = 10 * time.Millisecond
	heartbeatTick         = 1 * time.Second
	statusPollInterval    = 30 * time.Second
	// Pacing between successive sends to one radio, so group fan-out does
	// not overrun the air interface.
	groupSendDelay = 100 * time.Millisecond
)

// Port is the serial device contract the interface runs against. The real
// implementation is a go.bug.st/serial port in raw 115200 8N1 mode.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

func openSerialPort(device string) (Port, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial device %s: %w", device, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("setting read timeout on %s: %w", device, err)
	}
	return port, nil
}

// IncomingMessage is a payload relayed by the radio node.
type IncomingMessage struct {
	SourceAddr string
	Payload    []byte
	Broadcast  bool
	Received   time.Time
}

// Interface is the long-range serial-radio variant of netif.Interface. It
// frames commands onto the serial link, correlates command writes with
// asynchronous response packets, and runs a listener loop plus a periodic
// status heartbeat.
type Interface struct {
	device   string
	nodeIPv6 string
	log      zerolog.Logger

	// openPort is swapped out by tests.
	openPort   func(device string) (Port, error)
	cmdTimeout time.Duration

	mu      sync.Mutex
	port    Port
	running bool
	done    chan struct{}
	wg      sync.WaitGroup

	// cmdMu serializes command writes onto the link.
	cmdMu sync.Mutex

	waitMu  sync.Mutex
	waiters map[byte]chan []byte

	statusMu sync.Mutex
	status   Status

	msgMu sync.Mutex
	inbox []IncomingMessage

	cbMu     sync.Mutex
	callback netif.Callback
}

// New builds a radio interface for the given serial device. The interface
// advertises nodeIPv6, which must match the address used on the LAN side
// so peers see one identity across both media.
func New(device, nodeIPv6 string, log zerolog.Logger) (*Interface, error) {
	if nodeIPv6 == "" {
		return nil, fmt.Errorf("radio interface requires a node IPv6 address")
	}
	if _, ok := ipv6Bytes(nodeIPv6); !ok {
		return nil, fmt.Errorf("invalid node IPv6 address: %s", nodeIPv6)
	}
	return &Interface{
		device:     device,
		nodeIPv6:   nodeIPv6,
		log:        log,
		openPort:   openSerialPort,
		cmdTimeout: defaultCommandTimeout,
		waiters:    make(map[byte]chan []byte),
	}, nil
}

// SetCommandTimeout overrides the request/response timeout (default 5s).
func (i *Interface) SetCommandTimeout(d time.Duration) {
	i.mu.Lock()
	i.cmdTimeout = d
	i.mu.Unlock()
}

// Start opens the serial device, launches the listener and heartbeat
// loops, and pushes the node address to the radio. Restartable after Stop.
func (i *Interface) Start() error {
	i.mu.Lock()
	if i.running {
		i.mu.Unlock()
		return nil
	}

	port, err := i.openPort(i.device)
	if err != nil {
		i.mu.Unlock()
		return err
	}

	i.port = port
	i.running = true
	i.done = make(chan struct{})
	i.wg.Add(2)
	go i.listenLoop()
	go i.heartbeatLoop()
	i.mu.Unlock()

	// Give the link a moment to settle before the first command.
	time.Sleep(500 * time.Millisecond)

	if err := i.SetNodeIPv6(i.nodeIPv6); err != nil {
		i.Stop()
		return fmt.Errorf("setting radio node address: %w", err)
	}

	if status, err := i.FetchStatus(); err != nil {
		i.log.Debug().Err(err).Msg("Initial radio status fetch failed")
	} else {
		i.log.Info().
			Str("device", i.device).
			Str("radio_ipv6", status.CurrentIPv6).
			Uint32("frequency_hz", status.FrequencyHz).
			Msg("Radio interface started")
	}

	return nil
}

// Stop signals both loops, joins them and closes the serial device.
// Idempotent; Start may be called again afterwards.
func (i *Interface) Stop() {
	i.mu.Lock()
	if !i.running {
		i.mu.Unlock()
		return
	}
	i.running = false
	close(i.done)
	port := i.port
	i.port = nil
	i.mu.Unlock()

	i.wg.Wait()
	if port != nil {
		port.Close()
	}
	i.log.Info().Str("device", i.device).Msg("Radio interface stopped")
}

// SendMessage relays a payload to a single radio peer. Fire-and-forget:
// the command is written but no ACK is awaited.
func (i *Interface) SendMessage(destAddr string, _ uint16, payload []byte) error {
	dest, ok := ipv6Bytes(destAddr)
	if !ok {
		return fmt.Errorf("invalid destination address: %s", destAddr)
	}

	// [payload len u16 BE][dest ipv6 16][payload]
	data := make([]byte, 0, 2+16+len(payload))
	data = append(data, byte(len(payload)>>8), byte(len(payload)))
	data = append(data, dest...)
	data = append(data, payload...)

	return i.sendCommand(CmdSendMessage, data)
}

// Multicast sends a payload to the radio mesh's all-nodes address.
func (i *Interface) Multicast(payload []byte) error {
	return i.SendMessage(BroadcastIPv6, 0, payload)
}

// MulticastGroup relays the payload to each listed peer with pacing
// between sends.
func (i *Interface) MulticastGroup(destAddrs []string, destPort uint16, payload []byte) error {
	for n, addr := range destAddrs {
		if n > 0 {
			time.Sleep(groupSendDelay)
		}
		if err := i.SendMessage(addr, destPort, payload); err != nil {
			i.log.Warn().Err(err).Str("dest", addr).Msg("Radio group send failed")
		}
	}
	return nil
}

// Address reports the radio's current IPv6, falling back to the configured
// node address until a status fetch has succeeded.
func (i *Interface) Address() string {
	i.statusMu.Lock()
	defer i.statusMu.Unlock()
	if i.status.CurrentIPv6 != "" && i.status.CurrentIPv6 != "::" {
		return i.status.CurrentIPv6
	}
	return i.nodeIPv6
}

// Port is always zero: the radio link has no port concept.
func (i *Interface) Port() uint16 { return 0 }

func (i *Interface) Name() string { return "LoRa-" + i.device }

// Connected reports whether the serial link is open and the loops run.
func (i *Interface) Connected() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.running && i.port != nil
}

// SetCallback registers the handler invoked for every MESSAGE frame.
func (i *Interface) SetCallback(cb netif.Callback) {
	i.cbMu.Lock()
	i.callback = cb
	i.cbMu.Unlock()
}

// LastStatus returns the most recent status snapshot without touching the
// radio.
func (i *Interface) LastStatus() Status {
	i.statusMu.Lock()
	defer i.statusMu.Unlock()
	return i.status
}

// FetchStatus queries the radio node and replaces the local snapshot
// wholesale on success.
func (i *Interface) FetchStatus() (Status, error) {
	body, err := i.request(CmdGetStatus, nil)
	if err != nil {
		return Status{}, err
	}
	status, ok := parseStatus(body)
	if !ok {
		return Status{}, fmt.Errorf("malformed status response (%d bytes)", len(body))
	}
	i.statusMu.Lock()
	i.status = status
	i.statusMu.Unlock()
	return status, nil
}

// SetNodeIPv6 pushes a new node address to the radio.
func (i *Interface) SetNodeIPv6(addr string) error {
	b, ok := ipv6Bytes(addr)
	if !ok {
		return fmt.Errorf("invalid IPv6 address: %s", addr)
	}
	if err := i.sendCommand(CmdSetIPv6, b); err != nil {
		return err
	}
	i.mu.Lock()
	i.nodeIPv6 = addr
	i.mu.Unlock()
	return nil
}

// ResetNode reboots the radio node.
func (i *Interface) ResetNode() error {
	return i.sendCommand(CmdResetNode, nil)
}

// SetTxPower configures the radio transmit power.
func (i *Interface) SetTxPower(power uint8) error {
	return i.sendCommand(CmdSetConfig, []byte{cfgTxPower, power})
}

// SetFrequency configures the radio carrier frequency.
func (i *Interface) SetFrequency(hz uint32) error {
	return i.sendCommand(CmdSetConfig, []byte{
		cfgFrequency,
		byte(hz >> 24), byte(hz >> 16), byte(hz >> 8), byte(hz),
	})
}

// SetHopLimit configures the mesh hop limit.
func (i *Interface) SetHopLimit(limit uint8) error {
	return i.sendCommand(CmdSetConfig, []byte{cfgHopLimit, limit})
}

// HasMessages reports whether relayed messages are queued.
func (i *Interface) HasMessages() bool {
	i.msgMu.Lock()
	defer i.msgMu.Unlock()
	return len(i.inbox) > 0
}

// PendingMessages drains and returns the queued relayed messages.
func (i *Interface) PendingMessages() []IncomingMessage {
	i.msgMu.Lock()
	defer i.msgMu.Unlock()
	msgs := i.inbox
	i.inbox = nil
	return msgs
}

// sendCommand writes [cmd][data...] onto the link under the command lock.
func (i *Interface) sendCommand(cmd byte, data []byte) error {
	i.mu.Lock()
	port := i.port
	running := i.running
	i.mu.Unlock()
	if !running || port == nil {
		return fmt.Errorf("radio interface not connected")
	}

	i.cmdMu.Lock()
	defer i.cmdMu.Unlock()

	frame := make([]byte, 0, 1+len(data))
	frame = append(frame, cmd)
	frame = append(frame, data...)
	if _, err := port.Write(frame); err != nil {
		return fmt.Errorf("writing command %#02x: %w", cmd, err)
	}
	return nil
}

// request sends a command and blocks until a response keyed by the echoed
// command byte arrives or the timeout elapses. The waiter is registered
// before the write so a fast response cannot be lost.
func (i *Interface) request(cmd byte, data []byte) ([]byte, error) {
	i.mu.Lock()
	timeout := i.cmdTimeout
	done := i.done
	i.mu.Unlock()

	ch := make(chan []byte, 1)
	i.waitMu.Lock()
	i.waiters[cmd] = ch
	i.waitMu.Unlock()
	defer func() {
		i.waitMu.Lock()
		delete(i.waiters, cmd)
		i.waitMu.Unlock()
	}()

	if err := i.sendCommand(cmd, data); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case body := <-ch:
		return body, nil
	case <-timer.C:
		return nil, fmt.Errorf("timeout waiting for response to command %#02x", cmd)
	case <-done:
		return nil, fmt.Errorf("radio interface stopped")
	}
}

func (i *Interface) listenLoop() {
	defer i.wg.Done()

	var p parser
	buf := make([]byte, 1024)
	for {
		select {
		case <-i.done:
			return
		default:
		}

		i.mu.Lock()
		port := i.port
		i.mu.Unlock()
		if port == nil {
			return
		}

		n, err := port.Read(buf)
		if err != nil {
			select {
			case <-i.done:
				return
			default:
				i.log.Debug().Err(err).Msg("Serial read error")
				time.Sleep(serialReadTimeout)
				continue
			}
		}
		if n == 0 {
			// Read timeout with no data; avoid busy-spinning.
			time.Sleep(serialReadTimeout)
			continue
		}

		for _, pkt := range p.feed(buf[:n]) {
			i.dispatch(pkt)
		}
	}
}

// dispatch routes one complete packet. MESSAGE frames feed the inbound
// queue and callback; everything else resolves a pending command keyed by
// the first body byte, the echoed original command.
func (i *Interface) dispatch(pkt packet) {
	switch pkt.respType {
	case RespMessage:
		msg, ok := parseMessage(pkt.body)
		if !ok {
			return
		}
		i.msgMu.Lock()
		i.inbox = append(i.inbox, IncomingMessage{
			SourceAddr: msg.srcAddr,
			Payload:    msg.payload,
			Broadcast:  msg.broadcast,
			Received:   time.Now(),
		})
		i.msgMu.Unlock()

		i.cbMu.Lock()
		cb := i.callback
		i.cbMu.Unlock()
		if cb != nil {
			cb(msg.payload, msg.srcAddr, 0)
		}

	case RespAck, RespNack, RespStatus, RespError:
		if len(pkt.body) == 0 {
			return
		}
		i.waitMu.Lock()
		ch, ok := i.waiters[pkt.body[0]]
		i.waitMu.Unlock()
		if ok {
			select {
			case ch <- pkt.body:
			default:
			}
		}
	}
}

func (i *Interface) heartbeatLoop() {
	defer i.wg.Done()

	ticker := time.NewTicker(heartbeatTick)
	defer ticker.Stop()

	lastPoll := time.Now()
	for {
		select {
		case <-i.done:
			return
		case now := <-ticker.C:
			if now.Sub(lastPoll) < statusPollInterval {
				continue
			}
			lastPoll = now
			if _, err := i.FetchStatus(); err != nil {
				i.log.Warn().Err(err).Msg("Radio status poll failed")
			}
		}
	}
}
