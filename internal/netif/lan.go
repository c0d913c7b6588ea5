package netif

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/ipv6"
)

const (
	maxDatagramSize = 1024
	// Receive loop polls at this cadence: low-latency delivery without
	// busy-spinning a core.
	recvPollInterval = 10 * time.Millisecond
)

// LANConfig configures a LAN multicast interface.
type LANConfig struct {
	// InterfaceName selects the OS network interface to join multicast on.
	// Empty means the system default.
	InterfaceName string
	// Group is the IPv6 multicast group, e.g. "ff02::1" or "ff02::1234".
	Group string
	Port  uint16
	// Address is this node's IPv6 address as advertised to peers. When
	// empty, a ULA is derived from a random robot id.
	Address string
}

// LAN is the UDP/IPv6 multicast variant of Interface. One socket serves
// both sending and receiving; the receive loop polls with a short read
// deadline and filters self-originated multicast echoes by source address.
type LAN struct {
	cfg   LANConfig
	log   zerolog.Logger
	iface *net.Interface

	mu       sync.Mutex
	conn     *net.UDPConn
	pc       *ipv6.PacketConn
	callback Callback
	running  bool
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewLAN builds a LAN interface; the socket is not opened until Start.
func NewLAN(cfg LANConfig, log zerolog.Logger) *LAN {
	if cfg.Group == "" {
		cfg.Group = "ff02::1"
	}
	if cfg.Address == "" {
		cfg.Address = GenerateRobotIPv6(uint32(rand.Intn(0xFFFF) + 1))
	}
	return &LAN{cfg: cfg, log: log}
}

// GenerateRobotIPv6 derives a ULA for a robot from its id, normalized
// through the standard parser for a consistent textual form.
func GenerateRobotIPv6(robotID uint32) string {
	addr := fmt.Sprintf("fd00:dead:beef::%04x", robotID&0xFFFF)
	if ip := net.ParseIP(addr); ip != nil {
		return ip.String()
	}
	return addr
}

// Start binds the UDP socket, joins the multicast group and launches the
// receive loop. Failure to acquire the socket or join the group is fatal
// for this interface.
func (l *LAN) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}

	group := net.ParseIP(l.cfg.Group)
	if group == nil {
		return fmt.Errorf("invalid multicast group: %s", l.cfg.Group)
	}

	if l.cfg.InterfaceName != "" {
		iface, err := net.InterfaceByName(l.cfg.InterfaceName)
		if err != nil {
			return fmt.Errorf("finding interface %s: %w", l.cfg.InterfaceName, err)
		}
		l.iface = iface
	}

	conn, err := net.ListenUDP("udp6", &net.UDPAddr{IP: net.IPv6unspecified, Port: int(l.cfg.Port)})
	if err != nil {
		return fmt.Errorf("binding UDP port %d: %w", l.cfg.Port, err)
	}

	pc := ipv6.NewPacketConn(conn)
	if err := pc.JoinGroup(l.iface, &net.UDPAddr{IP: group}); err != nil {
		conn.Close()
		return fmt.Errorf("joining multicast group %s: %w", l.cfg.Group, err)
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		l.log.Warn().Err(err).Msg("Failed to enable multicast loopback")
	}
	if err := pc.SetMulticastHopLimit(1); err != nil {
		l.log.Warn().Err(err).Msg("Failed to set multicast hop limit")
	}
	if l.iface != nil {
		if err := pc.SetMulticastInterface(l.iface); err != nil {
			l.log.Warn().Err(err).Msg("Failed to set multicast interface")
		}
	}

	l.conn = conn
	l.pc = pc
	l.running = true
	l.done = make(chan struct{})

	l.wg.Add(1)
	go l.receiveLoop()

	l.log.Info().
		Str("interface", l.Name()).
		Str("group", l.cfg.Group).
		Str("address", l.cfg.Address).
		Uint16("port", l.cfg.Port).
		Msg("LAN interface started")

	return nil
}

// Stop signals the receive loop, joins it and closes the socket. Safe to
// call more than once and after a failed Start.
func (l *LAN) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.done)
	conn := l.conn
	l.mu.Unlock()

	l.wg.Wait()
	if conn != nil {
		conn.Close()
	}
	l.log.Info().Str("interface", l.Name()).Msg("LAN interface stopped")
}

func (l *LAN) receiveLoop() {
	defer l.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		select {
		case <-l.done:
			return
		default:
		}

		l.conn.SetReadDeadline(time.Now().Add(recvPollInterval))
		n, src, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-l.done:
				return
			default:
				l.log.Error().Err(err).Msg("Error reading from UDP")
				continue
			}
		}

		srcAddr := src.IP.String()
		if srcAddr == l.cfg.Address {
			continue
		}

		l.mu.Lock()
		cb := l.callback
		l.mu.Unlock()
		if cb == nil {
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		cb(payload, srcAddr, uint16(src.Port))
	}
}

// SendMessage unicasts a payload to a specific peer.
func (l *LAN) SendMessage(destAddr string, destPort uint16, payload []byte) error {
	dest := net.ParseIP(destAddr)
	if dest == nil {
		return fmt.Errorf("invalid destination address: %s", destAddr)
	}
	return l.writeTo(&net.UDPAddr{IP: dest, Port: int(destPort)}, payload)
}

// Multicast sends a payload to the interface's multicast group.
func (l *LAN) Multicast(payload []byte) error {
	dest := &net.UDPAddr{
		IP:   net.ParseIP(l.cfg.Group),
		Port: int(l.cfg.Port),
		Zone: l.cfg.InterfaceName,
	}
	return l.writeTo(dest, payload)
}

// MulticastGroup unicasts the same payload to every listed peer.
func (l *LAN) MulticastGroup(destAddrs []string, destPort uint16, payload []byte) error {
	for _, addr := range destAddrs {
		if err := l.SendMessage(addr, destPort, payload); err != nil {
			l.log.Warn().Err(err).Str("dest", addr).Msg("Group send failed")
		}
	}
	return nil
}

func (l *LAN) writeTo(dest *net.UDPAddr, payload []byte) error {
	l.mu.Lock()
	conn := l.conn
	running := l.running
	l.mu.Unlock()
	if !running || conn == nil {
		return fmt.Errorf("interface not started")
	}
	if _, err := conn.WriteToUDP(payload, dest); err != nil {
		return fmt.Errorf("writing to %s: %w", dest, err)
	}
	return nil
}

// Address reports the node's advertised IPv6 address.
func (l *LAN) Address() string { return l.cfg.Address }

// Port reports the bound UDP port.
func (l *LAN) Port() uint16 { return l.cfg.Port }

// Name reports the OS interface name, or "default" when unset.
func (l *LAN) Name() string {
	if l.cfg.InterfaceName == "" {
		return "default"
	}
	return l.cfg.InterfaceName
}

// Connected reports whether the socket is open and the receive loop runs.
func (l *LAN) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// SetCallback registers the inbound datagram handler.
func (l *LAN) SetCallback(cb Callback) {
	l.mu.Lock()
	l.callback = cb
	l.mu.Unlock()
}
