package netif

import (
	"fmt"
	"sync"
)

// Hub is an in-memory shared medium: every frame multicast by a member is
// fanned out to all other members. It stands in for the radio "air" in
// tests and simulations.
type Hub struct {
	mu      sync.Mutex
	members map[string]*Mem
	port    uint16
}

// NewHub creates an empty hub whose members all answer on the given port.
func NewHub(port uint16) *Hub {
	return &Hub{members: make(map[string]*Mem), port: port}
}

// Join attaches a new member interface with the given address.
func (h *Hub) Join(addr string) *Mem {
	m := &Mem{hub: h, addr: addr}
	h.mu.Lock()
	h.members[addr] = m
	h.mu.Unlock()
	return m
}

func (h *Hub) deliver(from string, to string, payload []byte) {
	h.mu.Lock()
	var targets []*Mem
	if to == "" {
		for addr, m := range h.members {
			if addr != from {
				targets = append(targets, m)
			}
		}
	} else if m, ok := h.members[to]; ok {
		targets = append(targets, m)
	}
	h.mu.Unlock()

	for _, m := range targets {
		m.receive(payload, from, h.port)
	}
}

// Mem is a hub-attached in-memory Interface. Frames are delivered
// synchronously on the sender's goroutine; there is no loss and no
// self-echo.
type Mem struct {
	hub  *Hub
	addr string

	mu       sync.Mutex
	callback Callback
	running  bool
}

func (m *Mem) Start() error {
	m.mu.Lock()
	m.running = true
	m.mu.Unlock()
	return nil
}

func (m *Mem) Stop() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

func (m *Mem) SendMessage(destAddr string, destPort uint16, payload []byte) error {
	if !m.Connected() {
		return fmt.Errorf("interface not started")
	}
	m.hub.deliver(m.addr, destAddr, clone(payload))
	return nil
}

func (m *Mem) Multicast(payload []byte) error {
	if !m.Connected() {
		return fmt.Errorf("interface not started")
	}
	m.hub.deliver(m.addr, "", clone(payload))
	return nil
}

func (m *Mem) MulticastGroup(destAddrs []string, destPort uint16, payload []byte) error {
	for _, addr := range destAddrs {
		if err := m.SendMessage(addr, destPort, payload); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mem) Address() string { return m.addr }
func (m *Mem) Port() uint16    { return m.hub.port }
func (m *Mem) Name() string    { return "mem" }

func (m *Mem) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Mem) SetCallback(cb Callback) {
	m.mu.Lock()
	m.callback = cb
	m.mu.Unlock()
}

func (m *Mem) receive(payload []byte, fromAddr string, fromPort uint16) {
	m.mu.Lock()
	cb := m.callback
	running := m.running
	m.mu.Unlock()
	if running && cb != nil {
		cb(payload, fromAddr, fromPort)
	}
}

func clone(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
