// Package netif defines the network interface contract the discovery core
// runs against, plus its concrete variants: an IPv6 multicast LAN interface
// and an in-memory pair for tests and simulation. The long-range serial
// radio variant lives in internal/lora.
package netif

// Callback is invoked once per received datagram or frame with the raw
// payload and its source. Delivery is at-most-once and unordered; variants
// may surface self-originated multicast echoes, which callers filter by
// comparing the source address to their own.
type Callback func(payload []byte, fromAddr string, fromPort uint16)

// Interface is the capability set every transport medium provides.
// Start returns an error when the underlying medium cannot be acquired;
// callers treat that as fatal for the interface. Stop is idempotent and
// blocks until all background work has been joined and OS resources
// released.
type Interface interface {
	Start() error
	Stop()

	SendMessage(destAddr string, destPort uint16, payload []byte) error
	Multicast(payload []byte) error
	MulticastGroup(destAddrs []string, destPort uint16, payload []byte) error

	Address() string
	Port() uint16
	Name() string
	Connected() bool

	SetCallback(cb Callback)
}
