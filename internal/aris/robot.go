// Package aris implements the capability-aware discovery protocol the
// robots gossip over: a listen/bootstrap/announce state machine, a trust
// policy gating the peer registry, and a token bucket throttling
// announcements.
package aris

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"impulse/internal/netif"
	"impulse/internal/peerstore"
	"impulse/internal/wire"
)

const (
	// DefaultCapability is assumed for robots whose config leaves the
	// capability index unset.
	DefaultCapability = 75

	// Never verified anywhere; identity is unauthenticated.
	publicKeyPlaceholder = "ed25519_public_key_placeholder"

	tickInterval         = 100 * time.Millisecond
	bootstrapListenTicks = 10
	gossipListenTicks    = 20

	inboxDepth = 64
)

// defaultZeroRef anchors relative positions when no survey point is
// configured.
var defaultZeroRef = wire.GeoPoint{Latitude: 40.7128, Longitude: -74.0060}

// Config carries the identity and tuning knobs for one Robot.
type Config struct {
	Name       string
	ID         uint32 // 0 derives one from the name
	Capability int32  // 0..100
	ZeroRef    wire.GeoPoint

	// Listen window bounds. The robot stays passive for a uniformly random
	// duration inside [ListenMin, ListenMax] before deciding whether it is
	// alone. Defaults to 5..15 s.
	ListenMin time.Duration
	ListenMax time.Duration

	Log zerolog.Logger
}

// Robot is one participant in the discovery swarm. It owns a dedicated
// discovery goroutine that drives the Listening, Bootstrapping and
// Announcing phases over the injected network interface, and it keeps a
// registry of every trusted peer it has heard from.
type Robot struct {
	name       string
	id         uint32
	uuid       string
	capability int32
	zeroRef    wire.GeoPoint
	listenMin  time.Duration
	listenMax  time.Duration
	log        zerolog.Logger

	iface netif.Interface
	radio netif.Interface

	registry *Registry
	tokens   *tokenBucket
	store    *peerstore.Store

	inbox chan []byte

	protoMu  sync.Mutex
	protocol wire.Protocol

	runMu   sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New builds a Robot on the given interface. The interface is not started;
// Start does that. The robot's UUID is generated here and is fixed for the
// robot's lifetime, surviving Stop/Start cycles.
func New(iface netif.Interface, cfg Config) (*Robot, error) {
	if iface == nil {
		return nil, fmt.Errorf("aris: interface is required")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("aris: robot name is required")
	}
	if cfg.Capability < 0 || cfg.Capability > 100 {
		return nil, fmt.Errorf("aris: capability %d out of range 0..100", cfg.Capability)
	}

	id := cfg.ID
	if id == 0 {
		id = DeriveRobotID(cfg.Name)
	}
	capability := cfg.Capability
	if capability == 0 {
		capability = DefaultCapability
	}
	zeroRef := cfg.ZeroRef
	if zeroRef == (wire.GeoPoint{}) {
		zeroRef = defaultZeroRef
	}
	listenMin, listenMax := cfg.ListenMin, cfg.ListenMax
	if listenMin <= 0 {
		listenMin = 5 * time.Second
	}
	if listenMax < listenMin {
		listenMax = listenMin + 10*time.Second
	}

	return &Robot{
		name:       cfg.Name,
		id:         id,
		uuid:       GenerateUUID(id),
		capability: capability,
		zeroRef:    zeroRef,
		listenMin:  listenMin,
		listenMax:  listenMax,
		log:        cfg.Log.With().Str("robot", cfg.Name).Logger(),
		iface:      iface,
		registry:   NewRegistry(),
		tokens:     newTokenBucket(),
		inbox:      make(chan []byte, inboxDepth),
		protocol:   wire.ProtocolNone,
	}, nil
}

// SetStore mirrors every accepted peer record into the given persistent
// store. Must be called before Start.
func (r *Robot) SetStore(s *peerstore.Store) {
	r.store = s
}

// AttachRadio bridges a second interface, typically the long-range serial
// radio, into discovery: announcements go out over it as well, and frames it
// receives feed the same inbound path as the multicast interface. The
// caller owns the radio's lifecycle. Must be called before Start.
func (r *Robot) AttachRadio(radio netif.Interface) {
	r.radio = radio
	radio.SetCallback(r.enqueue)
}

// Start brings up the network interface and launches the discovery loop.
func (r *Robot) Start() error {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.running {
		return nil
	}

	r.iface.SetCallback(r.enqueue)
	if err := r.iface.Start(); err != nil {
		return fmt.Errorf("starting interface: %w", err)
	}

	r.done = make(chan struct{})
	r.wg.Add(1)
	go r.discoveryLoop()

	r.running = true
	r.log.Info().
		Str("uuid", r.uuid).
		Uint32("robot_id", r.id).
		Int32("capability", r.capability).
		Str("interface", r.iface.Name()).
		Msg("Robot started")
	return nil
}

// Stop halts the discovery loop, joins it, and shuts the interface down.
// Idempotent; the robot can be started again afterwards.
func (r *Robot) Stop() {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return
	}

	close(r.done)
	r.wg.Wait()
	r.iface.Stop()
	r.running = false
	r.log.Info().Msg("Robot stopped")
}

func (r *Robot) UUID() string { return r.uuid }

func (r *Robot) Name() string { return r.name }

func (r *Robot) RobotID() uint32 { return r.id }

func (r *Robot) Capability() int32 { return r.capability }

// Protocol returns the currently chosen pub/sub protocol, ProtocolNone
// until the robot bootstraps or adopts one from a peer.
func (r *Robot) Protocol() wire.Protocol {
	r.protoMu.Lock()
	defer r.protoMu.Unlock()
	return r.protocol
}

func (r *Robot) setProtocol(p wire.Protocol) {
	r.protoMu.Lock()
	r.protocol = p
	r.protoMu.Unlock()
}

// Tokens returns the current announcement-budget balance.
func (r *Robot) Tokens() int { return r.tokens.Tokens() }

// Peers returns a copy of every known peer record.
func (r *Robot) Peers() []wire.AgentMessage { return r.registry.Snapshot() }

func (r *Robot) PeerCount() int { return r.registry.Len() }

// enqueue is the interface callback. It hands the raw payload to the
// discovery goroutine; when the inbox is full the frame is dropped, which
// is acceptable for an eventually-consistent gossip stream.
func (r *Robot) enqueue(payload []byte, fromAddr string, fromPort uint16) {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	select {
	case r.inbox <- buf:
	default:
	}
}

// discoveryLoop drives the Listening, Bootstrapping and Announcing phases
// until Stop. Listening picks a random window once; hearing any valid
// foreign record ends it early. A robot that heard nothing selects a
// protocol from its own capability and announces at the bootstrap cost
// until a peer appears; steady state announces at the gossip cost with a
// longer listen span between sends.
func (r *Robot) discoveryLoop() {
	defer r.wg.Done()

	window := r.listenMin
	if spread := r.listenMax - r.listenMin; spread > 0 {
		window += rand.N(spread)
	}
	r.log.Info().Dur("window", window).Msg("Listening for existing network")

	heard := false
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if r.receiveOne() {
			heard = true
			break
		}
		r.tokens.Refill()
		if !r.sleep(tickInterval) {
			return
		}
	}

	if !heard {
		r.setProtocol(SelectProtocol(r.capability))
		r.log.Info().
			Stringer("protocol", r.Protocol()).
			Msg("No network heard, bootstrapping as first robot")

		for r.registry.Len() == 0 {
			if r.tokens.Consume(costBootstrap) {
				r.announce()
			}
			for i := 0; i < bootstrapListenTicks; i++ {
				r.receiveOne()
				r.tokens.Refill()
				if !r.sleep(tickInterval) {
					return
				}
			}
		}
		r.log.Info().Int("peers", r.registry.Len()).Msg("Network established")
	}

	for {
		if r.tokens.Consume(costGossip) {
			r.announce()
		}
		for i := 0; i < gossipListenTicks; i++ {
			r.receiveOne()
			r.tokens.Refill()
			if !r.sleep(tickInterval) {
				return
			}
		}
	}
}

// sleep waits for d or until Stop, reporting whether the loop should keep
// running.
func (r *Robot) sleep(d time.Duration) bool {
	select {
	case <-r.done:
		return false
	case <-time.After(d):
		return true
	}
}

// receiveOne drains at most one frame from the inbox and reports whether it
// carried a valid record from another robot. Buffers whose length does not
// match the announcement record size are dropped silently, as are our own
// multicast echoes. The first foreign protocol observed is adopted when we
// have none chosen yet, regardless of trust; the trust policy only decides
// whether the sender enters the registry.
func (r *Robot) receiveOne() bool {
	var buf []byte
	select {
	case buf = <-r.inbox:
	default:
		return false
	}

	var msg wire.AgentMessage
	if err := msg.Decode(buf); err != nil {
		return false
	}
	if msg.UUID == r.uuid {
		return false
	}

	if r.Protocol() == wire.ProtocolNone {
		r.setProtocol(msg.Protocol)
		r.log.Info().Stringer("protocol", msg.Protocol).Msg("Adopted protocol from peer")
	}

	if ShouldShareInfoWith(r.capability, msg.CapabilityIndex) {
		if r.registry.Upsert(msg) {
			r.log.Info().
				Str("peer", msg.RobotName).
				Str("uuid", msg.UUID).
				Int32("capability", msg.CapabilityIndex).
				Msg("Discovered robot")
		}
		if r.store != nil {
			if err := r.store.Upsert(msg); err != nil {
				r.log.Warn().Err(err).Str("uuid", msg.UUID).Msg("Failed to persist peer record")
			}
		}
	}

	return true
}

// announce multicasts this robot's current record on every attached
// interface. Send failures are logged and swallowed; the next cycle retries.
func (r *Robot) announce() {
	msg := wire.AgentMessage{
		Timestamp:       uint64(time.Now().UnixMilli()),
		PublicKey:       publicKeyPlaceholder,
		UUID:            r.uuid,
		Orchestrator:    false,
		ZeroRef:         r.zeroRef,
		CapabilityIndex: r.capability,
		Medium:          wire.MediumWiFi5GHz,
		Protocol:        r.Protocol(),
		IPv6Addresses:   []string{r.iface.Address()},
		RobotID:         r.id,
		RobotName:       r.name,
	}

	buf := msg.Encode()
	if err := r.iface.Multicast(buf); err != nil {
		r.log.Warn().Err(err).Msg("Failed to send announcement")
	}
	if r.radio != nil {
		if err := r.radio.Multicast(buf); err != nil {
			r.log.Warn().Err(err).Msg("Failed to send announcement over radio")
		}
	}
}
