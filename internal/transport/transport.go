// Package transport implements the generic periodic-broadcast and dispatch
// engine that binds one wire message type to one network interface.
package transport

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"impulse/internal/netif"
	"impulse/internal/wire"
)

// broadcastTick is the wakeup granularity of the broadcast loop; the
// configured interval is honored on top of it.
const broadcastTick = 100 * time.Millisecond

// Payload constrains PT to be a pointer to T implementing wire.Message, so
// decode can populate a fresh value.
type Payload[T any] interface {
	*T
	wire.Message
}

// Handler receives each successfully decoded inbound record exactly once.
type Handler[T any] func(msg T, fromAddr string, fromPort uint16)

// Transport binds one message type to one netif.Interface: it rebroadcasts
// a live record with a periodically refreshed timestamp and dispatches
// size-matched inbound payloads to a typed handler. The interface is
// borrowed, not owned, and must outlive the transport.
type Transport[T any, PT Payload[T]] struct {
	name  string
	iface netif.Interface
	log   zerolog.Logger

	mu         sync.Mutex
	handler    Handler[T]
	message    T
	continuous bool
	interval   time.Duration

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a transport and launches its broadcast loop, which runs for
// the transport's lifetime. Stop must be called to join it.
func New[T any, PT Payload[T]](name string, iface netif.Interface, log zerolog.Logger) *Transport[T, PT] {
	t := &Transport[T, PT]{
		name:  name,
		iface: iface,
		log:   log,
		done:  make(chan struct{}),
	}
	t.wg.Add(1)
	go t.broadcastLoop()
	return t
}

// Stop signals the broadcast loop and blocks until it has exited.
// Idempotent.
func (t *Transport[T, PT]) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
	t.wg.Wait()
}

// SetHandler registers the typed inbound handler.
func (t *Transport[T, PT]) SetHandler(h Handler[T]) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// SetBroadcast stores msg as the continuously rebroadcast record. Its
// timestamp is refreshed on every send; join-time style fields inside the
// record are never touched.
func (t *Transport[T, PT]) SetBroadcast(msg T, interval time.Duration) {
	t.mu.Lock()
	t.message = msg
	t.interval = interval
	t.continuous = true
	t.mu.Unlock()
}

// UnsetBroadcast pauses continuous rebroadcast without stopping the loop.
func (t *Transport[T, PT]) UnsetBroadcast() {
	t.mu.Lock()
	t.continuous = false
	t.mu.Unlock()
}

// Send stamps and multicasts a record immediately, bypassing the
// continuous cadence.
func (t *Transport[T, PT]) Send(msg T) error {
	PT(&msg).SetTimestamp(nowMillis())
	return t.iface.Multicast(PT(&msg).Encode())
}

// Address reports the bound interface's address.
func (t *Transport[T, PT]) Address() string { return t.iface.Address() }

// HandleIncoming decodes a raw payload iff its length matches this
// transport's record size and invokes the handler exactly once. Anything
// else is foreign traffic on the shared group and is dropped silently.
func (t *Transport[T, PT]) HandleIncoming(payload []byte, fromAddr string, fromPort uint16) {
	var msg T
	if len(payload) != PT(&msg).Size() {
		return
	}
	if err := PT(&msg).Decode(payload); err != nil {
		return
	}

	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h != nil {
		h(msg, fromAddr, fromPort)
	}
}

func (t *Transport[T, PT]) broadcastLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(broadcastTick)
	defer ticker.Stop()

	var lastSend time.Time
	for {
		select {
		case <-t.done:
			return
		case now := <-ticker.C:
			t.mu.Lock()
			active := t.continuous && now.Sub(lastSend) >= t.interval
			var msg T
			if active {
				msg = t.message
			}
			t.mu.Unlock()
			if !active {
				continue
			}

			PT(&msg).SetTimestamp(nowMillis())
			if err := t.iface.Multicast(PT(&msg).Encode()); err != nil {
				t.log.Debug().Err(err).Str("transport", t.name).Msg("Broadcast send failed")
				continue
			}
			lastSend = now
		}
	}
}

func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}
