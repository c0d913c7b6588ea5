// Package agent implements the generic discovery participant: it joins the
// all-nodes multicast group, rebroadcasts its own Discovery record and
// tracks every other agent it hears.
package agent

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"impulse/internal/netif"
	"impulse/internal/transport"
	"impulse/internal/wire"
	"impulse/pkg/config"
	"impulse/pkg/logger"
)

// Run starts the discovery agent and blocks until SIGINT/SIGTERM.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.Init(cfg.Agent.LogLevel)

	interval, err := cfg.Agent.ParseInterval()
	if err != nil {
		return fmt.Errorf("parsing interval: %w", err)
	}

	iface := netif.NewLAN(netif.LANConfig{
		InterfaceName: cfg.Agent.Interface,
		Group:         cfg.Agent.Group,
		Port:          uint16(cfg.Agent.Port),
	}, log)
	if err := iface.Start(); err != nil {
		return fmt.Errorf("starting interface: %w", err)
	}
	defer iface.Stop()

	tr := transport.New[wire.Discovery]("discovery", iface, log)
	defer tr.Stop()
	iface.SetCallback(tr.HandleIncoming)

	// Known agents keyed by advertised IPv6, last record wins.
	var mu sync.Mutex
	known := make(map[string]wire.Discovery)

	tr.SetHandler(func(msg wire.Discovery, fromAddr string, fromPort uint16) {
		if msg.IPv6 == iface.Address() {
			return
		}
		mu.Lock()
		_, seen := known[msg.IPv6]
		known[msg.IPv6] = msg
		mu.Unlock()
		if !seen {
			log.Info().
				Str("agent", msg.IPv6).
				Int32("capability", msg.CapabilityIndex).
				Msg("Discovered agent")
		}
	})

	self := wire.Discovery{
		JoinTime:        uint64(time.Now().UnixMilli()),
		IPv6:            iface.Address(),
		CapabilityIndex: 50,
	}
	tr.SetBroadcast(self, interval)

	log.Info().
		Str("address", iface.Address()).
		Str("group", cfg.Agent.Group).
		Int("port", cfg.Agent.Port).
		Dur("interval", interval).
		Msg("Agent started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	statusTicker := time.NewTicker(10 * time.Second)
	defer statusTicker.Stop()

	for {
		select {
		case <-statusTicker.C:
			logKnownAgents(known, &mu, log)
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("Shutting down")
			return nil
		}
	}
}

// logKnownAgents reports each tracked agent's age, measured against its
// join time rather than its last rebroadcast.
func logKnownAgents(known map[string]wire.Discovery, mu *sync.Mutex, log zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()

	log.Info().Int("agents", len(known)).Msg("Known agents")
	now := time.Now().UnixMilli()
	for addr, msg := range known {
		age := time.Duration(now-int64(msg.JoinTime)) * time.Millisecond
		log.Info().
			Str("agent", addr).
			Int32("capability", msg.CapabilityIndex).
			Dur("age", age.Round(time.Second)).
			Msg("  agent")
	}
}
