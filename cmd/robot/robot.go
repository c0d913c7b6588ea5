// Package robot implements the impulse robot node: the ARIS discovery
// state machine over IPv6 multicast, the optional long-range radio bridge,
// the persistent peer store and the status RPC socket.
package robot

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"impulse/internal/aris"
	"impulse/internal/lora"
	"impulse/internal/netif"
	"impulse/internal/peerstore"
	"impulse/internal/rpc"
	"impulse/internal/sysinfo"
	"impulse/pkg/config"
	"impulse/pkg/logger"
)

// Run starts the robot node and blocks until SIGINT/SIGTERM.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.Init(cfg.Robot.LogLevel)

	if cfg.Robot.Name == "" {
		return fmt.Errorf("robot name must be set in config")
	}

	listenMin, listenMax, err := cfg.Robot.ParseListenWindow()
	if err != nil {
		return err
	}

	host, err := sysinfo.Probe()
	if err != nil {
		return fmt.Errorf("probing host: %w", err)
	}

	capability := cfg.Robot.Capability
	if capability < 0 {
		capability = sysinfo.DeriveCapability(host)
		log.Info().Int32("capability", capability).Msg("Derived capability from host resources")
	}

	robotID := cfg.Robot.RobotID
	if robotID == 0 {
		robotID = aris.DeriveRobotID(cfg.Robot.Name)
	}

	log.Info().
		Str("hostname", host.Hostname).
		Str("os", host.OSName).
		Str("arch", host.Arch).
		Int("cpu_cores", host.CPUCores).
		Float64("memory_gb", host.MemoryGB).
		Msg("Starting impulse robot node")

	// Ensure database and socket directories exist
	for _, dir := range []string{filepath.Dir(cfg.Robot.DBPath), filepath.Dir(cfg.Robot.RPCSocket)} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	store, err := peerstore.New(cfg.Robot.DBPath, log)
	if err != nil {
		return fmt.Errorf("opening peer store: %w", err)
	}
	defer store.Close()

	iface := netif.NewLAN(netif.LANConfig{
		InterfaceName: cfg.Robot.Interface,
		Group:         cfg.Robot.Group,
		Port:          uint16(cfg.Robot.Port),
		Address:       netif.GenerateRobotIPv6(robotID),
	}, log)

	robot, err := aris.New(iface, aris.Config{
		Name:       cfg.Robot.Name,
		ID:         robotID,
		Capability: capability,
		ListenMin:  listenMin,
		ListenMax:  listenMax,
		Log:        log,
	})
	if err != nil {
		return fmt.Errorf("building robot: %w", err)
	}
	robot.SetStore(store)

	var radio *lora.Interface
	if cfg.Lora.Enabled {
		radio, err = startRadio(cfg, robotID, log)
		if err != nil {
			return err
		}
		defer radio.Stop()
		robot.AttachRadio(radio)
	}

	if err := robot.Start(); err != nil {
		return fmt.Errorf("starting robot: %w", err)
	}
	defer robot.Stop()

	server, err := rpc.StartServer(cfg.Robot.RPCSocket, robot, store, iface, log)
	if err != nil {
		return fmt.Errorf("starting RPC server: %w", err)
	}
	defer server.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")
	return nil
}

// startRadio opens the serial radio and applies the configured tuning.
// Tuning failures are logged and skipped so a radio with stale firmware
// defaults still bridges traffic; failing to open the device at all is
// fatal since the operator explicitly enabled it.
func startRadio(cfg *config.Config, robotID uint32, log zerolog.Logger) (*lora.Interface, error) {
	nodeAddr := cfg.Lora.NodeIPv6
	if nodeAddr == "" {
		nodeAddr = netif.GenerateRobotIPv6(robotID)
	}

	radio, err := lora.New(cfg.Lora.Device, nodeAddr, log)
	if err != nil {
		return nil, fmt.Errorf("building radio interface: %w", err)
	}

	timeout, err := cfg.Lora.ParseCommandTimeout()
	if err != nil {
		return nil, err
	}
	radio.SetCommandTimeout(timeout)

	if err := radio.Start(); err != nil {
		return nil, fmt.Errorf("starting radio on %s: %w", cfg.Lora.Device, err)
	}

	if cfg.Lora.TxPower > 0 {
		if err := radio.SetTxPower(uint8(cfg.Lora.TxPower)); err != nil {
			log.Warn().Err(err).Int("tx_power", cfg.Lora.TxPower).Msg("Failed to set radio tx power")
		}
	}
	if cfg.Lora.FrequencyHz > 0 {
		if err := radio.SetFrequency(cfg.Lora.FrequencyHz); err != nil {
			log.Warn().Err(err).Uint32("frequency_hz", cfg.Lora.FrequencyHz).Msg("Failed to set radio frequency")
		}
	}
	if cfg.Lora.HopLimit > 0 {
		if err := radio.SetHopLimit(uint8(cfg.Lora.HopLimit)); err != nil {
			log.Warn().Err(err).Int("hop_limit", cfg.Lora.HopLimit).Msg("Failed to set radio hop limit")
		}
	}

	return radio, nil
}
