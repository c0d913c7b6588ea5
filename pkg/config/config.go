// Package config provides TOML configuration loading for impulse.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration structure.
type Config struct {
	Robot  RobotConfig  `toml:"robot"`
	Lora   LoraConfig   `toml:"lora"`
	Agent  AgentConfig  `toml:"agent"`
	Status StatusConfig `toml:"status"`
}

// RobotConfig holds settings for the discovery robot node.
type RobotConfig struct {
	Name       string `toml:"name"`
	RobotID    uint32 `toml:"robot_id"`   // 0 derives one from the name
	Capability int32  `toml:"capability"` // -1 derives one from host resources
	Interface  string `toml:"interface"`
	Group      string `toml:"group"`
	Port       int    `toml:"port"`
	ListenMin  string `toml:"listen_min"`
	ListenMax  string `toml:"listen_max"`
	DBPath     string `toml:"db_path"`
	RPCSocket  string `toml:"rpc_socket"`
	LogLevel   string `toml:"log_level"`
}

// LoraConfig holds settings for the long-range serial radio bridge.
type LoraConfig struct {
	Enabled        bool   `toml:"enabled"`
	Device         string `toml:"device"`
	NodeIPv6       string `toml:"node_ipv6"` // empty derives one from the robot id
	TxPower        int    `toml:"tx_power"`  // 0 keeps the radio's current setting
	FrequencyHz    uint32 `toml:"frequency_hz"`
	HopLimit       int    `toml:"hop_limit"`
	CommandTimeout string `toml:"command_timeout"`
}

// AgentConfig holds settings for the generic discovery agent.
type AgentConfig struct {
	Interface string `toml:"interface"`
	Group     string `toml:"group"`
	Port      int    `toml:"port"`
	Interval  string `toml:"interval"`
	LogLevel  string `toml:"log_level"`
}

// StatusConfig holds settings for the status CLI.
type StatusConfig struct {
	RPCSocket string `toml:"rpc_socket"`
}

// ParseListenWindow parses the robot's listen window bounds.
func (r *RobotConfig) ParseListenWindow() (time.Duration, time.Duration, error) {
	min, max := 5*time.Second, 15*time.Second
	var err error
	if r.ListenMin != "" {
		if min, err = time.ParseDuration(r.ListenMin); err != nil {
			return 0, 0, fmt.Errorf("parsing listen_min: %w", err)
		}
	}
	if r.ListenMax != "" {
		if max, err = time.ParseDuration(r.ListenMax); err != nil {
			return 0, 0, fmt.Errorf("parsing listen_max: %w", err)
		}
	}
	if max < min {
		return 0, 0, fmt.Errorf("listen_max %s is below listen_min %s", max, min)
	}
	return min, max, nil
}

// ParseInterval parses the agent broadcast interval string.
func (a *AgentConfig) ParseInterval() (time.Duration, error) {
	if a.Interval == "" {
		return time.Second, nil
	}
	return time.ParseDuration(a.Interval)
}

// ParseCommandTimeout parses the radio command/response timeout string.
func (l *LoraConfig) ParseCommandTimeout() (time.Duration, error) {
	if l.CommandTimeout == "" {
		return 5 * time.Second, nil
	}
	return time.ParseDuration(l.CommandTimeout)
}

// Load reads and parses a TOML config file, applying defaults for unset values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{Robot: RobotConfig{Capability: -1}}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(cfg)
	cfg.expandPaths()
	return cfg, nil
}

func (cfg *Config) expandPaths() {
	cfg.Robot.DBPath = ExpandPath(cfg.Robot.DBPath)
}

// ExpandPath expands tilde (~) to the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	usr, err := user.Current()
	if err != nil {
		return path
	}
	if path == "~" {
		return usr.HomeDir
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(usr.HomeDir, path[2:])
	}
	return path
}

func applyDefaults(cfg *Config) {

	// Robot defaults
	if cfg.Robot.Group == "" {
		cfg.Robot.Group = "ff02::1234"
	}
	if cfg.Robot.Port == 0 {
		cfg.Robot.Port = 7447
	}
	if cfg.Robot.ListenMin == "" {
		cfg.Robot.ListenMin = "5s"
	}
	if cfg.Robot.ListenMax == "" {
		cfg.Robot.ListenMax = "15s"
	}
	if cfg.Robot.DBPath == "" {
		cfg.Robot.DBPath = "/var/lib/impulse/peers.db"
	}
	if cfg.Robot.RPCSocket == "" {
		cfg.Robot.RPCSocket = "/run/impulse/robot.sock"
	}
	if cfg.Robot.LogLevel == "" {
		cfg.Robot.LogLevel = "info"
	}

	// Radio defaults
	if cfg.Lora.Device == "" {
		cfg.Lora.Device = "/dev/ttyUSB0"
	}
	if cfg.Lora.CommandTimeout == "" {
		cfg.Lora.CommandTimeout = "5s"
	}

	// Agent defaults
	if cfg.Agent.Group == "" {
		cfg.Agent.Group = "ff02::1"
	}
	if cfg.Agent.Port == 0 {
		cfg.Agent.Port = 8000
	}
	if cfg.Agent.Interval == "" {
		cfg.Agent.Interval = "1s"
	}
	if cfg.Agent.LogLevel == "" {
		cfg.Agent.LogLevel = "info"
	}

	// Status defaults
	if cfg.Status.RPCSocket == "" {
		cfg.Status.RPCSocket = cfg.Robot.RPCSocket
	}
}
