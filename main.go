// impulse — P2P discovery and transport substrate for mobile robots
//
// Usage:
//
//	impulse robot  — run the ARIS discovery node (multicast + optional radio)
//	impulse agent  — run a generic discovery participant
//	impulse status — query a running robot node over its Unix socket
package main

import (
	"fmt"
	"os"

	"impulse/cmd/agent"
	"impulse/cmd/robot"
	"impulse/cmd/status"
)

const (
	defaultSystemPath = "/etc/impulse/config.toml"
	defaultLocalPath  = "config.toml"
	version           = "1.0.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	configPath := ""

	// Parse --config flag if present
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" && i+1 < len(args) {
			configPath = args[i+1]
			args = append(args[:i], args[i+2:]...)
			i--
			continue
		}
		if len(arg) > 9 && arg[:9] == "--config=" {
			configPath = arg[9:]
			args = append(args[:i], args[i+1:]...)
			i--
			continue
		}
	}

	// Auto-discover config if not specified
	if configPath == "" {
		if _, err := os.Stat(defaultLocalPath); err == nil {
			configPath = defaultLocalPath
		} else {
			configPath = defaultSystemPath
		}
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	var err error

	switch subcommand {
	case "robot":
		err = robot.Run(configPath)
	case "agent":
		err = agent.Run(configPath)
	case "status":
		err = status.Run(configPath)
	case "edit":
		err = robot.EditConfig(configPath)
	case "version":
		fmt.Printf("impulse v%s\n", version)
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`impulse v%s — P2P discovery substrate for mobile robots

Usage:
  impulse <command> [--config <path>]

Commands:
  robot    Run the ARIS discovery node (multicast, peer store, optional radio)
  agent    Run a generic discovery participant on the all-nodes group
  status   Show a running robot node's discovery state and known peers
  edit     Edit the configuration file in your system editor
  version  Print version information
  help     Show this help message

Options:
  --config <path>  Path to config file (default: looks for ./config.toml, then %s)

Examples:
  impulse robot                         # Start the discovery node
  impulse status                        # Inspect the running node
  impulse edit                          # Edit configuration

`, version, defaultSystemPath)
}
