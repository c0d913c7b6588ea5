package robot

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

const defaultConfigTemplate = `[robot]
  name       = "Tractor-Alpha"
  robot_id   = 0          # 0 derives an id from the name
  capability = -1         # -1 derives from host resources (0..100 to pin)
  interface  = ""
  group      = "ff02::1234"
  port       = 7447
  listen_min = "5s"
  listen_max = "15s"
  db_path    = "/var/lib/impulse/peers.db"
  rpc_socket = "/run/impulse/robot.sock"
  log_level  = "info"

[lora]
  enabled         = false
  device          = "/dev/ttyUSB0"
  node_ipv6       = ""    # empty derives one from the robot id
  tx_power        = 0     # 0 keeps the radio's current setting
  frequency_hz    = 0
  hop_limit       = 0
  command_timeout = "5s"

[agent]
  interface = ""
  group     = "ff02::1"
  port      = 8000
  interval  = "1s"
  log_level = "info"

[status]
  rpc_socket = "/run/impulse/robot.sock"
`

// EditConfig opens the configuration file in the system editor.
// If the file does not exist, it creates it with default values.
func EditConfig(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("Creating new config file at %s...\n", path)
		if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
			return fmt.Errorf("writing default config: %w", err)
		}
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		for _, e := range []string{"vi", "nano", "vim"} {
			if _, err := exec.LookPath(e); err == nil {
				editor = e
				break
			}
		}
	}

	if editor == "" {
		return fmt.Errorf("no editor found ($EDITOR environment variable not set, and vi/nano/vim not in PATH)")
	}

	cmd := exec.Command(editor, path)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}
