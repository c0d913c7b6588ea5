// Package status implements the impulse status CLI: it dials the robot
// node's Unix socket and prints the discovery state and known peers.
package status

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"impulse/internal/peerstore"
	"impulse/internal/rpc"
	"impulse/pkg/config"
)

// Run prints the robot's status and peer table, then exits.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client, err := rpc.NewClient(cfg.Status.RPCSocket)
	if err != nil {
		return fmt.Errorf("connecting to robot: %w\nIs 'impulse robot' running?", err)
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		return fmt.Errorf("fetching status: %w", err)
	}

	fmt.Printf("\n%s Status:\n", status.Name)
	fmt.Printf("  UUID:       %s\n", status.UUID)
	fmt.Printf("  Interface:  %s\n", status.Interface)
	fmt.Printf("  IPv6:       %s\n", status.Address)
	fmt.Printf("  Protocol:   %s\n", status.Protocol)
	fmt.Printf("  Capability: %d/100\n", status.Capability)
	fmt.Printf("  Tokens:     %d\n", status.Tokens)
	fmt.Printf("  Peers:      %d\n", status.PeerCount)

	peers, err := client.ListPeers()
	if err != nil {
		return fmt.Errorf("fetching peers: %w", err)
	}

	if len(peers) == 0 {
		fmt.Println("\nNo peers recorded yet.")
		return nil
	}

	fmt.Printf("\n  Known Peers (%d recorded)\n\n", len(peers))
	displayPeerTable(peers)
	return nil
}

func displayPeerTable(peers []peerstore.PeerRecord) {
	// Squeeze the name column on narrow terminals; the UUID column is
	// fixed-width and the table degrades to wrapping when even that
	// does not fit.
	nameWidth := 20
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width < 110 {
		nameWidth = 12
	}

	fmt.Printf("  %-4s %-*s %-36s %-4s %-8s %-20s %-10s\n",
		"#", nameWidth, "Name", "UUID", "Cap", "Proto", "Address", "Last Seen")
	fmt.Printf("  %s %s %s %s %s %s %s\n",
		strings.Repeat("─", 4),
		strings.Repeat("─", nameWidth),
		strings.Repeat("─", 36),
		strings.Repeat("─", 4),
		strings.Repeat("─", 8),
		strings.Repeat("─", 20),
		strings.Repeat("─", 10))

	for i, peer := range peers {
		address := ""
		if len(peer.Agent.IPv6Addresses) > 0 {
			address = peer.Agent.IPv6Addresses[0]
		}

		fmt.Printf("  %-4d %-*s %-36s %-4d %-8s %-20s %-10s\n",
			i+1,
			nameWidth, truncate(peer.Agent.RobotName, nameWidth),
			peer.Agent.UUID,
			peer.Agent.CapabilityIndex,
			peer.Agent.Protocol,
			truncate(address, 20),
			peer.LastSeen.Format("15:04:05"),
		)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-1] + "…"
}
