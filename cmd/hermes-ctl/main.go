// Command hermes-ctl is a thin control-plane client for hermesd: it issues
// control-RPC calls (currently just shutdown) against a running node.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/hermes/internal/rpc"
)

func main() {
	var nodeID uint32
	var addr string
	var peers []string
	var timeout time.Duration

	root := &cobra.Command{
		Use:   "hermes-ctl",
		Short: "Control client for a running hermesd node",
	}
	root.PersistentFlags().Uint32Var(&nodeID, "node", 0, "target node id (resolved via --peer entries)")
	root.PersistentFlags().StringVar(&addr, "addr", "", "target node's control address, host:port (overrides --node/--peer)")
	root.PersistentFlags().StringArrayVar(&peers, "peer", nil, "directory entry, \"nodeID=host:port\" (repeatable)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "RPC timeout")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask the target node to drain and shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := resolveAddr(addr, nodeID, peers)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			client := rpc.NewControlClient(nil, "http://"+target)
			if err := client.Shutdown(ctx); err != nil {
				return fmt.Errorf("hermes-ctl: stop %s: %w", target, err)
			}
			fmt.Printf("node at %s is shutting down\n", target)
			return nil
		},
	}

	root.AddCommand(stopCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hermes-ctl: %v\n", err)
		os.Exit(1)
	}
}

// resolveAddr picks the control address to dial: an explicit --addr wins
// outright, otherwise --node is looked up in the directory built from
// --peer entries.
func resolveAddr(addr string, nodeID uint32, peers []string) (string, error) {
	if addr != "" {
		return addr, nil
	}
	if len(peers) == 0 {
		return "", fmt.Errorf("hermes-ctl: need --addr or --peer entries to resolve --node %d", nodeID)
	}
	dir, err := rpc.NewDirectory(peers)
	if err != nil {
		return "", err
	}
	return dir.Lookup(nodeID)
}
