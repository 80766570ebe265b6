package cli

// -----------------------------------------------------------------------------
// node.go – ICN node lifecycle CLI
// -----------------------------------------------------------------------------
// Commands after RegisterNode(root):
//   ~node ~start   – boot the node and its background loops
//   ~node ~stop    – shut the node down
//   ~node ~peers   – list connected peers
//   ~node ~stats   – transport counters
//   ~node ~health  – coordinator aggregate
// -----------------------------------------------------------------------------

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"icn-network/core"
	"icn-network/pkg/config"
	"icn-network/pkg/utils"
)

var (
	icnNode *core.Node
	icnMu   sync.RWMutex
)

// nodeInit loads env + config and wires the node once.
func nodeInit(_ *cobra.Command, _ []string) error {
	icnMu.RLock()
	ready := icnNode != nil
	icnMu.RUnlock()
	if ready {
		return nil
	}
	_ = godotenv.Load()

	if lv, err := logrus.ParseLevel(utils.EnvOrDefault("ICN_LOG_LEVEL", "info")); err == nil {
		logrus.SetLevel(lv)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	n, err := core.NewNode(*cfg, nil, logrus.StandardLogger())
	if err != nil {
		return err
	}
	icnMu.Lock()
	icnNode = n
	icnMu.Unlock()
	return nil
}

func currentNode() (*core.Node, error) {
	icnMu.RLock()
	defer icnMu.RUnlock()
	if icnNode == nil {
		return nil, fmt.Errorf("node not initialised")
	}
	return icnNode, nil
}

func nodeStart(cmd *cobra.Command, _ []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	n.Start(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		n.Stop()
		os.Exit(0)
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "node started as %s\n", n.Identity)
	return nil
}

func nodeStop(cmd *cobra.Command, _ []string) error {
	n, err := currentNode()
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "not running")
		return nil
	}
	n.Stop()
	icnMu.Lock()
	icnNode = nil
	icnMu.Unlock()
	fmt.Fprintln(cmd.OutOrStdout(), "stopped")
	return nil
}

func nodePeers(cmd *cobra.Command, _ []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	peers, err := n.Network.DiscoverPeers("")
	if err != nil {
		return err
	}
	for _, p := range peers {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}

func nodeStats(cmd *cobra.Command, _ []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	s := n.Network.GetNetworkStats()
	fmt.Fprintf(cmd.OutOrStdout(), "peers=%d sent=%d recv=%d failed=%d avg_latency=%dms\n",
		s.PeerCount, s.MessagesSent, s.MessagesReceived, s.FailedConnections, s.AvgLatencyMs)
	return nil
}

func nodeHealth(cmd *cobra.Command, _ []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	h := n.Coord.RefreshHealth()
	fmt.Fprintf(cmd.OutOrStdout(), "overall=%.2f\n", h.Overall)
	for name, c := range h.Components {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\thealthy=%v\tscore=%.2f\n", name, c.Healthy, c.Score)
	}
	return nil
}

// RegisterNode wires the ~node command tree onto root.
func RegisterNode(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:               "node",
		Short:             "Run and inspect the ICN node",
		PersistentPreRunE: nodeInit,
	}
	cmd.AddCommand(&cobra.Command{Use: "start", Short: "Boot the node", RunE: nodeStart})
	cmd.AddCommand(&cobra.Command{Use: "stop", Short: "Stop the node", RunE: nodeStop})
	cmd.AddCommand(&cobra.Command{Use: "peers", Short: "List peers", RunE: nodePeers})
	cmd.AddCommand(&cobra.Command{Use: "stats", Short: "Transport counters", RunE: nodeStats})
	cmd.AddCommand(&cobra.Command{Use: "health", Short: "Coordinator health", RunE: nodeHealth})
	root.AddCommand(cmd)
}
