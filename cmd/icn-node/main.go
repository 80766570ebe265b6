package main

// icn-node – the ICN runtime entry point. Subsystem commands register onto
// the root in cmd/cli.

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"icn-network/cmd/cli"
)

func main() {
	root := &cobra.Command{
		Use:   "icn-node",
		Short: "Cooperative distributed network runtime",
	}
	cli.RegisterNode(root)
	cli.RegisterDag(root)
	cli.RegisterMesh(root)
	cli.RegisterGovernance(root)

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
