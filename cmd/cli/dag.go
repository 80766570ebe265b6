package cli

// -----------------------------------------------------------------------------
// dag.go – DAG storage and conflict CLI
// -----------------------------------------------------------------------------
// Commands after RegisterDag(root):
//   ~dag ~put <data>       – author and store a block
//   ~dag ~get <cid>        – dump a block
//   ~dag ~root             – current DAG root
//   ~dag ~conflicts        – list active conflicts
//   ~dag ~resolve <id>     – drive one conflict to resolution
// -----------------------------------------------------------------------------

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"icn-network/core"
)

func dagPut(cmd *cobra.Command, args []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	block, err := core.NewDagBlock([]byte(args[0]), nil, uint64(time.Now().Unix()), n.Identity, nil, "")
	if err != nil {
		return err
	}
	if err := n.Store.Put(block); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), block.Cid)
	return nil
}

func dagGet(cmd *cobra.Command, args []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	id, err := core.ParseCid(args[0])
	if err != nil {
		return err
	}
	b, err := n.Store.Get(id)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("block %s not found", id)
	}
	raw, _ := json.MarshalIndent(b, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	return nil
}

func dagRoot(cmd *cobra.Command, _ []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	root, err := n.Store.CurrentRoot()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), root)
	return nil
}

func dagConflicts(cmd *cobra.Command, _ []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	if _, err := n.Conflicts.DetectConflicts(); err != nil {
		return err
	}
	for _, c := range n.Conflicts.ActiveConflicts() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d blocks\t%s\n", c.ConflictID, c.Type, len(c.ConflictingBlocks), c.Status.Phase)
	}
	return nil
}

func dagResolve(cmd *cobra.Command, args []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	status, err := n.Conflicts.ResolveConflict(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s winner=%s\n", status.Phase, status.Winner)
	return nil
}

// RegisterDag wires the ~dag command tree onto root.
func RegisterDag(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:               "dag",
		Short:             "Inspect and mutate the content-addressed DAG",
		PersistentPreRunE: nodeInit,
	}
	cmd.AddCommand(&cobra.Command{Use: "put <data>", Short: "Store a block", Args: cobra.ExactArgs(1), RunE: dagPut})
	cmd.AddCommand(&cobra.Command{Use: "get <cid>", Short: "Dump a block", Args: cobra.ExactArgs(1), RunE: dagGet})
	cmd.AddCommand(&cobra.Command{Use: "root", Short: "Current DAG root", RunE: dagRoot})
	cmd.AddCommand(&cobra.Command{Use: "conflicts", Short: "List active conflicts", RunE: dagConflicts})
	cmd.AddCommand(&cobra.Command{Use: "resolve <conflict-id>", Short: "Resolve a conflict", Args: cobra.ExactArgs(1), RunE: dagResolve})
	root.AddCommand(cmd)
}
