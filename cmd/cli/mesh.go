package cli

// -----------------------------------------------------------------------------
// mesh.go – mesh job CLI
// -----------------------------------------------------------------------------
// Commands after RegisterMesh(root):
//   ~mesh ~submit <payload> <cost>  – queue a job
//   ~mesh ~status <job-id>          – job state
//   ~mesh ~credit <did> <amount>    – fund a mana account
//   ~mesh ~balance <did>            – account balance
// -----------------------------------------------------------------------------

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"icn-network/core"
)

func meshSubmit(cmd *cobra.Command, args []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	cost, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid cost: %w", err)
	}
	spec := core.JobSpec{Kind: "echo", Payload: []byte(args[0]), MinCPUCores: 1, MinMemoryMB: 64}
	job, err := core.NewMeshJob(n.Identity, spec, cost, 30_000, uint64(time.Now().Unix()))
	if err != nil {
		return err
	}
	if err := n.Mesh.QueueJob(job); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), job.ID)
	return nil
}

func meshStatus(cmd *cobra.Command, args []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	st, err := n.Mesh.JobState(core.Cid(args[0]))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "phase=%s executor=%s reason=%s\n", st.Phase, st.Executor, st.Reason)
	if st.Receipt != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "result=%s cpu=%dms\n", st.Receipt.ResultCid, st.Receipt.CPUMs)
	}
	return nil
}

func meshCredit(cmd *cobra.Command, args []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	did, err := core.ParseDID(args[0])
	if err != nil {
		return err
	}
	amount, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	if err := n.Ledger.Credit(did, amount); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "credited")
	return nil
}

func meshBalance(cmd *cobra.Command, args []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	did, err := core.ParseDID(args[0])
	if err != nil {
		return err
	}
	bal, err := n.Ledger.Balance(did)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), bal)
	return nil
}

// RegisterMesh wires the ~mesh command tree onto root.
func RegisterMesh(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:               "mesh",
		Short:             "Submit and track mesh computation jobs",
		PersistentPreRunE: nodeInit,
	}
	cmd.AddCommand(&cobra.Command{Use: "submit <payload> <cost>", Short: "Queue a job", Args: cobra.ExactArgs(2), RunE: meshSubmit})
	cmd.AddCommand(&cobra.Command{Use: "status <job-id>", Short: "Job state", Args: cobra.ExactArgs(1), RunE: meshStatus})
	cmd.AddCommand(&cobra.Command{Use: "credit <did> <amount>", Short: "Fund a mana account", Args: cobra.ExactArgs(2), RunE: meshCredit})
	cmd.AddCommand(&cobra.Command{Use: "balance <did>", Short: "Account balance", Args: cobra.ExactArgs(1), RunE: meshBalance})
	root.AddCommand(cmd)
}
