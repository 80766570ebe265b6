package cli

// -----------------------------------------------------------------------------
// governance.go – federation governance CLI
// -----------------------------------------------------------------------------
// Commands after RegisterGovernance(root):
//   ~gov ~propose <description> [hours]  – submit a proposal
//   ~gov ~open <id>                      – open voting
//   ~gov ~vote <id> <yes|no|abstain>     – cast a ballot
//   ~gov ~close <id>                     – tally and freeze
//   ~gov ~execute <id>                   – apply an accepted proposal
//   ~gov ~list                           – list proposals
// -----------------------------------------------------------------------------

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"icn-network/core"
)

func govPropose(cmd *cobra.Command, args []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	hours := 24
	if len(args) > 1 {
		if h, err := strconv.Atoi(args[1]); err == nil {
			hours = h
		}
	}
	p, err := n.Governance.SubmitProposal(n.Identity, core.ProposalGenericText, args[0], core.DID{}, time.Duration(hours)*time.Hour, nil, nil)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), p.ID)
	return nil
}

func govOpen(cmd *cobra.Command, args []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	if err := n.Governance.OpenVoting(args[0]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "voting open")
	return nil
}

func govVote(cmd *cobra.Command, args []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	option := core.VoteOption(args[1])
	switch option {
	case core.VoteYes, core.VoteNo, core.VoteAbstain:
	default:
		return fmt.Errorf("invalid option %q", args[1])
	}
	return n.Governance.CastVote(n.Identity, args[0], option)
}

func govClose(cmd *cobra.Command, args []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	res, err := n.Governance.CloseVotingPeriod(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "yes=%d no=%d abstain=%d quorum=%v accepted=%v\n",
		res.Yes, res.No, res.Abstain, res.QuorumMet, res.Accepted)
	return nil
}

func govExecute(cmd *cobra.Command, args []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	if err := n.Governance.ExecuteProposal(args[0]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "executed")
	return nil
}

func govList(cmd *cobra.Command, _ []string) error {
	n, err := currentNode()
	if err != nil {
		return err
	}
	proposals, err := n.Governance.ListProposals()
	if err != nil {
		return err
	}
	for _, p := range proposals {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", p.ID, p.Type, p.Status, p.Description)
	}
	return nil
}

// RegisterGovernance wires the ~gov command tree onto root.
func RegisterGovernance(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:               "gov",
		Short:             "Federation governance proposals and voting",
		PersistentPreRunE: nodeInit,
	}
	cmd.AddCommand(&cobra.Command{Use: "propose <description> [hours]", Short: "Submit a proposal", Args: cobra.RangeArgs(1, 2), RunE: govPropose})
	cmd.AddCommand(&cobra.Command{Use: "open <id>", Short: "Open voting", Args: cobra.ExactArgs(1), RunE: govOpen})
	cmd.AddCommand(&cobra.Command{Use: "vote <id> <yes|no|abstain>", Short: "Cast a ballot", Args: cobra.ExactArgs(2), RunE: govVote})
	cmd.AddCommand(&cobra.Command{Use: "close <id>", Short: "Tally and freeze", Args: cobra.ExactArgs(1), RunE: govClose})
	cmd.AddCommand(&cobra.Command{Use: "execute <id>", Short: "Apply an accepted proposal", Args: cobra.ExactArgs(1), RunE: govExecute})
	cmd.AddCommand(&cobra.Command{Use: "list", Short: "List proposals", RunE: govList})
	root.AddCommand(cmd)
}
