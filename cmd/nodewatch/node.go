package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cuemby/nodewatch/pkg/types"
	"github.com/spf13/cobra"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage tracked nodes",
}

var nodeAddCmd = &cobra.Command{
	Use:   "add ADDRESS",
	Short: "Track a worker node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		name, _ := cmd.Flags().GetString("name")
		notes, _ := cmd.Flags().GetString("notes")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		node := &types.TrackedNode{
			Owner:   owner,
			Address: args[0],
			Name:    name,
			Notes:   notes,
		}
		if err := store.CreateNode(node); err != nil {
			return fmt.Errorf("failed to add node: %w", err)
		}

		fmt.Printf("✓ Tracking %s\n", node.DisplayName())
		fmt.Printf("  ID: %s\n", node.ID)
		fmt.Printf("  Address: %s\n", node.Address)
		return nil
	},
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		var nodes []*types.TrackedNode
		if owner != "" {
			nodes, err = store.ListTrackedNodes(owner)
		} else {
			nodes, err = store.ListNodes()
		}
		if err != nil {
			return fmt.Errorf("failed to list nodes: %w", err)
		}

		if len(nodes) == 0 {
			fmt.Println("No nodes tracked")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tOWNER\tNAME\tADDRESS\tLIVENESS\tJOB\tSOL\tLAST CHECKED")
		for _, n := range nodes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				n.ID, n.Owner, n.Name, n.Address, n.Liveness, n.JobState, formatBalance(n), formatChecked(n.LastChecked))
		}
		return w.Flush()
	},
}

// formatBalance shows the last SOL reading, flagged when low
func formatBalance(n *types.TrackedNode) string {
	if n.BalanceCheckedAt.IsZero() {
		return "-"
	}
	if n.LowBalance {
		return fmt.Sprintf("%.4f (low)", n.SOLBalance)
	}
	return fmt.Sprintf("%.4f", n.SOLBalance)
}

var nodeEditCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Change a node's name or notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		node, err := store.GetNode(args[0])
		if err != nil {
			return fmt.Errorf("failed to get node: %w", err)
		}

		name, notes := node.Name, node.Notes
		if cmd.Flags().Changed("name") {
			name, _ = cmd.Flags().GetString("name")
		}
		if cmd.Flags().Changed("notes") {
			notes, _ = cmd.Flags().GetString("notes")
		}
		if err := store.UpdateNodeDetails(node.ID, name, notes); err != nil {
			return fmt.Errorf("failed to update node: %w", err)
		}

		fmt.Printf("✓ Updated %s\n", node.ID)
		return nil
	},
}

var nodeRemoveCmd = &cobra.Command{
	Use:     "remove ID",
	Aliases: []string{"rm"},
	Short:   "Stop tracking a node",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.DeleteNode(args[0]); err != nil {
			return fmt.Errorf("failed to remove node: %w", err)
		}
		fmt.Printf("✓ Removed %s\n", args[0])
		return nil
	},
}

var nodeOverrideCmd = &cobra.Command{
	Use:   "override ID",
	Short: "Manually set a node's status",
	Long: `Override writes liveness and job state exactly as a reconciliation
would. The next scheduled batch replaces it with the ledger's view.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		liveness, _ := cmd.Flags().GetString("liveness")
		jobState, _ := cmd.Flags().GetString("job-state")

		update, err := parseOverride(liveness, jobState)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.UpdateStatus(args[0], update); err != nil {
			return fmt.Errorf("failed to override status: %w", err)
		}
		fmt.Printf("✓ %s is now %s/%s\n", args[0], update.Liveness, update.JobState)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nodeCmd)
	nodeCmd.AddCommand(nodeAddCmd)
	nodeCmd.AddCommand(nodeListCmd)
	nodeCmd.AddCommand(nodeEditCmd)
	nodeCmd.AddCommand(nodeRemoveCmd)
	nodeCmd.AddCommand(nodeOverrideCmd)

	nodeAddCmd.Flags().String("owner", "", "Owner of the node")
	nodeAddCmd.Flags().String("name", "", "Display name")
	nodeAddCmd.Flags().String("notes", "", "Free-form notes")
	_ = nodeAddCmd.MarkFlagRequired("owner")

	nodeListCmd.Flags().String("owner", "", "Only list this owner's nodes")

	nodeEditCmd.Flags().String("name", "", "New display name")
	nodeEditCmd.Flags().String("notes", "", "New notes")

	nodeOverrideCmd.Flags().String("liveness", "", "online, offline or unknown")
	nodeOverrideCmd.Flags().String("job-state", "idle", "running, queued or idle")
	_ = nodeOverrideCmd.MarkFlagRequired("liveness")
}

// parseOverride validates the override flags
func parseOverride(liveness, jobState string) (types.StatusUpdate, error) {
	l := types.Liveness(strings.ToLower(strings.TrimSpace(liveness)))
	if !l.Valid() {
		return types.StatusUpdate{}, fmt.Errorf("invalid liveness %q", liveness)
	}
	s := types.JobState(strings.ToLower(strings.TrimSpace(jobState)))
	if !s.Valid() {
		return types.StatusUpdate{}, fmt.Errorf("invalid job state %q", jobState)
	}

	return types.StatusUpdate{
		Liveness:    l,
		JobState:    s,
		LastChecked: time.Now(),
	}, nil
}

func formatChecked(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}
