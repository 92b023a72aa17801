package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/cuemby/nodewatch/pkg/storage"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy the node registry between storage drivers",
	Long: `Migrate copies every tracked node, including its last reconciled
status, and every saved preference from one storage driver to another.
Nodes already present in the target are skipped. The source is never
modified.

Examples:
  # Move from bbolt to SQLite
  nodewatch migrate --from bolt --to sqlite

  # Show what would be copied
  nodewatch migrate --from bolt --to sqlite --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		if dataDir == "" {
			dataDir = cfg.Storage.DataDir
		}
		if from == to {
			return fmt.Errorf("source and target driver are both %q", from)
		}

		src, err := storage.Open(from, dataDir)
		if err != nil {
			return fmt.Errorf("failed to open source %s store: %w", from, err)
		}
		defer src.Close()

		dst, err := storage.Open(to, dataDir)
		if err != nil {
			return fmt.Errorf("failed to open target %s store: %w", to, err)
		}
		defer dst.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Migrating %s → %s in %s\n", from, to, dataDir)
		stats, err := migrateStore(src, dst, dryRun, out)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		if dryRun {
			fmt.Fprintf(out, "\nDry run completed: %d nodes and %d preference sets would be copied.\n",
				stats.Nodes, stats.Preferences)
			fmt.Fprintln(out, "Run without --dry-run to perform the migration.")
			return nil
		}
		fmt.Fprintf(out, "\n✓ Migrated %d nodes (%d skipped) and %d preference sets\n",
			stats.Nodes, stats.Skipped, stats.Preferences)
		fmt.Fprintf(out, "Set storage.driver to %q to use the new store.\n", to)
		return nil
	},
}

func init() {
	migrateCmd.Flags().String("from", storage.DriverBolt, "Source storage driver")
	migrateCmd.Flags().String("to", storage.DriverSQLite, "Target storage driver")
	migrateCmd.Flags().String("data-dir", "", "Data directory holding both stores (default from config)")
	migrateCmd.Flags().Bool("dry-run", false, "Show what would be migrated without making changes")

	rootCmd.AddCommand(migrateCmd)
}

type migrateStats struct {
	Nodes       int
	Skipped     int
	Preferences int
}

// migrateStore copies nodes and preferences from src into dst
func migrateStore(src, dst storage.Store, dryRun bool, out io.Writer) (migrateStats, error) {
	var stats migrateStats

	nodes, err := src.ListNodes()
	if err != nil {
		return stats, fmt.Errorf("failed to list source nodes: %w", err)
	}
	owners, err := src.ListOwners()
	if err != nil {
		return stats, fmt.Errorf("failed to list source owners: %w", err)
	}
	saved, err := src.ListPreferences()
	if err != nil {
		return stats, fmt.Errorf("failed to list source preferences: %w", err)
	}
	fmt.Fprintf(out, "Found %d nodes across %d owners, %d saved preferences\n", len(nodes), len(owners), len(saved))

	if dryRun {
		stats.Nodes = len(nodes)
		stats.Preferences = len(saved)
		return stats, nil
	}

	for _, node := range nodes {
		err := dst.CreateNode(node)
		switch {
		case errors.Is(err, storage.ErrDuplicate):
			fmt.Fprintf(out, "⚠ Node %s already in target (skipping)\n", node.ID)
			stats.Skipped++
		case err != nil:
			return stats, fmt.Errorf("failed to copy node %s: %w", node.ID, err)
		default:
			stats.Nodes++
			if stats.Nodes%10 == 0 {
				fmt.Fprintf(out, "  Migrated %d/%d...\n", stats.Nodes, len(nodes))
			}
		}
	}

	// Every saved record is copied, including owners with no nodes left.
	// Owners that never saved any read as defaults on either side.
	for _, prefs := range saved {
		if err := dst.SetPreferences(prefs); err != nil {
			return stats, fmt.Errorf("failed to copy preferences for %s: %w", prefs.Owner, err)
		}
		stats.Preferences++
	}
	return stats, nil
}
