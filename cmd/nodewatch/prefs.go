package main

import (
	"fmt"

	"github.com/cuemby/nodewatch/pkg/types"
	"github.com/spf13/cobra"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Manage notification preferences",
}

var prefsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show an owner's notification preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		prefs, err := store.GetPreferences(owner)
		if err != nil {
			return fmt.Errorf("failed to get preferences: %w", err)
		}

		fmt.Printf("Preferences for %s:\n", owner)
		fmt.Printf("  Offline:       %s\n", onOff(prefs.NotifyOffline))
		fmt.Printf("  Online:        %s\n", onOff(prefs.NotifyOnline))
		fmt.Printf("  Job started:   %s\n", onOff(prefs.NotifyJobStarted))
		fmt.Printf("  Job completed: %s\n", onOff(prefs.NotifyJobCompleted))
		fmt.Printf("  Low balance:   %s\n", onOff(prefs.NotifyLowBalance))
		fmt.Printf("  Vibration:     %s\n", onOff(prefs.Vibration))
		fmt.Printf("  Sound:         %s\n", onOff(prefs.Sound))
		return nil
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change an owner's notification preferences",
	Long: `Set updates only the flags given on the command line; the rest keep
their stored (or default) values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		prefs, err := store.GetPreferences(owner)
		if err != nil {
			return fmt.Errorf("failed to get preferences: %w", err)
		}
		applyPreferenceFlags(cmd, prefs)

		if err := store.SetPreferences(prefs); err != nil {
			return fmt.Errorf("failed to save preferences: %w", err)
		}
		fmt.Printf("✓ Preferences saved for %s\n", owner)
		return nil
	},
}

// preferenceFlags maps flag names to the preference field they control
var preferenceFlags = []struct {
	name  string
	usage string
	field func(*types.NotificationPreference) *bool
}{
	{"offline", "Notify when a node goes offline", func(p *types.NotificationPreference) *bool { return &p.NotifyOffline }},
	{"online", "Notify when a node comes back online", func(p *types.NotificationPreference) *bool { return &p.NotifyOnline }},
	{"job-started", "Notify when a node starts a job", func(p *types.NotificationPreference) *bool { return &p.NotifyJobStarted }},
	{"job-completed", "Notify when a node finishes a job", func(p *types.NotificationPreference) *bool { return &p.NotifyJobCompleted }},
	{"low-balance", "Notify when a node's SOL balance runs low", func(p *types.NotificationPreference) *bool { return &p.NotifyLowBalance }},
	{"vibration", "Request vibration on delivery", func(p *types.NotificationPreference) *bool { return &p.Vibration }},
	{"sound", "Request sound on delivery", func(p *types.NotificationPreference) *bool { return &p.Sound }},
}

func applyPreferenceFlags(cmd *cobra.Command, prefs *types.NotificationPreference) {
	for _, f := range preferenceFlags {
		if !cmd.Flags().Changed(f.name) {
			continue
		}
		v, _ := cmd.Flags().GetBool(f.name)
		*f.field(prefs) = v
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsGetCmd)
	prefsCmd.AddCommand(prefsSetCmd)

	for _, c := range []*cobra.Command{prefsGetCmd, prefsSetCmd} {
		c.Flags().String("owner", "", "Owner whose preferences are managed")
		_ = c.MarkFlagRequired("owner")
	}
	for _, f := range preferenceFlags {
		prefsSetCmd.Flags().Bool(f.name, false, f.usage)
	}
}
