package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cuemby/nodewatch/pkg/storage"
	"github.com/cuemby/nodewatch/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a manifest file",
	Long: `Register tracked nodes and notification preferences from a YAML file.
A file may hold several documents separated by "---".

Examples:
  # Track a fleet of nodes for one owner
  nodewatch apply -f nodes.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// Resource is one manifest document
type Resource struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   ResourceMetadata `yaml:"metadata"`
	Spec       yaml.Node        `yaml:"spec"`
}

// decodeSpec decodes the spec into v; a missing spec leaves v untouched
func (r *Resource) decodeSpec(v interface{}) error {
	if r.Spec.Kind == 0 {
		return nil
	}
	return r.Spec.Decode(v)
}

type ResourceMetadata struct {
	Owner string `yaml:"owner"`
}

// NodeListSpec is the spec of a NodeList document
type NodeListSpec struct {
	Nodes []NodeSpec `yaml:"nodes"`
}

type NodeSpec struct {
	Address string `yaml:"address"`
	Name    string `yaml:"name,omitempty"`
	Notes   string `yaml:"notes,omitempty"`
}

// PreferencesSpec is the spec of a Preferences document. Omitted flags
// keep their stored values.
type PreferencesSpec struct {
	Offline      *bool `yaml:"offline,omitempty"`
	Online       *bool `yaml:"online,omitempty"`
	JobStarted   *bool `yaml:"jobStarted,omitempty"`
	JobCompleted *bool `yaml:"jobCompleted,omitempty"`
	LowBalance   *bool `yaml:"lowBalance,omitempty"`
	Vibration    *bool `yaml:"vibration,omitempty"`
	Sound        *bool `yaml:"sound,omitempty"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}
	defer f.Close()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	return applyManifest(store, f, cmd.OutOrStdout())
}

// applyManifest applies every document read from r, reporting progress to out
func applyManifest(store storage.Store, r io.Reader, out io.Writer) error {
	dec := yaml.NewDecoder(r)
	for {
		var resource Resource
		err := dec.Decode(&resource)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to parse YAML: %v", err)
		}
		if resource.Metadata.Owner == "" {
			return fmt.Errorf("%s: metadata.owner is required", resource.Kind)
		}

		switch resource.Kind {
		case "NodeList":
			err = applyNodeList(store, &resource, out)
		case "Preferences":
			err = applyPreferences(store, &resource, out)
		default:
			err = fmt.Errorf("unsupported resource kind: %s", resource.Kind)
		}
		if err != nil {
			return err
		}
	}
}

func applyNodeList(store storage.Store, resource *Resource, out io.Writer) error {
	var spec NodeListSpec
	if err := resource.decodeSpec(&spec); err != nil {
		return fmt.Errorf("invalid NodeList spec: %v", err)
	}

	owner := resource.Metadata.Owner
	for _, n := range spec.Nodes {
		node := &types.TrackedNode{
			Owner:   owner,
			Address: n.Address,
			Name:    n.Name,
			Notes:   n.Notes,
		}
		err := store.CreateNode(node)
		switch {
		case errors.Is(err, storage.ErrDuplicate):
			fmt.Fprintf(out, "Node %s already tracked for %s (skipping)\n", n.Address, owner)
		case err != nil:
			return fmt.Errorf("failed to add node %s: %v", n.Address, err)
		default:
			fmt.Fprintf(out, "✓ Node tracked: %s (ID: %s)\n", node.DisplayName(), node.ID)
		}
	}
	return nil
}

func applyPreferences(store storage.Store, resource *Resource, out io.Writer) error {
	var spec PreferencesSpec
	if err := resource.decodeSpec(&spec); err != nil {
		return fmt.Errorf("invalid Preferences spec: %v", err)
	}

	owner := resource.Metadata.Owner
	prefs, err := store.GetPreferences(owner)
	if err != nil {
		return fmt.Errorf("failed to get preferences: %v", err)
	}

	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&prefs.NotifyOffline, spec.Offline)
	set(&prefs.NotifyOnline, spec.Online)
	set(&prefs.NotifyJobStarted, spec.JobStarted)
	set(&prefs.NotifyJobCompleted, spec.JobCompleted)
	set(&prefs.NotifyLowBalance, spec.LowBalance)
	set(&prefs.Vibration, spec.Vibration)
	set(&prefs.Sound, spec.Sound)

	if err := store.SetPreferences(prefs); err != nil {
		return fmt.Errorf("failed to save preferences: %v", err)
	}
	fmt.Fprintf(out, "✓ Preferences applied: %s\n", owner)
	return nil
}
