package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Build metadata, injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print agentboard version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(stdout, "agentboard %s (commit: %s)\n", version, commit) //nolint:errcheck
		},
	}
}

func newSeedCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create or re-sync the configured agent roster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.registry.Seed(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "seeded %d agents\n", len(a.registry.Roster())) //nolint:errcheck
			return nil
		},
	}
}

func newSnapshotCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Print the current status snapshot as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			snap, err := a.status.Snapshot(cmd.Context(), a.store.Now())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		},
	}
}
