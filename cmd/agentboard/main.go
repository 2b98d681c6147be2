// agentboard serves the agent dashboard: roster status, activity feed,
// missions and the inter-agent message bus.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/flitsinc/agentboard/internal/agents"
	"github.com/flitsinc/agentboard/internal/config"
	"github.com/flitsinc/agentboard/internal/eventlog"
	"github.com/flitsinc/agentboard/internal/logging"
	"github.com/flitsinc/agentboard/internal/messages"
	"github.com/flitsinc/agentboard/internal/missions"
	"github.com/flitsinc/agentboard/internal/policies"
	"github.com/flitsinc/agentboard/internal/state"
	"github.com/flitsinc/agentboard/internal/status"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "agentboard: %v\n", err) //nolint:errcheck
		return 1
	}
	return 0
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "agentboard",
		Short:         "Status dashboard for a team of agents",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		newServeCmd(),
		newSeedCmd(stdout),
		newSnapshotCmd(stdout),
		newVersionCmd(stdout),
	)
	return root
}

// app holds the wired components shared by every subcommand.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *state.Store
	registry *agents.Registry
	log      *eventlog.Log
	missions *missions.Tracker
	messages *messages.Bus
	policies *policies.Store
	status   *status.Aggregator

	closeLog func() error
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	db, err := state.Open(cfg.DBPath)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	store := state.NewStore(db)
	registry := agents.NewRegistry(store, cfg.AgentRoster(), logger)
	log := eventlog.NewLog(store, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		registry: registry,
		log:      log,
		missions: missions.NewTracker(store, logger),
		messages: messages.NewBus(store, logger),
		policies: policies.NewStore(store),
		status:   status.NewAggregator(store, registry, log),
		closeLog: closeLog,
	}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
	_ = a.closeLog()
}
