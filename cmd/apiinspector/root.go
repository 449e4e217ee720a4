package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Subhashis360/API-Inspector/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// globalState is shared by every subcommand.
type globalState struct {
	ctx    context.Context
	stdout io.Writer
	stderr io.Writer

	cfg   *config.Config
	flags globalFlags
}

type globalFlags struct {
	dataDir  string
	logLevel string
	logFile  string
	bindAddr string
}

func newGlobalState(ctx context.Context, stdout, stderr io.Writer) *globalState {
	return &globalState{ctx: ctx, stdout: stdout, stderr: stderr}
}

func rootPersistentFlagSet(gs *globalState) *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.StringVar(&gs.flags.dataDir, "data-dir", "", "record store directory (overrides INSPECTOR_DATA_DIR)")
	flags.StringVar(&gs.flags.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&gs.flags.logFile, "log-file", "", "rotating log file path")
	flags.StringVar(&gs.flags.bindAddr, "bind", "", "dashboard API listen address")
	return flags
}

// loadConfig reads the environment, then applies explicitly set flags.
func (gs *globalState) loadConfig(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = gs.flags.dataDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = gs.flags.logLevel
	}
	if flags.Changed("log-file") {
		cfg.LogFile = gs.flags.logFile
	}
	if flags.Changed("bind") {
		cfg.BindAddr = gs.flags.bindAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	gs.cfg = cfg
	return nil
}

func newRootCommand(gs *globalState) *cobra.Command {
	root := &cobra.Command{
		Use:           "apiinspector",
		Short:         "Capture and inspect browser traffic",
		Long:          "Attach to browser tabs over the DevTools protocol, record their HTTP and WebSocket traffic and serve it to the dashboard.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			if err := gs.loadConfig(cmd); err != nil {
				return err
			}
			// Only the long-running server logs to stdout; the offline
			// commands print their results there.
			console := gs.stderr
			if cmd.Name() == "serve" {
				console = gs.stdout
			}
			return setupLogger(gs.cfg, console)
		},
	}
	root.PersistentFlags().AddFlagSet(rootPersistentFlagSet(gs))

	root.AddCommand(
		getCmdServe(gs),
		getCmdQuery(gs),
		getCmdStats(gs),
		getCmdClear(gs),
		getCmdExport(gs),
		getCmdVersion(gs),
	)
	return root
}

func execute(gs *globalState, args []string) int {
	root := newRootCommand(gs)
	root.SetArgs(args)
	root.SetOut(gs.stdout)
	root.SetErr(gs.stderr)
	if err := root.ExecuteContext(gs.ctx); err != nil {
		fmt.Fprintln(gs.stderr, "error:", err)
		return 1
	}
	return 0
}
