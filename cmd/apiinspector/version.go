package main

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

type versionCmd struct {
	gs     *globalState
	isJSON bool
}

func (c *versionCmd) run(cmd *cobra.Command, _ []string) error {
	if !c.isJSON {
		_, err := fmt.Fprintf(c.gs.stdout, "apiinspector %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		return err
	}

	details := map[string]string{
		"version": version,
		"go":      runtime.Version(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
	jsonDetails, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed produce a JSON version details: %w", err)
	}

	_, err = fmt.Fprintln(c.gs.stdout, string(jsonDetails))
	return err
}

func getCmdVersion(gs *globalState) *cobra.Command {
	versionCmd := &versionCmd{gs: gs}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show application version",
		Long:  `Show the application version and exit.`,
		Args:  cobra.NoArgs,
		RunE:  versionCmd.run,
	}

	cmd.Flags().BoolVar(&versionCmd.isJSON, "json", false, "if set, output version information will be in JSON format")

	return cmd
}
