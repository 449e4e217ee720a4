package main

import (
	"github.com/spf13/cobra"
)

type statsOutput struct {
	Requests    int      `yaml:"requests"`
	Connections int      `yaml:"connections"`
	DataDir     string   `yaml:"data_dir"`
	Presets     []string `yaml:"presets,omitempty"`
}

func getCmdStats(gs *globalState) *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show record counts of the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := openOffline(cmd.Context(), gs, false)
			if err != nil {
				return err
			}
			defer o.Close()

			s := o.svc.GetStats(cmd.Context())
			return yamlPrint(gs.stdout, statsOutput{
				Requests:    s.Requests,
				Connections: s.Connections,
				DataDir:     gs.cfg.DataDir,
				Presets:     o.svc.Presets(),
			})
		},
	}
	return statsCmd
}
