package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

type exportCmd struct {
	gs     *globalState
	preset string
	limit  int
	output string
}

func getCmdExport(gs *globalState) *cobra.Command {
	c := &exportCmd{gs: gs}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored requests as a HAR file",
		Args:  cobra.NoArgs,
		RunE:  c.run,
	}
	flags := cmd.Flags()
	flags.StringVarP(&c.preset, "preset", "p", "saved", "filter preset name")
	flags.IntVarP(&c.limit, "limit", "n", 0, "maximum number of requests (default: scan limit)")
	flags.StringVarP(&c.output, "output", "o", "-", "output file, - for stdout")
	return cmd
}

func (c *exportCmd) run(cmd *cobra.Command, _ []string) (err error) {
	if c.limit <= 0 {
		c.limit = c.gs.cfg.ScanLimit
	}
	o, err := openOffline(cmd.Context(), c.gs, false)
	if err != nil {
		return err
	}
	defer o.Close()

	var w io.Writer = c.gs.stdout
	if c.output != "-" {
		f, ferr := os.Create(c.output)
		if ferr != nil {
			return fmt.Errorf("create %s: %w", c.output, ferr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		w = f
	}

	n, err := o.svc.ExportHAR(cmd.Context(), w, c.preset, c.limit)
	if err != nil {
		return err
	}
	slog.Info("HAR exported", "entries", n, "preset", c.preset, "output", c.output)
	return nil
}
