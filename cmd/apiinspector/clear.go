package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type clearCmd struct {
	gs     *globalState
	domain string
	ids    []string
}

func getCmdClear(gs *globalState) *cobra.Command {
	c := &clearCmd{gs: gs}
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete stored traffic",
		Long: `Delete every stored request and connection, or only the requests of one
source domain or with the given ids. Configured peers are told about the
change so a running dashboard refreshes.`,
		Args: cobra.NoArgs,
		RunE: c.run,
	}
	cmd.Flags().StringVar(&c.domain, "domain", "", "delete only requests from this source domain")
	cmd.Flags().StringSliceVar(&c.ids, "id", nil, "delete only these request ids")
	return cmd
}

func (c *clearCmd) run(cmd *cobra.Command, _ []string) error {
	if c.domain != "" && len(c.ids) > 0 {
		return fmt.Errorf("--domain and --id cannot be combined")
	}
	ctx := cmd.Context()
	o, err := openOffline(ctx, c.gs, true)
	if err != nil {
		return err
	}
	defer o.Close()

	switch {
	case c.domain != "":
		n, err := o.svc.DeleteGroup(ctx, c.domain)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(c.gs.stdout, "removed %d requests from %s\n", n, c.domain)
		return err
	case len(c.ids) > 0:
		if err := o.svc.DeleteRequests(ctx, c.ids); err != nil {
			return err
		}
		_, err = fmt.Fprintf(c.gs.stdout, "removed %d requests\n", len(c.ids))
		return err
	default:
		if err := o.svc.ClearAll(ctx); err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.gs.stdout, "cleared all requests and connections")
		return err
	}
}
