package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Subhashis360/API-Inspector/internal/filter"
	"github.com/Subhashis360/API-Inspector/internal/types"
)

type queryCmd struct {
	gs         *globalState
	preset     string
	limit      int
	inScope    []string
	categories []string
	urlRegex   string
	isJSON     bool
}

func getCmdQuery(gs *globalState) *cobra.Command {
	c := &queryCmd{gs: gs}
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List stored requests, newest first",
		Long: `List stored requests through a filter. Without filter flags the named
preset is used; "saved" is the filter configured in the dashboard.`,
		Args: cobra.NoArgs,
		RunE: c.run,
	}
	flags := cmd.Flags()
	flags.StringVarP(&c.preset, "preset", "p", "saved", "filter preset name")
	flags.IntVarP(&c.limit, "limit", "n", 0, "maximum number of requests (default: scan limit)")
	flags.StringSliceVar(&c.inScope, "in-scope", nil, "domain patterns to keep, e.g. *.example.com")
	flags.StringSliceVar(&c.categories, "category", nil, "categories to show: api, js, css, image, font, doc, json, xml, other")
	flags.StringVar(&c.urlRegex, "url-regex", "", "keep only URLs matching this expression")
	flags.BoolVar(&c.isJSON, "json", false, "print requests as JSON")
	return cmd
}

func (c *queryCmd) adHoc() (filter.Config, bool) {
	if len(c.inScope) == 0 && len(c.categories) == 0 && c.urlRegex == "" {
		return filter.Config{}, false
	}
	cfg := filter.Default()
	cfg.Name = "cli"
	cfg.InScope = c.inScope
	cfg.Categories = c.categories
	cfg.URLRegex = c.urlRegex
	return cfg, true
}

func (c *queryCmd) run(cmd *cobra.Command, _ []string) error {
	if c.limit <= 0 {
		c.limit = c.gs.cfg.ScanLimit
	}
	o, err := openOffline(cmd.Context(), c.gs, false)
	if err != nil {
		return err
	}
	defer o.Close()

	var reqs []types.Request
	if cfg, ok := c.adHoc(); ok {
		reqs, err = o.svc.QueryRequests(cmd.Context(), cfg, c.limit)
	} else {
		reqs, err = o.svc.QueryPreset(cmd.Context(), c.preset, c.limit)
	}
	if err != nil {
		return err
	}

	if c.isJSON {
		enc := json.NewEncoder(c.gs.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reqs)
	}
	tw := tabwriter.NewWriter(c.gs.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMETHOD\tSTATUS\tCODE\tCATEGORY\tURL")
	for _, r := range reqs {
		code := "-"
		if r.Response != nil {
			code = strconv.Itoa(r.Response.StatusCode)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Method, r.Status, code, r.Category, r.URL)
	}
	return tw.Flush()
}
