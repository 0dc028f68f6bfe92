package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"

	"github.com/lox/inatfetch/internal/models"
	"github.com/lox/inatfetch/internal/store"
)

type RunsCmd struct {
	Limit   int    `name:"limit" short:"n" default:"10" help:"Number of runs to show."`
	Status  string `name:"status" help:"Only show runs with this status (success, partial, failed)."`
	Species string `name:"species" help:"Only show runs for this species."`
}

func (c *RunsCmd) Run(ctx context.Context, cli *CLI) error {
	switch models.RunStatus(c.Status) {
	case "", models.RunSuccess, models.RunPartial, models.RunFailed:
	default:
		return eris.Errorf("unknown run status %q", c.Status)
	}

	st, err := cli.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.GetRecentFetchRuns(ctx, store.RunQuery{
		Limit:   c.Limit,
		Status:  models.RunStatus(c.Status),
		Species: c.Species,
	})
	if err != nil {
		return eris.Wrap(err, "list runs")
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSTATUS\tSPECIES\tPLACE\tFILTER\tPAGES\tFETCHED\tKEPT\tERROR")
	for _, r := range runs {
		status := "running"
		if r.Status.Valid {
			status = r.Status.String
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			humanize.Time(r.StartedAt),
			status,
			r.SpeciesName,
			r.PlaceName,
			r.Filter,
			r.Pages,
			humanize.Comma(int64(r.Fetched)),
			humanize.Comma(int64(r.Kept)),
			r.ErrorMessage.String,
		)
	}
	return w.Flush()
}
