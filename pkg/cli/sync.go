package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/cony/pkg/usecase/route"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func syncCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "sync",
		Usage: "Synchronize the local cache against the external project system",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			projects, err := cfg.newProjectSystem(ctx)
			if err != nil {
				return err
			}
			if projects == nil {
				return goerr.New("project-system config is required for sync")
			}

			store, err := cfg.newStorage(ctx)
			if err != nil {
				return err
			}

			syncer := route.NewSyncer(repo, projects, store, nil)
			report, err := syncer.Sync(ctx)
			if err != nil {
				return goerr.Wrap(err, "sync failed")
			}

			w := c.Root().Writer
			if !report.RootChanged {
				fmt.Fprintf(w, "Already up to date\n")
				return nil
			}

			fmt.Fprintf(w, "Changed sections: %s\n", strings.Join(report.ChangedSections, ", "))
			fmt.Fprintf(w, "Changed records:  %d\n", len(report.ChangedRecords))
			fmt.Fprintf(w, "Fetched:          %d\n", report.Fetches)
			return nil
		},
	}
}
