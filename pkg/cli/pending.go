package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func pendingCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "pending",
		Usage: "List requests awaiting missing information",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			reqs, err := repo.ListPending(ctx)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			if len(reqs) == 0 {
				fmt.Fprintf(w, "No pending requests\n")
				return nil
			}

			for _, req := range reqs {
				fmt.Fprintf(w, "%s [%s] %q (missing: %s, attempts: %d)\n",
					req.ID, req.Status, req.OriginalQuery, req.Missing.Type, req.Attempts)
				if req.Completion != nil {
					fmt.Fprintf(w, "  completed by %q at %s\n",
						req.Completion.Query, req.Completion.CompletedAt.Format("2006-01-02 15:04:05"))
				}
			}
			return nil
		},
	}
}
