package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/cony/pkg/usecase/pending"
	"github.com/m-mizutani/cony/pkg/usecase/session"
	"github.com/urfave/cli/v3"
)

func cleanupCommand() *cli.Command {
	var (
		cfg    config
		maxAge time.Duration
	)

	flags := []cli.Flag{
		&cli.DurationFlag{
			Name:        "max-age",
			Usage:       "Age after which completed requests and stale conversations are removed",
			Value:       24 * time.Hour,
			Sources:     cli.EnvVars("CONY_CLEANUP_MAX_AGE"),
			Destination: &maxAge,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "cleanup",
		Usage: "Remove expired conversations and aged-out completed requests",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			sessions := session.NewStore(repo)
			expired, err := sessions.CleanupExpired(ctx)
			if err != nil {
				return err
			}

			pendings := pending.NewManager(repo)
			removed, err := pendings.Cleanup(ctx, maxAge)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Removed %d expired conversation(s), %d aged record(s)\n", expired, removed)
			return nil
		},
	}
}
