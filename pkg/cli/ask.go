package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/m-mizutani/cony/pkg/model"
	"github.com/m-mizutani/cony/pkg/usecase/assemble"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func askCommand() *cli.Command {
	var (
		cfg       config
		sessionID string
		userID    string
		domain    string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "session-id",
			Aliases:     []string{"s"},
			Usage:       "Session ID for conversation continuity",
			Sources:     cli.EnvVars("CONY_SESSION_ID"),
			Destination: &sessionID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "user-id",
			Aliases:     []string{"u"},
			Usage:       "User ID",
			Sources:     cli.EnvVars("CONY_USER_ID"),
			Destination: &userID,
		},
		&cli.StringFlag{
			Name:        "domain",
			Usage:       "Knowledge domain",
			Value:       "default",
			Sources:     cli.EnvVars("CONY_DOMAIN"),
			Destination: &domain,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer a single query",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.Join(c.Args().Slice(), " ")
			if query == "" {
				return goerr.New("query argument is required")
			}

			uc, err := cfg.newOrchestrator(ctx)
			if err != nil {
				return err
			}

			answer, err := uc.HandleQuery(ctx, assemble.QueryInput{
				SessionID: sessionID,
				UserID:    userID,
				Domain:    domain,
				Query:     query,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to handle query")
			}

			printAnswer(c.Root().Writer, answer)
			return nil
		},
	}
}

func printAnswer(w io.Writer, answer *model.Answer) {
	fmt.Fprintf(w, "%s\n", answer.Text)

	if len(answer.Insights) > 0 {
		fmt.Fprintf(w, "\nInsights:\n")
		for _, insight := range answer.Insights {
			fmt.Fprintf(w, "  [%s] %s\n", insight.Kind, insight.Text)
		}
	}

	if len(answer.Recommends) > 0 {
		fmt.Fprintf(w, "\nSuggestions:\n")
		for _, r := range answer.Recommends {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}

	fmt.Fprintf(w, "\n(intelligence: %s, confidence: %.2f", answer.Intelligence, answer.Confidence)
	if answer.UsedExternal {
		fmt.Fprintf(w, ", used external system")
	}
	fmt.Fprintf(w, ")\n")

	for _, warn := range answer.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
}
