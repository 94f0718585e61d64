package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/m-mizutani/cony/pkg/usecase/assemble"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func queryCommand() *cli.Command {
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
			Usage:       "Session ID (generated when omitted)",
			Sources:     cli.EnvVars("CONY_SESSION_ID"),
			Destination: &sessionID,
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
		Name:  "query",
		Usage: "Interactive query session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if sessionID == "" {
				sessionID = uuid.New().String()
			}

			uc, err := cfg.newOrchestrator(ctx)
			if err != nil {
				return err
			}

			rl, err := readline.New("> ")
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			w := c.Root().Writer
			fmt.Fprintf(w, "Session %s started. Type 'exit' to quit.\n", sessionID)

			for {
				line, err := rl.Readline()
				if err != nil {
					if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
						break
					}
					return goerr.Wrap(err, "failed to read input")
				}

				query := strings.TrimSpace(line)
				if query == "" {
					continue
				}
				if query == "exit" || query == "quit" {
					break
				}

				sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				sp.Start()
				answer, err := uc.HandleQuery(ctx, assemble.QueryInput{
					SessionID: sessionID,
					UserID:    userID,
					Domain:    domain,
					Query:     query,
				})
				sp.Stop()

				if err != nil {
					fmt.Fprintf(w, "error: %s\n", err)
					continue
				}
				printAnswer(w, answer)
			}

			fmt.Fprintf(w, "\nSession ended\n")
			return nil
		},
	}
}
