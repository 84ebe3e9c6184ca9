package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/cryptochat/pkg/model"
	"github.com/m-mizutani/cryptochat/pkg/usecase/history"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect past sessions",
		Commands: []*cli.Command{
			historyListCommand(),
			historyShowCommand(),
		},
	}
}

func historyListCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "list",
		Usage: "List sessions in the data directory",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, closeLog, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}
			defer closeLog()

			summaries, err := history.New(cfg.dataDir).List(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to list sessions")
			}

			if len(summaries) == 0 {
				fmt.Fprintf(c.Root().Writer, "No sessions found in %s\n", cfg.dataDir)
				return nil
			}

			for _, s := range summaries {
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%d\n",
					s.ID,
					s.CreatedAt.Format("2006-01-02 15:04:05"),
					s.Exchanges,
				)
			}
			return nil
		},
	}
}

func historyShowCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "show",
		Usage:     "Show every exchange of a session",
		ArgsUsage: "<session-id>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("session id is required")
			}

			ctx, closeLog, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}
			defer closeLog()

			exchanges, err := history.New(cfg.dataDir).Show(ctx, model.SessionID(c.Args().First()))
			if err != nil {
				return goerr.Wrap(err, "failed to show session")
			}

			printExchanges(c.Root().Writer, exchanges)
			return nil
		},
	}
}
