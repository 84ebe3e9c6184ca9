package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/cryptochat/pkg/usecase/chat"
	"github.com/m-mizutani/cryptochat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const historyFileName = ".chat_history"

func chatCommand() *cli.Command {
	var cfg config

	var flags []cli.Flag
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, pipelineFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Start an interactive chat session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, closeLog, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, rt, err := cfg.newRuntime(ctx, chat.WithTurnHook(logTurn))
			if err != nil {
				return err
			}
			defer rt.Close()

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				HistoryFile:     filepath.Join(cfg.dataDir, historyFileName),
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			w := c.Root().Writer
			fmt.Fprintf(w, "Cryptocurrency chat (session %s)\n", rt.session.ID)
			fmt.Fprintf(w, "Type /history to show this session, 'exit' to quit.\n\n")

		loop:
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						break loop
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					break loop
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				input := strings.TrimSpace(line)
				switch input {
				case "exit", "quit":
					break loop
				case "/history":
					exchanges, err := rt.store.Exchanges(ctx)
					if err != nil {
						return goerr.Wrap(err, "failed to read session history")
					}
					printExchanges(w, exchanges)
					continue
				}

				answer, err := askWithSpinner(ctx, rt.pipeline, line)
				if errors.Is(err, chat.ErrEmptyQuery) {
					fmt.Fprintln(w, invalidInputMessage)
					continue
				}
				if err != nil {
					return err
				}

				fmt.Fprintf(w, "\n%s\n\n", answer)
			}

			fmt.Fprintf(w, "\nChat session completed\n")
			return nil
		},
	}
}

func askWithSpinner(ctx context.Context, pipeline *chat.Pipeline, input string) (string, error) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " Generating response..."
	s.Start()
	defer s.Stop()

	return pipeline.Ask(ctx, input)
}

func logTurn(ctx context.Context, turn *chat.Turn) {
	logging.From(ctx).Debug("turn completed",
		"normalized", turn.Normalized,
		"context", len(turn.Context),
		"coins", turn.Coins,
		"fetched", len(turn.Data),
		"duration", turn.Duration,
		"error", turn.Err,
	)
}
