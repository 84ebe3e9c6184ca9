package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/m-mizutani/cryptochat/pkg/usecase/chat"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func askCommand() *cli.Command {
	var cfg config

	var flags []cli.Flag
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, pipelineFlags(&cfg)...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask one question in a new session and print the answer",
		ArgsUsage: "<question>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			question := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(question) == "" {
				return goerr.New(invalidInputMessage)
			}

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

			answer, err := rt.pipeline.Ask(ctx, question)
			if errors.Is(err, chat.ErrEmptyQuery) {
				return goerr.New(invalidInputMessage)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(c.Root().Writer, answer)
			return nil
		},
	}
}
