package cli

import (
	"context"
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

// Version is overwritten at build time
var Version = "dev"

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	// .env is optional, variables already set in the environment win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &Error{
			Code:    1,
			Message: "failed to load .env: " + err.Error(),
		}
	}

	cmd := &cli.Command{
		Name:    "cryptochat",
		Usage:   "Conversational assistant for cryptocurrency market data",
		Version: Version,
		Commands: []*cli.Command{
			chatCommand(),
			askCommand(),
			mcpCommand(),
			historyCommand(),
			archiveCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
