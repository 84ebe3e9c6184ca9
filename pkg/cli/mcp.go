package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/m-mizutani/cryptochat/pkg/service/mcp"
	"github.com/m-mizutani/cryptochat/pkg/usecase/chat"
	"github.com/m-mizutani/cryptochat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var (
		cfg  config
		addr string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Serve streamable HTTP on this address instead of stdio",
			Sources:     cli.EnvVars("CRYPTOCHAT_MCP_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, pipelineFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the chat session as an MCP tool",
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

			server := mcp.NewServer(rt.pipeline, Version, mcp.WithLogger(logging.From(ctx)))
			if addr == "" {
				return server.RunStdio(ctx)
			}

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = httpServer.Shutdown(shutdownCtx)
			}()

			logging.From(ctx).Info("serving MCP over HTTP", "addr", addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return goerr.Wrap(err, "failed to serve MCP over HTTP", goerr.V("addr", addr))
			}
			return nil
		},
	}
}
