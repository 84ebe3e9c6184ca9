package cli

import (
	"context"
	"fmt"
	"path"

	"github.com/m-mizutani/cryptochat/pkg/adapter"
	"github.com/m-mizutani/cryptochat/pkg/model"
	"github.com/m-mizutani/cryptochat/pkg/usecase/history"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func archiveCommand() *cli.Command {
	var (
		cfg    config
		bucket string
		prefix string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "bucket",
			Aliases:     []string{"b"},
			Usage:       "Cloud Storage bucket to upload the session to",
			Sources:     cli.EnvVars("CRYPTOCHAT_ARCHIVE_BUCKET"),
			Destination: &bucket,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "prefix",
			Usage:       "Object name prefix",
			Sources:     cli.EnvVars("CRYPTOCHAT_ARCHIVE_PREFIX"),
			Destination: &prefix,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "archive",
		Usage:     "Upload the files of a session to Cloud Storage",
		ArgsUsage: "<session-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("session id is required")
			}

			ctx, closeLog, err := cfg.setupLogger(ctx)
			if err != nil {
				return err
			}
			defer closeLog()

			storage, err := adapter.NewStorage(ctx, bucket, prefix)
			if err != nil {
				return goerr.Wrap(err, "failed to create storage")
			}

			uc := history.New(cfg.dataDir, history.WithStorage(storage))
			keys, err := uc.Archive(ctx, model.SessionID(c.Args().First()))
			if err != nil {
				return err
			}

			for _, key := range keys {
				fmt.Fprintf(c.Root().Writer, "gs://%s/%s\n", bucket, objectPath(prefix, key))
			}
			return nil
		},
	}
}

func objectPath(prefix, key string) string {
	return path.Join(prefix, key)
}
