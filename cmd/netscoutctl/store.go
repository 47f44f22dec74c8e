package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/netscout/internal/app"
	"github.com/kailas-cloud/netscout/internal/config"
	logpkg "github.com/kailas-cloud/netscout/internal/logger"
	"github.com/kailas-cloud/netscout/internal/usecase/reindex"
)

func connect(c *cli.Context) (*app.Deps, *zap.Logger, error) {
	env := c.String("env")
	var (
		cfg config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load(env)
	}
	if err != nil {
		return nil, nil, err
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	deps, err := app.Connect(c.Context, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return deps, logger, nil
}

func migrateCommand(c *cli.Context) error {
	deps, logger, err := connect(c)
	if err != nil {
		return err
	}
	defer deps.Close()

	if err := deps.Profiles.EnsureSchema(c.Context); err != nil {
		return err
	}
	if deps.Config.Search.VectorBackend == "redis" {
		if err := deps.Vectors.EnsureIndex(c.Context); err != nil {
			return fmt.Errorf("ensure redis index: %w", err)
		}
	}
	logger.Info("schema ready", zap.String("vector_backend", deps.Config.Search.VectorBackend))
	return nil
}

func reindexCommand(c *cli.Context) error {
	deps, logger, err := connect(c)
	if err != nil {
		return err
	}
	defer deps.Close()

	svc := deps.Reindexer(reindex.Options{
		PageSize:    c.Int("page-size"),
		BatchSize:   c.Int("batch-size"),
		Workers:     c.Int("workers"),
		MissingOnly: c.Bool("missing-only"),
	})
	ctx := logpkg.ContextWithLogger(c.Context, logger)
	stats, err := svc.Run(ctx, c.String("owner"))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.App.Writer, "pages=%d profiles=%d embedded=%d failed=%d\n",
		stats.Pages, stats.Profiles, stats.Embedded, stats.Failed)
	if stats.Failed > 0 {
		return cli.Exit("some profiles were not embedded", 1)
	}
	return nil
}
