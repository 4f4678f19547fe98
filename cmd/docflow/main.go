// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/docflow"
	"github.com/poiesic/docflow/config"
	"github.com/poiesic/docflow/server"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "docflow",
		Usage: "Asynchronous document extraction pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the API server and pipeline workers",
				Action: serveCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadCfg(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	service, err := docflow.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	service.Start(ctx)

	searcher, err := service.NewSearcher()
	if err != nil {
		service.Close()
		return fmt.Errorf("failed to create searcher: %w", err)
	}

	httpServer := server.NewHttpServer(cfg)
	httpServer.SetupRoute(server.NewTaskHandler(
		service.Producer(),
		service.JobRepository(),
		searcher,
		service.Limiter(),
	))
	httpServer.Start()

	slog.Info("docflow serving", "host", cfg.Host, "port", cfg.Port, "store", cfg.Path)

	<-ctx.Done()
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", "err", err)
	}

	if err := service.Close(); err != nil {
		return fmt.Errorf("pipeline shutdown failed: %w", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
