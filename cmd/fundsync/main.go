package main

import (
	"context"
	"embed"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jetpo/fundsync/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: config.Load(), stdout: os.Stdout}
	if err := a.cli().RunContext(ctx, os.Args); err != nil {
		slog.Error("fundsync failed", "error", err)
		stop()
		os.Exit(1)
	}
}
