package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"auditx/internal/bootstrap"
	"auditx/internal/config"
)

func main() {
	cfg, err := config.Load()
	must(err)

	env, err := bootstrap.Open(cfg, false)
	must(err)
	defer env.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	env.Logger.Info("listener starting",
		zap.String("provider", cfg.IntakeProvider),
		zap.Int("intervalSec", cfg.IntakeIntervalSec))
	must(env.Listener(ctx).Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
