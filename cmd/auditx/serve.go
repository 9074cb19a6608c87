package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"auditx/internal/httpapi"
	"auditx/internal/listener"
	"auditx/internal/rag"
)

const shutdownTimeout = 10 * time.Second

func newListenCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Run the sync and intake loop until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			env, err := c.open()
			if err != nil {
				return err
			}
			return env.Listener(ctx).Run(ctx)
		},
	}
}

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	var listen bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API, optionally with the intake loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			env, err := c.open()
			if err != nil {
				return err
			}
			store, err := env.Dashboard()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = env.Config.HTTPAddr
			}

			deps := httpapi.Deps{
				DB:        env.DB,
				Store:     store,
				Syncer:    env.SyncService(),
				Asker:     env.RAG(ctx),
				RAGStatus: rag.CheckConfiguration(env.Config),
				Gatherer:  env.Registry,
				Logger:    env.Logger,
				Metrics:   env.Metrics,
			}
			if u, err := env.Uploader(ctx); err == nil {
				deps.Uploader = u
			} else {
				env.Logger.Warn("evidence uploads disabled", zap.Error(err))
			}
			srv := httpapi.New(deps)
			if err := srv.LoadAudits(); err != nil {
				return err
			}
			if err := srv.LoadSubmissions(); err != nil {
				return err
			}

			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           srv.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				env.Logger.Info("http listening", zap.String("addr", addr))
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return httpSrv.Shutdown(shutdownCtx)
			})
			if listen {
				l := env.Listener(gctx)
				l.OnCycle(func(listener.CycleResult) {
					if err := srv.LoadAudits(); err != nil {
						env.Logger.Warn("dashboard reload failed", zap.Error(err))
					}
				})
				g.Go(func() error { return l.Run(gctx) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to HTTP_ADDR)")
	cmd.Flags().BoolVar(&listen, "listen", false, "also run the sync and intake loop")
	return cmd
}
