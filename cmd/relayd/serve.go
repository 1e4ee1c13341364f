package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the outbox relay, the inbox relay and the bus consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(ctx, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address of the Prometheus endpoint, empty to disable")
	return cmd
}

func (a *app) serve(ctx context.Context, metricsAddr string) error {
	outboxRelay := a.outboxRelay()
	inboxRelay := a.inboxRelay()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := outboxRelay.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return outboxRelay.Shutdown()
	})
	g.Go(func() error {
		if err := inboxRelay.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return inboxRelay.Shutdown()
	})
	g.Go(func() error {
		err := a.consumer.Consume(ctx, a.pipeline.Deliver)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	a.logger.Info("relayd started",
		zap.String("broker", a.cfg.Broker.Kind),
		zap.String("metrics_addr", metricsAddr),
	)
	err := g.Wait()
	a.logger.Info("relayd stopped", zap.Error(err))
	return err
}
