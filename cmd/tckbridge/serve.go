package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/tck-bridge/api"
	"github.com/wippyai/tck-bridge/invoke"
	"github.com/wippyai/tck-bridge/observability"
	"github.com/wippyai/tck-bridge/worker"
)

const shutdownGrace = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}
	cmd.Flags().String("listen", "", "address to listen on (overrides config)")
	return cmd
}

func serve(ctx context.Context, opts *rootOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := opts.logger
	if !worker.Supported() {
		log.Warn("this build cannot make native calls; every invocation will report library_load_error")
	}

	shutdownTracing, err := observability.InitTracing(ctx, opts.cfg.Trace, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	reg := observability.NewRegistry()
	metrics := observability.NewMetrics(reg)

	iv, err := opts.invoker(invoke.WithObserver(metrics))
	if err != nil {
		return err
	}
	svc, err := opts.service(iv)
	if err != nil {
		return err
	}

	apiOpts := []api.Option{api.WithGatherer(reg), api.WithLogger(log.Named("http"))}
	if opts.cfg.AllowRawInvoke {
		apiOpts = append(apiOpts, api.WithRawInvoke(iv))
	}
	srv := &http.Server{
		Addr:              opts.cfg.Listen,
		Handler:           api.New(svc, apiOpts...).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("library", iv.Library()),
			zap.Duration("timeout", iv.Timeout()),
			zap.Bool("raw_invoke", opts.cfg.AllowRawInvoke),
		)
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
