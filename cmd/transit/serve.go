package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/transit-mvp/pkg/resilience"
)

func (c *cli) serveCmd() *cobra.Command {
	var withNotifier bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the answer pipeline over HTTP.

Routes:
  POST /api/ask                 {question} -> {answer}
  POST /internal/ask            {question} -> {answer, trace, context}
  GET  /bus/status?bus_id=      live bus status
  POST /api/driver/location     {bus_id, lat, lon}
  GET  /internal/notifications  recent proactive deliveries
  GET  /metrics                 Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.load(true); err != nil {
				return err
			}
			return c.serve(cmd.Context(), withNotifier)
		},
	}
	cmd.Flags().BoolVar(&withNotifier, "notifier", true, "Run the proactive notifier in this process")
	return cmd
}

func (c *cli) serve(parent context.Context, withNotifier bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &server{
		answers: a.answers,
		buses:   a.registry,
		metrics: a.metrics,
		logger:  c.logger,
	}
	if a.memory != nil {
		srv.locations = a.memory
	}

	notifierDone := make(chan error, 1)
	if withNotifier {
		n, err := a.notifier()
		if err != nil {
			return err
		}
		srv.recent = n.Recent
		go func() { notifierDone <- n.Run(ctx) }()
	} else {
		close(notifierDone)
		if c.cfg.Notify.ChannelBackend == "nats" {
			feed, err := a.notificationFeed()
			if err != nil {
				return err
			}
			srv.recent = feed.Recent
		}
	}

	limit := resilience.NewLimiter(resilience.PerMinute(c.cfg.HTTP.RatePerMinute))
	httpSrv := &http.Server{
		Addr:         c.cfg.HTTP.Addr,
		Handler:      srv.handler(c.cfg.HTTP.CORSOrigin, limit),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("api server starting", "addr", c.cfg.HTTP.Addr, "notifier", withNotifier)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			stop()
			<-notifierDone
			return err
		}
	case <-ctx.Done():
		c.logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = httpSrv.Shutdown(shutCtx)
	stop()
	<-notifierDone
	return err
}
