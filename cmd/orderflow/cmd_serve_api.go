package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.temporal.io/sdk/client"

	"github.com/trellislabs/orderflow/internal/api"
	"github.com/trellislabs/orderflow/internal/config"
	"github.com/trellislabs/orderflow/internal/logging"
	"github.com/trellislabs/orderflow/internal/telemetry"
)

type cmdServeAPI struct {
	Temporal config.Temporal `group:"Temporal"`
	API      config.API      `group:"API"`
	Logging  config.Logging  `group:"Logging"`
}

func (c *cmdServeAPI) Execute(_ []string) error {
	logger := logging.Configure(c.Logging)

	shutdownTracing := telemetry.Setup("orderflow-api")
	defer shutdownTracing(context.Background()) //nolint:errcheck

	tc, err := client.Dial(client.Options{
		HostPort:  c.Temporal.Target,
		Namespace: c.Temporal.Namespace,
		Logger:    logging.NewTemporalAdapter(logger),
	})
	if err != nil {
		return err
	}
	defer tc.Close()
	log.WithField("target", c.Temporal.Target).Info("connected to temporal")

	registry := prometheus.NewRegistry()
	server := &http.Server{
		Addr:    c.API.Listen,
		Handler: api.NewServer(api.NewTemporalOrchestrator(tc, c.Temporal.OrdersTaskQueue), registry),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.API.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
	}()

	log.WithField("listen", c.API.Listen).Info("admission api started")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	log.Info("admission api stopped")
	return nil
}
