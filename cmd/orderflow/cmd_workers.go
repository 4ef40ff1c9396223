package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.temporal.io/sdk/client"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/trellislabs/orderflow/internal/activities"
	"github.com/trellislabs/orderflow/internal/config"
	"github.com/trellislabs/orderflow/internal/flaky"
	"github.com/trellislabs/orderflow/internal/logging"
	"github.com/trellislabs/orderflow/internal/metrics"
	"github.com/trellislabs/orderflow/internal/store"
	"github.com/trellislabs/orderflow/internal/telemetry"
	"github.com/trellislabs/orderflow/internal/worker"
)

// workerHostConfig is the configuration shared by both worker commands.
type workerHostConfig struct {
	Temporal config.Temporal `group:"Temporal"`
	Database config.Database `group:"Database"`
	Worker   config.Worker   `group:"Worker"`
	Logging  config.Logging  `group:"Logging"`
	Flaky    config.Flaky    `group:"Failure injection"`
}

type cmdWorkerOrders struct {
	workerHostConfig
}

func (c *cmdWorkerOrders) Execute(_ []string) error {
	return c.run("orderflow-worker-orders", worker.NewOrders)
}

type cmdWorkerShipping struct {
	workerHostConfig
}

func (c *cmdWorkerShipping) Execute(_ []string) error {
	return c.run("orderflow-worker-shipping", worker.NewShipping)
}

type workerBuilder func(client.Client, *activities.Activities, config.Temporal, config.Worker) sdkworker.Worker

func (c *workerHostConfig) run(service string, build workerBuilder) error {
	logger := logging.Configure(c.Logging)

	shutdownTracing := telemetry.Setup(service)
	defer shutdownTracing(context.Background()) //nolint:errcheck

	gw, err := store.OpenMySQL(c.Database)
	if err != nil {
		return err
	}
	defer gw.Close()
	if err := gw.Ping(context.Background()); err != nil {
		return err
	}

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
	if c.Worker.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(c.Worker.MetricsListen, mux); err != nil {
				log.WithError(err).Warn("metrics listener stopped")
			}
		}()
	}

	acts := activities.New(gw, flaky.New(c.Flaky.Enabled), metrics.NewActivityMetrics(registry))
	w := build(tc, acts, c.Temporal, c.Worker)

	log.WithFields(log.Fields{
		"service":        service,
		"flaky_enabled":  c.Flaky.Enabled,
		"max_activities": c.Worker.MaxConcurrentActivities,
	}).Info("worker started")
	return w.Run(sdkworker.InterruptCh())
}
