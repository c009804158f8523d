package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/hexscan/internal/core/observability"
	"github.com/mohammed-shakir/hexscan/internal/core/server"
	"github.com/mohammed-shakir/hexscan/internal/locations/kafkaconsumer"
	"github.com/mohammed-shakir/hexscan/internal/metrics"
	"github.com/mohammed-shakir/hexscan/internal/sink"
	"github.com/mohammed-shakir/hexscan/internal/sink/kafkasink"
	"github.com/mohammed-shakir/hexscan/internal/sink/wshub"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scan HTTP service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Addr = serveAddr
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8090", "HTTP listen address")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	appLog.Info("starting hexscan",
		"addr", cfg.Addr,
		"version", Version,
		"remote", cfg.Remote.URL,
		"steps", cfg.Scan.Steps,
		"step_distance_m", cfg.Scan.StepDistance)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    "hexscan",
		ServiceVersion: Version,
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		SampleRatio:    cfg.Tracing.SampleRatio,
	}, appLog)
	if err != nil {
		return err
	}
	defer observability.ShutdownTracing(context.Background(), shutdownTracing, appLog)

	prov := metrics.Init(metrics.Config{
		Enabled: cfg.MetricsEnabled,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})

	st, err := buildStack(ctx, cfg, appLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			appLog.Warn("closing resources", "err", err)
		}
	}()

	hub := wshub.New(appLog)
	defer hub.Close()
	sinks := sink.Multi{sink.Log(appLog), hub}

	if cfg.Kafka.PublishEnabled {
		pub, err := kafkasink.New(cfg.Kafka.BrokerList(), cfg.Kafka.DiscoveryTopic, 1024, appLog)
		if err != nil {
			return err
		}
		defer func() { _ = pub.Close() }()
		sinks = append(sinks, pub)
		appLog.Info("discovery publishing enabled", "topic", cfg.Kafka.DiscoveryTopic)
	}

	sess := st.newSession(cfg, sinks, appLog)
	defer sess.Close()

	if cfg.Kafka.LocationsEnabled {
		kc := kafkaconsumer.DefaultConfig(cfg.Kafka.BrokerList(), cfg.Kafka.LocationsTopic, cfg.Kafka.GroupID)
		consumer := kafkaconsumer.New(kc, appLog, sess)
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error("location consumer stopped", "err", err)
			}
		}()
		appLog.Info("location consumer enabled", "topic", cfg.Kafka.LocationsTopic, "group", cfg.Kafka.GroupID)
	}

	h := server.NewHandler(server.Deps{
		Logger:  appLog,
		Scanner: sess,
		Planner: st.planner,
		Cells:   st.planCells,
		Metrics: prov.Handler(),
		Live:    hub,
		Checks:  st.checks,
	})
	if err := server.Run(ctx, cfg.Addr, appLog, h); err != nil {
		appLog.Error("server exited with error", "err", err)
		return err
	}
	appLog.Info("server stopped")
	return nil
}
