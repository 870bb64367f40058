// hostwatch is a host telemetry agent. It samples local sensors on their scan
// rates, publishes the readings to an MQTT broker and, when the historian is
// enabled, persists the measurements it receives from the broker.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/illmade-knight/go-hostwatch/pkg/config"
	"github.com/illmade-knight/go-hostwatch/pkg/eventbus"
	"github.com/illmade-knight/go-hostwatch/pkg/metrics"
	"github.com/illmade-knight/go-hostwatch/pkg/microservice"
	"github.com/illmade-knight/go-hostwatch/pkg/mqtttransport"
	"github.com/illmade-knight/go-hostwatch/pkg/scheduler"
	"github.com/illmade-knight/go-hostwatch/pkg/sensors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("hostwatch", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load("", flags)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := eventbus.New(logger)
	m := metrics.New()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := m.Register(registry); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	supervisor, err := mqtttransport.NewSupervisor(cfg.MQTTClientConfig(), bus, logger,
		mqtttransport.WithMetrics(m),
		mqtttransport.WithHostname(cfg.Hostname),
	)
	if err != nil {
		return fmt.Errorf("failed to create MQTT supervisor: %w", err)
	}

	sched := scheduler.New(supervisor, logger,
		scheduler.WithIdleDelay(cfg.Scheduler.IdleDelay),
		scheduler.WithMetrics(m),
	)
	producers, err := sensors.New(bus, sched, cfg.Hostname, logger)
	if err != nil {
		return err
	}
	if _, err := producers.Register(cfg.Sensors); err != nil {
		return err
	}

	var hist *historianStack
	if cfg.Historian.Enable {
		hist, err = newHistorianStack(ctx, cfg, bus, m, logger)
		if err != nil {
			return err
		}
		defer hist.Close()
	}

	serverOpts := []microservice.Option{
		microservice.WithReadiness(supervisor),
		microservice.WithMetrics(registry),
	}
	if hist != nil && hist.latest != nil {
		serverOpts = append(serverOpts, microservice.WithLatest(hist.latest))
	}
	server := microservice.NewBaseServer(logger, cfg.HTTPPort, serverOpts...)
	if err := server.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()
	if hist != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hist.drain.Run(ctx)
		}()
	}

	if err := supervisor.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("Initial connect request failed.")
	}
	logger.Info().Str("hostname", cfg.Hostname).Str("broker", cfg.MQTT.BrokerURL).Msg("hostwatch started.")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("MQTT supervisor shutdown failed.")
	}
	wg.Wait()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed.")
	}
	logger.Info().Msg("hostwatch stopped.")
	return nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogFormat == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
