package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/e7canasta/shvideo/internal/config"
	"github.com/e7canasta/shvideo/internal/metrics"
	"github.com/e7canasta/shvideo/internal/notify"
)

// commonFlags are shared by every command.
type commonFlags struct {
	configPath string
	debug      bool
	metrics    string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Path to YAML configuration file (optional)")
	fs.BoolVar(&c.debug, "debug", false, "Enable debug logging")
	fs.StringVar(&c.metrics, "metrics", "", "Serve Prometheus metrics on this address (e.g. :9090)")
}

// stack is the ambient runtime shared by both commands.
type stack struct {
	cfg      *config.Config
	notifier notify.Notifier
	registry *prometheus.Registry
	metrics  *metrics.Collector
	mqtt     *notify.MQTTNotifier
	server   *http.Server
}

// setup loads configuration, installs the logger and builds notifier and
// metrics. Flags override the file.
func setup(ctx context.Context, c commonFlags) (*stack, error) {
	cfg := config.Default()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if c.debug {
		cfg.LogLevel = "debug"
	}
	if c.metrics != "" {
		cfg.Metrics.Listen = c.metrics
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	})))

	s := &stack{cfg: cfg, registry: prometheus.NewRegistry()}
	s.registry.MustRegister(collectors.NewGoCollector())
	s.metrics = metrics.New(s.registry)

	var sinks notify.Multi
	if cfg.Notify.Log {
		sinks = append(sinks, notify.Log{})
	}
	if cfg.Notify.MQTT.Enabled {
		s.mqtt = notify.NewMQTTNotifier(notify.MQTTConfig{
			Broker:      cfg.Notify.MQTT.Broker,
			ClientID:    cfg.InstanceID,
			TopicPrefix: cfg.Notify.MQTT.TopicPrefix,
			QoS:         cfg.Notify.MQTT.QoS,
			Encoding:    notify.Encoding(cfg.Notify.MQTT.Encoding),
		})
		if err := s.mqtt.Connect(ctx); err != nil {
			return nil, err
		}
		sinks = append(sinks, s.mqtt)
	}
	switch len(sinks) {
	case 0:
		s.notifier = notify.Nop{}
	case 1:
		s.notifier = sinks[0]
	default:
		s.notifier = sinks
	}

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
		s.server = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
	}
	return s, nil
}

// serve runs the metrics endpoint until ctx ends.
func (s *stack) serve(ctx context.Context, g *errgroup.Group) {
	if s.server == nil {
		return
	}
	g.Go(func() error {
		slog.Info("metrics server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	})
}

func (s *stack) shutdownTimeout() time.Duration {
	return time.Duration(s.cfg.ShutdownTimeoutS) * time.Second
}

func (s *stack) close() {
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
