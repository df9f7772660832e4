// Command swarmd runs the coordination backend: the JSON-RPC/WebSocket
// surface, the Redis-backed store, the swarm sampling coordinator, and
// (optionally) the relational sink and NATS JetStream fan-out. Grounded
// on the teacher's cmd/bd daemon-mode bootstrap and cmd/agent-controller's
// signal-driven shutdown shape, built on github.com/spf13/cobra the way
// the teacher's cmd/bd/main.go is.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/coordinator/swarmd/internal/config"
	"github.com/coordinator/swarmd/internal/eventbus"
	"github.com/coordinator/swarmd/internal/handlers"
	"github.com/coordinator/swarmd/internal/hooks"
	"github.com/coordinator/swarmd/internal/instances"
	"github.com/coordinator/swarmd/internal/logging"
	"github.com/coordinator/swarmd/internal/queue"
	"github.com/coordinator/swarmd/internal/registry"
	"github.com/coordinator/swarmd/internal/rpcsurface"
	"github.com/coordinator/swarmd/internal/sampling"
	"github.com/coordinator/swarmd/internal/sink"
	"github.com/coordinator/swarmd/internal/store"
	"github.com/coordinator/swarmd/internal/swarm"
	"github.com/coordinator/swarmd/pkg/telemetry"
)

var configFile string

func main() {
	root := &cobra.Command{
		Use:   "swarmd",
		Short: "Coordination backend for a swarm of specialist worker processes",
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a TOML config file (overlays SWARMD_* env vars)")
	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the daemon: RPC surface, store, coordinator, sink, event bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logging.New(cfg.LogLevel, os.Stdout)
	log.Info().Str("http_addr", cfg.HTTPAddr).Msg("swarmd: starting")

	shutdownTelemetry, err := setupTelemetry()
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer shutdownTelemetry()

	s, err := store.New(store.Options{Addr: cfg.StoreAddr, Password: cfg.StorePassword, DB: cfg.StoreDB})
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}

	var sinkStore *sink.Sink
	if cfg.SinkDSN != "" {
		sinkStore, err = sink.New(ctx, cfg.SinkDSN)
		if err != nil {
			return fmt.Errorf("connect sink: %w", err)
		}
		defer sinkStore.Close()
		s.SetSink(sinkStore)
		log.Info().Msg("swarmd: relational archival sink enabled")
	}

	sampler, err := sampling.New(sampling.Options{
		APIKey:     cfg.SamplingAPIKey,
		MaxRetries: cfg.SamplingMaxRetries,
	})
	if err != nil {
		return fmt.Errorf("build sampling client: %w", err)
	}

	bus := eventbus.New(s)

	var embeddedNATS *eventbus.Embedded
	if cfg.NATSEnabled {
		embeddedNATS, err = eventbus.StartEmbedded(eventbus.EmbeddedConfig{Port: cfg.NATSPort, StoreDir: cfg.NATSStoreDir})
		if err != nil {
			return fmt.Errorf("start embedded NATS: %w", err)
		}
		defer embeddedNATS.Shutdown()
		bus.SetJetStream(embeddedNATS.JetStream())
		log.Info().Int("port", cfg.NATSPort).Msg("swarmd: embedded NATS JetStream enabled")
	}

	im := instances.New(s, cfg.HeartbeatTimeout)
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer cancelSweep()
	go im.RunSweeper(sweepCtx, cfg.SweepInterval, func(ids []string) {
		if len(ids) > 0 {
			log.Warn().Strs("instance_ids", ids).Msg("swarmd: swept stale instances")
		}
	})

	q := queue.New(s)
	coordinator := swarm.New(s, im, bus, sampler, cfg.RequestDeadline)

	auditor := hooks.NewAuditor(s)
	validator := hooks.NewValidator(hooks.NewDefaultRegistry(), time.Minute, auditor, float64(cfg.DefaultRateLimit), cfg.DefaultRateBurst)

	reg := registry.New()
	if sinkStore != nil {
		reg.OnPersist(func(ctx context.Context, method string, _ json.RawMessage, result any) {
			if err := sinkStore.PersistMethodResult(ctx, method, result); err != nil {
				log.Warn().Err(err).Str("method", method).Msg("swarmd: sink persist failed")
			}
		})
	}

	if err := handlers.Register(reg, handlers.Deps{
		Store:      s,
		Instances:  im,
		Queue:      q,
		Swarm:      coordinator,
		Hooks:      validator,
		Sink:       sinkStore,
		Bus:        bus,
		Log:        log,
		FlushToken: cfg.FlushToken,
	}); err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}

	dispatcher := rpcsurface.NewDispatcher(reg)
	ws := rpcsurface.NewWSServer(dispatcher, bus)
	httpServer := rpcsurface.NewHTTPServer(dispatcher, ws, cfg.HTTPAddr, 0, cfg.RequestDeadline)

	serveCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Start(serveCtx) }()

	select {
	case <-serveCtx.Done():
		log.Info().Msg("swarmd: shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	return nil
}

func setupTelemetry() (func(), error) {
	traceExp, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp))

	metricExp, err := stdoutmetric.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(30*time.Second))))

	telemetry.SetProviders(mp, tp)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
		_ = mp.Shutdown(shutdownCtx)
	}, nil
}
