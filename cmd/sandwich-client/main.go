package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sandwich "github.com/WelcomerTeam/Sandwich-Client"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configurationPath := flag.String("config", os.Getenv("SANDWICH_CONFIG"), "Path of the yaml configuration file")
	loggingLevel := flag.String("level", os.Getenv("SANDWICH_LOGGING_LEVEL"), "Logging level, overrides the configuration")

	flag.Parse()

	// A missing .env file is not an error.
	_ = godotenv.Load()

	if *configurationPath == "" {
		*configurationPath = "sandwich.yaml"
	}

	configuration, err := sandwich.LoadConfiguration(*configurationPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if token := os.Getenv("SANDWICH_TOKEN"); token != "" {
		configuration.Token = token
	}

	if *loggingLevel != "" {
		configuration.Logging.Level = *loggingLevel
	}

	logger, err := newLogger(configuration)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if configuration.Prometheus.Address != "" {
		go servePrometheus(logger, configuration.Prometheus.Address)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := sandwich.NewChannelEventProvider(sandwich.MessageChannelBuffer)
	defer events.Close()

	go logEvents(ctx, logger, events)

	client, err := sandwich.NewClient(ctx, configuration, events, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create client")
	}

	err = client.Connect(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect")
	}

	go func() {
		if err := client.WaitForReady(ctx); err != nil {
			logger.Error().Err(err).Msg("Shards did not become ready")

			return
		}

		logger.Info().Msg("All shards are ready")
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := client.Disconnect(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Failed to disconnect cleanly")
	}
}

func newLogger(configuration *sandwich.Configuration) (zerolog.Logger, error) {
	level := zerolog.InfoLevel

	if configuration.Logging.Level != "" {
		parsed, err := zerolog.ParseLevel(configuration.Logging.Level)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to parse logging level: %w", err)
		}

		level = parsed
	}

	writers := []io.Writer{
		zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.Stamp,
		},
	}

	if configuration.Logging.FileLoggingEnabled {
		writers = append(writers, &lumberjack.Logger{
			Filename:   configuration.Logging.Filename,
			MaxSize:    configuration.Logging.MaxSize,
			MaxBackups: configuration.Logging.MaxBackups,
			MaxAge:     configuration.Logging.MaxAge,
			Compress:   configuration.Logging.Compress,
		})
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().
		Logger(), nil
}

func servePrometheus(logger zerolog.Logger, address string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	logger.Info().Str("host", address).Msg("Starting Prometheus HTTP server")

	if err := server.ListenAndServe(); err != nil {
		logger.Error().Err(err).Msg("Prometheus HTTP server stopped")
	}
}

func logEvents(ctx context.Context, logger zerolog.Logger, events *sandwich.ChannelEventProvider) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events.Events():
			switch event.Type {
			case sandwich.EventDispatch:
				logger.Debug().
					Int32("shardId", event.ShardID).
					Str("type", event.Name).
					Int64("sequence", event.Sequence).
					Bool("replayed", event.Replayed).
					Msg("Received dispatch")
			case sandwich.EventShardStatus:
				logger.Info().Int32("shardId", event.ShardID).Str("status", event.Status.String()).Msg("Shard status changed")
			case sandwich.EventShardError:
				logger.Error().Int32("shardId", event.ShardID).Err(event.Err).Msg("Shard stopped")
			case sandwich.EventShardDisconnect:
				logger.Warn().Int32("shardId", event.ShardID).Err(event.Err).Msg("Shard disconnected")
			default:
				logger.Debug().Int32("shardId", event.ShardID).Str("event", event.Type.String()).Msg("Received event")
			}
		}
	}
}
