package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/housewatch/household-watch/internal/cache"
	"github.com/housewatch/household-watch/internal/config"
	"github.com/housewatch/household-watch/internal/ingest"
	"github.com/housewatch/household-watch/internal/meter"
	"github.com/housewatch/household-watch/internal/models"
	"github.com/housewatch/household-watch/internal/server"
	"github.com/housewatch/household-watch/internal/storage"
)

const version = "v0.3.0"

func main() {
	configPath := flag.String("config", "configs/server.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Logging)

	logger.Info().
		Str("version", version).
		Int("port", cfg.Server.Port).
		Msg("Starting Household Watch Server")

	// Ensure data directory exists
	dataDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	store, err := storage.NewSQLiteStore(cfg.Database.Path, logger)
	if err != nil {
		log.Fatalf("Failed to create SQLite store: %v", err)
	}
	logger.Info().Str("path", cfg.Database.Path).Msg("SQLite store created")

	dbWriter := storage.NewDBWriter(store, storage.DBWriterConfig{
		BatchSize:   cfg.Database.BatchSize,
		FlushPeriod: cfg.Database.FlushPeriod,
		ChannelSize: cfg.Database.ChannelSize,
	}, logger)

	retentionCleaner := storage.NewRetentionCleaner(store, storage.RetentionCleanerConfig{
		RetentionDays: cfg.Database.RetentionDays,
		CleanupPeriod: cfg.Database.CleanupPeriod,
	}, logger)
	logger.Info().
		Int("retention_days", cfg.Database.RetentionDays).
		Dur("cleanup_period", cfg.Database.CleanupPeriod).
		Msg("RetentionCleaner started")

	latest := server.NewLatestCache()
	ingestor := server.NewIngestor(dbWriter, latest, logger)
	session := meter.NewSession(logger)

	apiHandler := server.NewAPIHandler(store, ingestor, latest, session, logger)
	apiHandler.SetVersion(version)

	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedisClient(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB)
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Cache.Addr).Msg("Redis unavailable, stats cache disabled")
		} else {
			apiHandler.SetStatsCache(redisClient, cfg.Cache.StatsTTL)
			logger.Info().Str("addr", cfg.Cache.Addr).Dur("ttl", cfg.Cache.StatsTTL).Msg("Redis stats cache enabled")
			defer redisClient.Close()
		}
	}

	var kafkaConsumer *ingest.KafkaConsumer
	kafkaCtx, kafkaCancel := context.WithCancel(context.Background())
	defer kafkaCancel()
	if cfg.Kafka.Enabled {
		kafkaConsumer, err = ingest.NewKafkaConsumer(cfg.Kafka, func(batch []models.ReadingPayload) {
			ingestor.IngestBatch(batch, server.SourceKafka)
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Kafka unavailable, ingest bridge disabled")
		} else {
			go func() {
				if err := kafkaConsumer.Consume(kafkaCtx); err != nil && err != context.Canceled {
					logger.Error().Err(err).Msg("Kafka consumer stopped")
				}
			}()
			logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka ingest bridge started")
		}
	}

	streamHandler := server.NewStreamHandler(
		cfg.Server.AuthToken,
		ingestor,
		logger,
		cfg.Server.AllowedOrigins...,
	)
	apiHandler.SetMeterRegistry(streamHandler)

	router := mux.NewRouter()

	// Public endpoints
	router.HandleFunc("/health", apiHandler.HandleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/sensor-stream", streamHandler.ServeHTTP)

	// Device ingestion accepts readings without auth so a misconfigured
	// meter never loses data.
	api := router.PathPrefix("/api").Subrouter()
	api.Use(server.MetricsMiddleware())
	api.HandleFunc("/sensor/data", apiHandler.HandleSensorData).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(server.AuthMiddleware(cfg.Server.AuthToken, logger))
	protected.HandleFunc("/power/latest", apiHandler.HandleLatest).Methods(http.MethodGet)
	protected.HandleFunc("/energy/stats", apiHandler.HandleEnergyStats).Methods(http.MethodGet)
	protected.HandleFunc("/readings/history", apiHandler.HandleHistory).Methods(http.MethodGet)
	protected.HandleFunc("/meter/connect", apiHandler.HandleMeterConnect).Methods(http.MethodPost)
	protected.HandleFunc("/meter/disconnect", apiHandler.HandleMeterDisconnect).Methods(http.MethodPost)
	protected.HandleFunc("/meter/status", apiHandler.HandleMeterStatus).Methods(http.MethodGet)
	protected.HandleFunc("/meters", apiHandler.HandleActiveMeters).Methods(http.MethodGet)
	protected.HandleFunc("/storage/stats", apiHandler.HandleStorageStats).Methods(http.MethodGet)

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins(allowedOriginsOrWildcard(cfg.Server.AllowedOrigins)),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(router)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      corsHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down server...")

	session.Disconnect()
	logger.Info().Msg("Meter session stopped")

	if kafkaConsumer != nil {
		kafkaCancel()
		kafkaConsumer.Close()
		logger.Info().Msg("Kafka consumer stopped")
	}

	dbWriter.Stop()
	logger.Info().Msg("DBWriter stopped")

	retentionCleaner.Stop()
	logger.Info().Msg("RetentionCleaner stopped")

	store.Close()
	logger.Info().Msg("SQLiteStore closed")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}

	logger.Info().Msg("Server stopped")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.Format == "console" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger
}

func allowedOriginsOrWildcard(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
