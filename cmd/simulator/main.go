package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/housewatch/household-watch/internal/client"
	"github.com/housewatch/household-watch/internal/config"
	"github.com/housewatch/household-watch/internal/meter"
	"github.com/housewatch/household-watch/internal/models"
)

const version = "v0.3.0"

// flushBatchSize is how many buffered readings are replayed per batch once
// the connection comes back.
const flushBatchSize = 50

func main() {
	configPath := flag.String("config", "configs/simulator.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Logging)

	logger.Info().
		Str("version", version).
		Str("device_id", cfg.Meter.DeviceID).
		Str("server", cfg.Server.URL).
		Msg("Starting meter simulator")

	buffer := client.NewReadingBuffer(cfg.Buffer.Size, cfg.Buffer.DropOldest)

	conn := client.NewConnection(client.ConnectionConfig{
		URL:                  cfg.Server.URL,
		AuthToken:            cfg.Server.AuthToken,
		DeviceID:             cfg.Meter.DeviceID,
		ConnectTimeout:       cfg.Server.ConnectTimeout,
		ReconnectInterval:    cfg.Server.ReconnectInterval,
		MaxReconnectInterval: cfg.Server.MaxReconnectInterval,
		PingInterval:         cfg.Server.PingInterval,
		PongTimeout:          cfg.Server.PongTimeout,
		BufferSize:           buffer.Size,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go conn.Run(ctx)

	session := meter.NewSession(logger)
	session.Connect()

	var cumulativeEnergy float64
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutting down simulator...")
			session.Disconnect()
			conn.Close()
			logger.Info().Msg("Simulator stopped")
			return
		case sample := <-session.Samples():
			reading := buildReading(cfg.Meter, sample, &cumulativeEnergy)

			if !conn.IsConnected() {
				buffer.Push(reading)
				continue
			}

			// Replay anything buffered during an outage before the
			// fresh reading so the server sees them in order.
			if !buffer.IsEmpty() {
				if err := conn.SendBatch(buffer.PopBatch(flushBatchSize)); err != nil {
					logger.Warn().Err(err).Msg("Failed to flush buffered readings")
				}
			}

			if err := conn.Send(reading); err != nil {
				logger.Warn().Err(err).Msg("Send failed, buffering reading")
				buffer.Push(reading)
			}
		}
	}
}

// buildReading derives a full electrical reading from a power sample. The
// cumulative energy counter advances by the energy drawn over one sample
// period, matching what a pulse-counting meter would report.
func buildReading(cfg config.MeterConfig, sample meter.Sample, cumulativeEnergy *float64) *models.Reading {
	power := sample.Value
	voltage := cfg.NominalVoltage
	current := power * 1000 / (voltage * models.DefaultPowerFactor)
	*cumulativeEnergy += power * meter.TickPeriod.Hours()

	reading := models.NewReading(cfg.DeviceID, voltage, current, power, *cumulativeEnergy)
	reading.Timestamp = sample.Time
	return reading
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.Format == "console" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger
}
