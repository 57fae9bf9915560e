package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ccgateway/config"
	"ccgateway/gateway"
	"ccgateway/internal/dashboard"
	"ccgateway/internal/feed"
	"ccgateway/internal/metrics"
	"ccgateway/internal/retry"
	"ccgateway/logger"
	"ccgateway/models"
	"ccgateway/reader/binance"
	"ccgateway/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Gateway.Name,
		"version": cfg.Gateway.Version,
	}).Info("starting ccgateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Configure(cfg.Metrics)
	if cfg.Metrics.Enabled {
		metrics.Init(cfg.Metrics.Listen)
	}
	if cfg.Metrics.CloudWatch.Enabled {
		cw := cfg.Metrics.CloudWatch
		logger.InitCloudWatch(ctx, logger.CloudWatchOptions{
			Region:          cw.Region,
			Namespace:       cw.Namespace,
			Dashboard:       cw.Dashboard,
			AccessKeyID:     cw.AccessKeyID,
			SecretAccessKey: cw.SecretAccessKey,
		})
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, cfg.Metrics.ReportInterval)
	}

	rest := binance.NewREST(cfg.Binance)
	if err := rest.Sync(ctx); err != nil {
		log.WithError(err).Warn("clock sync failed; signing with local time")
	}

	gw, err := gateway.New(ctx, rest, gateway.Options{
		Retry: retry.Policy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			Multiplier:   cfg.Retry.Multiplier,
		},
		Observer:  metrics.ObserveRetry,
		Depth:     cfg.Gateway.OrderbookDepth,
		BatchSize: cfg.Gateway.BatchSize,
	})
	if err != nil {
		log.WithError(err).Error("failed to initialise gateway")
		os.Exit(1)
	}

	if cfg.Binance.APIKey != "" {
		accounts, err := gw.QueryAccounts(ctx, models.AllSegments()...)
		if err != nil {
			log.WithError(err).Warn("account query failed")
		} else {
			log.WithFields(logger.Fields{"wallets": len(accounts)}).Info("accounts loaded")
		}
	}

	status, err := dashboard.NewServer(cfg.Dashboard, log)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard")
		os.Exit(1)
	}
	go func() {
		if err := status.Run(ctx); err != nil {
			log.WithError(err).Warn("dashboard stopped")
		}
	}()

	var candleWriter *writer.CandleWriter
	if cfg.Kafka.Enabled {
		if err := writer.EnsureTopic(ctx, cfg.Kafka); err != nil {
			log.WithError(err).Warn("could not ensure kafka topic")
		}
		candleWriter, err = writer.NewCandleWriter(cfg.Kafka, cfg.Metrics.ReportInterval)
		if err != nil {
			log.WithError(err).Error("failed to create candle writer")
			os.Exit(1)
		}
		if err := candleWriter.Start(ctx); err != nil {
			log.WithError(err).Error("candle writer failed to start")
			os.Exit(1)
		}
		status.AddProbe("candle_writer", func() (string, bool) {
			st := candleWriter.Stats()
			return fmt.Sprintf("%d/%d buffered", st.BufferLen, st.BufferCap), st.BufferLen < st.BufferCap
		})
	} else {
		log.WithComponent("main").Info("kafka disabled; closed candles are only logged")
	}

	var listener *feed.Listener
	if cfg.Feed.Enabled {
		listener, err = feed.New(binance.NewStream(cfg.Feed), feed.Config{
			Endpoint: cfg.Feed.Endpoint,
			Channels: cfg.Feed.Channels,
			Segment:  models.Segment(cfg.Feed.Segment),
		}, func(ev models.CandleEvent) {
			status.ObserveCandle(ev)
			if candleWriter != nil {
				candleWriter.Enqueue(ev)
				return
			}
			log.WithComponent("feed").WithFields(logger.Fields{
				"symbol":    ev.Symbol,
				"timeframe": ev.Timeframe,
				"open_time": ev.Candle.OpenTime,
				"close":     ev.Candle.Close.String(),
			}).Info("closed candle")
		})
		if err != nil {
			log.WithError(err).Error("failed to create feed listener")
			os.Exit(1)
		}
		if err := listener.Start(ctx); err != nil {
			log.WithError(err).Error("feed listener failed to start")
			os.Exit(1)
		}
		status.AddProbe("feed", func() (string, bool) {
			st := listener.State()
			return st.String(), st == feed.Subscribed
		})
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	if listener != nil {
		log.Info("stopping feed listener")
		listener.Stop()
	}
	if candleWriter != nil {
		log.Info("stopping candle writer")
		if err := candleWriter.Stop(); err != nil {
			log.WithError(err).Warn("candle writer close failed")
		}
	}
	cancel()

	time.Sleep(100 * time.Millisecond)
	log.Info("shutdown complete")
}
