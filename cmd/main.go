package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"monitoring-service/internal/alerting"
	"monitoring-service/internal/api"
	"monitoring-service/internal/clock"
	"monitoring-service/internal/config"
	"monitoring-service/internal/db"
	"monitoring-service/internal/history"
	"monitoring-service/internal/kafka"
	"monitoring-service/internal/logging"
	"monitoring-service/internal/models"
	"monitoring-service/internal/natsstream"
	"monitoring-service/internal/notification"
	"monitoring-service/internal/providers"
	"monitoring-service/internal/queue"
	"monitoring-service/internal/stream"
	"monitoring-service/internal/utils"
)

const (
	natsAckWait     = 30 * time.Second
	shutdownTimeout = 10 * time.Second

	historySweepInterval = time.Minute
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Dir:        cfg.Logging.Dir,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Errorf("Service stopped with error: %v", err)
		os.Exit(1)
	}
	logger.Infof("Service stopped")
}

func run(ctx context.Context, cfg config.Config, logger *logging.Logger) error {
	// Record store
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// Metric history
	hist, err := openHistory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer hist.Close()

	// Message bus
	bus, err := openBus(cfg, logger)
	if err != nil {
		return err
	}
	defer bus.close()

	engine := alerting.NewEngine(
		cfg.Alerting.Indicators,
		hist,
		alerting.NewPublisher(store, bus.publisher, cfg.Stream.AlertsTopic),
		clock.Real{},
		logger.WithField("component", "alerting"),
		alerting.Options{
			Thresholds: alerting.Thresholds{
				AlertPercent:    cfg.Alerting.AlertThresholdPercent,
				WarningPercent:  cfg.Alerting.WarningThresholdPercent,
				BoundaryPercent: cfg.Alerting.WarningBoundaryPercent,
			},
			AlertTimeout:   cfg.Alerting.AlertTimeout,
			WarningTimeout: cfg.Alerting.WarningTimeout,
			HistoryTTL:     cfg.Alerting.HistoryTTL,
		},
	)

	alertChannel, err := models.ParseChannelType(cfg.Delivery.AlertChannel)
	if err != nil {
		return fmt.Errorf("ALERT_CHANNEL: %w", err)
	}
	registry := buildRegistry(cfg, logger)
	if _, err := registry.Resolve(alertChannel); err != nil {
		logger.Warnf("Alert channel %s is not configured; alert notifications will be dead-lettered", alertChannel)
	}

	q := queue.New()
	defer q.Close()
	notifier := notification.New(q, registry, store, clock.Real{}, logger.WithField("component", "delivery"), notification.Options{
		Retry: utils.RetryPolicy{
			MaxAttempts: cfg.Delivery.MaxRetryAttempts,
			BaseDelay:   cfg.Delivery.RetryBaseDelay,
			MaxDelay:    cfg.Delivery.RetryMaxDelay,
		},
		SendTimeout:    cfg.Delivery.SendTimeout,
		PollInterval:   cfg.Delivery.PollInterval,
		Concurrency:    cfg.Delivery.Concurrency,
		DrainTimeout:   cfg.Stream.ShutdownGrace,
		AlertRecipient: cfg.Delivery.AlertRecipient,
		AlertChannel:   alertChannel,
		AlertTemplate:  cfg.Delivery.AlertTemplate,
	})

	// Stream routes
	routes, err := buildRoutes(cfg, bus, engine, notifier)
	if err != nil {
		return err
	}
	consumer, err := stream.NewConsumer(stream.Options{
		MaxConcurrentOperations: cfg.Stream.MaxConcurrentOperations,
		PollTimeout:             cfg.Stream.PollTimeout,
		AcquireTimeout:          cfg.Stream.AcquireTimeout,
		ShutdownGrace:           cfg.Stream.ShutdownGrace,
	}, logger.WithField("component", "stream"), routes...)
	if err != nil {
		return err
	}

	// API server
	handler := api.NewHandler(notifier, engine, store, logger.WithField("component", "api"))
	server := &http.Server{
		Addr:              cfg.API.Port,
		Handler:           api.NewRouter(logger, cfg.API.BasePath, handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error { return notifier.Run(gctx) })
	g.Go(func() error {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infof("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, logger *logging.Logger) (db.Store, error) {
	if cfg.DB.DSN == "" {
		logger.Warnf("DB_DSN is empty, using in-memory record store")
		return db.NewMemoryStore(), nil
	}
	conn, err := db.New(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := conn.Migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	logger.Infof("Connected to database")
	return conn, nil
}

func openHistory(ctx context.Context, cfg config.Config, logger *logging.Logger) (history.Store, error) {
	if cfg.History.Driver == "memory" {
		logger.Warnf("Using in-memory metric history; state is lost on restart")
		store := history.NewMemoryStore(nil)
		go store.RunSweeper(ctx, historySweepInterval)
		return store, nil
	}
	store, err := history.NewRedisStore(ctx, history.RedisOptions{
		Addr:     cfg.History.RedisAddr,
		Password: cfg.History.RedisPassword,
		DB:       cfg.History.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("metric history: %w", err)
	}
	logger.Infof("Metric history on redis %s", cfg.History.RedisAddr)
	return store, nil
}

// messageBus is the driver-specific part of the stream wiring.
type messageBus struct {
	publisher stream.Publisher
	source    func(topic string) (stream.Source, error)
	close     func()
}

func openBus(cfg config.Config, logger *logging.Logger) (*messageBus, error) {
	switch cfg.Stream.Driver {
	case "nats":
		topics := []string{cfg.Stream.MetricsTopic, cfg.Stream.AlertsTopic, cfg.Stream.NotificationsTopic}
		bus, err := natsstream.Connect(cfg.Stream.NATSURL, cfg.Stream.NATSStream, topics)
		if err != nil {
			return nil, err
		}
		logger.Infof("Connected to NATS %s, stream %s", cfg.Stream.NATSURL, cfg.Stream.NATSStream)
		return &messageBus{
			publisher: bus,
			source: func(topic string) (stream.Source, error) {
				src, err := bus.Source(topic, cfg.Stream.GroupID, natsAckWait)
				if err != nil {
					return nil, err
				}
				return src, nil
			},
			close: func() {
				if err := bus.Close(); err != nil {
					logger.Errorf("NATS close failed: %v", err)
				}
			},
		}, nil
	default:
		kcfg := kafka.Config{Brokers: cfg.Stream.Brokers, GroupID: cfg.Stream.GroupID}
		producer, err := kafka.NewProducer(kcfg)
		if err != nil {
			return nil, err
		}
		logger.Infof("Kafka brokers: %v", cfg.Stream.Brokers)
		return &messageBus{
			publisher: producer,
			source: func(topic string) (stream.Source, error) {
				src, err := kafka.NewSource(kcfg, topic)
				if err != nil {
					return nil, err
				}
				return src, nil
			},
			close: func() {
				if err := producer.Close(); err != nil {
					logger.Errorf("Kafka producer close failed: %v", err)
				}
			},
		}, nil
	}
}

func buildRoutes(cfg config.Config, bus *messageBus, engine *alerting.Engine, notifier *notification.Service) ([]stream.Route, error) {
	metrics, err := bus.source(cfg.Stream.MetricsTopic)
	if err != nil {
		return nil, err
	}
	alerts, err := bus.source(cfg.Stream.AlertsTopic)
	if err != nil {
		return nil, err
	}
	requests, err := bus.source(cfg.Stream.NotificationsTopic)
	if err != nil {
		return nil, err
	}
	return []stream.Route{
		stream.JSON(cfg.Stream.MetricsTopic, metrics, func(ctx context.Context, _ stream.Message, reading models.MetricReading) error {
			_, err := engine.Process(ctx, reading)
			if errors.Is(err, alerting.ErrHistoryUnavailable) {
				// Abandoned and counted; redelivery would evaluate against stale state.
				return nil
			}
			return err
		}),
		stream.JSON(cfg.Stream.AlertsTopic, alerts, func(ctx context.Context, msg stream.Message, event models.AlertEvent) error {
			return notifier.HandleAlertEvent(ctx, msg.Topic, event)
		}),
		stream.JSON(cfg.Stream.NotificationsTopic, requests, func(ctx context.Context, msg stream.Message, env models.Envelope) error {
			return notifier.EnqueueEnvelope(ctx, msg.Topic, env)
		}),
	}, nil
}

// buildRegistry registers only the channels whose settings are present.
func buildRegistry(cfg config.Config, logger *logging.Logger) *providers.Registry {
	var senders []providers.Sender
	add := func(name string, configured bool, build func() (providers.Sender, error)) {
		if !configured {
			logger.Infof("Channel %s not configured", name)
			return
		}
		s, err := build()
		if err != nil {
			logger.Errorf("Channel %s disabled: %v", name, err)
			return
		}
		senders = append(senders, s)
	}
	add("email", cfg.Email.SMTPServer != "", func() (providers.Sender, error) {
		return providers.NewEmailSender(cfg.Email)
	})
	add("telegram", cfg.Telegram.BotToken != "", func() (providers.Sender, error) {
		return providers.NewTelegramSender(cfg.Telegram)
	})
	add("sms", cfg.SMS.AccountSID != "", func() (providers.Sender, error) {
		return providers.NewSMSSender(cfg.SMS)
	})
	add("webpush", cfg.Push.GatewayURL != "", func() (providers.Sender, error) {
		return providers.NewWebPushSender(cfg.Push)
	})
	registry := providers.NewRegistry(senders...)
	logger.Infof("Registered channels: %v", registry.Channels())
	return registry
}
