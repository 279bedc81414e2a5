package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/RubachokBoss/interview-proctoring/internal/config"
	"github.com/RubachokBoss/interview-proctoring/internal/delivery/httpd"
	"github.com/RubachokBoss/interview-proctoring/internal/metrics"
	mw "github.com/RubachokBoss/interview-proctoring/internal/middleware"
	"github.com/RubachokBoss/interview-proctoring/internal/repository"
	"github.com/RubachokBoss/interview-proctoring/internal/service"
	"github.com/RubachokBoss/interview-proctoring/internal/service/vision"
	"github.com/RubachokBoss/interview-proctoring/internal/session"
	"github.com/RubachokBoss/interview-proctoring/internal/worker"
	"github.com/RubachokBoss/interview-proctoring/internal/worker/queue"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type App struct {
	server       *http.Server
	logger       zerolog.Logger
	config       *config.Config
	db           *sql.DB
	registry     *session.Registry
	signalWorker worker.SignalWorker
	rabbitMQRepo repository.RabbitMQRepository
	redis        *redis.Client
	cancel       context.CancelFunc
}

// New wires the service. RabbitMQ, Redis, MinIO and the vision service are
// each optional and switched by config.
func New(cfg *config.Config, log zerolog.Logger, db *sql.DB) (*App, error) {
	a := &App{
		logger: log,
		config: cfg,
		db:     db,
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	var (
		publisher queue.Publisher = queue.NopPublisher{}
		consumer  queue.Consumer
	)
	if cfg.RabbitMQ.Enabled {
		rabbitMQRepo, err := repository.NewRabbitMQRepository(cfg.RabbitMQ.URL, log)
		if err != nil {
			return nil, err
		}
		a.rabbitMQRepo = rabbitMQRepo

		if err := rabbitMQRepo.SetupQueue(
			cfg.RabbitMQ.Exchange,
			cfg.RabbitMQ.SignalQueue,
			cfg.RabbitMQ.SignalRoutingKey,
		); err != nil {
			a.closeClients()
			return nil, err
		}

		publisher = queue.NewRabbitMQPublisher(rabbitMQRepo.Channel(), cfg.RabbitMQ.Exchange, log)
		consumer = queue.NewRabbitMQConsumer(
			rabbitMQRepo.Channel(),
			cfg.RabbitMQ.SignalQueue,
			cfg.RabbitMQ.ConsumerTag,
			cfg.RabbitMQ.PrefetchCount,
			log,
		)
	}

	eventRepo := repository.NewEventRepository(db, log)
	candidateRepo := repository.NewCandidateRepository(db, log)

	eventLogService := service.NewEventLogService(
		eventRepo,
		candidateRepo,
		publisher,
		cfg.RabbitMQ.RiskRoutingKey,
		m,
		log,
	)
	integrityService := service.NewIntegrityService(
		candidateRepo,
		publisher,
		cfg.RabbitMQ.TerminateRoutingKey,
		log,
	)

	deps := session.RegistryDeps{
		Events:    eventLogService,
		Integrity: integrityService,
		Metrics:   m,
		Logger:    log,
	}

	if cfg.MinIO.Enabled {
		snapshots, err := repository.NewMinIOSnapshotRepository(
			cfg.MinIO.Endpoint,
			cfg.MinIO.AccessKey,
			cfg.MinIO.SecretKey,
			cfg.MinIO.Bucket,
			cfg.MinIO.Region,
			cfg.MinIO.UseSSL,
			cfg.MinIO.ConnectTimeout,
			log,
		)
		if err != nil {
			a.closeClients()
			return nil, err
		}
		deps.Evidence = service.NewEvidenceService(snapshots)
	}

	if cfg.Redis.Enabled {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := a.redis.Ping(ctx).Err()
		cancel()
		if err != nil {
			a.closeClients()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		deps.Latch = repository.NewRedisLatchRepository(a.redis, cfg.Redis.LatchTTL, log)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis termination latch enabled")
	}

	if cfg.Vision.Enabled {
		visionClient := vision.NewClient(
			cfg.Vision.URL,
			cfg.Vision.Timeout,
			cfg.Vision.RetryCount,
			cfg.Vision.RetryDelay,
			log,
		)
		deps.NewDetector = func() session.FaceDetector {
			return vision.NewDetector(visionClient, cfg.Vision.Model, log)
		}
	}

	a.registry = session.NewRegistry(deps, session.Config{
		PermissionPollInterval: cfg.Proctoring.PermissionPollInterval,
		DetectionInterval:      cfg.Proctoring.DetectionInterval,
		WarningTTL:             cfg.Proctoring.WarningTTL,
		WarningCapacity:        cfg.Proctoring.WarningCapacity,
		TabSwitchDebounce:      cfg.Proctoring.TabSwitchDebounce,
		EventTimeout:           cfg.Proctoring.EventTimeout,
		CaptureSnapshots:       cfg.Proctoring.CaptureSnapshots,
		TerminationRedirect:    cfg.Proctoring.TerminationRedirect,
		TerminatedGrace:        cfg.Proctoring.TerminatedGrace,
		IdleTimeout:            cfg.Proctoring.IdleTimeout,
		ReapInterval:           cfg.Proctoring.ReapInterval,
	}, cfg.Proctoring.MaxSessions)
	a.registry.StartReaper()

	if consumer != nil {
		a.signalWorker = worker.NewSignalWorker(
			worker.NewWorkerPool(cfg.RabbitMQ.MaxWorkers, log),
			consumer,
			a.registry,
			log,
		)
	}

	var broker httpd.Pinger
	if a.rabbitMQRepo != nil {
		broker = a.rabbitMQRepo
	}

	handler := httpd.NewHandler(
		a.registry,
		eventLogService,
		integrityService,
		eventRepo,
		broker,
		promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		log,
	)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(mw.RequestLogger(log))
	router.Use(mw.Recovery(log))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(mw.NewCORS(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
		cfg.CORS.ExposedHeaders,
		cfg.CORS.AllowCredentials,
		cfg.CORS.MaxAge,
	))

	handler.RegisterRoutes(router)

	a.server = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return a, nil
}

func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.signalWorker != nil {
		if err := a.signalWorker.Start(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Failed to start signal worker")
			return err
		}
	}

	a.logger.Info().Msgf("Starting proctoring service on %s", a.config.Server.Address)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down proctoring service...")

	var serverErr error
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
		serverErr = err
	}

	if a.cancel != nil {
		a.cancel()
	}

	if a.signalWorker != nil {
		if err := a.signalWorker.Stop(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to stop signal worker")
		}
	}

	// Flushes pending event writes, so the database must still be open.
	a.registry.CloseAll()

	a.closeClients()

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}

	a.logger.Info().Msg("Proctoring service stopped")
	return serverErr
}

func (a *App) closeClients() {
	if a.rabbitMQRepo != nil {
		if err := a.rabbitMQRepo.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close Redis connection")
		}
	}
}
