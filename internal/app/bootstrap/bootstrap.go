package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	paymentsettlement "atelier/contexts/commerce-core/payment-settlement-service"
	postgresadapter "atelier/contexts/commerce-core/payment-settlement-service/adapters/postgres"
	stripeadapter "atelier/contexts/commerce-core/payment-settlement-service/adapters/stripe"
	workerapp "atelier/contexts/commerce-core/payment-settlement-service/application/workers"
	"atelier/internal/platform/config"
	"atelier/internal/platform/db"
	"atelier/internal/platform/httpserver"
	"atelier/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres     *db.Postgres
	outboxRelay  workerapp.OutboxRelay
	repair       workerapp.SettlementRepairSweep
	repairSweep  bool
	pollInterval time.Duration
	logger       *slog.Logger
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	if strings.TrimSpace(cfg.StripeWebhookSecret) == "" {
		return nil, errors.New("STRIPE_WEBHOOK_SECRET is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	module := paymentsettlement.NewModule(paymentsettlement.Dependencies{
		Requests:   repo,
		Contracts:  repo,
		Requesters: repo,
		Provider:   stripeadapter.NewClient(cfg.StripeSecretKey, logger),
		Verifier: stripeadapter.WebhookVerifier{
			SigningSecret: cfg.StripeWebhookSecret,
			Clock:         postgresadapter.SystemClock{},
		},
		Clock:                       postgresadapter.SystemClock{},
		IDGenerator:                 postgresadapter.UUIDGenerator{},
		SuccessURL:                  cfg.CheckoutSuccessURL,
		CancelURL:                   cfg.CheckoutCancelURL,
		DisableSettledEventEmission: !cfg.EnableSettledEventEmission,
		Logger:                      logger,
	})

	server := httpserver.New(module, logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	repo := postgresadapter.NewRepository(pg.DB, logger)
	return &WorkerApp{
		postgres: pg,
		outboxRelay: workerapp.OutboxRelay{
			Outbox:    repo,
			Publisher: kafka,
			Clock:     postgresadapter.SystemClock{},
			Topic:     "payment.settled",
			BatchSize: 100,
			Logger:    logger,
		},
		repair: workerapp.SettlementRepairSweep{
			Contracts: repo,
			Requests:  repo,
			Clock:     postgresadapter.SystemClock{},
			BatchSize: 100,
			Logger:    logger,
		},
		repairSweep:  cfg.EnableSettlementRepairSweep,
		pollInterval: 2 * time.Second,
		logger:       logger,
	}, nil
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
		"repair_sweep", w.repairSweep,
	)

	for {
		if w.repairSweep {
			if err := w.repair.RunOnce(ctx); err != nil {
				return err
			}
		}
		if err := w.outboxRelay.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
