package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	authorizationmetrics "healthcommons/internal/authorization/metrics"
	authorizationservice "healthcommons/internal/authorization/service"
	authorizationstore "healthcommons/internal/authorization/store"
	commonsmetrics "healthcommons/internal/commons/metrics"
	"healthcommons/internal/commons/sealing"
	commonsservice "healthcommons/internal/commons/service"
	contributionstore "healthcommons/internal/commons/store/contribution"
	poolstore "healthcommons/internal/commons/store/pool"
	consentmetrics "healthcommons/internal/consent/metrics"
	consentservice "healthcommons/internal/consent/service"
	consentstore "healthcommons/internal/consent/store"
	"healthcommons/internal/platform/config"
	"healthcommons/internal/platform/entrystore"
	"healthcommons/internal/platform/kafka"
	"healthcommons/internal/platform/postgres"
	redisclient "healthcommons/internal/platform/redis"
	privacymetrics "healthcommons/internal/privacy/metrics"
	privacyservice "healthcommons/internal/privacy/service"
	"healthcommons/internal/privacy/store/ledger"
	querymetrics "healthcommons/internal/query/metrics"
	queryservice "healthcommons/internal/query/service"
	"healthcommons/pkg/platform/audit"
	"healthcommons/pkg/platform/audit/publishers/compliance"
	"healthcommons/pkg/platform/audit/publishers/security"
	auditmemory "healthcommons/pkg/platform/audit/store/memory"
	auditpostgres "healthcommons/pkg/platform/audit/store/postgres"
	"healthcommons/pkg/platform/audit/worker"
)

// auditBackend is both the append-only audit log and its publish outbox.
type auditBackend interface {
	audit.Store
	audit.Outbox
}

// infra holds connections and shared stores. Close releases them in reverse
// order of acquisition.
type infra struct {
	db      *sql.DB
	redis   *redisclient.Client
	entries entrystore.Store
	audit   auditBackend
	relay   *worker.Worker

	closers []func() error
}

func (i *infra) Close() error {
	var errs []error
	for n := len(i.closers) - 1; n >= 0; n-- {
		errs = append(errs, i.closers[n]())
	}
	return errors.Join(errs...)
}

func buildInfra(ctx context.Context, cfg config.Server, logger *slog.Logger) (*infra, error) {
	in := &infra{}

	if cfg.Database.URL != "" {
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return in, err
		}
		in.db = db
		in.closers = append(in.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			return in, err
		}
		logger.Info("postgres connected")
	}

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return in, err
	}
	if rc != nil {
		in.redis = rc
		in.closers = append(in.closers, rc.Close)
		logger.Info("redis connected")
	}

	if path := cfg.EntryStore.LevelDBPath; path != "" {
		store, err := entrystore.OpenLevelDB(path)
		if err != nil {
			return in, fmt.Errorf("open entry store: %w", err)
		}
		in.entries = store
		in.closers = append(in.closers, store.Close)
	} else {
		in.entries = entrystore.NewInMemoryStore()
	}

	if in.db != nil {
		in.audit = auditpostgres.New(in.db)
	} else {
		in.audit = auditmemory.NewInMemoryStore()
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Tracing.ServiceName)
		if err != nil {
			return in, err
		}
		in.closers = append(in.closers, func() error {
			producer.Close()
			return nil
		})
		in.relay = worker.NewWorker(in.audit, producer, cfg.Kafka.TopicPrefix,
			worker.WithLogger(logger),
			worker.WithInterval(cfg.Kafka.RelayInterval),
			worker.WithBatchSize(cfg.Kafka.RelayBatch),
		)
		if err := producer.EnsureTopics(ctx, 1, 1, in.relay.Topics()...); err != nil {
			return in, err
		}
		logger.Info("audit relay enabled", "brokers", cfg.Kafka.Brokers)
	}
	return in, nil
}

// app holds the module services the HTTP handlers depend on.
type app struct {
	consents *consentservice.Service
	authz    *authorizationservice.Service
	commons  *commonsservice.Service
	privacy  *privacyservice.Service
	queries  *queryservice.Service
	security *security.Publisher
}

func buildApp(cfg config.Server, in *infra, logger *slog.Logger) (*app, error) {
	complianceAudit := compliance.New(in.audit,
		compliance.WithLogger(logger),
		compliance.WithMetrics(compliance.NewMetrics()),
	)
	securityAudit := security.New(in.audit, security.WithLogger(logger))

	consentOpts := []consentservice.Option{
		consentservice.WithLogger(logger),
		consentservice.WithAuditPublisher(complianceAudit),
		consentservice.WithMetrics(consentmetrics.New()),
		consentservice.WithEntryStore(in.entries),
	}
	var consentStore consentservice.Store
	if in.db != nil {
		pg := consentstore.NewPostgres(in.db)
		consentStore = pg
		consentOpts = append(consentOpts, consentservice.WithTx(newConsentPostgresTx(in.db, pg)))
	} else {
		consentStore = consentstore.NewInMemoryStore()
	}
	consents := consentservice.New(consentStore, consentOpts...)

	var accessLogs authorizationservice.LogStore
	var pools commonsservice.PoolStore
	var contributions commonsservice.ContributionStore
	if in.db != nil {
		accessLogs = authorizationstore.NewPostgres(in.db)
		pools = poolstore.NewPostgres(in.db)
		contributions = contributionstore.NewPostgres(in.db)
	} else {
		accessLogs = authorizationstore.NewInMemoryStore()
		pools = poolstore.NewInMemoryStore()
		contributions = contributionstore.NewInMemoryStore()
	}

	authz := authorizationservice.New(consents, accessLogs,
		authorizationservice.WithLogger(logger),
		authorizationservice.WithAuditPublisher(complianceAudit),
		authorizationservice.WithSecurityPublisher(securityAudit),
		authorizationservice.WithMetrics(authorizationmetrics.New()),
	)

	budgets, err := newLedger(cfg.Budget, in)
	if err != nil {
		return nil, err
	}
	privacy := privacyservice.New(budgets, commonsservice.NewPolicySource(pools),
		privacyservice.WithLogger(logger),
		privacyservice.WithAuditPublisher(complianceAudit),
		privacyservice.WithMetrics(privacymetrics.New()),
	)

	sealer, err := sealing.New([]byte(cfg.Sealing.MasterKey))
	if err != nil {
		return nil, fmt.Errorf("init sealing: %w", err)
	}
	commons := commonsservice.New(pools, contributions, consents, in.entries, sealer,
		commonsservice.WithLogger(logger),
		commonsservice.WithAuditPublisher(complianceAudit),
		commonsservice.WithMetrics(commonsmetrics.New()),
		commonsservice.WithBudget(privacy),
	)

	queries := queryservice.New(commons, authz, privacy,
		queryservice.WithLogger(logger),
		queryservice.WithAuditPublisher(complianceAudit),
		queryservice.WithMetrics(querymetrics.New()),
	)

	return &app{
		consents: consents,
		authz:    authz,
		commons:  commons,
		privacy:  privacy,
		queries:  queries,
		security: securityAudit,
	}, nil
}

func newLedger(cfg config.BudgetConfig, in *infra) (privacyservice.Ledger, error) {
	switch cfg.Backend {
	case config.BudgetBackendMemory:
		return ledger.NewInMemoryStore(), nil
	case config.BudgetBackendPostgres:
		if in.db == nil {
			return nil, errors.New("postgres budget backend requires DATABASE_URL")
		}
		return ledger.NewPostgres(in.db), nil
	case config.BudgetBackendRedis:
		if in.redis == nil {
			return nil, errors.New("redis budget backend requires REDIS_URL")
		}
		return ledger.NewRedis(in.redis.Client), nil
	default:
		return nil, fmt.Errorf("unknown budget backend %q", cfg.Backend)
	}
}
