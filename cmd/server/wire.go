package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"flock/internal/audit"
	exithandler "flock/internal/exit/handler"
	exitservice "flock/internal/exit/service"
	exitstore "flock/internal/exit/store"
	jwttoken "flock/internal/jwt_token"
	memberstore "flock/internal/member/store"
	"flock/internal/mentorship"
	"flock/internal/milestone"
	notificationhandler "flock/internal/notification/handler"
	"flock/internal/notification/relay"
	notificationservice "flock/internal/notification/service"
	notificationstore "flock/internal/notification/store"
	"flock/internal/platform/config"
	"flock/internal/platform/kafka"
	"flock/internal/platform/metrics"
	"flock/internal/platform/postgres"
	"flock/internal/platform/redis"
	"flock/internal/platform/taskqueue"
	ratelimitmetrics "flock/internal/ratelimit/metrics"
	ratelimitmodels "flock/internal/ratelimit/models"
	"flock/internal/ratelimit/ports"
	ratelimitservice "flock/internal/ratelimit/service"
	"flock/internal/ratelimit/store/bucket"
	"flock/internal/realtime"
	httptransport "flock/internal/transport/http"
	"flock/pkg/platform/middleware/auth"
	"flock/pkg/platform/tx"
)

const kafkaClientID = "flock"

// app holds every long-lived component. Build it with newApp and release it
// with close.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db       *sql.DB
	redis    *redis.Client
	producer *kafka.Producer

	exits         *exitservice.Service
	notifications *notificationservice.Service
	broker        *realtime.Broker
	queue         *taskqueue.Queue
	validator     auth.JWTValidator
	health        map[string]httptransport.HealthCheck
}

type memberStore interface {
	exitservice.MemberStore
	realtime.MemberFinder
}

type stores struct {
	runner        tx.Runner
	exits         exitservice.ExitStore
	members       memberStore
	mentorships   mentorship.Store
	milestones    milestone.Store
	notifications notificationservice.Store
	preferences   notificationservice.PreferenceStore
	audit         audit.Store
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		health: make(map[string]httptransport.HealthCheck),
	}
	if err := a.build(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	st, err := a.openStores(ctx)
	if err != nil {
		return err
	}

	m := metrics.New()
	limiter, err := a.newLimiter(ctx)
	if err != nil {
		return err
	}

	a.validator = jwttoken.NewJWTServiceAdapter(
		jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience))

	brokerOpts := []realtime.Option{
		realtime.WithLogger(logger),
		realtime.WithMetrics(m),
		realtime.WithMemberFinder(st.members),
		realtime.WithSendBuffer(cfg.WSSendBuffer),
	}
	if len(cfg.WSAllowedOrigins) > 0 {
		brokerOpts = append(brokerOpts, realtime.WithCheckOrigin(allowOrigins(cfg.WSAllowedOrigins)))
	}
	a.broker = realtime.New(a.validator, brokerOpts...)

	a.queue = taskqueue.New(
		taskqueue.WithLogger(logger),
		taskqueue.WithMetrics(m),
		taskqueue.WithWorkers(cfg.TaskWorkers),
		taskqueue.WithCapacity(cfg.TaskQueueSize),
	)

	notifyOpts := []notificationservice.Option{
		notificationservice.WithLogger(logger),
		notificationservice.WithMetrics(m),
		notificationservice.WithRateLimiter(limiter),
		notificationservice.WithEmitter(a.broker),
		notificationservice.WithTaskQueue(a.queue),
	}
	if len(cfg.KafkaBrokers) > 0 {
		outbound, err := a.newRelay(ctx)
		if err != nil {
			return err
		}
		notifyOpts = append(notifyOpts, notificationservice.WithRelay(outbound))
	}
	a.notifications = notificationservice.New(st.notifications, st.preferences, notifyOpts...)

	a.exits = exitservice.New(st.exits, st.members, st.runner,
		exitservice.WithLogger(logger),
		exitservice.WithMetrics(m),
		exitservice.WithHooks(
			mentorship.NewHook(st.mentorships, logger),
			milestone.NewHook(st.milestones, logger),
		),
		exitservice.WithTaskQueue(a.queue),
		exitservice.WithNotifier(a.notifications),
		exitservice.WithEmitter(a.broker),
		exitservice.WithAuditPublisher(audit.NewPublisher(st.audit)),
	)
	return nil
}

func (a *app) openStores(ctx context.Context) (*stores, error) {
	if a.cfg.InMemory() {
		a.logger.Warn("FLOCK_DATABASE_URL not set, using in-memory storage")
		return &stores{
			runner:        tx.NewMemoryRunner(a.cfg.TxTimeout),
			exits:         exitstore.NewInMemory(),
			members:       memberstore.NewInMemory(),
			mentorships:   mentorship.NewInMemoryStore(),
			milestones:    milestone.NewInMemoryStore(),
			notifications: notificationstore.NewInMemory(),
			preferences:   notificationstore.NewInMemoryPreferences(),
			audit:         audit.NewInMemoryStore(),
		}, nil
	}

	db, err := postgres.Open(ctx, postgres.Config{
		URL:             a.cfg.DatabaseURL,
		MaxOpenConns:    a.cfg.DBMaxOpenConns,
		MaxIdleConns:    a.cfg.DBMaxIdleConns,
		ConnMaxLifetime: a.cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	a.db = db
	if err := postgres.Migrate(ctx, db); err != nil {
		return nil, err
	}
	a.health["postgres"] = db.PingContext
	a.logger.Info("postgres storage ready")

	return &stores{
		runner:        tx.NewPostgresRunner(db, a.cfg.TxTimeout),
		exits:         exitstore.NewPostgres(db),
		members:       memberstore.NewPostgres(db),
		mentorships:   mentorship.NewPostgresStore(db),
		milestones:    milestone.NewPostgresStore(db),
		notifications: notificationstore.NewPostgres(db),
		preferences:   notificationstore.NewPostgresPreferences(db),
		audit:         audit.NewPostgresStore(db),
	}, nil
}

// newLimiter keeps quotas in Redis when configured, falling back to process
// memory while Redis is unreachable.
func (a *app) newLimiter(ctx context.Context) (*ratelimitservice.Limiter, error) {
	m := ratelimitmetrics.New()
	memory := bucket.New()
	var buckets ports.BucketStore = memory

	client, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client != nil {
		a.redis = client
		a.health["redis"] = client.Health
		buckets = bucket.NewFailover(bucket.NewRedis(client.Client), memory,
			bucket.WithFailoverLogger(a.logger),
			bucket.WithFailoverMetrics(m),
		)
		a.logger.Info("rate limit buckets in redis")
	}

	return ratelimitservice.New(buckets,
		ratelimitservice.WithLogger(a.logger),
		ratelimitservice.WithMetrics(m),
		ratelimitservice.WithLimits(ratelimitmodels.NotificationLimits{
			User:   ratelimitmodels.Limit{RequestsPerWindow: a.cfg.NotifyUserLimit, Window: a.cfg.NotifyWindow},
			Church: ratelimitmodels.Limit{RequestsPerWindow: a.cfg.NotifyChurchLimit, Window: a.cfg.NotifyWindow},
		}),
	)
}

func (a *app) newRelay(ctx context.Context) (*relay.KafkaRelay, error) {
	producer, err := kafka.NewProducer(a.cfg.KafkaBrokers, kafkaClientID)
	if err != nil {
		return nil, err
	}
	a.producer = producer
	if err := producer.EnsureTopic(ctx, a.cfg.KafkaTopic, 3, 1); err != nil {
		return nil, fmt.Errorf("ensure topic %s: %w", a.cfg.KafkaTopic, err)
	}
	a.health["kafka"] = producer.Health
	a.logger.Info("relaying external notifications", "topic", a.cfg.KafkaTopic)
	return relay.NewKafka(producer, relay.WithTopic(a.cfg.KafkaTopic)), nil
}

func (a *app) router() http.Handler {
	return httptransport.NewRouter(httptransport.Dependencies{
		Logger:    a.logger,
		Validator: a.validator,
		Realtime:  a.broker,
		Health:    a.health,
		Modules: []httptransport.Registrar{
			exithandler.New(a.exits, a.logger,
				exithandler.WithRepairGuard(auth.RequireRole(a.logger, "admin"))),
			notificationhandler.New(a.notifications, a.logger,
				notificationhandler.WithForceRoles("admin")),
		},
	})
}

func (a *app) close() {
	if a.producer != nil {
		a.producer.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("closing redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("closing postgres", "error", err)
		}
	}
}

func allowOrigins(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := strings.ToLower(r.Header.Get("Origin"))
		return origin == "" || slices.Contains(origins, origin)
	}
}
