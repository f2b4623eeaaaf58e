package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Barsa-M/accident-reporting-sub000/internal/cache"
	"github.com/Barsa-M/accident-reporting-sub000/internal/config"
	pgrepo "github.com/Barsa-M/accident-reporting-sub000/internal/repository/postgres"
	sqliterepo "github.com/Barsa-M/accident-reporting-sub000/internal/repository/sqlite"
	"github.com/Barsa-M/accident-reporting-sub000/internal/scheduler"
	"github.com/Barsa-M/accident-reporting-sub000/internal/service"
	"github.com/Barsa-M/accident-reporting-sub000/internal/webhook"
	natsclient "github.com/Barsa-M/accident-reporting-sub000/pkg/nats"
	"github.com/Barsa-M/accident-reporting-sub000/pkg/postgres"
	redisclient "github.com/Barsa-M/accident-reporting-sub000/pkg/redis"
	sqlitedb "github.com/Barsa-M/accident-reporting-sub000/pkg/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	natsgo "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// storage - репозитории выбранного драйвера
type storage struct {
	incidents  service.IncidentRepository
	responders service.ResponderRepository
	history    service.HistoryRepository
	store      service.TransitionStore

	// реализация outbox подходит и диспетчеру, и webhook.Relay
	notifications webhook.OutboxStore

	pool *pgxpool.Pool
	db   *sql.DB
}

func (s *storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

// migrate применяет встроенные миграции для драйвера из конфигурации
func migrate(ctx context.Context, cfg *config.Config) error {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		db, err := sqlitedb.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		return sqlitedb.Migrate(db)
	default:
		return postgres.Migrate(cfg.DatabaseURL)
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		db, err := sqlitedb.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &storage{
			incidents:     sqliterepo.NewIncidentRepository(db),
			responders:    sqliterepo.NewResponderRepository(db),
			history:       sqliterepo.NewHistoryRepository(db),
			store:         sqliterepo.NewTransitionStore(db),
			notifications: sqliterepo.NewNotificationRepository(db),
			db:            db,
		}, nil
	default:
		pool, err := postgres.NewPostgresDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &storage{
			incidents:     pgrepo.NewIncidentRepository(pool),
			responders:    pgrepo.NewResponderRepository(pool),
			history:       pgrepo.NewHistoryRepository(pool),
			store:         pgrepo.NewTransitionStore(pool),
			notifications: pgrepo.NewNotificationRepository(pool),
			pool:          pool,
		}, nil
	}
}

// app - собранный граф зависимостей
type app struct {
	storage     *storage
	redisClient *redis.Client
	natsConn    *natsgo.Conn
	publisher   webhook.Publisher

	incidents  service.IncidentService
	responders service.ResponderService
	dispatch   service.DispatchService
	history    service.HistoryLog
	scheduler  *scheduler.Scheduler
}

func newApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*app, error) {
	st, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.DatabaseDriver, err)
	}
	log.WithField("driver", cfg.DatabaseDriver).Info("Successfully connected to database")

	redisClient, err := redisclient.NewRedisClient(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	log.Info("Successfully connected to Redis")

	a := &app{storage: st, redisClient: redisClient}

	var publisher webhook.Publisher = webhook.NewRedisPublisher(redisClient)
	if cfg.NATSURL != "" {
		conn, err := natsclient.NewConnection(cfg.NATSURL, "dispatch", log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.natsConn = conn
		publisher = webhook.NewFanoutPublisher(publisher, webhook.NewNATSPublisher(conn, cfg.NATSSubject))
		log.WithField("subject", cfg.NATSSubject).Info("Publishing notifications to NATS")
	}

	a.publisher = publisher

	incidentCache := cache.NewIncidentCache(redisClient, cfg.IncidentCacheTTL)
	a.history = service.NewHistoryLog(st.history, log, cfg)
	a.dispatch = service.NewDispatcher(service.DispatcherDeps{
		Incidents:  st.incidents,
		Responders: st.responders,
		Store:      st.store,
		Matcher:    service.NewMatcher(st.responders, log, cfg),
		Cache:      incidentCache,
		Publisher:  publisher,
		Outbox:     st.notifications,
	}, log, cfg)
	a.scheduler = scheduler.New(st.incidents, a.dispatch, scheduler.NewRedisLocker(redisClient), log, cfg)
	a.incidents = service.NewIncidentService(st.incidents, incidentCache, log, cfg)
	a.responders = service.NewResponderService(st.responders, a.scheduler, log)

	return a, nil
}

func (a *app) Close() {
	if a.natsConn != nil {
		// Drain дожидается отправки буферизованных сообщений
		_ = a.natsConn.Drain()
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	a.storage.Close()
}
