package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/payment-gateway/internal"
	"github.com/frahmantamala/payment-gateway/internal/core/common/simulation"
	"github.com/frahmantamala/payment-gateway/internal/core/events"
	"github.com/frahmantamala/payment-gateway/internal/idempotency"
	idempotencyPostgres "github.com/frahmantamala/payment-gateway/internal/idempotency/postgres"
	"github.com/frahmantamala/payment-gateway/internal/jobqueue"
	"github.com/frahmantamala/payment-gateway/internal/merchant"
	merchantPostgres "github.com/frahmantamala/payment-gateway/internal/merchant/postgres"
	"github.com/frahmantamala/payment-gateway/internal/order"
	orderPostgres "github.com/frahmantamala/payment-gateway/internal/order/postgres"
	"github.com/frahmantamala/payment-gateway/internal/payment"
	paymentPostgres "github.com/frahmantamala/payment-gateway/internal/payment/postgres"
	"github.com/frahmantamala/payment-gateway/internal/refund"
	refundPostgres "github.com/frahmantamala/payment-gateway/internal/refund/postgres"
	"github.com/frahmantamala/payment-gateway/internal/webhook"
	webhookPostgres "github.com/frahmantamala/payment-gateway/internal/webhook/postgres"
	"github.com/frahmantamala/payment-gateway/pkg/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const (
	paymentDelayMin = 5 * time.Second
	paymentDelayMax = 10 * time.Second
	refundDelayMin  = 3 * time.Second
	refundDelayMax  = 5 * time.Second
)

// App holds the services shared by the server, the workers and the CLI tools.
type App struct {
	Config *internal.Config
	Logger *slog.Logger
	DB     *sqlx.DB
	Gorm   *gorm.DB
	Redis  *redis.Client

	Queue      jobqueue.Queue
	Dispatcher *jobqueue.Dispatcher
	Bus        *events.EventBus

	Idempotency *idempotency.Service
	Merchants   *merchant.Service
	Orders      *order.Service
	Payments    *payment.Service
	Refunds     *refund.Service
	Webhooks    *webhook.Service

	paymentRepo payment.RepositoryAPI
	refundRepo  refund.RepositoryAPI
	webhookRepo webhook.RepositoryAPI
}

func newApp(ctx context.Context, cfg *internal.Config) (*App, error) {
	lg := logger.LoggerWrapper()

	db, gormDB, err := openStores(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Logger: lg, DB: db, Gorm: gormDB}

	if app.Queue, err = app.newQueue(ctx); err != nil {
		app.Close()
		return nil, err
	}
	app.Dispatcher = jobqueue.NewDispatcher(app.Queue)

	// merchant events become webhook jobs
	app.Bus = events.NewEventBus(lg)
	webhook.NewDispatcher(app.Dispatcher, lg).Register(app.Bus)

	app.Idempotency = idempotency.NewService(idempotencyPostgres.NewIdempotencyRepository(gormDB), lg)
	app.Merchants = merchant.NewService(merchantPostgres.NewMerchantRepository(gormDB), app.Bus, cfg.Security.BCryptCost, lg)
	app.Orders = order.NewService(orderPostgres.NewOrderRepository(gormDB), lg)

	app.paymentRepo = paymentPostgres.NewPaymentRepository(gormDB)
	app.refundRepo = refundPostgres.NewRefundRepository(gormDB)
	app.webhookRepo = webhookPostgres.NewWebhookLogRepository(gormDB)

	app.Payments = payment.NewService(app.paymentRepo, app.Orders, app.Idempotency, app.Dispatcher, lg)
	app.Refunds = refund.NewService(app.refundRepo, app.Idempotency, app.Dispatcher, lg)
	app.Webhooks = webhook.NewService(app.webhookRepo, app.Dispatcher, lg)

	return app, nil
}

func (a *App) newQueue(ctx context.Context) (jobqueue.Queue, error) {
	qc := a.Config.Queue

	switch qc.Driver {
	case "memory":
		a.Logger.Warn("using in-memory job queue; jobs are lost on restart and not shared between processes")
		return jobqueue.NewMemoryQueue(jobqueue.WithVisibilityTimeout(qc.VisibilityTimeout)), nil
	case "postgres":
		return jobqueue.NewSQLQueue(a.DB, jobqueue.SQLOptions{VisibilityTimeout: qc.VisibilityTimeout}), nil
	case "redis":
		opts, err := redis.ParseURL(a.Config.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		a.Redis = redis.NewClient(opts)
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return jobqueue.NewRedisQueue(a.Redis, jobqueue.RedisOptions{VisibilityTimeout: qc.VisibilityTimeout}), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", qc.Driver)
	}
}

// Handlers builds the job handler for each queue the workers drain.
func (a *App) Handlers() map[string]jobqueue.Handler {
	pc := a.Config.Processing

	oracle := payment.NewSimulatedOracle(payment.OracleConfig{
		TestMode:        pc.TestMode,
		TestSuccess:     pc.TestPaymentSuccess,
		UPISuccessRate:  pc.UPISuccessRate,
		CardSuccessRate: pc.CardSuccessRate,
	})
	paymentDelay := simulation.Delay{TestMode: pc.TestMode, Fixed: pc.TestProcessingDelay, Min: paymentDelayMin, Max: paymentDelayMax}
	refundDelay := simulation.Delay{TestMode: pc.TestMode, Fixed: pc.TestProcessingDelay, Min: refundDelayMin, Max: refundDelayMax}

	payments := payment.NewProcessor(a.paymentRepo, oracle, paymentDelay, a.Bus, a.Logger)
	refunds := refund.NewProcessor(a.refundRepo, refundDelay, a.Bus, a.Logger)
	webhooks := webhook.NewProcessor(
		a.webhookRepo,
		a.Merchants,
		webhook.NewDeliverer(a.Config.Webhook.Timeout),
		a.Dispatcher,
		webhook.ScheduleFor(a.Config.Webhook.TestRetryIntervals),
		a.Logger,
	)

	return map[string]jobqueue.Handler{
		jobqueue.QueuePayment: payments.Handle,
		jobqueue.QueueRefund:  refunds.Handle,
		jobqueue.QueueWebhook: webhooks.Handle,
	}
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("redis close error", "error", err)
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Error("database close error", "error", err)
	}
}

// openStores opens one connection pool and shares it between sqlx and gorm.
func openStores(cfg *internal.Config) (*sqlx.DB, *gorm.DB, error) {
	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to open gorm session: %w", err)
	}
	return db, gormDB, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
