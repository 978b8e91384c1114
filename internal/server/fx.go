// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/assignment-webapp/internal/account"
	"github.com/JakeFAU/assignment-webapp/internal/api"
	"github.com/JakeFAU/assignment-webapp/internal/assignment"
	"github.com/JakeFAU/assignment-webapp/internal/audit"
	redisaudit "github.com/JakeFAU/assignment-webapp/internal/audit/redis"
	"github.com/JakeFAU/assignment-webapp/internal/auth"
	"github.com/JakeFAU/assignment-webapp/internal/clock/system"
	"github.com/JakeFAU/assignment-webapp/internal/config"
	"github.com/JakeFAU/assignment-webapp/internal/consumer"
	"github.com/JakeFAU/assignment-webapp/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/assignment-webapp/internal/fetcher/colly"
	"github.com/JakeFAU/assignment-webapp/internal/id/uuid"
	"github.com/JakeFAU/assignment-webapp/internal/logging"
	"github.com/JakeFAU/assignment-webapp/internal/metrics"
	"github.com/JakeFAU/assignment-webapp/internal/notify"
	smtpnotify "github.com/JakeFAU/assignment-webapp/internal/notify/smtp"
	"github.com/JakeFAU/assignment-webapp/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/assignment-webapp/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/assignment-webapp/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/assignment-webapp/internal/queue/memory"
	pubsubqueue "github.com/JakeFAU/assignment-webapp/internal/queue/pubsub"
	gcsstorage "github.com/JakeFAU/assignment-webapp/internal/storage/gcs"
	localstorage "github.com/JakeFAU/assignment-webapp/internal/storage/local"
	memoryStorage "github.com/JakeFAU/assignment-webapp/internal/storage/memory"
	pgstore "github.com/JakeFAU/assignment-webapp/internal/storage/postgres"
	"github.com/JakeFAU/assignment-webapp/internal/store"
	"github.com/JakeFAU/assignment-webapp/internal/submission"
	"github.com/JakeFAU/assignment-webapp/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg            *config.Config
	logger         *zap.Logger
	repo           store.Repository
	apiServer      *api.Server
	consumer       *consumer.Consumer
	dispatch       *dispatcher.Dispatcher
	queue          *queueMemory.Queue
	receiver       *pubsubqueue.Receiver
	pubsubClient   *pubsub.Client
	gcpPublisher   *gcppublisher.Publisher
	storage        *storage.Client
	blobs          consumer.BlobStore
	audits         audit.Store
	auditCloser    io.Closer
	tracerShutdown func(context.Context) error
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) *App {
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("events_backend", cfg.Events.Backend),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("audit_backend", cfg.Audit.Backend),
		zap.String("mail_backend", cfg.Mail.Backend),
		zap.Bool("database", cfg.UsesDatabase()),
	)
	return &App{cfg: cfg, logger: logger}
}

// Handler exposes the HTTP handler, nil for consumer-only apps.
func (a *App) Handler() http.Handler {
	if a.apiServer == nil {
		return nil
	}
	return a.apiServer.Handler()
}

// Run serves HTTP until the context is canceled or a termination signal
// arrives. With the memory event backend the consumer pool runs alongside.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone, stopWorkers := a.startConsumer(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.drainConsumer(shutdownCtx, dispatchDone, stopWorkers)

	return a.Close(shutdownCtx)
}

// startConsumer runs the in-process worker pool. Workers ignore cancellation
// of ctx and stop once the queue is closed and empty, or when the returned
// stop func is called.
func (a *App) startConsumer(ctx context.Context) (<-chan struct{}, context.CancelFunc) {
	done := make(chan struct{})
	if a.dispatch == nil {
		close(done)
		return done, func() {}
	}
	workerCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	go func() {
		defer close(done)
		a.logger.Info("in-process consumer started", zap.Int("workers", a.cfg.Consumer.Workers))
		a.dispatch.Run(workerCtx)
	}()
	return done, stop
}

// drainConsumer closes the queue and waits for buffered events to be
// processed, abandoning them when ctx expires.
func (a *App) drainConsumer(ctx context.Context, done <-chan struct{}, stop context.CancelFunc) {
	defer stop()
	if a.queue != nil {
		a.queue.Close()
	}
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("consumer workers did not drain before shutdown deadline",
			zap.Int("abandoned", a.queueLen()))
	}
}

func (a *App) queueLen() int {
	if a.queue == nil {
		return 0
	}
	return a.queue.Len()
}

// RunConsumer pulls events from the Pub/Sub subscription until the context
// is canceled or a termination signal arrives.
func (a *App) RunConsumer(ctx context.Context) error {
	if a.receiver == nil {
		return errors.New("consumer requires the pubsub events backend")
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info("consumer started", zap.String("subscription", a.cfg.PubSub.Subscription))
	runErr := a.receiver.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		return err
	}
	return runErr
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure()
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.consumer != nil {
		a.consumer.Close()
	}
	if a.gcpPublisher != nil {
		a.gcpPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.auditCloser != nil {
		if err := a.auditCloser.Close(); err != nil {
			a.logger.Warn("audit store close failed", zap.Error(err))
		}
	}
	if a.repo != nil {
		a.repo.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// Build creates the API application: repository, services, publisher and,
// for the memory event backend, the in-process consumer pool.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	app, err := newBase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app.logger.Info("building application dependencies")
	app.repo, err = OpenRepository(ctx, cfg, app.logger)
	if err != nil {
		return nil, err
	}
	if err := seedAccounts(ctx, app); err != nil {
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	ids := uuid.New()
	clock := system.New()
	app.apiServer = api.NewServer(api.Deps{
		Assignments:   assignment.NewService(app.repo, ids, clock, app.logger.Named("assignment")),
		Submissions:   submission.NewService(app.repo, publisher, ids, clock, app.logger.Named("submission")),
		Authenticator: auth.NewAuthenticator(app.repo),
		Database:      app.repo,
	}, api.Options{
		Realm:          cfg.Auth.Realm,
		RequestTimeout: cfg.Server.RequestTimeout,
		PingTimeout:    cfg.Database.PingTimeout,
	}, app.logger)

	return app, nil
}

// BuildConsumer creates a consumer-only application fed by Pub/Sub.
func BuildConsumer(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.Events.Backend != "pubsub" {
		return nil, fmt.Errorf("consume requires events.backend=pubsub, got %q", cfg.Events.Backend)
	}
	app, err := newBase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := setupConsumer(ctx, app); err != nil {
		return nil, err
	}
	app.pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	sub := app.pubsubClient.Subscription(cfg.PubSub.Subscription)
	app.receiver = pubsubqueue.New(sub, app.consumer, cfg.PubSub.MaxOutstanding, app.logger)
	app.logger.Info("pubsub receiver initialized",
		zap.String("project", cfg.PubSub.ProjectID),
		zap.String("subscription", cfg.PubSub.Subscription),
	)
	return app, nil
}

func newBase(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := NewApp(cfg, logger)
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     cfg.Telemetry.Version,
		ProjectID:   cfg.Telemetry.ProjectID,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown
	return app, nil
}

// OpenRepository returns the Postgres repository when a DSN is configured,
// applying the schema if enabled, and the in-memory repository otherwise.
func OpenRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Repository, error) {
	if !cfg.UsesDatabase() {
		logger.Warn("no database DSN configured, using in-memory repository")
		return memoryStorage.NewRepository(), nil
	}
	repo, err := pgstore.New(ctx, pgstore.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres repository init failed: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}
		logger.Info("database schema applied")
	}
	return repo, nil
}

func seedAccounts(ctx context.Context, app *App) error {
	path := app.cfg.Accounts.SeedFile
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		app.logger.Warn("account seed file not found, skipping", zap.String("path", path))
		return nil
	}
	seeder := account.NewSeeder(app.repo, uuid.New(), system.New(), app.cfg.Auth.BcryptCost, app.logger.Named("seeder"))
	res, err := seeder.SeedFile(ctx, path)
	if err != nil {
		return fmt.Errorf("seed accounts: %w", err)
	}
	app.logger.Info("accounts seeded", zap.Int("created", res.Created), zap.Int("skipped", res.Skipped))
	return nil
}

func setupPublisher(ctx context.Context, app *App) (submission.Publisher, error) {
	if app.cfg.Events.Backend != "pubsub" {
		if err := setupConsumer(ctx, app); err != nil {
			return nil, err
		}
		app.queue = queueMemory.NewQueue(app.cfg.Events.QueueDepth)
		app.dispatch = dispatcher.NewPool(app.queue, app.consumer, app.cfg.Consumer.Workers, app.logger)
		app.logger.Info("using in-memory event channel", zap.Int("queue_depth", app.cfg.Events.QueueDepth))
		return memorypublisher.New(app.dispatch), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.gcpPublisher = gcppublisher.New(app.pubsubClient.Topic(app.cfg.PubSub.Topic))
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.Topic),
	)
	return app.gcpPublisher, nil
}

func setupConsumer(ctx context.Context, app *App) error {
	blobs, err := setupStorage(ctx, app)
	if err != nil {
		return err
	}
	audits, err := setupAudit(ctx, app)
	if err != nil {
		return err
	}
	notifier, err := setupNotifier(app)
	if err != nil {
		return err
	}
	app.blobs = blobs
	app.audits = audits
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   app.cfg.Consumer.UserAgent,
		MaxBodySize: app.cfg.Consumer.MaxArchiveBytes,
	}).WithRateLimiter(ratelimit.New(ratelimit.Config{
		RPS:   app.cfg.Consumer.FetchRPS,
		Burst: app.cfg.Consumer.FetchBurst,
	}))
	app.consumer = consumer.New(consumer.Config{
		InvocationTimeout: app.cfg.Consumer.InvocationTimeout,
		DedupWindow:       app.cfg.Consumer.DedupWindow,
	}, fetcher, blobs, notifier, audits, uuid.New(), app.logger)
	app.logger.Info("consumer configured",
		zap.Duration("invocation_timeout", app.cfg.Consumer.InvocationTimeout),
		zap.Duration("dedup_window", app.cfg.Consumer.DedupWindow),
	)
	return nil
}

func setupStorage(ctx context.Context, app *App) (consumer.BlobStore, error) {
	switch app.cfg.Storage.Backend {
	case "gcs":
		app.logger.Info("using GCS storage backend", zap.String("bucket", app.cfg.Storage.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: app.cfg.Storage.Bucket,
			Prefix: app.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobs, nil
	case "local":
		app.logger.Info("using local storage backend", zap.String("path", app.cfg.Storage.Local.BaseDir))
		blobs, err := localstorage.New(app.cfg.Storage.Local)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobs, nil
	default:
		app.logger.Info("using in-memory storage backend")
		return memoryStorage.NewBlobStore(), nil
	}
}

func setupAudit(ctx context.Context, app *App) (audit.Store, error) {
	if app.cfg.Audit.Backend != "redis" {
		app.logger.Info("using in-memory audit store")
		return audit.NewMemoryStore(), nil
	}
	rs, err := redisaudit.New(redisaudit.Config{
		Addr:      app.cfg.Audit.Redis.Addr,
		Password:  app.cfg.Audit.Redis.Password,
		DB:        app.cfg.Audit.Redis.DB,
		KeyPrefix: app.cfg.Audit.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("redis audit store init failed: %w", err)
	}
	if err := rs.Ping(ctx); err != nil {
		app.logger.Warn("redis audit store not reachable yet", zap.Error(err))
	}
	app.auditCloser = rs
	app.logger.Info("using redis audit store", zap.String("addr", app.cfg.Audit.Redis.Addr))
	return rs, nil
}

func setupNotifier(app *App) (notify.Notifier, error) {
	if app.cfg.Mail.Backend != "smtp" {
		app.logger.Info("email notifications are logged only")
		return notify.NewLogNotifier(app.logger.Named("mail")), nil
	}
	n, err := smtpnotify.New(smtpnotify.Config{
		Host:     app.cfg.Mail.Host,
		Port:     app.cfg.Mail.Port,
		Username: app.cfg.Mail.Username,
		Password: app.cfg.Mail.Password,
		From:     app.cfg.Mail.From,
	})
	if err != nil {
		return nil, fmt.Errorf("smtp notifier init failed: %w", err)
	}
	app.logger.Info("using smtp notifier", zap.String("host", app.cfg.Mail.Host))
	return n, nil
}
