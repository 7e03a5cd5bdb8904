package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	nats "github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/record-service/config"
	httpadapter "github.com/example/record-service/internal/adapters/http"
	apiv1 "github.com/example/record-service/internal/adapters/http/api/v1"
	handlers "github.com/example/record-service/internal/adapters/http/api/v1/handlers"
	authmw "github.com/example/record-service/internal/adapters/http/middleware"
	"github.com/example/record-service/internal/adapters/mailer"
	natsadapter "github.com/example/record-service/internal/adapters/nats"
	repo "github.com/example/record-service/internal/adapters/postgres"
	redisstore "github.com/example/record-service/internal/adapters/redis"
	"github.com/example/record-service/internal/adapters/tabular"
	"github.com/example/record-service/internal/usecase"
	pkglog "github.com/example/record-service/pkg/log"
)

const mailQueueGroup = "record-service-mail"

type App struct {
	cfg      *config.Config
	logger   pkglog.Logger
	db       *gorm.DB
	redis    *redis.Client
	natsConn *nats.Conn
	echo     *echo.Echo
	sessions *usecase.SessionManager
	wg       sync.WaitGroup
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := pkglog.New(cfg.AppEnv, cfg.LogLevel)

	db, err := gorm.Open(postgres.Open(buildDSN(cfg)), &gorm.Config{
		Logger:         loggerForGorm(cfg),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := repo.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis ping failed, continuing")
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName), nats.MaxReconnects(-1))
	if err != nil {
		logger.Warn().Err(err).Msg("nats connect failed, mail is sent in-process")
		nc = nil
	}

	smtpClient, err := mailer.NewSMTPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	smtp := mailer.New(smtpClient, cfg.MailFrom, cfg.MailFromName)

	store := repo.NewStore(db)
	kv := redisstore.New(rdb)

	signer, err := usecase.NewJWTSigner(cfg)
	if err != nil {
		return nil, err
	}
	codec := usecase.NewTokenCodec(signer, kv, cfg.AccessTTL)
	sessions := usecase.NewSessionManager(store)

	var notifier usecase.OTPNotifier = smtp
	if nc != nil {
		notifier = natsadapter.NewOTPPublisher(nc, cfg.NATSMailSubject)
		if _, err := natsadapter.NewMailWorker(smtp, logger).Subscribe(nc, cfg.NATSMailSubject, mailQueueGroup); err != nil {
			return nil, fmt.Errorf("subscribe mail worker: %w", err)
		}
		if _, err := natsadapter.NewVerifyHandler(codec, logger).Subscribe(nc, cfg.NATSVerifySubject, cfg.AppName); err != nil {
			return nil, fmt.Errorf("subscribe verify handler: %w", err)
		}
	}

	authService := usecase.NewAuthService(cfg, logger, store, sessions, codec, usecase.NewBcryptHasher(bcrypt.DefaultCost), notifier)
	guard := usecase.NewOwnershipGuard(store)
	jobs := usecase.NewJobTracker(kv, store, cfg.JobStateTTL, logger)
	datasetService := usecase.NewDatasetService(cfg, logger, store, guard, tabular.NewCodec(cfg.UploadMaxBytes), jobs)
	recordService := usecase.NewRecordService(cfg, logger, store, guard)

	authMW := authmw.NewAuthMiddleware(authService)
	apiRouter := apiv1.NewRouter(apiv1.Handlers{
		Auth:    handlers.NewAuthHandler(authService, handlers.NewCookiePolicy(cfg.IsProduction(), cfg.DeviceCookieMaxAge)),
		User:    handlers.NewUserHandler(),
		Dataset: handlers.NewDatasetHandler(datasetService),
		Record:  handlers.NewRecordHandler(recordService),
		Job:     handlers.NewJobHandler(jobs),
	}, authMW.Handler)

	router := httpadapter.NewRouter(cfg, logger, apiRouter, healthChecks(db, rdb, nc))
	e := echo.New()
	router.Setup(e)

	return &App{cfg: cfg, logger: logger, db: db, redis: rdb, natsConn: nc, echo: e, sessions: sessions}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.sessions.RunReaper(ctx, a.cfg.SessionSweepEvery, a.logger)
	}()

	errCh := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.echo.Shutdown(shutdownCtx)
	}()
	go func() {
		addr := fmt.Sprintf("%s:%s", a.cfg.HTTPHost, a.cfg.HTTPPort)
		a.logger.Info().Str("addr", addr).Msg("http server listening")
		errCh <- a.echo.Start(addr)
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close releases every client. Run's context must be cancelled first so the
// reaper has stopped.
func (a *App) Close() {
	a.wg.Wait()
	if a.natsConn != nil {
		_ = a.natsConn.Drain()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func healthChecks(db *gorm.DB, rdb *redis.Client, nc *nats.Conn) map[string]httpadapter.HealthCheck {
	checks := map[string]httpadapter.HealthCheck{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	if nc != nil {
		checks["nats"] = func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}
	}
	return checks
}

func buildDSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
}

func loggerForGorm(cfg *config.Config) logger.Interface {
	level := logger.Warn
	if cfg.AppEnv == "local" {
		level = logger.Info
	}
	return logger.Default.LogMode(level)
}
