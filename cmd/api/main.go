package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/mealpedant/api/internal/api"
	"github.com/mealpedant/api/internal/auth"
	"github.com/mealpedant/api/internal/backup"
	"github.com/mealpedant/api/internal/config"
	"github.com/mealpedant/api/internal/kv"
	"github.com/mealpedant/api/internal/mailer"
	"github.com/mealpedant/api/internal/meal"
	"github.com/mealpedant/api/internal/photo"
	"github.com/mealpedant/api/internal/ratelimit"
	"github.com/mealpedant/api/internal/session"
	"github.com/mealpedant/api/internal/static"
	"github.com/mealpedant/api/internal/user"
	"github.com/mealpedant/api/pkg/logger"
)

func main() {
	// Env files only exist in dev; production relies on real env vars.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	env := "development"
	if cfg.Production {
		env = "production"
	}
	log, err := logger.Setup(env, cfg.LocationLogs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log.Info("application_startup", "env", env, "version", api.Version)

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         dsn,
			Environment: env,
		}); err != nil {
			log.Error("sentry_init_failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
			log.Info("sentry_initialized")
		}
	}

	ctx := context.Background()

	poolConfig, err := pgxpool.ParseConfig(cfg.PostgresDSN())
	if err != nil {
		log.Error("database_dsn_parse_failed", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 20

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Error("database_pool_create_failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Error("database_ping_failed", "error", err)
		os.Exit(1)
	}
	log.Info("database_connected")

	kvc, err := kv.New(kv.Config{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Error("kv_connect_failed", "error", err)
		os.Exit(1)
	}
	defer kvc.Close()
	log.Info("kv_connected")

	users := user.NewStore(pool)
	sessions := session.NewStore(kvc, users)
	cookies := session.NewCookieJar(cfg.CookieName, cfg.CookieSecret, cfg.Domain, cfg.Production)
	limiter := ratelimit.NewLimiter(kvc, sessions)

	mail := mailer.NewService(mailer.Config{
		Host:    cfg.EmailHost,
		Port:    cfg.EmailPort,
		Name:    cfg.EmailName,
		Address: cfg.EmailAddress,
		Pass:    cfg.EmailPass,
	}, cfg.Production, log)

	authService := auth.NewService(
		users, sessions, kvc, mail,
		auth.NewHasher(cfg.Production),
		auth.NewHIBPClient(),
		cfg.Invite, cfg.Domain,
	)

	meals := meal.NewStore(pool)
	cache := meal.NewCache(meals, kvc)

	converter, err := photo.NewConverter(cfg.LocationWatermark)
	if err != nil {
		log.Error("watermark_load_failed", "error", err)
		os.Exit(1)
	}
	photos := photo.NewService(cfg.LocationPhotoOriginal, cfg.LocationPhotoConverted, converter, log)

	backups := backup.NewRunner(backup.Config{
		BackupDir:  cfg.LocationBackup,
		TempDir:    cfg.LocationTemp,
		StaticDir:  cfg.LocationStatic,
		RedisFile:  cfg.LocationRedis,
		LogFile:    cfg.LocationLogs,
		Passphrase: cfg.BackupPass,
		PgHost:     cfg.PgHost,
		PgPort:     cfg.PgPort,
		PgUser:     cfg.PgUser,
		PgPass:     cfg.PgPass,
		PgDatabase: cfg.PgDatabase,
	}, log)

	scheduler, err := backup.NewScheduler(backups, log)
	if err != nil {
		log.Error("scheduler_init_failed", "error", err)
		os.Exit(1)
	}

	state := &api.State{
		Auth:       authService,
		Users:      users,
		Sessions:   sessions,
		Cookies:    cookies,
		Limiter:    limiter,
		Meals:      meals,
		Cache:      cache,
		Photos:     photos,
		Backups:    backups,
		Log:        log,
		Production: cfg.Production,
		StartedAt:  time.Now(),
	}

	origins := []string{
		"http://localhost:8080",
		"http://127.0.0.1:8080",
	}
	if cfg.Production {
		origins = []string{
			"https://" + cfg.Domain,
			"https://www." + cfg.Domain,
		}
	}

	apiServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
		Handler:      api.NewRouter(state, origins),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	staticServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.StaticHost, cfg.StaticPort),
		Handler:      static.NewRouter(state, cfg.LocationPublic),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	mail.Start(workerCtx)
	scheduler.Start()

	serverErrors := make(chan error, 2)
	go func() {
		log.Info("api_server_listening", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	go func() {
		log.Info("static_server_listening", "addr", staticServer.Addr)
		if err := staticServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server_startup_failed", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		log.Info("shutdown_signal_received", "signal", sig.String())

		drainCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(drainCtx); err != nil {
			log.Error("api_shutdown_failed", "error", err)
			_ = apiServer.Close()
		}
		if err := staticServer.Shutdown(drainCtx); err != nil {
			log.Error("static_shutdown_failed", "error", err)
			_ = staticServer.Close()
		}

		scheduler.Stop()
		stopWorkers()
		pool.Close()
		log.Info("server_shutdown_complete")
	}
}
