package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/pubdesk/pubdesk/internal/admin"
	"github.com/pubdesk/pubdesk/internal/app"
	"github.com/pubdesk/pubdesk/internal/articles"
	"github.com/pubdesk/pubdesk/internal/authz"
	"github.com/pubdesk/pubdesk/internal/identity"
	"github.com/pubdesk/pubdesk/internal/observability"
	"github.com/pubdesk/pubdesk/internal/platform/cache"
	"github.com/pubdesk/pubdesk/internal/platform/db"
	"github.com/pubdesk/pubdesk/internal/profiles"
	"github.com/pubdesk/pubdesk/internal/shared"
	"github.com/pubdesk/pubdesk/internal/view"
	"github.com/pubdesk/pubdesk/internal/watch"
	"github.com/pubdesk/pubdesk/jobs"
	"github.com/pubdesk/pubdesk/web"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	csrfKey, err := shared.DeriveKey(cfg.AppSecret, "csrf")
	if err != nil {
		logger.Error("derive csrf key", slog.Any("error", err))
		os.Exit(1)
	}

	sessionManager := shared.NewSessionManager(redisClient, "pubdesk_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(csrfKey)

	templates, err := view.NewEngine(web.Templates)
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	profileRepo := profiles.NewRepository(pool)
	profileService := profiles.NewService(profileRepo, logger)

	gate := &authz.Gate{
		Logger:    logger,
		Profiles:  profileService,
		Sessions:  sessionManager,
		LoginPath: "/welcome",
	}

	authenticator, err := identity.NewAuthenticator(ctx, cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret, cfg.OIDCRedirectURL())
	if err != nil {
		logger.Error("init oidc", slog.Any("error", err))
		os.Exit(1)
	}
	identityRepo := identity.NewRepository(pool)
	identityHandler := identity.NewHandler(logger, authenticator, profileService, sessionManager, identityRepo, cfg.AllowedEmailDomain)

	hub := watch.NewHub(redisClient, logger)

	articleRepo := articles.NewRepository(pool)
	articleService := articles.NewService(articleRepo, hub, logger)
	articlesHandler := articles.NewHandler(logger, articleService, templates, csrfManager, hub)

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	adminHandler := admin.NewHandler(logger, profileService, templates, csrfManager, queueClient)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Templates:       templates,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		Gate:            gate,
		IdentityHandler: identityHandler,
		ArticlesHandler: articlesHandler,
		AdminHandler:    adminHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
