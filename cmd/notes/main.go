package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/notes_service/internal/config"
	"github.com/Skotchmaster/notes_service/internal/events"
	"github.com/Skotchmaster/notes_service/internal/httpserver"
	"github.com/Skotchmaster/notes_service/internal/oauth"
	"github.com/Skotchmaster/notes_service/internal/repo"
	"github.com/Skotchmaster/notes_service/internal/service"
	pkgdb "github.com/Skotchmaster/notes_service/pkg/db"
	"github.com/Skotchmaster/notes_service/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("notice: .env not loaded: %v, using process environment", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := pkgdb.Open(ctx, cfg.DatabaseURL, cfg.Pool)
	cancel()
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := repo.Migrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	publisher := events.NewPublisher(cfg.KafkaBrokers, logger)
	google := oauth.NewGoogleVerifier(cfg.GoogleClientID, cfg.GoogleCertsURL)
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := google.Warm(warmCtx); err != nil {
		logger.Warn("google certs not loaded, retrying on first login", "error", err)
	}
	warmCancel()

	r := repo.New(db, cfg.QueryTimeout)
	authSvc := &service.AuthService{
		Repo:          r,
		Google:        google,
		Events:        publisher,
		JWTSecret:     cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
	}
	notesSvc := &service.NotesService{Repo: r, Events: publisher}

	var ipExtractor echo.IPExtractor
	if cfg.TrustProxy {
		ipExtractor = echo.ExtractIPFromXFFHeader()
	}

	e := echo.New()
	e.HideBanner = true
	httpserver.Register(e, &httpserver.Deps{
		Logger:       logger,
		AuthHandler:  &httpserver.AuthHTTP{Svc: authSvc, SecureCookies: cfg.Production()},
		NotesHandler: &httpserver.NotesHTTP{Svc: notesSvc},
		JWTSecret:    cfg.JWTAccessSecret,
		FrontendURL:  cfg.FrontendURL,
		GeneralLimit: httpserver.DefaultGeneralLimit,
		AuthLimit:    httpserver.DefaultAuthLimit,
		IPExtractor:  ipExtractor,
		Ready:        func(ctx context.Context) error { return pkgdb.Ping(ctx, db) },
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() {
		logger.Info("notes listening", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	closeAll(logger, db, publisher, google)

	logger.Info("notes stopped")
}

func closeAll(l *slog.Logger, db *gorm.DB, publisher events.Publisher, google *oauth.GoogleVerifier) {
	google.Close()
	if err := publisher.Close(); err != nil {
		l.Error("kafka close", "error", err)
	}
	if err := pkgdb.Close(db); err != nil {
		l.Error("db close", "error", err)
	}
}
