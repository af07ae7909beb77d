package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/lmittmann/tint"

	"aipilot-gateway/internal/capability"
	"aipilot-gateway/internal/config"
	"aipilot-gateway/internal/db"
	"aipilot-gateway/internal/facade/site"
	"aipilot-gateway/internal/logbus"
	"aipilot-gateway/internal/metrics"
	"aipilot-gateway/internal/providers/gemini"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	var sqlDB *sql.DB
	if cfg.MySQLDSN != "" {
		sqlDB, err = db.Open(cfg.MySQLDSN)
		if err != nil {
			logger.Error("db open", "err", err)
			os.Exit(1)
		}
		defer sqlDB.Close()
		if err := db.Migrate(sqlDB); err != nil {
			logger.Error("db migrate", "err", err)
			os.Exit(1)
		}
	}

	specs := capability.NewSpecs()
	if cfg.PromptsFile != "" {
		specs, err = capability.LoadOverrides(cfg.PromptsFile, specs)
		if err != nil {
			logger.Error("prompt overrides", "err", err)
			os.Exit(1)
		}
		logger.Info("loaded prompt overrides", "file", cfg.PromptsFile)
	}

	m := metrics.New()
	bus := logbus.New(sqlDB, logger, 500)

	client := gemini.NewClient(gemini.Upstream{
		BaseURL: cfg.GeminiBaseURL,
		APIKey:  cfg.GeminiAPIKey,
	})
	invoker := capability.NewInvoker(client, logger)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Mount("/metrics", m.Handler())

	h := site.NewHandler(invoker, specs, m, bus, logger, cfg.AITimeout)
	r.Mount("/api/ai", h.Routes())

	if cfg.AdminToken != "" {
		admin := chi.NewRouter()
		admin.Use(adminAuthMiddleware(cfg.AdminToken))
		admin.Get("/logs/stream", bus.ServeSSE)
		r.Mount("/admin", admin)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func newLogger(w *os.File, level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
}

func adminAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(got, "Bearer ") {
				got = strings.TrimSpace(strings.TrimPrefix(got, "Bearer "))
			}
			if got == "" {
				got = strings.TrimSpace(r.URL.Query().Get("token"))
			}
			if got != token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
