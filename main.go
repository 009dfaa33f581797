package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/username/fincoach/backend/src/config"
	"github.com/username/fincoach/backend/src/database"
	"github.com/username/fincoach/backend/src/handlers"
	"github.com/username/fincoach/backend/src/logger"
	"github.com/username/fincoach/backend/src/parsers/csvbank"
	"github.com/username/fincoach/backend/src/processors"
	"github.com/username/fincoach/backend/src/security"
	"github.com/username/fincoach/backend/src/services"
	"github.com/username/fincoach/backend/src/store"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000":    true,
			config.Cfg.FrontendBaseURL: true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("FinCoach backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Warn("JWT_SECRET is shorter than 32 characters; use a stronger secret in production.")
	}

	var dataStore store.Store
	if config.Cfg.UseMemoryStore {
		logger.L.Info("Using in-memory store for local development")
		dataStore = store.NewMemoryStore()
	} else {
		logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
		database.InitDB(config.Cfg.DatabasePath)
		database.RunMigrations(config.Cfg.DatabasePath, config.Cfg.MigrationsPath)
		dataStore = store.NewSQLiteStore(database.DB)
	}

	reportCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	authService := security.NewAuthService(config.Cfg.JWTSecret, config.Cfg.AccessTokenExpiry)

	anomalyProcessor := processors.NewAnomalyProcessor()
	insightProcessor := processors.NewInsightProcessor()

	anomalyService := services.NewAnomalyService(
		dataStore,
		anomalyProcessor,
		config.Cfg.AnomalyBaseThreshold,
		reportCache,
	)
	statementService := services.NewStatementService(dataStore, csvbank.NewParser(), config.Cfg.BaseCurrency)

	userHandler := handlers.NewUserHandler(authService, dataStore)
	txHandler := handlers.NewTransactionHandler(dataStore, anomalyService, statementService)
	anomalyHandler := handlers.NewAnomalyHandler(anomalyService)
	merchantHandler := handlers.NewMerchantHandler(dataStore, anomalyService)
	insightHandler := handlers.NewInsightHandler(dataStore, insightProcessor)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "FinCoach Backend is running"})
	})

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			r.Post("/auth/register", userHandler.RegisterUserHandler)
			r.Post("/auth/login", userHandler.LoginUserHandler)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(userHandler.AuthMiddleware)

			r.Get("/transactions", txHandler.HandleGetTransactions)
			r.Post("/transactions/manual", txHandler.HandleAddManualTransaction)
			r.Post("/transactions/import", txHandler.HandleImportTransactions)
			r.Post("/transactions/upload", txHandler.HandleUploadStatement)
			r.Delete("/transactions/all", txHandler.HandleDeleteAllTransactions)

			r.Get("/anomalies", anomalyHandler.HandleGetAnomalies)
			r.Get("/anomalies/history", anomalyHandler.HandleGetAnomalyHistory)
			r.Post("/anomalies/feedback", anomalyHandler.HandleRecordFeedback)
			r.Post("/anomalies/{transactionID}/feedback", anomalyHandler.HandleResolveAnomaly)

			r.Get("/merchants/trusted", merchantHandler.HandleListTrustedMerchants)
			r.Post("/merchants/trusted", merchantHandler.HandleAddTrustedMerchant)
			r.Delete("/merchants/trusted/{name}", merchantHandler.HandleRemoveTrustedMerchant)

			r.Get("/insights", insightHandler.HandleGetInsights)
			r.Get("/insights/category-totals", insightHandler.HandleGetCategoryTotals)
			r.Get("/insights/trend", insightHandler.HandleGetSpendingTrend)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
		}
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
