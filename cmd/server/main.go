package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"reviso/internal/auth"
	"reviso/internal/config"
	"reviso/internal/handler"
	"reviso/internal/middleware"
	"reviso/internal/policy"
	"reviso/internal/repository/postgres"
	"reviso/internal/repository/tokenbadger"
	"reviso/internal/service"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}

	logOutput := io.Writer(os.Stdout)
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, 10)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer logFile.Close()
		logOutput = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	// Load the editing policy (embedded defaults unless overridden)
	var pol *policy.Policy
	var err error
	if cfg.PolicyPath != "" {
		pol, err = policy.LoadFile(cfg.PolicyPath)
	} else {
		pol, err = policy.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load editing policy: %v", err)
	}

	// Create the token verifier. Without a JWKS URL the dev verifier is used,
	// and only outside production.
	var verifier auth.TokenVerifier
	if cfg.JWKSURL != "" {
		verifier, err = auth.NewJWTVerifier(cfg.JWKSURL, logger)
		if err != nil {
			log.Fatalf("Failed to create JWT verifier: %v", err)
		}
	} else {
		if cfg.Environment == "prod" {
			log.Fatal("JWKS_URL is required in production")
		}
		verifier = auth.NewDevVerifier(logger)
	}
	defer verifier.Close()

	// Create pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected",
		"max_conns", 25,
		"min_conns", 5,
	)

	// Create table names and run idempotent migrations
	tables := postgres.NewTableNames(cfg.TablePrefix)
	if err := postgres.Migrate(ctx, pool, tables); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	docRepo := postgres.NewDocumentRepository(repoConfig)
	revRepo := postgres.NewRevisionRepository(repoConfig)
	activeRepo := postgres.NewActiveRevisionRepository(repoConfig)
	blockRepo := postgres.NewBlockRepository(repoConfig)
	opRepo := postgres.NewEditOperationRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	// Confirm-token store: embedded badger, in-memory unless a path is set
	var tokenStore *tokenbadger.Store
	if cfg.TokenStorePath != "" {
		tokenStore, err = tokenbadger.Open(cfg.TokenStorePath, logger)
	} else {
		tokenStore, err = tokenbadger.OpenInMemory(logger)
	}
	if err != nil {
		log.Fatalf("Failed to open token store: %v", err)
	}
	defer tokenStore.Close()

	// Create services
	docService := service.NewDocumentService(docRepo, revRepo, activeRepo, blockRepo, txManager, pol, logger)
	editorService := service.NewEditorService(docRepo, revRepo, activeRepo, blockRepo, opRepo, txManager, pol, logger)
	previewService := service.NewPreviewService(activeRepo, blockRepo, tokenStore, editorService, pol, logger)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", handler.Health)

	// Document and edit routes
	handler.NewDocumentHandler(docService, logger).Register(mux)
	handler.NewEditHandler(previewService, logger).Register(mux)

	// Build middleware chain
	var root http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → Routes
	root = middleware.Auth(verifier, logger)(root)
	root = middleware.Recovery(logger)(root)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
	})
	root = corsHandler.Handler(root)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
