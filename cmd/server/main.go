package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	grpcapi "equipshare-backend/internal/api/grpc"
	"equipshare-backend/internal/api/grpc/interceptor"
	httpapi "equipshare-backend/internal/api/http"
	"equipshare-backend/internal/clock"
	"equipshare-backend/internal/config"
	"equipshare-backend/internal/events"
	"equipshare-backend/internal/logger"
	"equipshare-backend/internal/metrics"
	"equipshare-backend/internal/notify"
	"equipshare-backend/internal/repository"
	"equipshare-backend/internal/repository/memory"
	"equipshare-backend/internal/repository/postgres"
	"equipshare-backend/internal/security"
	"equipshare-backend/internal/service"
)

// stores groups the repositories the server is wired with.
type stores struct {
	requests      repository.RequestRepository
	transfers     repository.TransferRepository
	equipment     repository.EquipmentRepository
	organizations repository.OrganizationRepository
	ping          httpapi.Pinger
}

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting EquipShare Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress(), "grpc_address", cfg.GetGRPCAddress(), "store", cfg.Store.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Repositories
	st, closeStore := openStore(ctx, cfg)
	defer closeStore()

	// Initialize Metrics
	m := metrics.New()

	// Initialize Event fan-out
	bus := events.NewBus(cfg.EventTimeout())
	bus.Subscribe("log", events.LogListener)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis is not reachable; events will be retried per publish", "addr", cfg.Redis.Addr, "error", err)
		}
		bus.Subscribe("redis", events.NewRedisPublisher(rdb, cfg.Redis.Channel).Listen)
		logger.Info("Publishing events to Redis", "addr", cfg.Redis.Addr)
	}

	if cfg.SendGrid.APIKey != "" {
		email := notify.NewEmailNotifier(cfg.SendGrid.APIKey, cfg.SendGrid.FromEmail, cfg.SendGrid.FromName, st.organizations)
		bus.Subscribe("email", email.Listen)
		logger.Info("Email notifications enabled", "from", cfg.SendGrid.FromEmail)
	}

	if cfg.Firebase.Enabled {
		push, err := notify.NewFirebasePush(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			logger.Error("Failed to initialize push notifications", "error", err)
			log.Fatalf("Failed to initialize push notifications: %v", err)
		}
		bus.Subscribe("push", push.Listen)
		logger.Info("Push notifications enabled", "project_id", cfg.Firebase.ProjectID)
	}

	// Initialize Services
	services := service.New(service.Dependencies{
		Requests:      st.requests,
		Transfers:     st.transfers,
		Equipment:     st.equipment,
		Organizations: st.organizations,
		Clock:         clock.System{},
		Events:        bus,
		Metrics:       m,
		Policy:        service.CallPolicy{Timeout: cfg.StoreTimeout(), Retries: cfg.Store.Retries},
	})

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.AccessTokenTTL())

	router := httpapi.NewRouter(httpapi.RouterDeps{
		Requests:     services.Requests,
		Transfers:    services.Transfers,
		TokenManager: tokenManager,
		Health:       st.ping,
		Metrics:      m.Handler(),
	})
	httpServer := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Set up gRPC health server
	var grpcServer interface{ GracefulStop() }
	if addr := cfg.GetGRPCAddress(); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Error("Failed to listen", "error", err, "address", addr)
			log.Fatalf("Failed to listen: %v", err)
		}
		monitor := grpcapi.NewHealthMonitor(st.ping, 15*time.Second)
		s := grpcapi.NewServer(interceptor.NewAuthInterceptor(tokenManager), monitor)
		grpcServer = s
		go monitor.Run(ctx)
		go func() {
			logger.Info("gRPC health server listening", "address", addr)
			if err := s.Serve(lis); err != nil {
				logger.Error("gRPC server error", "error", err)
			}
		}()
	}

	go func() {
		logger.Info("HTTP server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	logger.Info("Server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (stores, func()) {
	if cfg.Store.Driver == "memory" {
		mem := memory.NewStore()
		if cfg.Store.SeedFile != "" {
			if err := mem.LoadSeed(cfg.Store.SeedFile); err != nil {
				log.Fatalf("Failed to load seed: %v", err)
			}
		}
		logger.Warn("Using in-memory store; data is lost on restart", "seed_file", cfg.Store.SeedFile)
		return stores{
			requests:      mem.Requests,
			transfers:     mem.Transfers,
			equipment:     mem.Equipment,
			organizations: mem.Organizations,
		}, func() {}
	}

	// Initialize Database
	logger.Debug("Connecting to database...", "connection_string", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database))
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Test database connection
	if err := db.PingContext(ctx); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
	}

	store := postgres.NewStore(db)
	return stores{
		requests:      store.RequestRepository,
		transfers:     store.TransferRepository,
		equipment:     store.EquipmentRepository,
		organizations: store.OrganizationRepository,
		ping:          store,
	}, func() { db.Close() }
}
