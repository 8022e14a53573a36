package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"equipshare-backend/internal/clock"
	"equipshare-backend/internal/config"
	"equipshare-backend/internal/events"
	"equipshare-backend/internal/jobs"
	"equipshare-backend/internal/logger"
	"equipshare-backend/internal/metrics"
	"equipshare-backend/internal/notify"
	"equipshare-backend/internal/repository/postgres"
	"equipshare-backend/internal/scheduler"
	"equipshare-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'report-overdue-transfers', 'reconcile-transfers', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Store.Driver != "postgres" {
		log.Fatalf("Cronjob runner requires the postgres store, got %q", cfg.Store.Driver)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting EquipShare Cronjob Runner...", "log_level", cfg.Log.Level)

	// Initialize Database
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	// Initialize Repositories
	store := postgres.NewStore(db)

	// Reconciliation may cancel requests; those events reach the log only.
	bus := events.NewBus(cfg.EventTimeout())
	bus.Subscribe("log", events.LogListener)

	m := metrics.New()
	services := service.New(service.Dependencies{
		Requests:      store.RequestRepository,
		Transfers:     store.TransferRepository,
		Equipment:     store.EquipmentRepository,
		Organizations: store.OrganizationRepository,
		Clock:         clock.System{},
		Events:        bus,
		Metrics:       m,
		Policy:        service.CallPolicy{Timeout: cfg.StoreTimeout(), Retries: cfg.Store.Retries},
	})

	jobServices := &jobs.Services{
		Transfers:  services.Transfers,
		Reconciler: services.Reconciler,
		Metrics:    m,
	}
	if cfg.SendGrid.APIKey != "" {
		jobServices.Reminders = notify.NewEmailNotifier(cfg.SendGrid.APIKey, cfg.SendGrid.FromEmail, cfg.SendGrid.FromName, store.OrganizationRepository)
	}

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(jobServices, cfg, clock.System{})

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		log.Fatalf("Failed to schedule jobs: %v", err)
	}

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once and exits
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "report-overdue-transfers":
		jobRunner.ReportOverdueTransfers()
	case "reconcile-transfers":
		jobRunner.ReconcileTransfers()
	case "all":
		jobRunner.RunAll()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - report-overdue-transfers\n")
		fmt.Printf("  - reconcile-transfers\n")
		fmt.Printf("  - all\n")
		os.Exit(1)
	}
}
