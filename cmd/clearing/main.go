package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/credex-network/clearing/internal/config"
	"github.com/credex-network/clearing/internal/handler"
	"github.com/credex-network/clearing/internal/integrations/backups"
	"github.com/credex-network/clearing/internal/integrations/credexapi"
	"github.com/credex-network/clearing/internal/integrations/openexchange"
	"github.com/credex-network/clearing/internal/integrations/rbz"
	"github.com/credex-network/clearing/internal/middleware"
	"github.com/credex-network/clearing/internal/repository"
	"github.com/credex-network/clearing/internal/scheduler"
	"github.com/credex-network/clearing/internal/service"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}

	// Initialize layers
	repo := repository.NewRepository(db)
	secured := service.NewSecuredCalculator(repo, logger)
	loops := service.NewLoopFinder(repo, logger)
	mtq := service.NewMTQ(repo, loops, logger, cfg.MTQWarnAfter)

	primary := openexchange.NewClient(cfg, logger)
	secondary := rbz.NewClient(cfg, logger)
	pipeline := credexapi.NewClient(cfg, logger)
	backup := backups.NewClient(cfg, logger)

	dco := service.NewDCO(repo, secured, primary, secondary, pipeline, backup, logger, cfg.DCOPollInterval)
	avatars := service.NewAvatarProcessor(repo, pipeline, logger)

	// Register and start the periodic jobs
	sched := scheduler.NewScheduler(mtq, dco, avatars, repo, logger)
	if err := sched.RegisterAll(cfg.MTQSchedule, cfg.DCOSchedule); err != nil {
		logger.Fatalf("Failed to register jobs: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Setup router
	h := handler.NewHandler(sched, logger)
	r := mux.NewRouter()
	r.HandleFunc("/health", h.Health).Methods("GET")
	jobsRouter := r.PathPrefix("/jobs").Subrouter()
	jobsRouter.Use(middleware.AuthMiddleware(cfg))
	jobsRouter.HandleFunc("/mtq/run", h.RunMTQ).Methods("POST")
	jobsRouter.HandleFunc("/dco/run", h.RunDCO).Methods("POST")

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // a manual daily rebase can run long
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}
