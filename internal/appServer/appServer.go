package appServer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pawsuite/paycore/config"
	repository "github.com/pawsuite/paycore/internal/database/postgres"
	"github.com/pawsuite/paycore/internal/service"
	"github.com/pawsuite/paycore/internal/transport"
	"github.com/pawsuite/paycore/internal/worker"

	"github.com/pawsuite/paycore/pkg/payout"
	"github.com/pawsuite/paycore/pkg/postgres"
	"github.com/pawsuite/paycore/pkg/queue"
	"github.com/pawsuite/paycore/pkg/redis"
	"github.com/pawsuite/paycore/pkg/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func NewServer(cfg *config.Config) {

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.InfoLevel)

	// Initialize database
	db, err := postgres.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Run database migrations
	if err := postgres.RunMigrations(db); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repositories
	reservationRepo := repository.NewReservationRepository(db)
	voucherRepo := repository.NewVoucherRepository(db)
	escrowRepo := repository.NewEscrowRepository(db)

	// Initialize payout client
	var payoutClient *payout.Client
	if cfg.Payout.Enabled && cfg.Payout.BaseURL != "" {
		payoutClient = payout.NewClient(cfg.Payout.BaseURL, cfg.Payout.APIKey)
		logrus.Info("Payout client initialized")
	} else {
		logrus.Warn("Payout provider not configured, payouts will stay queued")
	}

	var redisQueue queue.Queue
	var dlqHandler queue.DLQHandler
	var taskPublisher service.TaskPublisher

	if cfg.Redis.Host != "" {
		queueConfig := queue.DefaultRedisQueueConfig()
		queueConfig.Addr = fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		queueConfig.Password = cfg.Redis.Password
		queueConfig.DB = cfg.Redis.DB
		queueConfig.MaxRetries = cfg.Worker.MaxRetries
		queueConfig.BaseDelay = cfg.Worker.BaseDelay

		retryManager := queue.NewRetryManager(cfg.Worker.MaxRetries, cfg.Worker.BaseDelay)
		redisClient := redis.NewRedisClient(&cfg.Redis)
		defer redisClient.Close()
		dlqHandler = queue.NewDefaultDLQHandler(redisClient, queueConfig.DLQ, queueConfig.MainQueue)

		redisQueue, err = queue.NewRedisQueue(queueConfig, retryManager, dlqHandler)
		if err != nil {
			logrus.Errorf("Failed to initialize Redis queue: %v. Continuing without payout outbox...", err)
		} else {
			logrus.Info("Payout outbox queue initialized")
			taskPublisher = service.NewQueueAdapter(redisQueue)
		}
	}

	// Initialize services
	reservationService := service.NewReservationService(reservationRepo, cfg.Reservation.DefaultTTL)
	voucherService := service.NewVoucherService(voucherRepo)
	escrowService := service.NewEscrowService(escrowRepo, taskPublisher, cfg.Escrow.AutoReleaseAfter)
	webhookService := service.NewWebhookService(reservationService, escrowService)

	// Start the outbox consumer when both the queue and the payout
	// provider are available.
	if redisQueue != nil && payoutClient != nil {
		taskHandler := queue.NewTaskHandler(escrowService, payoutClient)

		go func() {
			ctx := context.Background()
			if err := redisQueue.Subscribe(ctx, taskHandler.HandleTask); err != nil {
				logrus.Errorf("Queue subscriber error: %v", err)
			}
		}()
		logrus.Info("Payout outbox consumer started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Escrow auto-release scheduler
	autoReleaseScheduler := scheduler.NewScheduler(escrowService, cfg.Escrow.SweepInterval)
	go autoReleaseScheduler.Start(ctx)
	logrus.Info("Escrow auto-release scheduler started")

	// Reservation expiry sweep
	sweepWorker := worker.NewSweepWorker(reservationService, cfg.Reservation.SweepInterval)
	go sweepWorker.Start(ctx)
	logrus.Info("Reservation sweep worker started")

	// Initialize handlers
	reservationHandler := transport.NewReservationHandler(reservationService)
	voucherHandler := transport.NewVoucherHandler(voucherService)
	escrowHandler := transport.NewEscrowHandler(escrowService)
	webhookHandler := transport.NewWebhookHandler(webhookService)
	adminHandler := transport.NewAdminHandler(escrowService, voucherService, reservationService, dlqHandler)

	// Setup HTTP server
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := new(Server)
	go func() {
		routes := transport.InitRoutes(reservationHandler, voucherHandler, escrowHandler, webhookHandler, adminHandler)
		if err := srv.Run(cfg, routes); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	if err := srv.Shutdown(context.Background()); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}

	if redisQueue != nil {
		if err := redisQueue.Close(); err != nil {
			logrus.Errorf("error occured on queue shutting down: %s", err.Error())
		}
	}
}
