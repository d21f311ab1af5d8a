package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/auth"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/config"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/db"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/jobs"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/logger"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/memstore"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/notify"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/payment"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/refund"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/server"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/ticket"
	"github.com/Metro-Ticketing-System/MTS-BackEnd/internal/wallet"
	"github.com/redis/go-redis/v9"
)

type storage struct {
	tx      db.Transactor
	tickets ticket.Repository
	wallets wallet.Repository
	refunds refund.Repository
	tokens  notify.PushTokens
	ping    server.HealthCheck
	close   func() error
}

func openStorage(cfg *config.Config) storage {
	if cfg.StorageDriver == "memory" {
		logger.Warn("Using in-memory storage, data is lost on restart")
		store := memstore.New()
		return storage{
			tx:      store,
			tickets: store.Tickets(),
			wallets: store.Wallets(),
			refunds: store.Refunds(),
			tokens:  store,
			ping:    func(context.Context) error { return nil },
			close:   func() error { return nil },
		}
	}

	logger.Info("Connecting to database...")
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Info("Database connected")

	if err := db.RunMigrations(database, "migrations"); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Migrations completed")

	return storage{
		tx:      db.NewTransactor(database),
		tickets: ticket.NewRepository(database),
		wallets: wallet.NewRepository(database),
		refunds: refund.NewRepository(database),
		tokens:  notify.NewRepository(database),
		ping:    database.PingContext,
		close:   database.Close,
	}
}

func main() {
	logger.Init()
	defer logger.Sync()

	logger.Info("Starting MTS fare backend")
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	store := openStorage(cfg)
	defer store.close()

	codec, err := auth.NewQRCodec(cfg.QRTokenSecret, cfg.QRTokenTTL)
	if err != nil {
		logger.Fatalf("Failed to create gate token codec: %v", err)
	}

	gateway := payment.NewClient(payment.Config{
		PayURL:     cfg.GatewayPayURL,
		ReturnURL:  cfg.GatewayReturnURL,
		RefundURL:  cfg.GatewayRefundURL,
		TmnCode:    cfg.GatewayTmnCode,
		HashSecret: cfg.GatewayHashSecret,
		Timeout:    cfg.GatewayTimeout,
	})

	ticketPolicy := ticket.Policy{
		OneWayFareTypeID:    cfg.OneWayFareTypeID,
		PriorityFareTypeIDs: cfg.PriorityFareTypeIDs,
		PurchaseWindow:      cfg.PurchaseWindow,
		PaidValidity:        cfg.PaidValidity,
		PriorityValidity:    cfg.PriorityValidity,
	}
	refundPolicy := refund.Policy{Percent: cfg.RefundPercent, Window: cfg.RefundWindow}

	ticketService := ticket.NewService(store.tickets, store.tx, codec, ticketPolicy)
	walletService := wallet.NewService(store.wallets, store.tx, ticketService)
	refundService := refund.NewService(store.refunds, store.tx, ticketService, walletService, gateway, refundPolicy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]server.HealthCheck{"storage": store.ping}

	var notifier ticket.Notifier
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		checks["queue"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		notifyService := notify.New(rdb, store.tokens, cfg.PushEndpoint)
		defer notifyService.Close()
		go notifyService.Start(ctx)
		notifier = notifyService
		logger.Info("Notification worker initialized")
	} else {
		logger.Warn("REDIS_ADDR is empty, scan notifications are disabled")
	}

	if cfg.ExpirySweepInterval > 0 {
		sched, err := jobs.StartExpirySweep(ctx, ticketService, cfg.ExpirySweepInterval)
		if err != nil {
			logger.Fatalf("Failed to schedule expiry sweep: %v", err)
		}
		defer sched.Shutdown()
	}

	srv := server.New(cfg, server.Handlers{
		Tickets:  ticket.NewHandler(ticketService, notifier),
		Wallets:  wallet.NewHandler(walletService),
		Refunds:  refund.NewHandler(refundService),
		Payments: payment.NewHandler(gateway, ticketService, walletService),
		Checks:   checks,
	})

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v", sig)
	case err := <-serverErrChan:
		logger.Errorf("Server error: %v", err)
	}

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}

	logger.Info("Server stopped")
}
