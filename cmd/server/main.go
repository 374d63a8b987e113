package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	billinghandlers "github.com/zlovtnik/leasebill/internal/billing/handlers"
	"github.com/zlovtnik/leasebill/internal/billing/invoicing"
	"github.com/zlovtnik/leasebill/internal/billing/notify"
	"github.com/zlovtnik/leasebill/internal/billing/ownership"
	"github.com/zlovtnik/leasebill/internal/billing/proration"
	"github.com/zlovtnik/leasebill/internal/billing/repository"
	billingrouter "github.com/zlovtnik/leasebill/internal/billing/router"
	"github.com/zlovtnik/leasebill/internal/billing/schedule"
	"github.com/zlovtnik/leasebill/internal/billing/service"
	"github.com/zlovtnik/leasebill/internal/config"
	"github.com/zlovtnik/leasebill/internal/handlers"
	"github.com/zlovtnik/leasebill/internal/router"
)

func main() {
	// Load configuration first so we can use it for logger setup
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting leasebill service",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"storage", cfg.Storage,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	var (
		db     *sql.DB
		store  repository.Store
		tables ownership.TableSource
		pinger handlers.Pinger
	)
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		store = repository.NewMemoryStore()
		memOwners := repository.NewMemoryOwnership()
		if cfg.OwnershipSeed != "" {
			if err := loadOwnershipSeed(memOwners, cfg.OwnershipSeed); err != nil {
				logger.Error("failed to load ownership seed", "path", cfg.OwnershipSeed, "error", err)
				os.Exit(1)
			}
		}
		tables = memOwners
	default:
		var err error
		db, err = config.NewOracleDB(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to database")
		store = repository.NewOracleStore(db)
		tables = repository.NewOwnershipRepository(db)
		pinger = db
	}

	owners, err := ownership.NewCachedProvider(tables, ownership.Config{
		MaxEntries: cfg.Cache.MaxEntries,
		TTL:        cfg.Cache.TTL,
	})
	if err != nil {
		logger.Error("failed to create ownership cache", "error", err)
		os.Exit(1)
	}

	// Invoicing
	var emitter service.InvoiceEmitter
	if cfg.Invoicing.BaseURL != "" {
		emitter = invoicing.NewClient(invoicing.Config{
			BaseURL: cfg.Invoicing.BaseURL,
			Token:   cfg.Invoicing.Token,
			Timeout: cfg.Invoicing.Timeout,
		})
	} else {
		logger.Warn("INVOICING_BASE_URL not set, invoice numbers are generated locally")
		emitter = invoicing.NewLocalEmitter(logger)
	}

	// Events
	var (
		js       *notify.JetStream
		notifier interface {
			service.Notifier
			service.PropertyReleaser
		}
	)
	if cfg.NATS.URL != "" {
		js, err = notify.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream, cfg.NATS.SubjectPrefix)
		if err != nil {
			logger.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		notifier = notify.NewBus(js, cfg.NATS.SubjectPrefix, logger)
	} else {
		notifier = notify.NewLog(logger)
	}

	places := cfg.Billing.CurrencyPlaces
	scheduler := schedule.New(places)
	deps := service.Deps{
		Store:     store,
		Scheduler: &scheduler,
		Proration: proration.New(proration.Config{Places: places, Logger: logger}),
		Invoices:  emitter,
		Ownership: owners,
		Notifier:  notifier,
		Releaser:  notifier,
		LateFees:  service.MonthlyInterestPolicy{Places: places},
		Logger:    logger,
	}

	// Initialize services
	contractSvc := service.NewContractService(deps)
	amendmentSvc := service.NewAmendmentService(deps)
	specialPaymentSvc := service.NewSpecialPaymentService(deps)
	billingSvc := service.NewBillingService(deps)
	billingRun := service.NewBillingRun(service.BillingConfig{
		Tenants:     cfg.Billing.Tenants,
		Concurrency: cfg.Billing.Concurrency,
		Interval:    cfg.Billing.Interval,
	}, contractSvc, billingSvc, logger)

	// Initialize handlers
	actors := billinghandlers.Actors{PrivilegedRole: cfg.JWT.PrivilegedRole}
	r := router.NewRouter(
		cfg.JWT.Secret,
		cfg.CORS,
		logger,
		handlers.NewHealthHandler(pinger),
		billingrouter.BillingHandlerSet{
			ContractHandler:       billinghandlers.NewContractHandler(contractSvc, actors, logger),
			AmendmentHandler:      billinghandlers.NewAmendmentHandler(amendmentSvc, actors, logger),
			SpecialPaymentHandler: billinghandlers.NewSpecialPaymentHandler(specialPaymentSvc, actors, logger),
			BillingHandler:        billinghandlers.NewBillingHandler(billingSvc, billingRun, actors, logger),
		},
	)

	server := &http.Server{
		Addr:           cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:        r.Setup(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// Background billing run
	if len(cfg.Billing.Tenants) > 0 {
		go billingRun.Start(ctx)
	} else {
		logger.Info("no BILLING_TENANTS configured, scheduled billing disabled")
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-quit:
		logger.Info("received shutdown signal")
	case err := <-serverErrCh:
		logger.Error("server listen failed", "error", err)
		exitCode = 1
	}

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		exitCode = 1
	}

	owners.Close()
	if js != nil {
		js.Close()
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Error("database close error", "error", err)
		}
	}

	logger.Info("server stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func loadOwnershipSeed(owners *repository.MemoryOwnership, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return owners.Load(f)
}

// parseLogLevel parses a log level string into slog.Level
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
