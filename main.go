package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-boxoffice/internal/auth"
	"ms-boxoffice/internal/cart"
	cartdb "ms-boxoffice/internal/cart/db"
	"ms-boxoffice/internal/catalog"
	"ms-boxoffice/internal/catalog/catalog_api"
	"ms-boxoffice/internal/config"
	"ms-boxoffice/internal/database/migrations"
	"ms-boxoffice/internal/hold"
	"ms-boxoffice/internal/hold/hold_api"
	"ms-boxoffice/internal/inventory"
	"ms-boxoffice/internal/inventory/cache"
	"ms-boxoffice/internal/kafka"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/order"
	orderdb "ms-boxoffice/internal/order/db"
	"ms-boxoffice/internal/order/order_api"
	"ms-boxoffice/internal/payment"
	"ms-boxoffice/internal/payment/storage"
	"ms-boxoffice/internal/reaper"
	"ms-boxoffice/internal/reaper/reaper_api"
	"ms-boxoffice/internal/tickets"
	ticketdb "ms-boxoffice/internal/tickets/db"
	"ms-boxoffice/internal/tickets/qr"
	"ms-boxoffice/internal/tickets/ticket_api"
	"ms-boxoffice/internal/utils"
)

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN)))
		sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}
	log.Info("DATABASE", "PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Box Office Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	ctx := context.Background()

	log.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	migrateOpts := migrations.DefaultOptions()
	if migrateOpts.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrateOpts)
		if err := runner.MigrateUp(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
		}
		if version, _, err := runner.Version(); err == nil {
			log.Info("DATABASE", fmt.Sprintf("Schema at version %d", version))
		}
	}

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.SeatStatus, cfg.Kafka.Topics.OrderCreated)
		defer producer.Close()
		requiredTopics := []string{
			cfg.Kafka.Topics.SeatStatus,
			cfg.Kafka.Topics.OrderCreated,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	} else {
		log.Warn("KAFKA", "Kafka disabled, seat and order events will not be published")
	}

	stripeProvider, err := payment.NewStripeProvider(cfg.Stripe.SecretKey, log)
	if err != nil {
		log.Fatal("PAYMENT", fmt.Sprintf("Stripe initialization failed: %v", err))
	}

	reconStore, err := storage.NewPostgreSQLStoreWithDB(bunDB.DB, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Reconciliation store initialization failed: %v", err))
	}

	summaryCache := cache.New(redisClient, cfg.Redis.CacheTTL, log)
	seatStore := inventory.NewStore(bunDB)
	cartStore := &cartdb.DB{Bun: bunDB}
	catalogService := catalog.NewService(bunDB, seatStore, summaryCache)
	aggregator := cart.NewAggregator(cartStore, catalogService)

	holdService := hold.NewService(bunDB, seatStore, cartStore, catalogService, eventPublisher(producer), summaryCache, log, cfg.Hold.TTL)
	paymentService := payment.NewService(cartStore, seatStore, aggregator, stripeProvider, log, cfg.Stripe.Currency)
	finalizer := &order.Finalizer{
		Bun:        bunDB,
		Orders:     &orderdb.DB{Bun: bunDB},
		Carts:      cartStore,
		Seats:      seatStore,
		Aggregator: aggregator,
		Provider:   stripeProvider,
		Recon:      reconStore,
		Encoder:    qr.NewGenerator(cfg.Auth.QRSecret),
		Publisher:  orderPublisher(producer),
		Cache:      summaryCache,
		Logger:     log,
	}
	ticketService := &tickets.Service{
		Bun:       bunDB,
		DB:        &ticketdb.DB{Bun: bunDB},
		Seats:     seatStore,
		Publisher: ticketPublisher(producer),
		Cache:     summaryCache,
		Logger:    log,
	}
	sweeper := reaper.NewService(bunDB, seatStore, cartStore, reaperPublisher(producer), summaryCache, log)

	catalogHandler := catalog_api.NewHandler(catalogService, log)
	holdHandler := hold_api.NewHandler(holdService, aggregator, log)
	orderHandler := order_api.NewHandler(paymentService, finalizer, log)
	ticketHandler := ticket_api.NewHandler(ticketService, log)
	adminHandler := reaper_api.NewHandler(sweeper, reconStore, log)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if err := reconStore.HealthCheck(); err != nil {
			utils.WriteError(w, http.StatusServiceUnavailable, "database unavailable", nil)
			return
		}
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	})

	// --- Public Routes ---
	r.Get("/api/events/{eventId}", catalogHandler.GetEvent)
	r.Get("/api/events/{eventId}/seats", catalogHandler.SeatMap)
	r.Get("/api/events/{eventId}/inventory", catalogHandler.InventorySummary)
	log.Info("ROUTER", "Public catalog endpoints registered under /api/events")

	// --- Protected Routes ---
	authMiddleware := auth.DevMiddleware()
	if cfg.Auth.OIDCIssuer != "" {
		authMiddleware = auth.Middleware(cfg.Auth.OIDCIssuer)
		log.Info("AUTH", "OIDC middleware applied to protected API routes")
	} else {
		log.Warn("AUTH", "OIDC_ISSUER not set, accepting unverified tokens (development only)")
	}

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		r.Route("/api", func(r chi.Router) {
			r.Post("/events/{eventId}/reserve", holdHandler.Reserve)
			r.Post("/events/{eventId}/release", holdHandler.Release)
			r.Get("/cart", holdHandler.GetCart)
			r.Get("/cart/{cartId}", holdHandler.GetCartByID)
			log.Info("ROUTER", "Reservation routes registered")

			r.Post("/payment-intents", orderHandler.CreatePaymentIntent)
			r.Post("/purchase", orderHandler.CompletePurchase)
			r.Get("/orders", orderHandler.ListOrders)
			r.Get("/orders/{orderId}", orderHandler.GetOrder)
			log.Info("ROUTER", "Payment and order routes registered")

			r.Get("/tickets", ticketHandler.ListTickets)
			r.Get("/tickets/{ticketId}", ticketHandler.GetTicket)
			log.Info("ROUTER", "Ticket routes registered")

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleAdmin))
				r.Post("/expired-holds", adminHandler.Sweep)
				r.Get("/reconciliation", adminHandler.ListReconciliation)
				r.Get("/reconciliation/{recordId}", adminHandler.GetReconciliation)
				r.Post("/reconciliation/{recordId}/resolve", adminHandler.ResolveReconciliation)
				r.Post("/tickets/scan", ticketHandler.Scan)
				r.Post("/tickets/{ticketId}/void", ticketHandler.Void)
			})
			log.Info("ROUTER", "Admin routes registered under /api/admin")
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	reaperCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	go sweeper.Run(reaperCtx, cfg.Hold.SweepInterval)
	log.Info("REAPER", fmt.Sprintf("Background sweep started (interval %s)", cfg.Hold.SweepInterval))

	go func() {
		log.Info("HTTP", fmt.Sprintf("Box Office Service running on %s", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	stopReaper()
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "Box Office Service shutdown complete")
	}
}

// The publisher interfaces are defined per consumer package; a nil *Producer
// must stay a nil interface so the services skip publishing entirely.

func eventPublisher(p *kafka.Producer) hold.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}

func orderPublisher(p *kafka.Producer) order.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}

func ticketPublisher(p *kafka.Producer) tickets.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}

func reaperPublisher(p *kafka.Producer) reaper.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}
