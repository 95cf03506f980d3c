package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"

	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/cache"
	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/config"
	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/database"
	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/events"
	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/handlers"
	mW "github.com/NewProjekBotpy/nubiluXchange-sub002/internal/middleware"
	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/wallet"
	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/worker"
)

// @title Wallet & Escrow Transaction Engine API
// @version 1.0
// @description Wallet, escrow and money-request engine for the marketplace
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")

	viper.BindEnv("wallet.min_amount", "WALLET_MIN_AMOUNT")
	viper.BindEnv("wallet.commission_rate", "WALLET_COMMISSION_RATE")
	viper.BindEnv("wallet.platform_account_id", "WALLET_PLATFORM_ACCOUNT_ID")
	viper.BindEnv("wallet.kafka_brokers", "WALLET_KAFKA_BROKERS")
	viper.BindEnv("wallet.kafka_topic", "WALLET_KAFKA_TOPIC")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	walletCfg := config.LoadWalletConfig()

	publisher := events.NewPublisher(walletCfg.KafkaBrokers, walletCfg.KafkaTopic)
	defer publisher.Close()

	balanceCache := cache.NewBalanceCache(redisClient, walletCfg.CacheTTL)
	ledger := wallet.NewLedgerStore(db)
	if err := ledger.EnsureAccount(context.Background(), walletCfg.PlatformAccountID); err != nil {
		log.Fatalf("Failed to seed platform account: %v", err)
	}
	coordinator := wallet.NewTransferCoordinator(db, ledger, balanceCache, publisher, walletCfg)
	escrowService := wallet.NewEscrowService(db, coordinator, publisher, walletCfg)
	requestService := wallet.NewMoneyRequestService(db, coordinator, walletCfg)

	walletHandler := handlers.NewWalletHandler(db, coordinator, ledger, balanceCache)
	escrowHandler := handlers.NewEscrowHandler(escrowService)
	requestHandler := handlers.NewRequestHandler(requestService, redisClient)

	// Background expiry of overdue money requests
	sweeperCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	sweeper := worker.NewExpirySweeper(requestService, time.Minute)
	go sweeper.Run(sweeperCtx)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/wallet/balance", walletHandler.GetBalance)
			r.Get("/wallet/summary", walletHandler.GetSummary)
			r.Get("/wallet/transactions", walletHandler.ListTransactions)
			r.Get("/wallet/reconcile", walletHandler.Reconcile)
			r.Post("/wallet/deposit", walletHandler.Deposit)
			r.Post("/wallet/withdraw", walletHandler.Withdraw)
			r.Post("/wallet/send", walletHandler.Send)

			r.Post("/escrow", escrowHandler.Create)
			r.Get("/escrow/{escrowId}", escrowHandler.Get)
			r.Post("/escrow/{escrowId}/complete", escrowHandler.Complete)
			r.Post("/escrow/{escrowId}/dispute", escrowHandler.Dispute)
			r.Post("/escrow/{escrowId}/resolve", escrowHandler.Resolve)

			r.Post("/requests", requestHandler.Create)
			r.Get("/requests", requestHandler.List)
			r.Post("/requests/{requestId}/accept", requestHandler.Accept)
			r.Post("/requests/{requestId}/decline", requestHandler.Decline)
			r.Post("/requests/{requestId}/qr", requestHandler.GenerateQR)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	stopSweeper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
