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
	"github.com/shareco2/backend/docs"
	"github.com/shareco2/backend/internal/database"
	"github.com/shareco2/backend/internal/gateway"
	mW "github.com/shareco2/backend/internal/middleware"
	"github.com/shareco2/backend/internal/points"
	"github.com/shareco2/backend/internal/services"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Share CO2 Wallet API
// @version 1.0
// @description Wallet ledger and payment reconciliation API for the Share CO2 ride-sharing platform
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

	viper.BindEnv("points.rate", "POINTS_RATE")
	viper.BindEnv("gateway.key_id", "GATEWAY_KEY_ID")
	viper.BindEnv("gateway.key_secret", "GATEWAY_KEY_SECRET")
	viper.BindEnv("gateway.webhook_secret", "GATEWAY_WEBHOOK_SECRET")
	viper.BindEnv("gateway.base_url", "GATEWAY_BASE_URL")
	viper.BindEnv("gateway.checkout_url", "GATEWAY_CHECKOUT_URL")
	viper.BindEnv("partner.secret", "PARTNER_SECRET")
	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("admin.email", "ADMIN_EMAIL")
	viper.BindEnv("admin.password_hash", "ADMIN_PASSWORD_HASH")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Share CO2 Wallet API"
	docs.SwaggerInfo.Description = "Wallet ledger and payment reconciliation API for the Share CO2 ride-sharing platform"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	converter := points.NewConverter()
	gatewayClient := gateway.NewClient()

	walletService := services.NewWalletService(db, redisClient)
	paymentService := services.NewPaymentService(db, walletService, gatewayClient, converter)
	orderService := services.NewOrderService(db, walletService, converter)
	topupService := services.NewTopUpService(db, walletService, converter)
	adminAuthService := services.NewAdminAuthService()

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Gateway-Signature"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Gateway webhook (signature-authenticated, no session)
		r.Post("/payments/webhook", paymentService.Webhook)

		// Admin login
		r.Post("/admin/login", adminAuthService.Login)

		// Partner order system (static bearer secret)
		r.Group(func(r chi.Router) {
			r.Use(mW.PartnerAuth)

			r.Post("/partner/orders", orderService.CreateOrder)
			r.Post("/partner/orders/{orderId}/cancel", orderService.CancelOrder)
			r.Post("/partner/orders/{orderId}/refund", orderService.RefundOrder)
			r.Post("/partner/orders/{orderId}/complete", orderService.CompleteOrder)
		})

		// User endpoints (session required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/wallet/balance", walletService.GetBalance)
			r.Get("/wallet/transactions", walletService.ListTransactions)

			r.Post("/payments/order", paymentService.CreateOrder)
			r.Post("/payments/verify", paymentService.VerifyPayment)

			r.Post("/topups", topupService.CreateRequest)
		})

		// Admin endpoints (admin role required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)
			r.Use(mW.RequireAdmin)

			r.Get("/admin/topups", topupService.ListRequests)
			r.Put("/admin/topups/{id}", topupService.DecideRequest)
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
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
