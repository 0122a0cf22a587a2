package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rentiva/rentiva-backend/internal/config"
	"github.com/rentiva/rentiva-backend/internal/notify"
	"github.com/rentiva/rentiva-backend/internal/repository/postgres"
	redisrepo "github.com/rentiva/rentiva-backend/internal/repository/redis"
	"github.com/rentiva/rentiva-backend/internal/service/authn"
	"github.com/rentiva/rentiva-backend/internal/service/cleanup"
	"github.com/rentiva/rentiva-backend/internal/service/device"
	"github.com/rentiva/rentiva-backend/internal/service/session"
	"github.com/rentiva/rentiva-backend/internal/token"
	httptransport "github.com/rentiva/rentiva-backend/internal/transport/http"
	"github.com/rentiva/rentiva-backend/internal/transport/http/middleware"
	wstransport "github.com/rentiva/rentiva-backend/internal/transport/websocket"
	"github.com/rentiva/rentiva-backend/pkg/tokencrypt"
)

func main() {
	log.Println("Starting rentiva backend server...")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.LoadConfig()

	db, err := postgres.Open(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetimeMin)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := postgres.ApplySchema(db, "db/schema.sql"); err != nil {
		log.Fatalf("Failed to apply database schema: %v", err)
	}

	sessionRepo := postgres.NewSessionRepo(db)
	otpRepo := postgres.NewOTPRepo(db)
	accountRepo := postgres.NewAccountRepo(db)

	// Redis is an optional read-through cache; sessions stay correct without it.
	var cache session.Cache
	if client, ok := redisrepo.Connect(cfg.RedisURL, cfg.RedisPassword); ok {
		cache = redisrepo.NewCache(client)
		defer client.Close()
	}

	accessKey := tokencrypt.DeriveKey(cfg.AccessTokenSecret, "access_token")
	issuer := token.NewIssuer(accessKey, cfg.AccessTokenTTL)

	sessions := session.NewService(sessionRepo, cache, cfg.SessionTTL, cfg.SessionExtension)

	var mailer authn.Mailer
	if cfg.SMTPAddr != "" {
		mailer = notify.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPFrom)
	} else {
		mailer = &notify.LogMailer{}
	}
	auth := authn.NewService(otpRepo, accountRepo, sessions, issuer, mailer, cfg.OTPExpiry)

	broker := device.NewBroker(cfg.DeviceResponseTimeout)
	devices := device.NewService(broker)

	worker := cleanup.NewWorker(sessionRepo, otpRepo)
	go worker.Start()

	gate := middleware.NewGate(issuer, sessions, accountRepo, cfg.TokenTransport)

	authHandler := httptransport.NewAuthHandler(auth, sessions, issuer,
		cfg.TokenTransport, cfg.IsProduction(), cfg.AccessTokenTTL, cfg.SessionTTL)
	deviceHandler := httptransport.NewDeviceHandler(devices)

	checkOrigin := func(r *http.Request) bool {
		if !cfg.IsProduction() {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, allowed := range cfg.AllowedOrigins {
			if origin == allowed {
				return true
			}
		}
		return false
	}
	wsHandler := wstransport.NewHandler(broker, checkOrigin)

	mux := http.NewServeMux()

	mux.HandleFunc("/ws", wsHandler.HandleDeviceSocket)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Auth routes
	mux.HandleFunc("/api/auth/send-otp", authHandler.SendOTP)
	mux.HandleFunc("/api/auth/verify-otp", authHandler.VerifyOTP)
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.HandleFunc("/api/auth/logout", gate.RequireAccessToken(authHandler.Logout))
	mux.HandleFunc("/api/auth/complete-registration", authHandler.CompleteRegistration)
	mux.HandleFunc("/api/auth/decrypt-token", authHandler.DecryptToken)
	mux.HandleFunc("/api/auth/extend-session", gate.RequireBoth(authHandler.ExtendSession))
	mux.HandleFunc("/api/auth/sessions", gate.RequireAccessToken(authHandler.SessionHistory))

	// Device routes
	mux.HandleFunc("/api/devices/info", gate.RequireBoth(gate.RequirePermission("device.view", deviceHandler.Info)))

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: middleware.EnableCORS(cfg.AllowedOrigins, httptransport.Recover(mux)),
	}

	log.Printf("Server is listening on port %s\n", cfg.Port)

	go func() {
		err := httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Server is shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited gracefully")
}
