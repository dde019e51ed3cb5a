package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"autorent/internal/config"
	"autorent/internal/database"
	"autorent/internal/messaging"
	"autorent/internal/middleware"
	"autorent/internal/modules/auth"
	"autorent/internal/modules/catalog"
	"autorent/internal/modules/payment"
	"autorent/internal/modules/reservation"
	jwtsvc "autorent/internal/pkg/jwt"
	"autorent/internal/repository"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(1)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Error("connect database", "err", err)
		os.Exit(1)
	}
	if err := database.Migrate(db); err != nil {
		log.Error("run migrations", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userRepo := repository.NewUserRepository(db)
	carRepo := repository.NewCarRepository(db)
	reservationRepo := repository.NewReservationRepository(db)
	sessionRepo := repository.NewPaymentSessionRepository(db)

	var events messaging.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, 256, log)
		producer.Start(ctx)
		defer producer.Close()
		events = producer
	}

	j := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)

	authService := auth.NewService(userRepo, j, log)
	authHandler := auth.NewHandler(authService)

	catalogService := catalog.NewService(carRepo, cfg.Currency, log)
	catalogHandler := catalog.NewHandler(catalogService)

	reservationService := reservation.NewService(reservationRepo, carRepo, events, cfg.PendingHoldTTL, log)
	reservationHandler := reservation.NewHandler(reservationService)

	gateway := payment.NewHTTPGateway(cfg.Gateway)
	paymentService := payment.NewService(sessionRepo, reservationRepo, gateway, events, log)
	reconciler := payment.NewReconciler(sessionRepo, reservationRepo, cfg.Gateway.WebhookSecret, cfg.PendingHoldTTL, events, log)
	paymentHandler := payment.NewHandler(paymentService, reconciler)

	sweeper := reservation.NewSweeper(reservationService, cfg.SweepInterval)
	go sweeper.Run(ctx)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.RequestLogger(log), middleware.CORS())

	v1 := r.Group("/api/v1")
	{
		authHandler.RegisterPublicRoutes(v1)
		catalogHandler.RegisterPublicRoutes(v1)
		paymentHandler.RegisterWebhook(v1)

		protected := v1.Group("/")
		protected.Use(middleware.JWTAuth(j))
		{
			authHandler.RegisterProtectedRoutes(protected)
			catalogHandler.RegisterProtectedRoutes(protected)
			reservationHandler.RegisterRoutes(protected)
			paymentHandler.RegisterRoutes(protected)

			admin := protected.Group("/admin")
			admin.Use(middleware.AdminOnly())
			{
				catalogHandler.RegisterAdminRoutes(admin)
			}
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown", "err", err)
	}
}
