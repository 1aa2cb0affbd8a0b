package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fuelscope/internal/auth"
	"github.com/ukydev/fuelscope/internal/config"
	"github.com/ukydev/fuelscope/internal/db"
	"github.com/ukydev/fuelscope/internal/handlers"
	"github.com/ukydev/fuelscope/internal/ledger"
	"github.com/ukydev/fuelscope/internal/middleware"
	"github.com/ukydev/fuelscope/internal/notify"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// storage is the persistence backend selected by STORAGE_DRIVER.
type storage struct {
	expenses db.ExpenseCollection
	vehicles db.VehicleCollection
	users    db.UserCollection
	close    func(context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(log.StandardLogger(), cfg.Log); err != nil {
		log.WithError(err).Fatal("Invalid logging configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
	log.Info("Server stopped")
}

func configureLogging(logger *log.Logger, cfg config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	if cfg.Format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func run(ctx context.Context, cfg config.Config) error {
	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := store.close(closeCtx); err != nil {
			log.WithError(err).Warn("Failed to close storage")
		}
	}()

	notifier, closeNotifier, err := newNotifier(cfg.MQTT)
	if err != nil {
		return err
	}
	defer closeNotifier()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newHandler(cfg, store, notifier),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(log.Fields{"port": cfg.Server.Port, "storage": cfg.Storage.Driver}).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStorage(ctx context.Context, cfg config.Config) (storage, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn("Using in-memory storage; data is lost on restart")
		store := db.NewMemoryStore()
		return storage{
			expenses: store,
			vehicles: store,
			users:    store,
			close:    func(context.Context) error { return nil },
		}, nil
	}

	client, err := db.ConnectMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		return storage{}, fmt.Errorf("connect to MongoDB: %w", err)
	}
	m := db.NewMongo(client.Database(cfg.Mongo.Database))
	if err := m.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return storage{}, err
	}
	log.WithField("database", cfg.Mongo.Database).Info("Connected to MongoDB")
	return storage{
		expenses: m.Expenses,
		vehicles: m.Vehicles,
		users:    m.Users,
		close:    client.Disconnect,
	}, nil
}

// newNotifier publishes alerts over MQTT when a broker is configured and
// logs them otherwise.
func newNotifier(cfg config.MQTTConfig) (notify.Notifier, func(), error) {
	if cfg.Broker == "" {
		return notify.LogNotifier{Logger: log.StandardLogger()}, func() {}, nil
	}
	client, err := notify.ConnectMQTT(cfg.Broker, cfg.ClientID)
	if err != nil {
		return nil, nil, err
	}
	log.WithField("broker", cfg.Broker).Info("Connected to MQTT broker")
	return notify.NewMQTTNotifier(client, cfg.TopicPrefix), func() { client.Disconnect(250) }, nil
}

// newHandler builds the API with its middleware chain: request id, CORS,
// rate limiting, then authentication.
func newHandler(cfg config.Config, store storage, notifier notify.Notifier) http.Handler {
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry)
	l := ledger.New(store.expenses, store.vehicles,
		ledger.WithLogger(log.StandardLogger()),
		ledger.WithNotifier(notifier),
	)
	router := handlers.NewRouter(authService, store.users, l, cfg.Import.MaxBytes)

	var h http.Handler = router
	h = middleware.NewAuthMiddleware(authService).Authenticate(h)
	h = middleware.NewRateLimitMiddleware(cfg.Server.TrustProxy).RateLimit(cfg.Server.RateLimit, cfg.Server.RateWindow)(h)
	h = cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{"Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: true,
	}).Handler(h)
	return middleware.RequestID(log.StandardLogger())(h)
}
