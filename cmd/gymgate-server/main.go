package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sio2000/gymUI-sub000/internal/auth"
	"github.com/sio2000/gymUI-sub000/internal/checkin/service"
	"github.com/sio2000/gymUI-sub000/internal/checkin/store"
	"github.com/sio2000/gymUI-sub000/internal/checkin/store/postgres"
	"github.com/sio2000/gymUI-sub000/internal/checkin/store/rediscache"
	sqlitestore "github.com/sio2000/gymUI-sub000/internal/checkin/store/sqlite"
	"github.com/sio2000/gymUI-sub000/internal/checkin/token"
	"github.com/sio2000/gymUI-sub000/internal/config"
	"github.com/sio2000/gymUI-sub000/internal/db"
	"github.com/sio2000/gymUI-sub000/internal/grpcapi"
	"github.com/sio2000/gymUI-sub000/internal/httpapi"
	"github.com/sio2000/gymUI-sub000/internal/observability"
)

func main() {
	cfg := config.FromEnv()

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gymgate-server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Local SQLite: stations, scan audit, dev issuance store
	sqlDB, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env}, logger)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer sqlDB.Close()

	if cfg.Env == "dev" {
		if err := db.SeedDev(ctx, sqlDB, db.SeedDevOptions{KnownStations: cfg.KnownStations}); err != nil {
			return fmt.Errorf("seed dev: %w", err)
		}
		logger.Info("dev seed applied", zap.Strings("known_stations", cfg.KnownStations))
	} else if err := db.CommissionStations(ctx, sqlDB, cfg.KnownStations); err != nil {
		return fmt.Errorf("commission stations: %w", err)
	}

	writer := db.NewWorker(sqlDB)
	defer writer.Close()

	stationStore := sqlitestore.NewStationStore(sqlDB, writer)
	eventStore := sqlitestore.NewScanEventStore(sqlDB, writer)

	creds, directory, closeCreds, err := openCredentialStore(ctx, cfg, sqlDB, writer, logger)
	if err != nil {
		return err
	}
	defer closeCreds()

	if cfg.RedisAddr != "" {
		client := rediscache.NewClient(rediscache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		defer client.Close()
		directory = rediscache.NewDirectory(directory, client, cfg.NameCacheTTL, logger.Named("namecache"))
	}

	// Services
	registry := service.NewStationRegistry(stationStore, cfg.AllowUnknownStations)
	validator := service.NewAdmissionValidator(creds, directory, service.ValidatorConfig{
		LookupTimeout: cfg.LookupTimeout,
	}, logger.Named("validator"))
	checkinSvc := service.NewCheckinService(service.CheckinDeps{
		Registry:    registry,
		Interpreter: token.NewInterpreter(token.LegacyLookup(cfg.LegacyLookup)),
		Validator:   validator,
		EventStore:  eventStore,
		Logger:      logger.Named("checkin"),
	})

	pruner := service.NewScanEventPruner(eventStore, service.PrunerConfig{
		RetentionDays: cfg.AuditRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger.Named("pruner"))
	pruner.Start(ctx)
	defer pruner.Stop()

	var authn *auth.Authenticator
	if cfg.JWTSecret != "" {
		authn = auth.NewAuthenticator(auth.NewTokenManager(cfg.JWTSecret, 0))
	} else {
		logger.Warn("operator auth disabled: GYMGATE_JWT_SECRET is not set")
	}

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:         logger.Named("http"),
		Addr:           cfg.HTTPAddr,
		CheckinService: checkinSvc,
		Auth:           authn,
		Ping:           sqlDB.PingContext,
	})

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	// gRPC health
	var grpcSrv *grpcapi.Server
	if cfg.GRPCAddr != "" {
		grpcSrv = grpcapi.NewServer(grpcapi.Dependencies{
			Logger: logger.Named("grpc"),
			Addr:   cfg.GRPCAddr,
			Ping:   sqlDB.PingContext,
		})
		go func() {
			logger.Info("grpc health listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcSrv.Start(); err != nil {
				logger.Error("grpc server error", zap.Error(err))
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if grpcSrv != nil {
		grpcSrv.Shutdown(shutdownCtx)
	}
	return srv.Shutdown(shutdownCtx)
}

// openCredentialStore picks the issuance backend.  The returned close func is
// always safe to call.
func openCredentialStore(
	ctx context.Context,
	cfg config.Config,
	sqlDB *sql.DB,
	writer *db.Worker,
	logger *zap.Logger,
) (store.CredentialStore, store.SubjectDirectory, func(), error) {
	if cfg.CredentialStore != "postgres" {
		return sqlitestore.NewCredentialStore(sqlDB, writer), sqlitestore.NewSubjectDirectory(sqlDB), func() {}, nil
	}

	pg, err := db.OpenPostgres(ctx, db.PostgresConfig{DSN: cfg.PostgresDSN})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.Env == "dev" {
		if err := postgres.EnsureSchema(ctx, pg); err != nil {
			pg.Close()
			return nil, nil, nil, err
		}
	}
	logger.Info("credential store: postgres")
	return postgres.NewCredentialStore(pg), postgres.NewSubjectDirectory(pg), func() { pg.Close() }, nil
}
