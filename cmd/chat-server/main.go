package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-chat/internal/audit"
	"github.com/weiawesome/wes-chat/internal/cache"
	"github.com/weiawesome/wes-chat/internal/config"
	"github.com/weiawesome/wes-chat/internal/dispatcher"
	"github.com/weiawesome/wes-chat/internal/handler"
	"github.com/weiawesome/wes-chat/internal/hub"
	"github.com/weiawesome/wes-chat/internal/identity"
	"github.com/weiawesome/wes-chat/internal/idgen"
	"github.com/weiawesome/wes-chat/internal/repository"
	"github.com/weiawesome/wes-chat/internal/service"
	"github.com/weiawesome/wes-chat/pkg/database"
	"github.com/weiawesome/wes-chat/pkg/jwt"
	pkglog "github.com/weiawesome/wes-chat/pkg/log"
	"github.com/weiawesome/wes-chat/pkg/middleware"
	"github.com/weiawesome/wes-chat/pkg/pubsub"
	"github.com/weiawesome/wes-chat/pkg/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.Server.InstanceID == "" {
		cfg.Server.InstanceID = uuid.New().String()
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty || cfg.Log.Level == "debug",
		ServiceName: cfg.Log.ServiceName,
		InstanceID:  cfg.Server.InstanceID,
	})
	logger := pkglog.L()

	logger.Info().
		Str("storage", cfg.Storage.Driver).
		Str("relay", cfg.Relay.Driver).
		Msg("starting chat server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence
	messageRepo, userRepo, closeStore, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open storage")
	}
	defer closeStore()

	// Identity
	tokens, err := jwt.NewManager(jwt.Config{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
		TTL:    cfg.JWT.TTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create JWT manager")
	}
	gate := identity.NewGate(userRepo, tokens, identity.Config{
		PasswordMinLength: cfg.Identity.PasswordMinLength,
		BcryptCost:        cfg.Identity.BcryptCost,
	})

	// Fan-out
	wsHub := hub.New(hub.Config{
		QueueSize:   cfg.Hub.QueueSize,
		SendTimeout: cfg.Hub.SendTimeout,
	})

	g, gctx := errgroup.WithContext(ctx)

	delivery, closeRelay, err := openDelivery(gctx, g, cfg, wsHub)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up message relay")
	}
	defer closeRelay()

	disp := dispatcher.New(delivery, dispatcher.Config{
		QueueSize:      cfg.Dispatcher.QueueSize,
		DeliverTimeout: cfg.Hub.SendTimeout,
	})

	// Optional read-through cache and audit archive
	opts := service.Options{CacheTTL: cfg.Cache.TTL}
	if cfg.Cache.Enabled {
		c, err := cache.NewRedisMessageCache(cfg.Redis, cfg.Cache.Prefix,
			cache.WithTombstoneTTL(cfg.Cache.TombstoneTTL))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect message cache")
		}
		defer c.Close()
		opts.Cache = c
		logger.Info().Str("address", cfg.Redis.Address).Msg("message cache enabled")
	}
	if cfg.Audit.Archive {
		store, err := storage.New(ctx, cfg.Audit.Storage)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open audit storage")
		}
		opts.Archiver = audit.NewStorageArchiver(store, cfg.Audit.Prefix)
		logger.Info().Str("driver", cfg.Audit.Storage.Driver).Msg("audit archive enabled")
	}

	messages := service.NewMessageService(messageRepo, idgen.NewULIDGenerator(nil), disp, gate, opts)

	// HTTP surface
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), pkglog.GinMiddleware(logger))

	handler.NewHandler(messages, gate, middleware.NewAuthMiddleware(gate.Principal), wsHub).RegisterRoutes(r)
	handler.NewWSHandler(wsHub, messages, gate, cfg.WebSocket).RegisterRoutes(r)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("chat server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		gate.RunRevocationSweeper(gctx, cfg.JWT.SweepInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down chat server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("server forced to shutdown")
		}
		if err := disp.Close(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("dispatcher did not drain")
		}
		if err := wsHub.Close(); err != nil {
			logger.Warn().Err(err).Msg("hub close failed")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("chat server exited with error")
	}
	logger.Info().Msg("chat server stopped")
}

// openStores returns the repositories for the configured storage driver and
// a function releasing their connections.
func openStores(ctx context.Context, cfg *config.Config) (repository.MessageRepository, repository.UserRepository, func(), error) {
	logger := pkglog.L()

	if cfg.Database.Driver == "sqlite" && cfg.Database.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.FilePath), 0o755); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Users always live in the relational store.
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := repository.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, nil, nil, err
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("connected to database")

	users := repository.NewGormUserRepository(db)
	closeDB := func() {
		if err := database.Close(db); err != nil {
			logger.Warn().Err(err).Msg("failed to close database")
		}
	}

	if cfg.Storage.Driver != config.StorageCassandra {
		return repository.NewGormMessageRepository(db), users, closeDB, nil
	}

	session, err := repository.NewCassandraSession(cfg.Cassandra)
	if err != nil {
		closeDB()
		return nil, nil, nil, err
	}
	messages := repository.NewCassandraMessageRepository(session)
	if cfg.Cassandra.CreateSchema {
		if err := messages.EnsureSchema(ctx); err != nil {
			messages.Close()
			closeDB()
			return nil, nil, nil, err
		}
	}
	logger.Info().Strs("hosts", cfg.Cassandra.Hosts).Str("keyspace", cfg.Cassandra.Keyspace).Msg("connected to cassandra")

	return messages, users, func() {
		messages.Close()
		closeDB()
	}, nil
}

// openDelivery builds the dispatcher's delivery. With a pub/sub relay every
// instance publishes to the shared channel and a relay goroutine feeds the
// local hub from it.
func openDelivery(ctx context.Context, g *errgroup.Group, cfg *config.Config, wsHub *hub.Hub) (dispatcher.Delivery, func(), error) {
	logger := pkglog.L()

	if cfg.Relay.Driver == config.RelayLocal {
		return dispatcher.NewLocalDelivery(wsHub), func() {}, nil
	}

	relayCfg := cfg.Relay
	if relayCfg.Driver == "kafka" {
		// Each instance needs its own consumer group to see every event.
		relayCfg.Kafka.GroupID = relayCfg.Kafka.GroupID + "-" + cfg.Server.InstanceID
	}

	ps, err := pubsub.NewPubSub(relayCfg)
	if err != nil {
		return nil, nil, err
	}

	relay := dispatcher.NewRelay(ps, wsHub)
	done, err := relay.Start(ctx)
	if err != nil {
		_ = ps.Close()
		return nil, nil, err
	}
	g.Go(func() error {
		<-done
		return nil
	})
	logger.Info().Str("driver", relayCfg.Driver).Msg("message relay started")

	return dispatcher.NewRelayDelivery(ps, cfg.Server.InstanceID), func() {
		if err := ps.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close relay")
		}
	}, nil
}
