package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/cwrk-planet/comms-service/config"
	"github.com/cwrk-planet/comms-service/internal/domain"
	"github.com/cwrk-planet/comms-service/internal/memstore"
	"github.com/cwrk-planet/comms-service/internal/postgres"
	"github.com/cwrk-planet/comms-service/internal/push"
	"github.com/cwrk-planet/comms-service/internal/redisstore"
	"github.com/cwrk-planet/comms-service/internal/registry"
	"github.com/cwrk-planet/comms-service/internal/security"
	"github.com/cwrk-planet/comms-service/internal/service"
	grpcx "github.com/cwrk-planet/comms-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/comms-service/internal/transport/http"
	"github.com/cwrk-planet/comms-service/internal/transport/ws"
	"github.com/cwrk-planet/comms-service/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	base := logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	lg := logger.Component("main")
	lg.Info("starting comms-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version,
		"messages", cfg.Storage.Messages, "tokens", cfg.Storage.Tokens, "push", cfg.Push.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	probes := map[string]grpcx.Probe{}

	// --- postgres ---
	var pool *pgxpool.Pool
	if cfg.UsesPostgres() {
		pool, err = postgres.NewPool(ctx, cfg.Postgres.ToPoolConfig(), base)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		if cfg.Postgres.EnsureSchema {
			if err := postgres.EnsureSchema(ctx, pool); err != nil {
				log.Fatalf("postgres schema: %v", err)
			}
		}
		probes["postgres"] = func(ctx context.Context) error { return postgres.Ping(ctx, pool) }
	}

	// --- collaborators ---
	var messages service.MessageStore
	switch cfg.Storage.Messages {
	case "postgres":
		messages = postgres.NewChatRepository(pool)
	default:
		messages = memstore.NewMessageStore()
	}

	var users service.UserDirectory
	switch cfg.Storage.Users {
	case "postgres":
		users = postgres.NewUserRepository(pool)
	default:
		seed := make([]domain.User, 0, len(cfg.Storage.SeedUsers))
		for _, u := range cfg.Storage.SeedUsers {
			seed = append(seed, domain.User{ID: u.ID, DisplayName: u.Name, Role: u.Role})
		}
		users = memstore.NewUsers(seed...)
	}

	var tokens service.TokenStore
	switch cfg.Storage.Tokens {
	case "postgres":
		tokens = postgres.NewTokenRepository(pool)
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		tokens, err = redisstore.NewTokenStore(rdb, base)
		if err != nil {
			log.Fatalf("redis token store: %v", err)
		}
		probes["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	default:
		tokens = memstore.NewTokens()
	}

	// --- push gateway ---
	var gateway push.Gateway
	switch cfg.Push.Backend {
	case "fcm":
		gateway, err = push.NewFCMGateway(ctx, cfg.Push.CredentialsFile, base)
		if err != nil {
			log.Fatalf("fcm: %v", err)
		}
	case "amqp":
		amqpGw, err := push.NewAMQPGateway(ctx, push.AMQPOptions{
			URL:           cfg.Push.AMQP.URL,
			Exchange:      cfg.Push.AMQP.Exchange,
			RoutingKey:    cfg.Push.AMQP.RoutingKey,
			RetryAttempts: cfg.Push.AMQP.RetryAttempts,
			RetryDelay:    cfg.Push.AMQP.RetryDelay,
		}, base)
		if err != nil {
			log.Fatalf("amqp: %v", err)
		}
		defer amqpGw.Close()
		gateway = amqpGw
	default:
		gateway = push.NewLogGateway(base)
	}

	// --- auth ---
	pub, err := security.LoadRSAPublicKeyFromPEM(cfg.Auth.PublicKeyPath)
	if err != nil {
		log.Fatalf("jwt public key: %v", err)
	}
	verifier := security.NewVerifier(pub, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.ClockSkew)

	// --- services ---
	reg := registry.New()
	tokenSvc := service.NewTokenService(tokens, base)
	notifySvc := service.NewNotificationService(tokens, users, gateway, service.NotificationConfig{
		EvictOnPermanentError: cfg.Push.Evict(),
		CallTTL:               cfg.Push.CallTTL,
	}, base)
	chatSvc := service.NewChatService(messages, users, reg, notifySvc, cfg.Chat.MaxBodyLength, base)
	callSvc := service.NewCallService(reg, notifySvc, base)

	// --- WS & HTTP ---
	wsServer := ws.NewServer(verifier, reg, chatSvc, callSvc, ws.Config{
		PingEvery:      cfg.WS.PingEvery,
		WriteTimeout:   cfg.WS.WriteTimeout,
		SendBuffer:     cfg.WS.SendBuffer,
		ReadLimit:      cfg.WS.ReadLimit,
		AllowedOrigins: cfg.HTTP.CORSOrigins,
	}, base)
	handler := httpx.NewHandler(chatSvc, tokenSvc, notifySvc, reg)
	router := httpx.NewRouter(handler, verifier, wsServer, httpx.RouterConfig{
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	}, base)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// --- gRPC ---
	grpcSrv := grpcx.NewServer(base, probes)
	go grpcSrv.WatchDependencies(ctx, cfg.GRPC.HealthEvery)

	// --- run both servers ---
	errCh := make(chan error, 2)

	go func() {
		lg.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			errCh <- err
			return
		}
		lg.Info("grpc listen", "addr", cfg.GRPC.Addr)
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	select {
	case <-ctx.Done():
		lg.Info("shutdown signal")
	case err := <-errCh:
		lg.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	grpcSrv.Shutdown()
	_ = httpSrv.Shutdown(ctxShutdown)
	// hijacked ws соединения Shutdown не трогает
	reg.Close()
	lg.Info("stopped")
}
