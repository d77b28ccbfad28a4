package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/hunter-hues/emotevote/internal/adapter/httpserver"
	"github.com/hunter-hues/emotevote/internal/adapter/postgres"
	"github.com/hunter-hues/emotevote/internal/adapter/redis"
	"github.com/hunter-hues/emotevote/internal/adapter/seventv"
	"github.com/hunter-hues/emotevote/internal/adapter/twitch"
	"github.com/hunter-hues/emotevote/internal/app"
	"github.com/hunter-hues/emotevote/internal/crypto"
	"github.com/hunter-hues/emotevote/internal/domain"
	"github.com/hunter-hues/emotevote/internal/platform/config"
	"github.com/hunter-hues/emotevote/internal/platform/logging"
)

const shutdownTimeout = 10 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := redis.Connect(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupCrypto(cfg *config.Config) crypto.Service {
	if cfg.TokenEncryptionKey == "" {
		slog.Warn("TOKEN_ENCRYPTION_KEY not set, storing tokens unencrypted")
		return crypto.NoopService{}
	}

	svc, err := crypto.NewAesGcmService(cfg.TokenEncryptionKey)
	if err != nil {
		slog.Error("Failed to create crypto service", "error", err)
		os.Exit(1)
	}
	return svc
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	cryptoSvc := setupCrypto(cfg)

	userRepo := postgres.NewUserRepo(pool, cryptoSvc)
	eventRepo := postgres.NewEventRepo(pool)
	voteRepo := postgres.NewVoteRepo(pool)
	grantRepo := postgres.NewDelegationRepo(pool)

	graph, err := twitch.NewGraph(userRepo, cfg.TwitchClientID, cfg.TwitchClientSecret)
	if err != nil {
		slog.Error("Failed to create Twitch client", "error", err)
		os.Exit(1)
	}

	healthChecks := []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
	}

	// Redis is optional: without it every oracle answer goes straight to Helix.
	var oracle domain.SocialGraph = graph
	if cfg.RedisURL != "" {
		redisClient := setupRedis(cfg)
		defer func() { _ = redisClient.Close() }()
		oracle = redis.NewOracleCache(redisClient, graph)
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	emoteClient := seventv.NewClient(cfg.SevenTVGQLURL)

	appSvc := app.NewService(userRepo, eventRepo, voteRepo, grantRepo, oracle, emoteClient, clock)

	srv := httpserver.NewServer(cfg, appSvc, emoteClient, healthChecks)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Run(ctx, shutdownTimeout); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped")
}
