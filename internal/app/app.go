// Package app wires the application together: configuration, logging,
// storage, the AI provider, and the Discord surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/prasetya0/guildlore/db"
	"github.com/prasetya0/guildlore/internal/cache"
	"github.com/prasetya0/guildlore/internal/chunker"
	"github.com/prasetya0/guildlore/internal/config"
	"github.com/prasetya0/guildlore/internal/discord"
	"github.com/prasetya0/guildlore/internal/guild"
	"github.com/prasetya0/guildlore/internal/knowledge"
	"github.com/prasetya0/guildlore/internal/log"
	"github.com/prasetya0/guildlore/internal/permission"
	"github.com/prasetya0/guildlore/internal/rag"
	"github.com/prasetya0/guildlore/internal/sync"
)

// App owns the long-lived resources and the bot.
type App struct {
	logger *slog.Logger
	pool   *pgxpool.Pool
	redis  *redis.Client
	bot    *discord.Bot
}

// Setup loads configuration and builds every component. Configuration
// errors are fatal; an unreachable cache backend is not, the cache
// layer degrades per call instead.
func Setup(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	if err := db.Migrate(cfg.ConnString(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	poolCfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		pool.Close()
		return nil, errors.New("initializing genkit with gemini provider")
	}
	aiEmbedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if aiEmbedder == nil {
		pool.Close()
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable at boot, cache degraded until it recovers",
			"addr", cfg.RedisAddr, "error", err)
	}

	splitter, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("building chunker: %w", err)
	}

	kv := cache.New(rdb, logger)
	docStore := knowledge.NewStore(pool, logger)
	embedder := knowledge.NewEmbedder(aiEmbedder)
	guildSvc := guild.NewService(guild.NewStore(pool, logger), kv, cfg.RecordTTL, logger)

	perms := permission.New(permission.Config{
		OwnerCommands:      cfg.OwnerCommands,
		PrivilegedCommands: cfg.PrivilegedCommands,
		AllowedChannels:    cfg.AllowedChannels,
	})

	pipeline := sync.New(splitter, embedder, docStore, perms, sync.NewHTTPFetcher(), logger)

	answerer := rag.New(embedder, docStore, kv, rag.NewGenerator(g), rag.Config{
		ModelName: cfg.ModelName,
		TopK:      cfg.TopK,
		QueryTTL:  cfg.VectorQueryTTL,
		Scope:     cfg.DiscordGuildID,
	}, logger)

	bot := discord.New(discord.Config{
		Token:   cfg.DiscordToken,
		AppID:   cfg.DiscordAppID,
		GuildID: cfg.DiscordGuildID,
	}, guildSvc, perms, pipeline, answerer, docStore, logger)

	return &App{logger: logger, pool: pool, redis: rdb, bot: bot}, nil
}

// Run connects the bot and blocks until ctx is cancelled, then shuts
// everything down in dependency order.
func (a *App) Run(ctx context.Context) error {
	if err := a.bot.Start(ctx); err != nil {
		a.shutdown()
		return err
	}
	a.logger.Info("guildlore is running")

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	a.shutdown()
	return nil
}

// shutdown closes the gateway first so no new events arrive, then the
// cache and the database pool.
func (a *App) shutdown() {
	if err := a.bot.Stop(); err != nil {
		a.logger.Error("closing discord session failed", "error", err)
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Error("closing redis client failed", "error", err)
	}
	a.pool.Close()
	a.logger.Info("shutdown complete")
}
