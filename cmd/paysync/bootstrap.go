package main

import (
	"context"
	"log/slog"
	"time"

	"paysync/internal/config"
	"paysync/internal/infrastructure/cache"
	"paysync/internal/infrastructure/logging"
	"paysync/internal/infrastructure/storage"
	"paysync/internal/infrastructure/telemetry"
	"paysync/internal/infrastructure/xrplrpc"
	"paysync/internal/interfaces/httpapi"
)

// deps holds the process-wide pieces every command needs.
type deps struct {
	cfg             config.Config
	logFile         *logging.RotatingWriter
	shutdownTracing func(context.Context) error
}

func setup(ctx context.Context, service string) (*deps, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}

	logFile, err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		return nil, err
	}

	rt := &deps{cfg: cfg, logFile: logFile}
	shutdownTracing, err := telemetry.InitTracer(ctx, service, cfg.OtelEndpoint)
	if err != nil {
		slog.Warn("tracing init error", "err", err)
	}
	rt.shutdownTracing = shutdownTracing
	return rt, nil
}

func (rt *deps) close() {
	if rt.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rt.shutdownTracing(ctx); err != nil {
			slog.Warn("tracing shutdown error", "err", err)
		}
		cancel()
	}
	if rt.logFile != nil {
		_ = rt.logFile.Close()
	}
}

// openStore opens the configured database. With REDIS_ADDR set the store is
// wrapped in the query cache, so inserts from any command bump its version.
// An unreachable Redis falls back to the bare store; cached entries then
// expire after CACHE_TTL.
func (rt *deps) openStore(ctx context.Context) (storage.Store, error) {
	base, err := storage.Open(ctx, storage.Config{
		Driver: rt.cfg.StoreDriver,
		DSN:    rt.cfg.DBDSN,
		Table:  rt.cfg.PaymentsTable,
	})
	if err != nil {
		return nil, err
	}
	if rt.cfg.RedisAddr == "" {
		return base, nil
	}
	cached, err := cache.NewCachedStore(base, cache.Config{Addr: rt.cfg.RedisAddr, TTL: rt.cfg.CacheTTL})
	if err != nil {
		slog.Warn("redis cache disabled", "addr", rt.cfg.RedisAddr, "err", err)
		return base, nil
	}
	return cached, nil
}

func (rt *deps) rpcClient() (*xrplrpc.Client, error) {
	return xrplrpc.NewClient(xrplrpc.Config{
		URL:     rt.cfg.RPCURL,
		Timeout: rt.cfg.RPCTimeout,
	})
}

func buildInfo() httpapi.BuildInfo {
	return httpapi.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
