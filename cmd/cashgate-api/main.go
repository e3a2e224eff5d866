// @title         Cashgate Ingest API
// @version       0.1.0
// @description   Regulatory-safe ingestion boundary for merchant cash-flow data

package main

import (
	"context"
	"time"

	"cashgate/internal/platform/config"
	"cashgate/internal/platform/logger"
	phttp "cashgate/internal/platform/net/http"
	"cashgate/internal/platform/net/middleware"
	"cashgate/internal/platform/store"
	"cashgate/internal/services/ingest/domain"
	"cashgate/internal/services/ingest/module"
	"cashgate/internal/services/ingest/repo"
)

func main() {
	root := config.New()
	apiCfg := root.Prefix("CORE_API_")
	pgCfg := root.Prefix("SERVICE_PGSQL_")

	// bring up logging early
	l := logger.Get()

	ctx := context.Background()

	// storage port: Postgres in normal operation, in-memory for local dev
	var port domain.StoragePort
	if pgCfg.MayBool("ENABLED", true) {
		st, err := store.Open(ctx, store.Config{
			AppName: "cashgate",
			PG: store.PGConfig{
				Enabled:     true,
				URL:         pgCfg.MustString("DBURL"),
				MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
				SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			},
		}, store.WithLogger(*l))
		if err != nil {
			l.Panic().Err(err).Msg("store.Open failed")
		}
		defer func() {
			if err := st.Close(ctx); err != nil {
				l.Error().Err(err).Msg("failed to close store")
			}
		}()

		pgRepo := repo.NewPG(st.PG)
		if err := pgRepo.Migrate(ctx); err != nil {
			l.Panic().Err(err).Msg("schema migration failed")
		}
		port = pgRepo
	} else {
		l.Warn().Msg("postgres disabled; using in-memory storage port (dev only)")
		port = repo.NewMemory()
	}

	srv := phttp.NewServer(apiCfg)
	r := srv.Router()

	r.Use(
		middleware.RequestID(),
		middleware.RealIP(),
		middleware.RecoverJSON,
		middleware.AccessLogZerolog(middleware.AccessLogOptions{
			Slow: time.Duration(apiCfg.MayInt("SLOW_MS", 1000)) * time.Millisecond,
		}),
	)
	if apiCfg.MayBool("CORS", false) {
		r.Use(middleware.CORS(middleware.CORSOptions{
			AllowedOrigins: apiCfg.MayCSV("CORS_ORIGINS", nil),
		}))
	}

	module.New(root, port).MountRoutes(r)

	if err := srv.Run(ctx); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}
