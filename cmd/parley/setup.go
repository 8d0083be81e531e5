package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/sandevgo/parley/internal/config"
	"github.com/sandevgo/parley/internal/providers/llm"
	"github.com/sandevgo/parley/internal/service/chat"
	"github.com/sandevgo/parley/internal/storage/sqlite"
	"github.com/sandevgo/parley/internal/transport/cli"
	"github.com/sandevgo/parley/internal/transport/httpapi"
	"github.com/sandevgo/parley/pkg/log"
	"github.com/sandevgo/parley/pkg/srv"
)

func NewServices(ctx context.Context) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	// init env
	if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	// 1. Configuration
	appCfg := config.NewAppConfig(ctx)
	providerCfg := config.NewProviderConfig(ctx)

	// 2. Storage
	db, err := sqlite.NewDB(ctx, appCfg.GetDatabasePath())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	services = append(services, srv.NewCleanup(db.Close))

	sessionsRepo := sqlite.NewSessionsRepo(db)
	messagesRepo := sqlite.NewMessagesRepo(db)
	summariesRepo := sqlite.NewSummariesRepo(db)
	compactionStore := sqlite.NewCompactionStore(db)

	// 3. AI Provider
	aiProvider, err := llm.NewProvider(ctx, providerCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize LLM provider")
	}

	// 4. Chat services
	sessionService := chat.NewSessionService(sessionsRepo, messagesRepo, appCfg.SystemPrompt)
	orchestrator := chat.NewOrchestrator(appCfg, sessionsRepo, messagesRepo, summariesRepo, compactionStore, aiProvider)

	// 5. Transports
	transports, err := initTransports(appCfg, sessionService, orchestrator)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize transports")
	}
	services = append(services, transports...)

	if len(transports) == 0 {
		logger.Fatal().Msg("no transport enabled, set ENABLE_HTTP or ENABLE_CLI")
	}

	return services
}

func initTransports(cfg *config.AppConfig, sessions *chat.SessionService, orchestrator *chat.Orchestrator) ([]srv.Service, error) {
	var services []srv.Service

	if cfg.EnableHTTP {
		services = append(services, httpapi.NewServer(sessions, orchestrator, cfg))
	}

	if cfg.EnableCLI {
		rl, err := cli.NewReadLine(sessions, orchestrator, cfg)
		if err != nil {
			return nil, err
		}
		services = append(services, rl)
	}

	return services, nil
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
