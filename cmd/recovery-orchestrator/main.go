package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/novavault/recovery-orchestrator/cmd/recovery-orchestrator/cli"
	"github.com/novavault/recovery-orchestrator/cmd/recovery-orchestrator/scripts"
	"github.com/novavault/recovery-orchestrator/internal/api"
	"github.com/novavault/recovery-orchestrator/internal/clients"
	"github.com/novavault/recovery-orchestrator/internal/config"
	"github.com/novavault/recovery-orchestrator/internal/db/model"
	"github.com/novavault/recovery-orchestrator/internal/observability/healthcheck"
	"github.com/novavault/recovery-orchestrator/internal/observability/metrics"
	"github.com/novavault/recovery-orchestrator/internal/queue"
	"github.com/novavault/recovery-orchestrator/internal/services"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("failed to load .env file")
	}
}

func main() {
	ctx := context.Background()

	// setup cli commands and flags
	if err := cli.Setup(); err != nil {
		log.Fatal().Err(err).Msg("error while setting up cli")
	}

	// load config
	cfgPath := cli.GetConfigPath()
	cfg, err := config.New(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg(fmt.Sprintf("error while loading config file: %s", cfgPath))
	}

	// initialize metrics with the metrics port from config
	metricsPort := cfg.Metrics.GetMetricsPort()
	metrics.Init(metricsPort)

	err = model.Setup(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("error while setting up recovery db model")
	}

	collaboratorClients := clients.New(cfg)
	services, err := services.New(ctx, cfg, collaboratorClients)
	if err != nil {
		log.Fatal().Err(err).Msg("error while setting up recovery services layer")
	}

	// Start the event queue processing
	queues := queue.New(&cfg.Queue, services)
	services.SetEventEmitter(queues)

	// Check if the replay flag is set
	if cli.GetReplayFlag() {
		log.Info().Msg("Replay flag is set. Starting replay of unprocessable messages.")
		err := scripts.ReplayUnprocessableMessages(ctx, cfg, queues, services.DbClient)
		if err != nil {
			log.Fatal().Err(err).Msg("error while replaying unprocessable messages")
		}
		return
	}

	queues.StartReceivingMessages()

	if err := healthcheck.StartHealthCheckCron(ctx, queues, cfg.Server.HealthCheckInterval); err != nil {
		log.Fatal().Err(err).Msg("error while starting health check cron")
	}

	apiServer, err := api.New(ctx, cfg, services)
	if err != nil {
		log.Fatal().Err(err).Msg("error while setting up recovery orchestrator api service")
	}
	if err = apiServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("error while starting recovery orchestrator api service")
	}
}
