package queue

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/novavault/recovery-orchestrator/internal/config"
	"github.com/novavault/recovery-orchestrator/internal/queue/client"
	"github.com/novavault/recovery-orchestrator/internal/queue/handlers"
	"github.com/novavault/recovery-orchestrator/internal/services"
	"github.com/novavault/recovery-orchestrator/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type MessageHandler func(ctx context.Context, messageBody string) *types.Error

type Queues struct {
	RecoveryExecutionQueueClient client.QueueClient
	Handlers                     *handlers.QueueHandler
	processingTimeout            time.Duration
}

func New(cfg *config.QueueConfig, service *services.Services) *Queues {
	recoveryExecutionQueueClient, err := client.NewQueueClient(
		cfg.Url, cfg.QueueUser, cfg.QueuePassword, cfg.RecoveryExecutionQueueName,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("error while creating RecoveryExecutionQueueClient")
	}
	queueHandlers := handlers.NewQueueHandler(service)
	return &Queues{
		RecoveryExecutionQueueClient: recoveryExecutionQueueClient,
		Handlers:                     queueHandlers,
		processingTimeout:            time.Duration(cfg.QueueProcessingTimeout) * time.Second,
	}
}

// EmitRecoveryApprovedEvent publishes the threshold-crossed signal. The
// ledger calls this through the services.RecoveryEventEmitter interface.
func (q *Queues) EmitRecoveryApprovedEvent(ctx context.Context, event client.RecoveryApprovedEvent) error {
	jsonBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return q.RecoveryExecutionQueueClient.SendMessage(ctx, string(jsonBytes))
}

// Start all message processing
func (q *Queues) StartReceivingMessages() {
	startQueueMessageProcessing(
		q.RecoveryExecutionQueueClient, q.Handlers.RecoveryApprovedHandler,
		q.Handlers, log.Logger, q.processingTimeout,
	)
}

// Turn off all message processing
func (q *Queues) StopReceivingMessages() {
	if err := q.RecoveryExecutionQueueClient.Stop(); err != nil {
		log.Error().Err(err).Msg("error while stopping RecoveryExecutionQueueClient")
	}
}

// IsConnectionHealthy reports broker connectivity for the health check cron.
func (q *Queues) IsConnectionHealthy() error {
	return q.RecoveryExecutionQueueClient.Ping()
}

func startQueueMessageProcessing(
	queueClient client.QueueClient, handler MessageHandler, queueHandler *handlers.QueueHandler,
	logger zerolog.Logger, timeout time.Duration,
) {
	messagesChan, err := queueClient.ReceiveMessages()
	if err != nil {
		logger.Fatal().Err(err).Str("queueName", queueClient.GetQueueName()).Msg("error setting up message channel from queue")
	}

	go func() {
		for message := range messagesChan {
			// For each message, create a new context with a deadline or timeout
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			err := handler(ctx, message.Body)
			if err != nil {
				logger.Error().Err(err).Str("queueName", queueClient.GetQueueName()).
					Msg("error while processing message from queue")
				if err.StatusCode >= http.StatusBadRequest && err.StatusCode < http.StatusInternalServerError {
					// Malformed messages will never succeed; park them for
					// manual replay instead of poisoning the queue.
					saveErr := queueHandler.Services.SaveUnprocessableMessages(ctx, message.Body, message.Receipt)
					if saveErr != nil {
						logger.Error().Err(saveErr).Str("queueName", queueClient.GetQueueName()).
							Msg("error while saving unprocessable message")
						requeue(queueClient, message, logger)
						cancel()
						continue
					}
					ack(queueClient, message, logger)
					cancel()
					continue
				}
				requeue(queueClient, message, logger)
				cancel()
				continue
			}

			ack(queueClient, message, logger)
			cancel()
		}
	}()
}

func ack(queueClient client.QueueClient, message client.QueueMessage, logger zerolog.Logger) {
	if err := queueClient.DeleteMessage(message.Receipt); err != nil {
		logger.Error().Err(err).Str("queueName", queueClient.GetQueueName()).
			Msg("error while deleting message from queue")
	}
}

func requeue(queueClient client.QueueClient, message client.QueueMessage, logger zerolog.Logger) {
	if err := queueClient.ReQueueMessage(message.Receipt); err != nil {
		logger.Error().Err(err).Str("queueName", queueClient.GetQueueName()).
			Msg("error while requeueing message")
	}
}
