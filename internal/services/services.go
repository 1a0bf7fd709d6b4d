package services

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/novavault/recovery-orchestrator/internal/clients"
	"github.com/novavault/recovery-orchestrator/internal/config"
	"github.com/novavault/recovery-orchestrator/internal/db"
	queueClient "github.com/novavault/recovery-orchestrator/internal/queue/client"
	"github.com/novavault/recovery-orchestrator/internal/types"
)

// RecoveryEventEmitter publishes the threshold-crossed signal onto the
// recovery execution queue. The queue layer implements it; tests inject
// an in-process fake.
type RecoveryEventEmitter interface {
	EmitRecoveryApprovedEvent(ctx context.Context, event queueClient.RecoveryApprovedEvent) error
}

// Service layer contains the business logic and is used to interact with
// the database and the external collaborator clients.
type Services struct {
	DbClient db.DBClient
	Clients  *clients.Clients
	cfg      *config.Config
	emitter  RecoveryEventEmitter
}

func New(ctx context.Context, cfg *config.Config, clients *clients.Clients) (*Services, error) {
	dbClient, err := db.New(ctx, cfg.Db)
	if err != nil {
		log.Ctx(ctx).Fatal().Err(err).Msg("error while creating db client")
		return nil, err
	}
	return &Services{
		DbClient: dbClient,
		Clients:  clients,
		cfg:      cfg,
	}, nil
}

// SetEventEmitter wires the queue-backed emitter after the queue layer is
// constructed. The queue layer depends on Services, so the emitter cannot be
// injected through New.
func (s *Services) SetEventEmitter(emitter RecoveryEventEmitter) {
	s.emitter = emitter
}

// DoHealthCheck checks the health of the services by ping the database.
func (s *Services) DoHealthCheck(ctx context.Context) error {
	return s.DbClient.Ping(ctx)
}

func (s *Services) SaveUnprocessableMessages(ctx context.Context, messageBody, receipt string) error {
	err := s.DbClient.SaveUnprocessableMessage(ctx, messageBody, receipt)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("error while saving unprocessable message")
		return types.NewErrorWithMsg(http.StatusInternalServerError, types.InternalServiceError, "error while saving unprocessable message")
	}
	return nil
}
