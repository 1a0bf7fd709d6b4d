package handlers

import (
	"context"
	"net/http"

	"github.com/novavault/recovery-orchestrator/internal/config"
	"github.com/novavault/recovery-orchestrator/internal/services"
)

type Handler struct {
	config   *config.Config
	services *services.Services
}

type PublicResponse[T any] struct {
	Data T `json:"data"`
}

type Result struct {
	Data   interface{}
	Status int
}

// NewResult returns a successful result, with default status code 200
func NewResult[T any](data T) *Result {
	res := &PublicResponse[T]{Data: data}
	return &Result{Data: res, Status: http.StatusOK}
}

// NewResultWithStatus returns a successful result with an explicit status code
func NewResultWithStatus[T any](data T, status int) *Result {
	res := &PublicResponse[T]{Data: data}
	return &Result{Data: res, Status: status}
}

func New(
	ctx context.Context, cfg *config.Config, services *services.Services,
) (*Handler, error) {
	return &Handler{
		config:   cfg,
		services: services,
	}, nil
}
