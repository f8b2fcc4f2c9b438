// Package timerhubcron provides utilities for building scheduled Lambda functions.
package timerhubcron

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"

	timerhubcli "github.com/timerhub/timerhub/timerhub-cli"
)

type RunCallback func(ctx context.Context) error

type Handler struct {
	service timerhubcli.Service
	logger  zerolog.Logger

	runOnce RunCallback
}

func NewHandler(
	service timerhubcli.Service,
	runOnce RunCallback,
) *Handler {
	return &Handler{
		service: service,
		logger:  timerhubcli.Logger(service),
		runOnce: runOnce,
	}
}

func (h *Handler) RunOnce(ctx context.Context, _ json.RawMessage) error {
	h.logger.Info().Msg("running scheduled task")
	return h.runOnce(ctx)
}

func (h *Handler) Start() error {
	switch {
	case timerhubcli.CommonOpts.Console:
		return h.runOnce(context.Background())

	default:
		lambda.Start(h.RunOnce)
	}
	return nil
}
