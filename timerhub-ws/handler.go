package timerhubws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	timerhubcli "github.com/timerhub/timerhub/timerhub-cli"
	"github.com/timerhub/timerhub/timerhub-ws/publish"
)

// Handler routes API Gateway WebSocket events for the timer sync protocol.
//
// Every route returns the uniform 200 envelope regardless of outcome; see
// OkResponse. Each invocation is stateless and independently retryable.
type Handler struct {
	Timers      TimerStore
	Shares      ShareStore
	Connections ConnectionDirectory
	Broadcast   *Broadcaster
	Events      *publish.Publisher // optional audit stream
	Metrics     *timerhubcli.Metrics
	Logger      zerolog.Logger
}

// HandleEvent routes an API Gateway WebSocket event to the appropriate handler.
func (h *Handler) HandleEvent(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger := h.Logger.With().
		Str("connection_id", req.RequestContext.ConnectionID).
		Str("route", req.RequestContext.RouteKey).
		Logger()

	switch req.RequestContext.RouteKey {
	case "$connect":
		return h.handleConnect(ctx, logger, req)
	case "$disconnect":
		return h.handleDisconnect(ctx, logger, req)
	case "$default":
		return h.handleMessage(ctx, logger, req)
	default:
		logger.Warn().Msg("unknown route")
		return OkResponse(), nil
	}
}

func (h *Handler) handleConnect(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	userID := authorizedUser(req)
	deviceID := req.QueryStringParameters["deviceId"]
	if userID == "" || deviceID == "" {
		logger.Warn().
			Str("user_id", userID).
			Str("device_id", deviceID).
			Msg("connect without identity, not tracking")
		return OkResponse(), nil
	}

	endpoint := callbackEndpoint(req)
	if err := h.Connections.Register(ctx, userID, deviceID, req.RequestContext.ConnectionID, endpoint); err != nil {
		// A storage hiccup must never prevent a socket from opening.
		logger.Error().Err(err).Msg("failed to store connection")
		return OkResponse(), nil
	}

	logger.Info().Str("user_id", userID).Str("device_id", deviceID).Msg("connection established")
	return OkResponse(), nil
}

func (h *Handler) handleDisconnect(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	if err := h.Connections.Unregister(ctx, req.RequestContext.ConnectionID); err != nil {
		logger.Error().Err(err).Msg("failed to delete connection")
	}
	logger.Info().Msg("connection closed")
	return OkResponse(), nil
}

func (h *Handler) handleMessage(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	frame, err := ParseEnvelope(req.Body)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid message")
		return OkResponse(), nil
	}

	start := time.Now()
	defer func() {
		if h.Metrics != nil {
			h.Metrics.Timing(ctx, timerhubcli.ResponseTimeMetric, start,
				map[timerhubcli.DimensionName]string{timerhubcli.OperationNameDimension: frame.Type})
		}
	}()

	switch frame.Type {
	case MsgPing:
		if err := h.Broadcast.PostTo(ctx, callbackEndpoint(req), req.RequestContext.ConnectionID, PongMessage()); err != nil {
			logger.Error().Err(err).Msg("failed to send pong")
		}
	case MsgUpdateTimer:
		h.handleUpdateTimer(ctx, logger, req, frame.Raw)
	case MsgStopTimer:
		h.handleStopTimer(ctx, logger, req, frame.Raw)
	default:
		logger.Warn().Str("type", frame.Type).Msg("unhandled message type")
	}
	return OkResponse(), nil
}

func (h *Handler) handleUpdateTimer(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest, raw json.RawMessage) {
	requester := h.requester(ctx, logger, req)
	if requester == "" {
		logger.Warn().Msg("update from unauthenticated connection, dropping")
		return
	}

	var update UpdateTimerRequest
	if err := json.Unmarshal(raw, &update); err != nil {
		logger.Warn().Err(err).Msg("invalid updateTimer payload")
		return
	}
	if update.Timer.ID == "" {
		logger.Warn().Msg("updateTimer missing timer id")
		return
	}

	logger = logger.With().Str("timer_id", update.Timer.ID).Str("user_id", requester).Logger()

	existing, err := h.Timers.Get(ctx, update.Timer.ID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load timer")
		return
	}

	next, err := AuthorizeUpdate(existing, requester, update.Timer)
	if err != nil {
		if IsAuthorizationError(err) {
			logger.Warn().Err(err).Msg("rejecting unauthorized update")
		} else {
			logger.Warn().Err(err).Msg("rejecting invalid update")
		}
		return
	}

	if err := h.Timers.Put(ctx, next); err != nil {
		logger.Error().Err(err).Msg("failed to store timer")
		return
	}

	current, err := h.Shares.ListUsers(ctx, next.ID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list shares, skipping fanout")
		return
	}

	var recipients []string
	if update.ShareWith != nil {
		toAdd, toRemove := DiffShares(current, *update.ShareWith)
		for _, userID := range toAdd {
			if err := h.Shares.Add(ctx, next.ID, userID); err != nil {
				logger.Error().Err(err).Str("shared_with", userID).Msg("failed to add share")
			}
		}
		for _, userID := range toRemove {
			if err := h.Shares.Remove(ctx, next.ID, userID); err != nil {
				logger.Error().Err(err).Str("shared_with", userID).Msg("failed to remove share")
			}
		}
		// Removed users get one final update so their clients drop the timer.
		recipients = Recipients(next.OwnerUserID, *update.ShareWith, toRemove)
	} else {
		recipients = Recipients(next.OwnerUserID, current)
	}

	payload, err := TimerUpdatedMessage(next)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build timerUpdated message")
		return
	}
	h.Broadcast.Send(ctx, recipients, payload)
	h.audit(ctx, logger, "updated", next.ID, next.OwnerUserID, recipients)
	h.fanoutMetric(ctx, MsgUpdateTimer, len(recipients))

	logger.Info().Int("recipients", len(recipients)).Msg("timer update fanned out")
}

func (h *Handler) handleStopTimer(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest, raw json.RawMessage) {
	requester := h.requester(ctx, logger, req)
	if requester == "" {
		logger.Warn().Msg("stop from unauthenticated connection, dropping")
		return
	}

	var stop StopTimerRequest
	if err := json.Unmarshal(raw, &stop); err != nil {
		logger.Warn().Err(err).Msg("invalid stopTimer payload")
		return
	}
	if stop.TimerID == "" {
		logger.Warn().Msg("stopTimer missing timer id")
		return
	}

	logger = logger.With().Str("timer_id", stop.TimerID).Str("user_id", requester).Logger()

	timer, err := h.Timers.Get(ctx, stop.TimerID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load timer")
		return
	}
	if timer == nil {
		// Already stopped; retries are idempotent.
		logger.Debug().Msg("timer already stopped")
		return
	}
	if timer.OwnerUserID != requester {
		logger.Warn().Msg("rejecting unauthorized stop")
		return
	}

	// Recipients must be collected before the cascade delete, or the share
	// edges needed for the notification list are gone.
	shared, err := h.Shares.ListUsers(ctx, stop.TimerID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list shares, aborting stop")
		return
	}
	recipients := Recipients(timer.OwnerUserID, shared)

	if err := h.Shares.DeleteByTimer(ctx, stop.TimerID); err != nil {
		logger.Error().Err(err).Msg("failed to delete shares")
	}
	if err := h.Timers.Delete(ctx, stop.TimerID); err != nil {
		logger.Error().Err(err).Msg("failed to delete timer")
	}

	h.Broadcast.Send(ctx, recipients, TimerRemovedMessage(stop.TimerID))
	h.audit(ctx, logger, "removed", stop.TimerID, timer.OwnerUserID, recipients)
	h.fanoutMetric(ctx, MsgStopTimer, len(recipients))

	logger.Info().Int("recipients", len(recipients)).Msg("timer stop fanned out")
}

func (h *Handler) fanoutMetric(ctx context.Context, operation string, size int) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.Gauge(ctx, timerhubcli.FanoutSizeMetric, float64(size),
		map[timerhubcli.DimensionName]string{timerhubcli.OperationNameDimension: operation})
}

func (h *Handler) audit(ctx context.Context, logger zerolog.Logger, action, timerID, ownerUserID string, recipients []string) {
	if h.Events == nil {
		return
	}
	envelope := publish.Envelope{
		Action:      action,
		TimerID:     timerID,
		OwnerUserID: ownerUserID,
		Recipients:  recipients,
		At:          time.Now().Unix(),
	}
	if err := h.Events.Send(ctx, envelope); err != nil {
		logger.Error().Err(err).Msg("failed to publish audit event")
	}
}

// requester resolves the authenticated user for a message, preferring the
// authorizer claims propagated by the gateway and falling back to the
// connection directory's reverse mapping.
func (h *Handler) requester(ctx context.Context, logger zerolog.Logger, req events.APIGatewayWebsocketProxyRequest) string {
	if userID := authorizedUser(req); userID != "" {
		return userID
	}
	handle, err := h.Connections.ResolveOwner(ctx, req.RequestContext.ConnectionID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to resolve connection owner")
		return ""
	}
	if handle == nil {
		return ""
	}
	return handle.UserID
}

func authorizedUser(req events.APIGatewayWebsocketProxyRequest) string {
	if claims, ok := req.RequestContext.Authorizer.(map[string]interface{}); ok {
		if userID, ok := claims["userId"].(string); ok {
			return userID
		}
	}
	return ""
}

func callbackEndpoint(req events.APIGatewayWebsocketProxyRequest) string {
	return fmt.Sprintf("https://%s/%s", req.RequestContext.DomainName, req.RequestContext.Stage)
}
