package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/timerhub/timerhub/timerhub-ws/sharedao"
	"github.com/timerhub/timerhub/timerhub-ws/timerdao"
)

type server struct {
	timers     *timerdao.DAO
	shares     *sharedao.DAO
	adminToken string
}

type timersResponse struct {
	Owned  []timerdao.Timer `json:"owned"`
	Shared []timerdao.Timer `json:"shared"`
}

// getTimer returns a single timer. The caller must be the owner or have the
// timer shared with them; anyone else gets the same 404 as a missing timer.
func (s *server) getTimer(w http.ResponseWriter, req *http.Request) {
	var (
		ctx     = req.Context()
		logger  = zerolog.Ctx(ctx)
		timerID = chi.URLParam(req, "timerID")
		userID  = req.Header.Get("X-User-Id")
	)
	if userID == "" {
		http.Error(w, "missing X-User-Id header", http.StatusUnauthorized)
		return
	}

	timer, err := s.timers.Get(ctx, timerID)
	if err != nil {
		logger.Error().Err(err).Str("timer_id", timerID).Msg("failed to get timer")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if timer == nil {
		http.NotFound(w, req)
		return
	}

	if timer.OwnerUserID != userID {
		ok, err := s.shares.Has(ctx, timerID, userID)
		if err != nil {
			logger.Error().Err(err).Str("timer_id", timerID).Msg("failed to check share")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !ok {
			http.NotFound(w, req)
			return
		}
	}

	writeJSON(w, timer)
}

// listTimers returns the timers the caller owns plus the timers shared with
// them. Shared timers whose record has since been deleted are skipped.
func (s *server) listTimers(w http.ResponseWriter, req *http.Request) {
	var (
		ctx    = req.Context()
		logger = zerolog.Ctx(ctx)
		userID = req.Header.Get("X-User-Id")
	)
	if userID == "" {
		http.Error(w, "missing X-User-Id header", http.StatusUnauthorized)
		return
	}

	owned, err := s.timers.ListByOwner(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("failed to list owned timers")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	sharedIDs, err := s.shares.ListTimers(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("failed to list shared timers")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	shared := make([]timerdao.Timer, 0, len(sharedIDs))
	for _, timerID := range sharedIDs {
		timer, err := s.timers.Get(ctx, timerID)
		if err != nil {
			logger.Error().Err(err).Str("timer_id", timerID).Msg("failed to get shared timer")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if timer == nil {
			continue
		}
		shared = append(shared, *timer)
	}

	writeJSON(w, timersResponse{
		Owned:  owned,
		Shared: shared,
	})
}

// deleteTimer force-removes a timer record. The fanout of the removal notice
// and the share cascade ride the table stream, so this handler only deletes.
func (s *server) deleteTimer(w http.ResponseWriter, req *http.Request) {
	var (
		ctx     = req.Context()
		logger  = zerolog.Ctx(ctx)
		timerID = chi.URLParam(req, "timerID")
	)
	if s.adminToken == "" || req.Header.Get("X-Admin-Token") != s.adminToken {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if err := s.timers.Delete(ctx, timerID); err != nil {
		logger.Error().Err(err).Str("timer_id", timerID).Msg("failed to delete timer")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	logger.Info().Str("timer_id", timerID).Msg("timer deleted by admin")
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
