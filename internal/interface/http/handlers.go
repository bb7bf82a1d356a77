// Package http implements the REST API of the Progression Engine.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/studyhub/progression-engine/internal/application/command"
	"github.com/studyhub/progression-engine/internal/application/query"
	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
	"github.com/studyhub/progression-engine/pkg/logger"
)

// ProgressionEngine is the application facade the API routes through.
type ProgressionEngine interface {
	AwardXP(ctx context.Context, cmd command.AwardXPCommand) (*command.AwardXPResult, error)
	UpdateStreak(ctx context.Context, cmd command.UpdateStreakCommand) (*command.UpdateStreakResult, error)
	UnlockAchievement(ctx context.Context, cmd command.UnlockAchievementCommand) (*command.UnlockAchievementResult, error)

	RecordAttendance(ctx context.Context, studentID string) (*command.ActivityResult, error)
	CompleteAssignment(ctx context.Context, studentID string) (*command.ActivityResult, error)
	RecordLogin(ctx context.Context, studentID string) (*command.ActivityResult, error)
	RecordStudySession(ctx context.Context, studentID string) (*command.ActivityResult, error)

	GetProgress(ctx context.Context, q query.GetProgressQuery) (*query.ProgressView, error)
	GetTotalXP(ctx context.Context, q query.GetTotalXPQuery) (*query.TotalXPView, error)
	GetLedger(ctx context.Context, q query.GetLedgerQuery) (*query.LedgerView, error)
	GetAchievements(ctx context.Context, q query.GetAchievementsQuery) (*query.AchievementsView, error)
	GetLeaderboard(ctx context.Context, q query.GetLeaderboardQuery) (*query.LeaderboardView, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "Progression Engine API",
		"version":     "v1",
		"description": "REST API for the student progression engine: XP, levels, streaks and achievements",
		"endpoints": map[string]string{
			"health":       "/health",
			"progress":     "/api/v1/students/{id}/progress",
			"xp":           "/api/v1/students/{id}/xp",
			"ledger":       "/api/v1/students/{id}/ledger",
			"achievements": "/api/v1/students/{id}/achievements",
			"leaderboard":  "/api/v1/leaderboard",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	// Default health response
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// awardXPRequest is the body of POST /api/v1/students/{id}/xp.
type awardXPRequest struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
	Source string `json:"source"`
}

// handleAwardXP handles POST /api/v1/students/{id}/xp
func (s *Server) handleAwardXP(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	if studentID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Student ID is required")
		return
	}

	var req awardXPRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.Engine.AwardXP(r.Context(), command.AwardXPCommand{
		StudentID: studentID,
		Amount:    req.Amount,
		Reason:    req.Reason,
		Source:    req.Source,
	})
	if err != nil {
		s.writeDomainError(w, r, err, "failed to award XP")
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// handleUpdateStreak handles POST /api/v1/students/{id}/streaks/{type}
func (s *Server) handleUpdateStreak(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	streakType := progression.StreakType(r.PathValue("type"))

	result, err := s.deps.Engine.UpdateStreak(r.Context(), command.UpdateStreakCommand{
		StudentID: studentID,
		Type:      streakType,
	})
	if err != nil {
		s.writeDomainError(w, r, err, "failed to update streak")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// unlockRequest is the optional body of POST /api/v1/students/{id}/achievements/{achievement}.
type unlockRequest struct {
	Context string `json:"context"`
}

// handleUnlockAchievement handles POST /api/v1/students/{id}/achievements/{achievement}
func (s *Server) handleUnlockAchievement(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	achievementID := r.PathValue("achievement")

	var req unlockRequest
	if r.ContentLength > 0 && !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.Engine.UnlockAchievement(r.Context(), command.UnlockAchievementCommand{
		StudentID:     studentID,
		AchievementID: achievementID,
		Context:       req.Context,
	})
	if err != nil {
		s.writeDomainError(w, r, err, "failed to unlock achievement")
		return
	}

	// Repeat unlocks are acknowledged, not rejected.
	status := http.StatusOK
	if result.IsNew() {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

// handleActivity handles POST /api/v1/students/{id}/activity/{activity}
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	activity := r.PathValue("activity")

	var (
		result *command.ActivityResult
		err    error
	)

	switch activity {
	case "attendance":
		result, err = s.deps.Engine.RecordAttendance(r.Context(), studentID)
	case "assignment":
		result, err = s.deps.Engine.CompleteAssignment(r.Context(), studentID)
	case "login":
		result, err = s.deps.Engine.RecordLogin(r.Context(), studentID)
	case "study":
		result, err = s.deps.Engine.RecordStudySession(r.Context(), studentID)
	default:
		writeJSONError(w, http.StatusBadRequest, "invalid_request",
			"Unknown activity: must be one of attendance, assignment, login, study")
		return
	}

	if err != nil {
		s.writeDomainError(w, r, err, "failed to record activity")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// READ MODEL HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetProgress handles GET /api/v1/students/{id}/progress
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")

	result, err := s.deps.Engine.GetProgress(r.Context(), query.GetProgressQuery{StudentID: studentID})
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get progress")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetTotalXP handles GET /api/v1/students/{id}/xp
func (s *Server) handleGetTotalXP(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")

	result, err := s.deps.Engine.GetTotalXP(r.Context(), query.GetTotalXPQuery{StudentID: studentID})
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get total XP")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetLedger handles GET /api/v1/students/{id}/ledger
func (s *Server) handleGetLedger(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")

	q := query.GetLedgerQuery{
		StudentID: studentID,
		Limit:     getQueryParamInt(r, "limit", 0),
	}

	result, err := s.deps.Engine.GetLedger(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get ledger")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetAchievements handles GET /api/v1/students/{id}/achievements
func (s *Server) handleGetAchievements(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")

	result, err := s.deps.Engine.GetAchievements(r.Context(), query.GetAchievementsQuery{StudentID: studentID})
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get achievements")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetLeaderboard handles GET /api/v1/leaderboard
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := query.GetLeaderboardQuery{
		Limit:      getQueryParamInt(r, "limit", 0),
		ForStudent: getQueryParam(r, "for", ""),
	}

	result, err := s.deps.Engine.GetLeaderboard(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err, "failed to get leaderboard")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError translates application errors into HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case shared.IsValidation(err), errors.Is(err, shared.ErrInvalidStreakType), errors.Is(err, shared.ErrUnknownAchievement):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case shared.IsAlreadyExists(err):
		writeJSONError(w, http.StatusConflict, "already_exists", err.Error())
	case shared.IsConflict(err):
		// Optimistic lock retries exhausted: the client may safely retry.
		w.Header().Set("Retry-After", "1")
		writeJSONError(w, http.StatusConflict, "version_conflict", "Concurrent update conflict, please retry")
	default:
		s.logger.Error(fallback,
			logger.Err(err),
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return false
	}
	return true
}
