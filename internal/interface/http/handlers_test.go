package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/studyhub/progression-engine/internal/application/command"
	"github.com/studyhub/progression-engine/internal/application/query"
	"github.com/studyhub/progression-engine/internal/domain/progression"
	"github.com/studyhub/progression-engine/internal/domain/shared"
	"github.com/studyhub/progression-engine/internal/interface/http/handlers"
	"github.com/studyhub/progression-engine/pkg/logger"
)

// ─────────────────────────────────────────────────────────────────────────────
// Тестовый фасад
// ─────────────────────────────────────────────────────────────────────────────

// fakeEngine реализует ProgressionEngine через подменяемые функции.
// Незаданная функция возвращает пустой успешный результат.
type fakeEngine struct {
	awardFn  func(cmd command.AwardXPCommand) (*command.AwardXPResult, error)
	streakFn func(cmd command.UpdateStreakCommand) (*command.UpdateStreakResult, error)
	unlockFn func(cmd command.UnlockAchievementCommand) (*command.UnlockAchievementResult, error)

	activityFn func(activity, studentID string) (*command.ActivityResult, error)

	progressFn func(q query.GetProgressQuery) (*query.ProgressView, error)
	totalFn    func(q query.GetTotalXPQuery) (*query.TotalXPView, error)
	ledgerFn   func(q query.GetLedgerQuery) (*query.LedgerView, error)
	achFn      func(q query.GetAchievementsQuery) (*query.AchievementsView, error)
	boardFn    func(q query.GetLeaderboardQuery) (*query.LeaderboardView, error)

	activities []string
}

func (f *fakeEngine) AwardXP(_ context.Context, cmd command.AwardXPCommand) (*command.AwardXPResult, error) {
	if f.awardFn != nil {
		return f.awardFn(cmd)
	}
	return &command.AwardXPResult{StudentID: cmd.StudentID, Amount: cmd.Amount}, nil
}

func (f *fakeEngine) UpdateStreak(_ context.Context, cmd command.UpdateStreakCommand) (*command.UpdateStreakResult, error) {
	if f.streakFn != nil {
		return f.streakFn(cmd)
	}
	return &command.UpdateStreakResult{StudentID: cmd.StudentID, Type: cmd.Type}, nil
}

func (f *fakeEngine) UnlockAchievement(_ context.Context, cmd command.UnlockAchievementCommand) (*command.UnlockAchievementResult, error) {
	if f.unlockFn != nil {
		return f.unlockFn(cmd)
	}
	return &command.UnlockAchievementResult{}, nil
}

func (f *fakeEngine) recordActivity(activity, studentID string) (*command.ActivityResult, error) {
	f.activities = append(f.activities, activity)
	if f.activityFn != nil {
		return f.activityFn(activity, studentID)
	}
	return &command.ActivityResult{}, nil
}

func (f *fakeEngine) RecordAttendance(_ context.Context, studentID string) (*command.ActivityResult, error) {
	return f.recordActivity("attendance", studentID)
}

func (f *fakeEngine) CompleteAssignment(_ context.Context, studentID string) (*command.ActivityResult, error) {
	return f.recordActivity("assignment", studentID)
}

func (f *fakeEngine) RecordLogin(_ context.Context, studentID string) (*command.ActivityResult, error) {
	return f.recordActivity("login", studentID)
}

func (f *fakeEngine) RecordStudySession(_ context.Context, studentID string) (*command.ActivityResult, error) {
	return f.recordActivity("study", studentID)
}

func (f *fakeEngine) GetProgress(_ context.Context, q query.GetProgressQuery) (*query.ProgressView, error) {
	if f.progressFn != nil {
		return f.progressFn(q)
	}
	return &query.ProgressView{StudentID: q.StudentID}, nil
}

func (f *fakeEngine) GetTotalXP(_ context.Context, q query.GetTotalXPQuery) (*query.TotalXPView, error) {
	if f.totalFn != nil {
		return f.totalFn(q)
	}
	return &query.TotalXPView{StudentID: q.StudentID}, nil
}

func (f *fakeEngine) GetLedger(_ context.Context, q query.GetLedgerQuery) (*query.LedgerView, error) {
	if f.ledgerFn != nil {
		return f.ledgerFn(q)
	}
	return &query.LedgerView{StudentID: q.StudentID}, nil
}

func (f *fakeEngine) GetAchievements(_ context.Context, q query.GetAchievementsQuery) (*query.AchievementsView, error) {
	if f.achFn != nil {
		return f.achFn(q)
	}
	return &query.AchievementsView{StudentID: q.StudentID}, nil
}

func (f *fakeEngine) GetLeaderboard(_ context.Context, q query.GetLeaderboardQuery) (*query.LeaderboardView, error) {
	if f.boardFn != nil {
		return f.boardFn(q)
	}
	return &query.LeaderboardView{}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Вспомогательные функции
// ─────────────────────────────────────────────────────────────────────────────

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
}

func newTestServer(eng ProgressionEngine) *Server {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	cfg.EnableCORS = false
	cfg.APIKeyHashes = nil
	return NewServer(cfg, Dependencies{Engine: eng, Logger: quietLogger()})
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var payload io.Reader
	if body != "" {
		payload = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, payload)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) JSONResponse {
	t.Helper()
	var resp JSONResponse
	err := json.Unmarshal(rec.Body.Bytes(), &resp)
	assert.NoError(t, err)
	return resp
}

// ─────────────────────────────────────────────────────────────────────────────
// Команды
// ─────────────────────────────────────────────────────────────────────────────

func TestHandleAwardXP_Created(t *testing.T) {
	eng := &fakeEngine{
		awardFn: func(cmd command.AwardXPCommand) (*command.AwardXPResult, error) {
			assert.Equal(t, "student-1", cmd.StudentID)
			assert.Equal(t, 50, cmd.Amount)
			assert.Equal(t, "Mission Accomplished", cmd.Reason)
			assert.Equal(t, "tasks", cmd.Source)
			return &command.AwardXPResult{
				StudentID: cmd.StudentID,
				Amount:    cmd.Amount,
				TotalXP:   150,
				NewLevel:  2,
				LeveledUp: true,
				AwardedAt: time.Now().UTC(),
			}, nil
		},
	}
	s := newTestServer(eng)

	rec := serve(s, http.MethodPost, "/api/v1/students/student-1/xp",
		`{"amount":50,"reason":"Mission Accomplished","source":"tasks"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
}

func TestHandleAwardXP_InvalidJSON(t *testing.T) {
	s := newTestServer(&fakeEngine{})

	rec := serve(s, http.MethodPost, "/api/v1/students/student-1/xp", `{"amount": nope}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "invalid_request", resp.Error.Code)
}

func TestHandleAwardXP_ValidationError(t *testing.T) {
	eng := &fakeEngine{
		awardFn: func(cmd command.AwardXPCommand) (*command.AwardXPResult, error) {
			return nil, fmt.Errorf("%w: source", shared.ErrEmptyValue)
		},
	}
	s := newTestServer(eng)

	rec := serve(s, http.MethodPost, "/api/v1/students/student-1/xp", `{"amount":10}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeEnvelope(t, rec).Error.Code)
}

func TestHandleAwardXP_StudentNotFound(t *testing.T) {
	eng := &fakeEngine{
		awardFn: func(cmd command.AwardXPCommand) (*command.AwardXPResult, error) {
			return nil, fmt.Errorf("%w: %s", shared.ErrStudentNotFound, cmd.StudentID)
		},
	}
	s := newTestServer(eng)

	rec := serve(s, http.MethodPost, "/api/v1/students/ghost/xp",
		`{"amount":10,"reason":"r","source":"s"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeEnvelope(t, rec).Error.Code)
}

func TestHandleAwardXP_VersionConflict(t *testing.T) {
	eng := &fakeEngine{
		awardFn: func(cmd command.AwardXPCommand) (*command.AwardXPResult, error) {
			return nil, shared.ErrVersionConflict
		},
	}
	s := newTestServer(eng)

	rec := serve(s, http.MethodPost, "/api/v1/students/student-1/xp",
		`{"amount":10,"reason":"r","source":"s"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "version_conflict", decodeEnvelope(t, rec).Error.Code)
}

func TestHandleAwardXP_UnknownErrorIs500(t *testing.T) {
	eng := &fakeEngine{
		awardFn: func(cmd command.AwardXPCommand) (*command.AwardXPResult, error) {
			return nil, fmt.Errorf("connection reset")
		},
	}
	s := newTestServer(eng)

	rec := serve(s, http.MethodPost, "/api/v1/students/student-1/xp",
		`{"amount":10,"reason":"r","source":"s"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "internal_error", resp.Error.Code)
	// Внутренние детали не просачиваются наружу.
	assert.NotContains(t, resp.Error.Message, "connection reset")
}

func TestHandleUpdateStreak_OK(t *testing.T) {
	eng := &fakeEngine{
		streakFn: func(cmd command.UpdateStreakCommand) (*command.UpdateStreakResult, error) {
			assert.Equal(t, progression.StreakLogin, cmd.Type)
			return &command.UpdateStreakResult{
				StudentID:     cmd.StudentID,
				Type:          cmd.Type,
				CurrentStreak: 4,
				LongestStreak: 9,
				Transition:    progression.TransitionAdvanced,
			}, nil
		},
	}
	s := newTestServer(eng)

	rec := serve(s, http.MethodPost, "/api/v1/students/student-1/streaks/login", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeEnvelope(t, rec).Success)
}

func TestHandleUpdateStreak_InvalidType(t *testing.T) {
	eng := &fakeEngine{
		streakFn: func(cmd command.UpdateStreakCommand) (*command.UpdateStreakResult, error) {
			return nil, fmt.Errorf("%w: %s", shared.ErrInvalidStreakType, cmd.Type)
		},
	}
	s := newTestServer(eng)

	rec := serve(s, http.MethodPost, "/api/v1/students/student-1/streaks/gaming", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeEnvelope(t, rec).Error.Code)
}

func TestHandleUnlockAchievement_NewAndRepeat(t *testing.T) {
	calls := 0
	eng := &fakeEngine{
		unlockFn: func(cmd command.UnlockAchievementCommand) (*command.UnlockAchievementResult, error) {
			calls++
			if calls == 1 {
				return &command.UnlockAchievementResult{
					Unlock: &progression.AchievementUnlock{
						StudentID:     cmd.StudentID,
						AchievementID: cmd.AchievementID,
					},
					XPGranted:  100,
					TotalXP:    350,
					UnlockedAt: time.Now().UTC(),
				}, nil
			}
			// Повторная разблокировка: идемпотентный no-op.
			return &command.UnlockAchievementResult{}, nil
		},
	}
	s := newTestServer(eng)

	first := serve(s, http.MethodPost, "/api/v1/students/student-1/achievements/week_streak", "")
	assert.Equal(t, http.StatusCreated, first.Code)

	repeat := serve(s, http.MethodPost, "/api/v1/students/student-1/achievements/week_streak", "")
	assert.Equal(t, http.StatusOK, repeat.Code)
	assert.True(t, decodeEnvelope(t, repeat).Success)
}

func TestHandleUnlockAchievement_UnknownID(t *testing.T) {
	eng := &fakeEngine{
		unlockFn: func(cmd command.UnlockAchievementCommand) (*command.UnlockAchievementResult, error) {
			return nil, fmt.Errorf("%w: %s", shared.ErrUnknownAchievement, cmd.AchievementID)
		},
	}
	s := newTestServer(eng)

	rec := serve(s, http.MethodPost, "/api/v1/students/student-1/achievements/made_up", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeEnvelope(t, rec).Error.Code)
}

func TestHandleUnlockAchievement_PassesContextFromBody(t *testing.T) {
	eng := &fakeEngine{
		unlockFn: func(cmd command.UnlockAchievementCommand) (*command.UnlockAchievementResult, error) {
			assert.Equal(t, "orientation week", cmd.Context)
			return &command.UnlockAchievementResult{}, nil
		},
	}
	s := newTestServer(eng)

	rec := serve(s, http.MethodPost, "/api/v1/students/student-1/achievements/early_bird",
		`{"context":"orientation week"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleActivity_Dispatch(t *testing.T) {
	eng := &fakeEngine{}
	s := newTestServer(eng)

	for _, activity := range []string{"attendance", "assignment", "login", "study"} {
		rec := serve(s, http.MethodPost, "/api/v1/students/student-1/activity/"+activity, "")
		assert.Equal(t, http.StatusOK, rec.Code, activity)
	}

	assert.Equal(t, []string{"attendance", "assignment", "login", "study"}, eng.activities)
}

func TestHandleActivity_Unknown(t *testing.T) {
	eng := &fakeEngine{}
	s := newTestServer(eng)

	rec := serve(s, http.MethodPost, "/api/v1/students/student-1/activity/procrastination", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeEnvelope(t, rec).Error.Code)
	assert.Empty(t, eng.activities)
}

// ─────────────────────────────────────────────────────────────────────────────
// Read-модели
// ─────────────────────────────────────────────────────────────────────────────

func TestHandleGetProgress_OK(t *testing.T) {
	eng := &fakeEngine{
		progressFn: func(q query.GetProgressQuery) (*query.ProgressView, error) {
			return &query.ProgressView{StudentID: q.StudentID, TotalXP: 250, Level: 2}, nil
		},
	}
	s := newTestServer(eng)

	rec := serve(s, http.MethodGet, "/api/v1/students/student-1/progress", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]interface{})
	assert.True(t, ok)
	assert.Equal(t, float64(250), data["total_xp"])
}

func TestHandleGetProgress_NotFound(t *testing.T) {
	eng := &fakeEngine{
		progressFn: func(q query.GetProgressQuery) (*query.ProgressView, error) {
			return nil, shared.ErrStudentNotFound
		},
	}
	s := newTestServer(eng)

	rec := serve(s, http.MethodGet, "/api/v1/students/ghost/progress", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetLedger_LimitParam(t *testing.T) {
	var captured query.GetLedgerQuery
	eng := &fakeEngine{
		ledgerFn: func(q query.GetLedgerQuery) (*query.LedgerView, error) {
			captured = q
			return &query.LedgerView{StudentID: q.StudentID}, nil
		},
	}
	s := newTestServer(eng)

	rec := serve(s, http.MethodGet, "/api/v1/students/student-1/ledger?limit=5", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "student-1", captured.StudentID)
	assert.Equal(t, 5, captured.Limit)
}

func TestHandleGetLeaderboard_QueryParams(t *testing.T) {
	var captured query.GetLeaderboardQuery
	eng := &fakeEngine{
		boardFn: func(q query.GetLeaderboardQuery) (*query.LeaderboardView, error) {
			captured = q
			return &query.LeaderboardView{}, nil
		},
	}
	s := newTestServer(eng)

	rec := serve(s, http.MethodGet, "/api/v1/leaderboard?limit=25&for=student-1", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 25, captured.Limit)
	assert.Equal(t, "student-1", captured.ForStudent)
}

func TestHandleGetLeaderboard_GarbageLimitFallsBack(t *testing.T) {
	var captured query.GetLeaderboardQuery
	eng := &fakeEngine{
		boardFn: func(q query.GetLeaderboardQuery) (*query.LeaderboardView, error) {
			captured = q
			return &query.LeaderboardView{}, nil
		},
	}
	s := newTestServer(eng)

	serve(s, http.MethodGet, "/api/v1/leaderboard?limit=ten", "")

	assert.Equal(t, 0, captured.Limit)
}

// ─────────────────────────────────────────────────────────────────────────────
// Health и инфраструктура
// ─────────────────────────────────────────────────────────────────────────────

type fakeHealthChecker struct {
	status handlers.HealthStatus
}

func (f *fakeHealthChecker) Check(ctx context.Context) handlers.HealthStatus { return f.status }

func (f *fakeHealthChecker) AddCheck(name string, check handlers.HealthCheckFunc) {}

func (f *fakeHealthChecker) RemoveCheck(name string) {}

func TestHandleHealth_DefaultWithoutChecker(t *testing.T) {
	s := newTestServer(&fakeEngine{})

	rec := serve(s, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeEnvelope(t, rec).Success)
}

func TestHandleHealth_UnhealthyChecker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	cfg.EnableCORS = false
	cfg.APIKeyHashes = nil
	s := NewServer(cfg, Dependencies{
		Engine: &fakeEngine{},
		Logger: quietLogger(),
		HealthChecker: &fakeHealthChecker{status: handlers.HealthStatus{
			Healthy: false,
			Ready:   false,
			Message: "database unreachable",
		}},
	})

	health := serve(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, health.Code)

	ready := serve(s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, ready.Code)

	// Liveness не зависит от внешних зависимостей.
	live := serve(s, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusOK, live.Code)
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(&fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	// Без входящего заголовка ID генерируется.
	generated := serve(s, http.MethodGet, "/live", "")
	assert.NotEmpty(t, generated.Header().Get("X-Request-ID"))
}

func TestRateLimitExceeded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 2
	cfg.EnableCORS = false
	cfg.APIKeyHashes = nil
	s := NewServer(cfg, Dependencies{Engine: &fakeEngine{}, Logger: quietLogger()})

	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/live", "").Code)
	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/live", "").Code)

	third := serve(s, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.Equal(t, "60", third.Header().Get("Retry-After"))
}

func TestWriteEndpointsRequireAPIKey(t *testing.T) {
	hash, err := handlers.HashKey("s3cret")
	assert.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	cfg.EnableCORS = false
	cfg.APIKeyHashes = []string{hash}
	s := NewServer(cfg, Dependencies{Engine: &fakeEngine{}, Logger: quietLogger()})

	// Запись без ключа отклоняется.
	denied := serve(s, http.MethodPost, "/api/v1/students/student-1/xp",
		`{"amount":10,"reason":"r","source":"s"}`)
	assert.Equal(t, http.StatusUnauthorized, denied.Code)

	// С ключом в заголовке проходит.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/students/student-1/xp",
		strings.NewReader(`{"amount":10,"reason":"r","source":"s"}`))
	req.Header.Set("X-API-Key", "s3cret")
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Bearer-схема тоже принимается.
	bearer := httptest.NewRequest(http.MethodPost, "/api/v1/students/student-1/xp",
		strings.NewReader(`{"amount":10,"reason":"r","source":"s"}`))
	bearer.Header.Set("Authorization", "Bearer s3cret")
	bearerRec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(bearerRec, bearer)
	assert.Equal(t, http.StatusCreated, bearerRec.Code)

	// Чтение открыто и без ключа.
	read := serve(s, http.MethodGet, "/api/v1/students/student-1/progress", "")
	assert.Equal(t, http.StatusOK, read.Code)
}
