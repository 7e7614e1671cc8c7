package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/afterhours/nightlife-core/internal/application/command"
	"github.com/afterhours/nightlife-core/internal/application/query"
	"github.com/afterhours/nightlife-core/internal/domain/notification"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/timeline"
	"github.com/afterhours/nightlife-core/internal/domain/xp"
	"github.com/afterhours/nightlife-core/internal/interface/http/handlers"
	"github.com/afterhours/nightlife-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports every dependency check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{
			"status":  "healthy",
			"uptime":  s.Uptime().String(),
			"version": s.deps.Version,
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleReady is the readiness probe: only critical checks take the
// instance out of rotation.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]any{"ready": false, "checks": status.Checks})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"ready": true})
}

// handleLive is the liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"alive": true})
}

// ══════════════════════════════════════════════════════════════════════════════
// PUBLIC FLEX CARDS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetPublicFlexCard serves GET /flex/{share_code}. Private and unknown
// cards are indistinguishable.
func (s *Server) handleGetPublicFlexCard(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("share_code")

	view, err := s.deps.PublicFlexCard.Handle(r.Context(), code)
	if err != nil {
		s.writeDomainError(w, r, "get_public_flex_card", err)
		return
	}
	logger.FromContext(r.Context()).Debug("flex card served", logger.ShareCode(code))
	writeJSON(w, r, http.StatusOK, view)
}

// ══════════════════════════════════════════════════════════════════════════════
// XP
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetXP(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)

	result, err := s.deps.GetXP.Handle(r.Context(), query.GetXPQuery{
		UserID:       actor.UserID.String(),
		HistoryLimit: getQueryParamInt(r, "history", 0),
	})
	if err != nil {
		s.writeDomainError(w, r, "get_xp", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

type awardXPRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type awardXPResponse struct {
	TotalXP      int64       `json:"total_xp"`
	CurrentLevel int         `json:"current_level"`
	Progress     xp.Progress `json:"progress"`
	LeveledUp    bool        `json:"leveled_up"`
}

// handleAdminAwardXP serves POST /api/v1/admin/xp.
func (s *Server) handleAdminAwardXP(w http.ResponseWriter, r *http.Request) {
	var req awardXPRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = "admin"
	}

	result, err := s.deps.AwardXP.Handle(r.Context(), command.AwardXPCommand{
		Actor:  actorOf(r),
		UserID: req.UserID,
		Amount: req.Amount,
		Reason: req.Reason,
	})
	if err != nil {
		s.writeDomainError(w, r, "award_xp", err)
		return
	}

	logger.FromContext(r.Context()).Info("xp awarded by admin",
		logger.UserID(req.UserID),
		logger.XPAmount(int(req.Amount)),
		logger.String("reason", req.Reason),
	)
	writeJSON(w, r, http.StatusOK, awardXPResponse{
		TotalXP:      result.XP.TotalXP,
		CurrentLevel: result.XP.CurrentLevel,
		Progress:     result.Progress,
		LeveledUp:    result.LeveledUp,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListAchievements(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.ListAchievements.Handle(r.Context(), query.ListAchievementsQuery{
		UserID:     actorOf(r).UserID.String(),
		Category:   r.URL.Query().Get("category"),
		EarnedOnly: getQueryParamBool(r, "earned"),
	})
	if err != nil {
		s.writeDomainError(w, r, "list_achievements", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, result.Achievements, &ResponseMeta{TotalCount: result.TotalCount})
}

func (s *Server) handleEvaluateAchievements(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.EvaluateAchievements.Handle(r.Context(), command.EvaluateAchievementsCommand{
		UserID: actorOf(r).UserID.String(),
	})
	if err != nil {
		s.writeDomainError(w, r, "evaluate_achievements", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// QUESTS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListQuests(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.ListQuests.Handle(r.Context(), query.ListActiveQuestsQuery{
		UserID: actorOf(r).UserID.String(),
		Type:   r.URL.Query().Get("type"),
	})
	if err != nil {
		s.writeDomainError(w, r, "list_quests", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleClaimQuest serves POST /api/v1/me/quests/{id}/claim. A repeated
// claim answers 200 with already_done instead of an error.
func (s *Server) handleClaimQuest(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)
	questID := r.PathValue("id")

	result, err := s.deps.ClaimQuest.Handle(r.Context(), command.ClaimQuestCommand{
		UserID:  actor.UserID.String(),
		QuestID: questID,
	})
	switch {
	case shared.IsAlreadyDone(err):
		writeAlreadyDone(w, r, result)
		return
	case err != nil:
		s.writeDomainError(w, r, "claim_quest", err)
		return
	}

	logger.FromContext(r.Context()).Info("quest claimed",
		logger.UserID(actor.UserID.String()),
		logger.QuestID(questID),
		logger.XPAmount(int(result.XPAwarded)),
	)
	writeJSON(w, r, http.StatusOK, result)
}

type questProgressRequest struct {
	UserID string `json:"user_id"`
	Delta  int64  `json:"delta"`
}

// handleAdminQuestProgress serves POST /api/v1/admin/quests/{id}/progress.
func (s *Server) handleAdminQuestProgress(w http.ResponseWriter, r *http.Request) {
	var req questProgressRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.Delta == 0 {
		req.Delta = 1
	}

	result, err := s.deps.QuestProgress.Handle(r.Context(), command.IncrementQuestProgressCommand{
		Actor:   actorOf(r),
		UserID:  req.UserID,
		QuestID: r.PathValue("id"),
		Delta:   req.Delta,
	})
	if err != nil {
		s.writeDomainError(w, r, "quest_progress", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// TIMELINE
// ══════════════════════════════════════════════════════════════════════════════

// handleGetTimeline lists the caller's timeline. ?user_id= shows another
// user's public entries.
func (s *Server) handleGetTimeline(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)
	owner := r.URL.Query().Get("user_id")
	if owner == "" {
		owner = actor.UserID.String()
	}
	page := shared.NewPagination(getQueryParamInt(r, "page", 1), getQueryParamInt(r, "page_size", shared.DefaultPageSize))

	result, err := s.deps.GetTimeline.Handle(r.Context(), query.GetTimelineQuery{
		Viewer:  actor,
		OwnerID: owner,
		Page:    page,
	})
	if err != nil {
		s.writeDomainError(w, r, "get_timeline", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, result.Entries, &ResponseMeta{
		TotalCount: result.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		HasMore:    result.HasMore,
	})
}

type addTimelineEntryRequest struct {
	EventID         *string  `json:"event_id"`
	EventName       string   `json:"event_name"`
	EventCity       string   `json:"event_city"`
	AttendedDate    string   `json:"attended_date"`
	DurationHours   *float64 `json:"duration_hours"`
	RepEarned       int64    `json:"rep_earned"`
	HighlightMoment *string  `json:"highlight_moment"`
	IsPublic        bool     `json:"is_public"`
}

func (s *Server) handleAddTimelineEntry(w http.ResponseWriter, r *http.Request) {
	var req addTimelineEntryRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	attended, err := parseDate(req.AttendedDate)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", "attended_date must be YYYY-MM-DD or RFC 3339")
		return
	}

	actor := actorOf(r)
	result, err := s.deps.Timeline.Add(r.Context(), command.AddTimelineEntryCommand{
		Actor: actor,
		Entry: timeline.Entry{
			UserID:          actor.UserID.String(),
			EventID:         req.EventID,
			EventName:       req.EventName,
			EventCity:       req.EventCity,
			AttendedDate:    attended,
			DurationHours:   req.DurationHours,
			RepEarned:       req.RepEarned,
			HighlightMoment: req.HighlightMoment,
			IsPublic:        req.IsPublic,
		},
	})
	if err != nil {
		s.writeDomainError(w, r, "add_timeline_entry", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, result)
}

func (s *Server) handleUpdateTimelineEntry(w http.ResponseWriter, r *http.Request) {
	var patch timeline.Patch
	if err := decodeJSON(r, &patch, false); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	entry, err := s.deps.Timeline.Update(r.Context(), command.UpdateTimelineEntryCommand{
		Actor:   actorOf(r),
		EntryID: r.PathValue("id"),
		Patch:   patch,
	})
	if err != nil {
		s.writeDomainError(w, r, "update_timeline_entry", err)
		return
	}
	writeJSON(w, r, http.StatusOK, entry)
}

// handleGetStats recomputes stats and the streak snapshot.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.RefreshStreak.Handle(r.Context(), actorOf(r).UserID.String())
	if err != nil {
		s.writeDomainError(w, r, "get_stats", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// FLEX CARDS & RECAPS
// ══════════════════════════════════════════════════════════════════════════════

type flexCardRequest struct {
	CardType string `json:"card_type"`
	IsPublic bool   `json:"is_public"`
}

func (s *Server) handleGenerateFlexCard(w http.ResponseWriter, r *http.Request) {
	var req flexCardRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	result, err := s.deps.GenerateFlexCard.Handle(r.Context(), command.GenerateFlexCardCommand{
		UserID:   actorOf(r).UserID.String(),
		CardType: req.CardType,
		IsPublic: req.IsPublic,
	})
	if err != nil {
		s.writeDomainError(w, r, "generate_flex_card", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, result)
}

func (s *Server) handleListRecaps(w http.ResponseWriter, r *http.Request) {
	recaps, err := s.deps.ListRecaps.Handle(r.Context(), query.ListRecapsQuery{
		UserID: actorOf(r).UserID.String(),
		Limit:  getQueryParamInt(r, "limit", 0),
	})
	if err != nil {
		s.writeDomainError(w, r, "list_recaps", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, recaps, &ResponseMeta{TotalCount: len(recaps)})
}

type weeklyRecapRequest struct {
	UserID    string `json:"userId"`
	BatchMode bool   `json:"batchMode"`
}

// weeklyRecapResponse is the recap invocation result. Week bounds are
// calendar dates in the configured zone.
type weeklyRecapResponse struct {
	Success    bool                  `json:"success"`
	Processed  int                   `json:"processed"`
	Successful int                   `json:"successful"`
	Skipped    int                   `json:"skipped"`
	Failures   []command.UserFailure `json:"failures"`
	Week       recapWeek             `json:"week"`
}

type recapWeek struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func newWeeklyRecapResponse(s *command.RecapSummary) weeklyRecapResponse {
	failures := s.Failures
	if failures == nil {
		failures = []command.UserFailure{}
	}
	return weeklyRecapResponse{
		Success:    len(s.Failures) == 0,
		Processed:  s.Processed,
		Successful: s.Successful,
		Skipped:    s.Skipped,
		Failures:   failures,
		Week: recapWeek{
			Start: s.Week.Start.Format(time.DateOnly),
			End:   s.Week.End.Format(time.DateOnly),
		},
	}
}

// handleGenerateWeeklyRecaps serves POST /api/v1/recaps/weekly. A batch that
// is already running elsewhere answers 409.
func (s *Server) handleGenerateWeeklyRecaps(w http.ResponseWriter, r *http.Request) {
	var req weeklyRecapRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	summary, err := s.deps.GenerateRecaps.Handle(r.Context(), command.GenerateWeeklyRecapsCommand{
		Actor:     actorOf(r),
		UserID:    req.UserID,
		BatchMode: req.BatchMode,
	})
	if err != nil {
		s.writeDomainError(w, r, "generate_weekly_recaps", err)
		return
	}

	logger.FromContext(r.Context()).Info("weekly recap invoked",
		logger.WeekStart(summary.Week.Start),
		logger.Bool("batch", req.BatchMode),
		logger.Int("processed", summary.Processed),
		logger.Int("failed", len(summary.Failures)),
		logger.Latency(summary.Duration),
	)
	writeJSON(w, r, http.StatusOK, newWeeklyRecapResponse(summary))
}

// ══════════════════════════════════════════════════════════════════════════════
// PUSH TOKENS
// ══════════════════════════════════════════════════════════════════════════════

type pushTokenRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func (s *Server) handleRegisterPushToken(w http.ResponseWriter, r *http.Request) {
	var req pushTokenRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	platform := notification.Platform(strings.ToLower(req.Platform))
	switch platform {
	case notification.PlatformIOS, notification.PlatformAndroid, notification.PlatformWeb:
	default:
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", "platform must be ios, android or web")
		return
	}
	if req.Token == "" {
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", "token is required")
		return
	}

	err := s.deps.PushTokens.Register(r.Context(), notification.PushToken{
		UserID:    actorOf(r).UserID.String(),
		Token:     req.Token,
		Platform:  platform,
		Active:    true,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.writeDomainError(w, r, "register_push_token", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// actorOf returns the request actor. Routes are guarded, so a missing actor
// only happens for anonymous recap calls, which the command rejects.
func actorOf(r *http.Request) shared.Actor {
	actor, _ := handlers.ActorFromContext(r.Context())
	return actor
}

var errEmptyBody = errors.New("request body is required")

// decodeJSON decodes a single JSON object and rejects unknown fields.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			if allowEmpty {
				return nil
			}
			return errEmptyBody
		}
		return err
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
