package hunt

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Routes returns the ops API. Mounted by the binary under /.
func (s *Service) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/status", s.handleStatus)
	r.Get("/api/missions", s.handleListMissions)
	r.Post("/api/missions", s.handleAddMission)
	r.Post("/api/missions/{name}/init", s.handleInitMission)
	r.Get("/api/findings", s.handleListFindings)
	r.Get("/api/findings/search", s.handleSearchFindings)
	r.Post("/api/findings/{id}/feedback", s.handleFeedback)
	r.Get("/api/report", s.handleReport)
	r.Post("/api/evolve", s.handleEvolve)
	r.Post("/api/evolve/rollback", s.handleRollback)
	r.Get("/api/tactics", s.handleTactics)

	return r
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.Status(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Service) handleListMissions(w http.ResponseWriter, r *http.Request) {
	missions, err := s.Missions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, missions)
}

func (s *Service) handleAddMission(w http.ResponseWriter, r *http.Request) {
	var m Mission
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	m.Enabled = true
	if err := s.AddMission(r.Context(), &m); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Service) handleInitMission(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.InitMission(r.Context(), name); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mission": name, "result": "initialized"})
}

func (s *Service) handleListFindings(w http.ResponseWriter, r *http.Request) {
	filter := FindingFilter{
		Mission: r.URL.Query().Get("mission"),
		Status:  FindingStatus(r.URL.Query().Get("status")),
		Limit:   queryInt(r, "limit", 50),
	}
	findings, err := s.Findings(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, findings)
}

func (s *Service) handleSearchFindings(w http.ResponseWriter, r *http.Request) {
	findings, err := s.SearchFindings(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit", 20))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, findings)
}

func (s *Service) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.Feedback(r.Context(), id, FindingStatus(req.Status)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
}

func (s *Service) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.Report(r.Context(), r.URL.Query().Get("mission"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Service) handleEvolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mission string `json:"mission"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Evolve(r.Context(), req.Mission); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mission": req.Mission, "result": "applied"})
}

func (s *Service) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mission string `json:"mission"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	prior, err := s.RollbackStrategy(r.Context(), req.Mission)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if prior == nil {
		writeError(w, http.StatusNotFound, errors.New("no strategy history to roll back to"))
		return
	}
	writeJSON(w, http.StatusOK, prior)
}

func (s *Service) handleTactics(w http.ResponseWriter, r *http.Request) {
	state, err := s.Tactics(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// writeServiceError maps the domain sentinels onto status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, ErrMissionNotFound), errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, ErrDuplicateFinding):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, ErrStrategyRejected):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
