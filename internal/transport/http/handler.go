package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"toohak-session-service/internal/app"
	"toohak-session-service/internal/domain"
)

// Handler exposes the owner- and player-facing session operations over HTTP.
type Handler struct {
	service *app.SessionService
	logger  *zap.SugaredLogger
}

func NewHandler(service *app.SessionService, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{service: service, logger: logger}
}

// Register wires every route onto the mux. Owner routes read the session
// token from the "token" header; player routes are anonymous.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/quiz/{quizId}/session/start", h.createSession)
	mux.HandleFunc("GET /v1/quiz/{quizId}/sessions", h.listSessions)
	mux.HandleFunc("PUT /v1/session/{sessionId}", h.adminAction)
	mux.HandleFunc("GET /v1/session/{sessionId}", h.sessionStatus)
	mux.HandleFunc("GET /v1/session/{sessionId}/results", h.finalResults)
	mux.HandleFunc("POST /v1/session/{sessionId}/results/csv", h.exportCSV)
	mux.HandleFunc("GET /v1/session/{sessionId}/results/csv/{token}", h.fetchCSV)

	mux.HandleFunc("POST /v1/player/join", h.join)
	mux.HandleFunc("GET /v1/player/{playerId}", h.playerStatus)
	mux.HandleFunc("GET /v1/player/{playerId}/question/{position}", h.currentQuestion)
	mux.HandleFunc("PUT /v1/player/{playerId}/question/{position}/answer", h.submitAnswer)
	mux.HandleFunc("GET /v1/player/{playerId}/question/{position}/results", h.questionResults)
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathInt(r, "quizId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var body struct {
		AutoStartNum int `json:"autoStartNum"`
	}
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	sessionID, err := h.service.CreateSession(r.Context(), token(r), quizID, body.AutoStartNum)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"sessionId": sessionID})
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	quizID, err := pathInt(r, "quizId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	list, err := h.service.ListSessions(r.Context(), token(r), quizID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) adminAction(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathInt(r, "sessionId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	var body struct {
		Action string `json:"action"`
	}
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.service.AdminAction(r.Context(), token(r), sessionID, body.Action); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) sessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathInt(r, "sessionId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	status, err := h.service.SessionStatus(r.Context(), token(r), sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) finalResults(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathInt(r, "sessionId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	results, err := h.service.FinalResults(r.Context(), token(r), sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, results)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathInt(r, "sessionId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	url, err := h.service.ExportResultsCSV(r.Context(), token(r), sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) fetchCSV(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathInt(r, "sessionId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	exportToken := strings.TrimSuffix(r.PathValue("token"), ".csv")
	data, err := h.service.FetchCSV(r.Context(), sessionID, exportToken)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID int    `json:"sessionId"`
		Name      string `json:"name"`
	}
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	playerID, err := h.service.Join(r.Context(), body.SessionID, body.Name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"playerId": playerID})
}

func (h *Handler) playerStatus(w http.ResponseWriter, r *http.Request) {
	playerID, err := pathInt(r, "playerId")
	if err != nil {
		h.writeError(w, err)
		return
	}
	status, err := h.service.PlayerStatus(r.Context(), playerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) currentQuestion(w http.ResponseWriter, r *http.Request) {
	playerID, position, err := playerQuestionPath(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	question, err := h.service.CurrentQuestion(r.Context(), playerID, position)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, question)
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	playerID, position, err := playerQuestionPath(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var body struct {
		AnswerIDs []int `json:"answerIds"`
	}
	if err := decodeJSON(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.service.SubmitAnswer(r.Context(), playerID, position, body.AnswerIDs); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, struct{}{})
}

func (h *Handler) questionResults(w http.ResponseWriter, r *http.Request) {
	playerID, position, err := playerQuestionPath(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.service.PlayerQuestionResult(r.Context(), playerID, position)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func token(r *http.Request) string {
	return r.Header.Get("token")
}

func pathInt(r *http.Request, name string) (int, error) {
	value, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		return 0, domain.ErrValidation
	}
	return value, nil
}

func playerQuestionPath(r *http.Request) (int, int, error) {
	playerID, err := pathInt(r, "playerId")
	if err != nil {
		return 0, 0, err
	}
	position, err := pathInt(r, "position")
	if err != nil {
		return 0, 0, err
	}
	return playerID, position, nil
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrValidation
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warnw("write response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidAction),
		errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
