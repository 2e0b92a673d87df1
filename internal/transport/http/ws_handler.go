package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"toohak-session-service/internal/app"
	"toohak-session-service/internal/domain"
)

// WSHandler streams live session state to a connected player. Clients run
// their own visible countdowns; the server timers stay authoritative.
type WSHandler struct {
	service  *app.SessionService
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, logger *zap.SugaredLogger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type stateMessage struct {
	Type    string             `json:"type"`
	Payload domain.StateUpdate `json:"payload"`
}

// ServeWS upgrades the request and pushes a state message on every session
// transition, starting with the current state.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	playerID, err := strconv.Atoi(r.URL.Query().Get("playerId"))
	if err != nil {
		http.Error(w, "missing or invalid playerId", http.StatusBadRequest)
		return
	}

	status, err := h.service.PlayerStatus(r.Context(), playerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	updates, cancel, err := h.service.WatchPlayer(playerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	initial := stateMessage{Type: "state", Payload: domain.StateUpdate{
		State:        status.State,
		AtQuestion:   status.AtQuestion,
		NumQuestions: status.NumQuestions,
	}}
	if err := conn.WriteJSON(initial); err != nil {
		return
	}

	// Reader goroutine only detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(stateMessage{Type: "state", Payload: update}); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
