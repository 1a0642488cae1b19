package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"trivia-sync-service/internal/app"
	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/relay"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler exposes the game use cases over HTTP and streams relay events over websockets.
type Handler struct {
	service  *app.Service
	events   relay.Subscriber
	pinger   Pinger
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(service *app.Service, events relay.Subscriber, pinger Pinger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		events:  events,
		pinger:  pinger,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type createGameRequest struct {
	QuestionSetID string `json:"questionSetId"`
}

type joinRequest struct {
	RoomCode string `json:"roomCode"`
	Name     string `json:"name"`
}

type joinResponse struct {
	Game   domain.Game   `json:"game"`
	Player domain.Player `json:"player"`
}

type renameRequest struct {
	Name string `json:"name"`
}

type expireRequest struct {
	Phase         domain.Phase `json:"phase"`
	QuestionIndex int          `json:"questionIndex"`
}

type answerRequest struct {
	PlayerID       string  `json:"playerId"`
	QuestionID     string  `json:"questionId"`
	SelectedAnswer *string `json:"selectedAnswer"`
	ResponseTimeMs int     `json:"responseTimeMs"`
}

func (h *Handler) createGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	game, err := h.service.Games.CreateGame(r.Context(), req.QuestionSetID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, game, "game created")
}

func (h *Handler) getState(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.Rounds.State(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state, "")
}

func (h *Handler) joinGame(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	game, player, err := h.service.Games.JoinGame(r.Context(), req.RoomCode, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, joinResponse{Game: game, Player: player}, "joined")
}

func (h *Handler) listPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := h.service.Games.ListPlayers(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, players, "")
}

func (h *Handler) renamePlayer(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	player, err := h.service.Games.RenamePlayer(r.Context(), chi.URLParam(r, "gameID"), chi.URLParam(r, "playerID"), req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, player, "player renamed")
}

func (h *Handler) removePlayer(w http.ResponseWriter, r *http.Request) {
	player, err := h.service.Games.RemovePlayer(r.Context(), chi.URLParam(r, "gameID"), chi.URLParam(r, "playerID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, player, "player removed")
}

// control runs a host command and answers with the resulting snapshot, so the host can
// reconcile without waiting for the broadcast.
func (h *Handler) control(op func(ctx context.Context, gameID string) (app.Transition, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")
		if _, err := op(r.Context(), gameID); err != nil {
			writeError(w, h.logger, err)
			return
		}
		h.getState(w, r)
	}
}

func (h *Handler) expire(w http.ResponseWriter, r *http.Request) {
	var req expireRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	gameID := chi.URLParam(r, "gameID")
	if _, err := h.service.Rounds.Expire(r.Context(), gameID, req.Phase, req.QuestionIndex); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.getState(w, r)
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	sub := domain.Submission{
		GameID:         chi.URLParam(r, "gameID"),
		PlayerID:       req.PlayerID,
		QuestionID:     req.QuestionID,
		ResponseTimeMs: req.ResponseTimeMs,
	}
	if req.SelectedAnswer != nil {
		opt, err := domain.ParseOption(*req.SelectedAnswer)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		sub.Selected = &opt
	}
	answer, err := h.service.Rounds.SubmitAnswer(r.Context(), sub)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, answer, "answer recorded")
}

func (h *Handler) scoreQuestion(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Ledger.ScoreQuestion(r.Context(), chi.URLParam(r, "gameID"), chi.URLParam(r, "questionID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	msg := "question scored"
	if len(report.Failures) > 0 {
		msg = "question partially scored"
	}
	writeJSON(w, http.StatusOK, report, msg)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	standings, err := h.service.Rounds.Leaderboard(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, standings, "")
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			writeFailure(w, http.StatusServiceUnavailable, "store unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, nil, "ok")
}
