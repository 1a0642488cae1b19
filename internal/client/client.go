// Package client talks to the trivia HTTP API. It backs the host and player devices run
// from the command line.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trivia-sync-service/internal/domain"
	"trivia-sync-service/internal/ranking"
)

// SubmitRetryDelay is the pause before the single retry of a failed answer submission.
const SubmitRetryDelay = 500 * time.Millisecond

// APIError is a non-2xx response. It unwraps to the matching domain sentinel so callers
// can use errors.Is across the wire.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusBadRequest:
		return domain.ErrValidation
	case e.Status == http.StatusNotFound:
		return domain.ErrNotFound
	case e.Status == http.StatusConflict && strings.Contains(e.Message, domain.ErrDuplicateSubmission.Error()):
		return domain.ErrDuplicateSubmission
	case e.Status == http.StatusConflict:
		return domain.ErrInvalidTransition
	case e.Status >= http.StatusInternalServerError:
		return domain.ErrTransientPersistence
	default:
		return nil
	}
}

// Client is safe for concurrent use.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
	// retryDelay is overridable in tests.
	retryDelay time.Duration
}

func New(baseURL string, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:       u,
		http:       &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		retryDelay: SubmitRetryDelay,
	}, nil
}

type envelope struct {
	Error   bool            `json:"error"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Message: resp.Status}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 || env.Error {
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

func gamePath(gameID string, parts ...string) string {
	p := "/games/" + url.PathEscape(gameID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func (c *Client) CreateGame(ctx context.Context, questionSetID string) (domain.Game, error) {
	var game domain.Game
	err := c.do(ctx, http.MethodPost, "/games", map[string]string{"questionSetId": questionSetID}, &game)
	return game, err
}

func (c *Client) JoinGame(ctx context.Context, roomCode, name string) (domain.Game, domain.Player, error) {
	var out struct {
		Game   domain.Game   `json:"game"`
		Player domain.Player `json:"player"`
	}
	err := c.do(ctx, http.MethodPost, "/games/join", map[string]string{"roomCode": roomCode, "name": name}, &out)
	return out.Game, out.Player, err
}

func (c *Client) ListPlayers(ctx context.Context, gameID string) ([]domain.Player, error) {
	var players []domain.Player
	err := c.do(ctx, http.MethodGet, gamePath(gameID, "players"), nil, &players)
	return players, err
}

func (c *Client) Leaderboard(ctx context.Context, gameID string) ([]ranking.Standing, error) {
	var standings []ranking.Standing
	err := c.do(ctx, http.MethodGet, gamePath(gameID, "leaderboard"), nil, &standings)
	return standings, err
}

func (c *Client) State(ctx context.Context, gameID string) (domain.GameState, error) {
	var state domain.GameState
	err := c.do(ctx, http.MethodGet, gamePath(gameID), nil, &state)
	return state, err
}

func (c *Client) command(ctx context.Context, gameID, op string, body any) (domain.GameState, error) {
	var state domain.GameState
	err := c.do(ctx, http.MethodPost, gamePath(gameID, op), body, &state)
	return state, err
}

func (c *Client) Start(ctx context.Context, gameID string) (domain.GameState, error) {
	return c.command(ctx, gameID, "start", nil)
}

func (c *Client) Pause(ctx context.Context, gameID string) (domain.GameState, error) {
	return c.command(ctx, gameID, "pause", nil)
}

func (c *Client) Resume(ctx context.Context, gameID string) (domain.GameState, error) {
	return c.command(ctx, gameID, "resume", nil)
}

func (c *Client) Skip(ctx context.Context, gameID string) (domain.GameState, error) {
	return c.command(ctx, gameID, "skip", nil)
}

func (c *Client) Expire(ctx context.Context, gameID string, phase domain.Phase, questionIndex int) (domain.GameState, error) {
	return c.command(ctx, gameID, "expire", map[string]any{"phase": phase, "questionIndex": questionIndex})
}

// SubmitAnswer posts an answer and retries once after SubmitRetryDelay unless the server
// rejected it with a 4xx. A retry that finds the first attempt already stored comes back
// as domain.ErrDuplicateSubmission.
func (c *Client) SubmitAnswer(ctx context.Context, sub domain.Submission) (domain.Answer, error) {
	body := map[string]any{
		"playerId":       sub.PlayerID,
		"questionId":     sub.QuestionID,
		"responseTimeMs": sub.ResponseTimeMs,
		"selectedAnswer": sub.Selected,
	}
	path := gamePath(sub.GameID, "answers")

	var answer domain.Answer
	err := c.do(ctx, http.MethodPost, path, body, &answer)
	if err == nil || clientError(err) {
		return answer, err
	}

	c.logger.Warn("submit failed, retrying", "game_id", sub.GameID, "question_id", sub.QuestionID, "error", err)
	select {
	case <-time.After(c.retryDelay):
	case <-ctx.Done():
		return domain.Answer{}, ctx.Err()
	}
	err = c.do(ctx, http.MethodPost, path, body, &answer)
	return answer, err
}

func clientError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500
}
