// Package admission turns one-time tokens into waiting-room seats and
// tells participants where they stand.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/apperr"
	"github.com/DoyleJ11/exposed-backend/internal/engine"
	"github.com/DoyleJ11/exposed-backend/internal/store"
)

type Store interface {
	Token(ctx context.Context, token string) (store.Token, error)
	MarkTokenUsed(ctx context.Context, token, participantID string, at time.Time) (bool, error)
	ActiveGame(ctx context.Context) (string, error)
	Binding(ctx context.Context, gameID, participantID string) (engine.Role, bool, error)
}

type Sessions interface {
	Admit(ctx context.Context, gameID, participantID string) (engine.Session, error)
	Get(ctx context.Context, gameID string) (engine.Session, error)
}

type Controller struct {
	store    Store
	sessions Sessions
	log      *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewController(st Store, sessions Sessions, log *zap.Logger) *Controller {
	return &Controller{
		store:    st,
		sessions: sessions,
		log:      log.Named("admission"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// ValidateToken checks existence, then expiry, then prior use.
func (c *Controller) ValidateToken(ctx context.Context, token string) (store.Token, error) {
	if token == "" {
		return store.Token{}, apperr.Validation("token is required")
	}
	tok, err := c.store.Token(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return store.Token{}, apperr.New(apperr.KindTokenNotFound, "invalid token")
	}
	if err != nil {
		return store.Token{}, fmt.Errorf("load token: %w", err)
	}
	if c.now().After(tok.ExpiresAt) {
		return tok, apperr.New(apperr.KindTokenExpired, "token has expired")
	}
	if tok.Used() {
		return tok, apperr.New(apperr.KindTokenUsed, "token has already been used")
	}
	return tok, nil
}

// ConsumeToken marks the token used and mints the participant id. Only
// one of several concurrent consumers of the same token succeeds.
func (c *Controller) ConsumeToken(ctx context.Context, token string) (string, error) {
	if _, err := c.ValidateToken(ctx, token); err != nil {
		return "", err
	}
	participantID := c.newID()
	ok, err := c.store.MarkTokenUsed(ctx, token, participantID, c.now().UTC())
	if err != nil {
		return "", fmt.Errorf("mark token used: %w", err)
	}
	if !ok {
		return "", apperr.New(apperr.KindTokenUsed, "token has already been used")
	}
	return participantID, nil
}

type EnterResult struct {
	ParticipantID string       `json:"participant_id"`
	WaitingCount  int          `json:"waiting_count"`
	GameID        string       `json:"game_id"`
	State         engine.State `json:"state"`
}

// Enter admits the bearer of token into the active session. The token is
// burned before the session is checked, so a token presented while entry
// is not open is spent.
func (c *Controller) Enter(ctx context.Context, token string) (EnterResult, error) {
	participantID, err := c.ConsumeToken(ctx, token)
	if err != nil {
		return EnterResult{}, err
	}

	gameID, err := c.openSession(ctx)
	if err != nil {
		c.log.Info("token consumed while entry is not open",
			zap.String("participant_id", participantID),
			zap.Error(err))
		return EnterResult{}, err
	}

	sess, err := c.sessions.Admit(ctx, gameID, participantID)
	if err != nil {
		c.log.Warn("token consumed but admission failed",
			zap.String("game_id", gameID),
			zap.String("participant_id", participantID),
			zap.Error(err))
		return EnterResult{}, err
	}

	c.log.Info("participant admitted",
		zap.String("game_id", gameID),
		zap.String("participant_id", participantID),
		zap.Int("waiting_count", len(sess.Waiting)))
	return EnterResult{
		ParticipantID: participantID,
		WaitingCount:  len(sess.Waiting),
		GameID:        gameID,
		State:         sess.State,
	}, nil
}

func (c *Controller) openSession(ctx context.Context) (string, error) {
	gameID, err := c.store.ActiveGame(ctx)
	if err != nil {
		return "", fmt.Errorf("load active pointer: %w", err)
	}
	if gameID == "" {
		return "", apperr.New(apperr.KindSessionClosed, "entry is not open")
	}
	sess, err := c.sessions.Get(ctx, gameID)
	if err != nil {
		return "", err
	}
	if sess.State != engine.StateOpen {
		return "", apperr.New(apperr.KindSessionClosed, "entry is not open (state %s)", sess.State)
	}
	return gameID, nil
}

type Status string

const (
	StatusClosed Status = "closed"
	StatusOpen   Status = "open"
	StatusReady  Status = "ready"
	StatusInGame Status = "in_game"
)

type StatusResult struct {
	Status       Status      `json:"status"`
	GameID       string      `json:"game_id,omitempty"`
	Role         engine.Role `json:"role,omitempty"`
	WaitingCount int         `json:"waiting_count,omitempty"`
	Message      string      `json:"message,omitempty"`
}

// Status classifies a participant against the active session without
// changing anything.
func (c *Controller) Status(ctx context.Context, participantID string) (StatusResult, error) {
	if participantID == "" {
		return StatusResult{}, apperr.Validation("participant_id is required")
	}
	closed := StatusResult{Status: StatusClosed, Message: "Entry is closed"}

	gameID, err := c.store.ActiveGame(ctx)
	if err != nil {
		return StatusResult{}, fmt.Errorf("load active pointer: %w", err)
	}
	if gameID == "" {
		return closed, nil
	}
	sess, err := c.sessions.Get(ctx, gameID)
	if errors.Is(err, apperr.ErrNotFound) {
		return closed, nil
	}
	if err != nil {
		return StatusResult{}, err
	}

	switch sess.State {
	case engine.StateInProgress:
		role, ok, err := c.store.Binding(ctx, gameID, participantID)
		if err != nil {
			return StatusResult{}, fmt.Errorf("load binding: %w", err)
		}
		if ok {
			return StatusResult{Status: StatusInGame, GameID: gameID, Role: role}, nil
		}
	case engine.StateReady:
		if role, ok := engine.SeatOf(sess, participantID); ok {
			return StatusResult{Status: StatusReady, GameID: gameID, Role: role, Message: "Waiting for the moderator to start"}, nil
		}
	case engine.StateOpen:
		n := len(sess.Waiting)
		return StatusResult{
			Status:       StatusOpen,
			GameID:       gameID,
			WaitingCount: n,
			Message:      fmt.Sprintf("Waiting for players (%d/%d)", n, engine.MaxWaiting),
		}, nil
	}
	return closed, nil
}

type SessionStatus struct {
	GameID   string       `json:"game_id"`
	State    engine.State `json:"state"`
	IsPlayer bool         `json:"is_player"`
}

func (c *Controller) SessionStatus(ctx context.Context, gameID, participantID string) (SessionStatus, error) {
	if gameID == "" {
		return SessionStatus{}, apperr.Validation("game_id is required")
	}
	sess, err := c.sessions.Get(ctx, gameID)
	if err != nil {
		return SessionStatus{}, err
	}
	_, seated := engine.SeatOf(sess, participantID)
	return SessionStatus{GameID: gameID, State: sess.State, IsPlayer: seated}, nil
}
