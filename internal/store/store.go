// Package store persists game sessions, role bindings, access tokens,
// eliminated cards and the transcript. A backend is picked once by Open.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/exposed-backend/internal/engine"
)

var ErrNotFound = errors.New("store: not found")

type Action string

const (
	ActionJoin           Action = "join"
	ActionChat           Action = "chat"
	ActionEliminate      Action = "eliminate"
	ActionCardDraw       Action = "card_draw"
	ActionVoiceJoin      Action = "voice_join"
	ActionWebRTCSignal   Action = "webrtc_signal"
	ActionSessionCreated Action = "session_created"
	ActionEntryOpened    Action = "entry_opened"
	ActionEntryClosed    Action = "entry_closed"
	ActionGameStarted    Action = "game_started"
	ActionGameEnded      Action = "game_ended"
	ActionSessionReset   Action = "session_reset"
)

// Event is one transcript row. ID is assigned by AppendEvent and orders
// events within a game.
type Event struct {
	ID            int64     `json:"id"`
	GameID        string    `json:"game_id"`
	Role          string    `json:"role"`
	Action        Action    `json:"action"`
	Text          string    `json:"text"`
	Card          *int      `json:"card,omitempty"`
	ParticipantID string    `json:"participant_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type Token struct {
	Token         string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	UsedAt        *time.Time
	ParticipantID string
}

func (t Token) Used() bool { return t.UsedAt != nil }

// UpdateFunc receives the stored session and returns the one to persist.
// It runs while the row is locked and must not call back into the store.
type UpdateFunc func(engine.Session) (engine.Session, error)

type Store interface {
	CreateGame(ctx context.Context, s engine.Session) error
	Game(ctx context.Context, id string) (engine.Session, error)
	UpdateGame(ctx context.Context, id string, fn UpdateFunc) (engine.Session, error)

	// ActiveGame is the session players are admitted to. "" means none.
	ActiveGame(ctx context.Context) (string, error)
	SetActiveGame(ctx context.Context, gameID string) error
	ModeratorGame(ctx context.Context, sid string) (string, error)
	SetModeratorGame(ctx context.Context, sid, gameID string) error

	// BindRole inserts the binding if absent and returns the role stored
	// for the key, which differs from role when someone bound first.
	BindRole(ctx context.Context, gameID, participantID string, role engine.Role) (engine.Role, error)
	Binding(ctx context.Context, gameID, participantID string) (engine.Role, bool, error)

	CreateTokens(ctx context.Context, tokens []Token) error
	Token(ctx context.Context, token string) (Token, error)
	// MarkTokenUsed sets used_at only if it is still null. It reports false
	// when another consumer got there first.
	MarkTokenUsed(ctx context.Context, token, participantID string, at time.Time) (bool, error)

	EliminateCard(ctx context.Context, gameID string, card int, at time.Time) (bool, error)
	EliminatedCards(ctx context.Context, gameID string) ([]int, error)

	AppendEvent(ctx context.Context, e Event) (Event, error)
	// Transcript returns the most recent limit events oldest first. A
	// non-positive limit returns everything.
	Transcript(ctx context.Context, gameID string, limit int) ([]Event, error)
	// JoinedRoles lists the distinct roles with a join event, in the order
	// they first joined.
	JoinedRoles(ctx context.Context, gameID string) ([]string, error)

	Close() error
}

const activePointer = "active"

func moderatorPointer(sid string) string { return "moderator:" + sid }
