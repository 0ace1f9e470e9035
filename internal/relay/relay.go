// Package relay validates real-time activity against role bindings,
// records it, and fans it out to the game's room.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/apperr"
	"github.com/DoyleJ11/exposed-backend/internal/engine"
	"github.com/DoyleJ11/exposed-backend/internal/hub"
	"github.com/DoyleJ11/exposed-backend/internal/keylock"
	"github.com/DoyleJ11/exposed-backend/internal/room"
	"github.com/DoyleJ11/exposed-backend/internal/store"
	"github.com/DoyleJ11/exposed-backend/internal/types"
)

var ErrStopped = errors.New("relay is shutting down")

type Guard interface {
	Require(ctx context.Context, gameID, participantID string, required engine.Role, activeGameID string) error
}

type Pointers interface {
	ActiveFor(ctx context.Context, role engine.Role, sid string) (string, error)
}

type Store interface {
	JoinedRoles(ctx context.Context, gameID string) ([]string, error)
	EliminateCard(ctx context.Context, gameID string, card int, at time.Time) (bool, error)
	EliminatedCards(ctx context.Context, gameID string) ([]int, error)
}

type Recorder interface {
	Record(ctx context.Context, e store.Event) (store.Event, error)
}

// Client is one real-time connection. It belongs to at most one room.
type Client struct {
	ID string
	// SessionID is the moderator session behind the connection, if any.
	SessionID string
	Outbox    chan types.ServerMessage
	Evict     func()

	room   *room.Room
	gameID string
}

func NewClient(sessionID string, outbox chan types.ServerMessage, evict func()) *Client {
	return &Client{ID: uuid.NewString(), SessionID: sessionID, Outbox: outbox, Evict: evict}
}

func (c *Client) GameID() string { return c.gameID }

type Relay struct {
	hub      *hub.Hub
	guard    Guard
	pointers Pointers
	store    Store
	rec      Recorder
	log      *zap.Logger
	now      func() time.Time
	// games orders record-then-broadcast per game, so rooms see events in
	// transcript order.
	games *keylock.Map
}

func New(h *hub.Hub, guard Guard, pointers Pointers, st Store, rec Recorder, log *zap.Logger) *Relay {
	return &Relay{
		hub:      h,
		guard:    guard,
		pointers: pointers,
		store:    st,
		rec:      rec,
		log:      log.Named("relay"),
		now:      time.Now,
		games:    keylock.New(),
	}
}

func (r *Relay) authorize(ctx context.Context, sid, gameID, rawRole, participantID string) (engine.Role, error) {
	if gameID == "" {
		return "", apperr.Validation("game_id is required")
	}
	role, ok := engine.ParseRole(rawRole)
	if !ok {
		return "", apperr.Validation("role must be one of player1, player2, moderator")
	}
	active, err := r.pointers.ActiveFor(ctx, role, sid)
	if err != nil {
		return "", err
	}
	if err := r.guard.Require(ctx, gameID, participantID, role, active); err != nil {
		return "", err
	}
	return role, nil
}

// subscribe moves c into gameID's room, leaving any previous one.
func (r *Relay) subscribe(ctx context.Context, c *Client, gameID, role string, announce types.ServerMessage, replay []types.ServerMessage) error {
	rm := r.hub.Ensure(ctx, gameID)
	if rm == nil {
		return ErrStopped
	}
	if c.room != nil && c.room != rm {
		c.room.Send(room.Leave{ClientID: c.ID})
	}
	if !rm.Send(room.Join{
		ClientID: c.ID,
		Role:     role,
		Outbox:   c.Outbox,
		Evict:    c.Evict,
		Announce: announce,
		Replay:   replay,
	}) {
		return ErrStopped
	}
	c.room, c.gameID = rm, gameID
	return nil
}

// Join subscribes c to the game's room, tells the room, and replays one
// join per role already seen in the game so the newcomer knows who is here.
func (r *Relay) Join(ctx context.Context, c *Client, gameID, rawRole, participantID string) error {
	role, err := r.authorize(ctx, c.SessionID, gameID, rawRole, participantID)
	if err != nil {
		return err
	}
	defer r.games.Lock(gameID)()

	seen, err := r.store.JoinedRoles(ctx, gameID)
	if err != nil {
		return fmt.Errorf("load joined roles: %w", err)
	}
	text := fmt.Sprintf("%s joined", role)
	if _, err := r.rec.Record(ctx, store.Event{
		GameID: gameID, Role: string(role), Action: store.ActionJoin,
		Text: text, ParticipantID: participantID,
	}); err != nil {
		return err
	}

	var replay []types.ServerMessage
	for _, other := range seen {
		if other == string(role) {
			continue
		}
		replay = append(replay, types.ServerMessage{Type: types.ServerJoin, GameID: gameID, Role: other, Text: other + " joined", Replay: true})
	}

	announce := types.ServerMessage{Type: types.ServerJoin, GameID: gameID, Role: string(role), Text: text}
	if err := r.subscribe(ctx, c, gameID, string(role), announce, replay); err != nil {
		return err
	}
	r.log.Debug("client joined",
		zap.String("game_id", gameID),
		zap.String("client_id", c.ID),
		zap.String("role", string(role)))
	return nil
}

// Chat is recorded and relayed verbatim. Empty text is still recorded.
func (r *Relay) Chat(ctx context.Context, c *Client, gameID, rawRole, participantID, text string) error {
	role, err := r.authorize(ctx, c.SessionID, gameID, rawRole, participantID)
	if err != nil {
		return err
	}
	defer r.games.Lock(gameID)()

	if _, err := r.rec.Record(ctx, store.Event{
		GameID: gameID, Role: string(role), Action: store.ActionChat,
		Text: text, ParticipantID: participantID,
	}); err != nil {
		return err
	}
	r.broadcast(ctx, gameID, types.ServerMessage{Type: types.ServerChat, GameID: gameID, Role: string(role), Text: text}, "")
	return nil
}

type Elimination struct {
	GameID     string `json:"game_id"`
	Card       int    `json:"card"`
	Eliminated []int  `json:"eliminated"`
	// Added is false when the card was already out.
	Added bool `json:"added"`
}

// Eliminate adds card to the game's eliminated set. Repeating a card is a
// successful no-op: nothing is recorded or broadcast. An empty gameID
// falls back to the active game and an empty role to player2.
func (r *Relay) Eliminate(ctx context.Context, gameID string, card int, rawRole, participantID string) (Elimination, error) {
	if card == 0 {
		return Elimination{}, apperr.Validation("card_id is required")
	}
	if rawRole == "" {
		rawRole = string(engine.RolePlayer2)
	}
	if gameID == "" {
		active, err := r.pointers.ActiveFor(ctx, engine.RolePlayer2, "")
		if err != nil {
			return Elimination{}, err
		}
		gameID = active
	}
	role, err := r.authorize(ctx, "", gameID, rawRole, participantID)
	if err != nil {
		return Elimination{}, err
	}
	defer r.games.Lock(gameID)()

	added, err := r.store.EliminateCard(ctx, gameID, card, r.now().UTC())
	if err != nil {
		return Elimination{}, fmt.Errorf("eliminate card: %w", err)
	}
	set, err := r.store.EliminatedCards(ctx, gameID)
	if err != nil {
		return Elimination{}, fmt.Errorf("load eliminated cards: %w", err)
	}
	out := Elimination{GameID: gameID, Card: card, Eliminated: set, Added: added}
	if !added {
		return out, nil
	}

	if !engine.ValidCard(card) {
		r.log.Info("card outside the deck eliminated", zap.String("game_id", gameID), zap.Int("card", card))
	}
	if _, err := r.rec.Record(ctx, store.Event{
		GameID: gameID, Role: string(role), Action: store.ActionEliminate,
		Text: fmt.Sprintf("eliminated card %d", card), Card: &card, ParticipantID: participantID,
	}); err != nil {
		return Elimination{}, err
	}
	r.broadcast(ctx, gameID, types.ServerMessage{
		Type: types.ServerEliminate, GameID: gameID, Role: string(role),
		Card: card, Eliminated: set,
	}, "")
	return out, nil
}

// VoiceJoin registers the caller as voice peer clientID and returns the
// peers already present. Everyone else hears about the newcomer.
func (r *Relay) VoiceJoin(ctx context.Context, c *Client, gameID, rawRole, participantID, clientID string) ([]types.Peer, error) {
	if clientID == "" {
		return nil, apperr.Validation("client_id is required")
	}
	role, err := r.authorize(ctx, c.SessionID, gameID, rawRole, participantID)
	if err != nil {
		return nil, err
	}
	defer r.games.Lock(gameID)()
	if _, err := r.rec.Record(ctx, store.Event{
		GameID: gameID, Role: string(role), Action: store.ActionVoiceJoin,
		Text: clientID, ParticipantID: participantID,
	}); err != nil {
		return nil, err
	}

	if c.gameID != gameID {
		if err := r.subscribe(ctx, c, gameID, string(role), types.ServerMessage{}, nil); err != nil {
			return nil, err
		}
	}
	reply := make(chan []types.Peer, 1)
	if !c.room.Send(room.VoiceJoin{ClientID: c.ID, PeerID: clientID, Role: string(role), Reply: reply}) {
		return nil, ErrStopped
	}
	return await(ctx, c.room, reply)
}

// Signal forwards an opaque negotiation payload to one voice peer. An
// unknown recipient drops the signal; the sender is not told.
func (r *Relay) Signal(ctx context.Context, c *Client, gameID, rawRole, participantID, from, to string, payload json.RawMessage) error {
	if from == "" || to == "" {
		return apperr.Validation("from and to are required")
	}
	role, err := r.authorize(ctx, c.SessionID, gameID, rawRole, participantID)
	if err != nil {
		return err
	}
	defer r.games.Lock(gameID)()

	if _, err := r.rec.Record(ctx, store.Event{
		GameID: gameID, Role: string(role), Action: store.ActionWebRTCSignal,
		Text: fmt.Sprintf("%s->%s %s", from, to, payloadKind(payload)), ParticipantID: participantID,
	}); err != nil {
		return err
	}

	drop := func(reason string) {
		r.log.Warn("dropping webrtc signal",
			zap.String("game_id", gameID),
			zap.String("from", from),
			zap.String("to", to),
			zap.String("reason", reason))
	}
	rm := r.hub.Get(ctx, gameID)
	if rm == nil {
		drop("no room")
		return nil
	}
	reply := make(chan bool, 1)
	msg := types.ServerMessage{Type: types.ServerWebRTCSignal, GameID: gameID, Role: string(role), From: from, To: to, Payload: payload}
	if !rm.Send(room.Signal{To: to, Msg: msg, Reply: reply}) {
		drop("room stopped")
		return nil
	}
	delivered, err := await(ctx, rm, reply)
	if err != nil {
		return err
	}
	if !delivered {
		drop("peer not registered")
	}
	return nil
}

// Leave unsubscribes c. Any voice peers it registered go with it.
func (r *Relay) Leave(c *Client) {
	if c.room != nil {
		c.room.Send(room.Leave{ClientID: c.ID})
		c.room, c.gameID = nil, ""
	}
}

// System sends a notice to everyone currently in the game's room.
func (r *Relay) System(gameID, text string) {
	r.broadcast(context.Background(), gameID, types.ServerMessage{Type: types.ServerSystem, GameID: gameID, Text: text}, "")
}

func (r *Relay) broadcast(ctx context.Context, gameID string, msg types.ServerMessage, except string) {
	rm := r.hub.Get(ctx, gameID)
	if rm == nil {
		return
	}
	rm.Send(room.Broadcast{Msg: msg, Except: except})
}

func await[T any](ctx context.Context, rm *room.Room, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-rm.Done():
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// payloadKind names a signal for the transcript without storing the SDP.
func payloadKind(payload json.RawMessage) string {
	var peek struct {
		Type      string          `json:"type"`
		Candidate json.RawMessage `json:"candidate"`
	}
	if err := json.Unmarshal(payload, &peek); err == nil {
		switch {
		case peek.Type != "":
			return peek.Type
		case len(peek.Candidate) > 0:
			return "candidate"
		}
	}
	return "signal"
}
