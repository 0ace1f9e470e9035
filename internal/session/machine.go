// Package session runs the game lifecycle: it applies engine commands to
// stored sessions one game at a time, binds seated players and keeps the
// active-session pointers current.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/apperr"
	"github.com/DoyleJ11/exposed-backend/internal/engine"
	"github.com/DoyleJ11/exposed-backend/internal/keylock"
	"github.com/DoyleJ11/exposed-backend/internal/store"
)

const pointerLockKey = "\x00pointers"

type Store interface {
	CreateGame(ctx context.Context, s engine.Session) error
	Game(ctx context.Context, id string) (engine.Session, error)
	UpdateGame(ctx context.Context, id string, fn store.UpdateFunc) (engine.Session, error)
	ActiveGame(ctx context.Context) (string, error)
	SetActiveGame(ctx context.Context, gameID string) error
	ModeratorGame(ctx context.Context, sid string) (string, error)
	SetModeratorGame(ctx context.Context, sid, gameID string) error
}

type Binder interface {
	Bind(ctx context.Context, gameID, participantID string, role engine.Role) (engine.Role, error)
}

type Recorder interface {
	Record(ctx context.Context, e store.Event) (store.Event, error)
}

// Notifier delivers system notices to everyone in a game's room.
type Notifier interface {
	System(gameID, text string)
}

type Machine struct {
	store   Store
	binder  Binder
	rec     Recorder
	notify  Notifier
	log     *zap.Logger
	baseURL string
	locks   *keylock.Map

	now    func() time.Time
	newID  func() string
	drawFn func() int
}

func NewMachine(st Store, binder Binder, rec Recorder, baseURL string, log *zap.Logger) *Machine {
	return &Machine{
		store:   st,
		binder:  binder,
		rec:     rec,
		log:     log.Named("session"),
		baseURL: strings.TrimRight(baseURL, "/"),
		locks:   keylock.New(),
		now:     time.Now,
		newID:   uuid.NewString,
		drawFn:  func() int { return rand.IntN(engine.CardCount) + 1 },
	}
}

// SetNotifier wires the room relay in after construction.
func (m *Machine) SetNotifier(n Notifier) { m.notify = n }

func (m *Machine) system(gameID, text string) {
	if m.notify != nil {
		m.notify.System(gameID, text)
	}
}

// Current resolves the game a caller is acting on: the moderator's own
// pointer when sid is set and known, otherwise the global active pointer.
func (m *Machine) Current(ctx context.Context, sid string) (string, error) {
	if sid != "" {
		id, err := m.store.ModeratorGame(ctx, sid)
		if err != nil {
			return "", fmt.Errorf("load moderator pointer: %w", err)
		}
		if id != "" {
			return id, nil
		}
	}
	id, err := m.store.ActiveGame(ctx)
	if err != nil {
		return "", fmt.Errorf("load active pointer: %w", err)
	}
	return id, nil
}

// ActiveFor is the game in which an unbound participant may still claim
// role: the moderator's current game for the moderator, the global
// pointer for players.
func (m *Machine) ActiveFor(ctx context.Context, role engine.Role, sid string) (string, error) {
	if role == engine.RoleModerator {
		return m.Current(ctx, sid)
	}
	id, err := m.store.ActiveGame(ctx)
	if err != nil {
		return "", fmt.Errorf("load active pointer: %w", err)
	}
	return id, nil
}

func (m *Machine) Get(ctx context.Context, gameID string) (engine.Session, error) {
	s, err := m.store.Game(ctx, gameID)
	if err != nil {
		return engine.Session{}, m.storeErr(gameID, err)
	}
	return s, nil
}

func (m *Machine) storeErr(gameID string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Wrap(apperr.KindNotFound, err, "game %s not found", gameID)
	}
	return err
}

// Open re-asserts entry on the current session while it is OPEN or READY
// and otherwise mints a fresh one. Either way the session becomes the
// active one for players and for this moderator.
func (m *Machine) Open(ctx context.Context, sid string) (engine.Session, error) {
	unlockPointers := m.locks.Lock(pointerLockKey)
	defer unlockPointers()

	currentID, err := m.Current(ctx, sid)
	if err != nil {
		return engine.Session{}, err
	}

	var sess engine.Session
	reused := false
	if currentID != "" {
		sess, reused, err = m.reopen(ctx, currentID)
		if err != nil {
			return engine.Session{}, err
		}
	}
	if !reused {
		sess, err = m.create(ctx)
		if err != nil {
			return engine.Session{}, err
		}
	}

	if err := m.store.SetActiveGame(ctx, sess.ID); err != nil {
		return engine.Session{}, fmt.Errorf("set active pointer: %w", err)
	}
	if sid != "" {
		if err := m.store.SetModeratorGame(ctx, sid, sess.ID); err != nil {
			return engine.Session{}, fmt.Errorf("set moderator pointer: %w", err)
		}
	}
	return sess, nil
}

func (m *Machine) reopen(ctx context.Context, gameID string) (engine.Session, bool, error) {
	cur, err := m.store.Game(ctx, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return engine.Session{}, false, nil
	}
	if err != nil {
		return engine.Session{}, false, fmt.Errorf("load game: %w", err)
	}
	if engine.NeedsFreshSession(cur) {
		if cur.State == engine.StateInProgress {
			m.log.Warn("opening entry abandons game in progress", zap.String("game_id", gameID))
		}
		return engine.Session{}, false, nil
	}

	unlock := m.locks.Lock(gameID)
	var events []engine.Event
	sess, err := m.store.UpdateGame(ctx, gameID, func(cur engine.Session) (engine.Session, error) {
		evts, next, err := engine.Apply(cur, engine.Command{Type: engine.CmdOpen, At: m.now()})
		events = evts
		return next, err
	})
	unlock()

	switch {
	case err == nil:
		m.recordEngineEvents(ctx, sess, "moderator", events)
		return sess, true, nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, engine.ErrNeedsFreshSession):
		// The game moved on between the read and the update.
		return engine.Session{}, false, nil
	default:
		return engine.Session{}, false, err
	}
}

func (m *Machine) create(ctx context.Context) (engine.Session, error) {
	card := m.drawFn()
	sess, events := engine.NewSession(m.newID(), card, m.now().UTC())
	if err := m.store.CreateGame(ctx, sess); err != nil {
		return engine.Session{}, fmt.Errorf("create game: %w", err)
	}
	m.log.Info("session created", zap.String("game_id", sess.ID))

	m.record(ctx, store.Event{GameID: sess.ID, Role: string(engine.RoleModerator), Action: store.ActionSessionCreated, Text: "session created"})
	m.record(ctx, store.Event{GameID: sess.ID, Role: string(engine.RoleModerator), Action: store.ActionCardDraw, Text: fmt.Sprintf("chosen card %d", card), Card: &card})
	m.recordEngineEvents(ctx, sess, "moderator", events[1:])
	return sess, nil
}

func (m *Machine) Close(ctx context.Context, sid string) (engine.Session, error) {
	sess, err := m.control(ctx, sid, engine.CmdClose)
	if err != nil {
		return engine.Session{}, err
	}
	m.system(sess.ID, "Entry closed by moderator")
	return sess, nil
}

// Admit adds participantID to the waiting room of gameID. On the second
// arrival both players are bound before the lock is released, so nobody
// can observe READY without the bindings.
func (m *Machine) Admit(ctx context.Context, gameID, participantID string) (engine.Session, error) {
	unlock := m.locks.Lock(gameID)

	var events []engine.Event
	sess, err := m.store.UpdateGame(ctx, gameID, func(cur engine.Session) (engine.Session, error) {
		evts, next, err := engine.Apply(cur, engine.Command{Type: engine.CmdAdmit, ParticipantID: participantID, At: m.now().UTC()})
		events = evts
		return next, err
	})
	if err != nil {
		unlock()
		return engine.Session{}, m.storeErr(gameID, err)
	}

	becameReady := engine.ContainsEvent(events, engine.EvtEntryClosed)
	if becameReady {
		for role, pid := range map[engine.Role]string{engine.RolePlayer1: sess.Player1ID, engine.RolePlayer2: sess.Player2ID} {
			if _, err := m.binder.Bind(ctx, gameID, pid, role); err != nil {
				unlock()
				return engine.Session{}, err
			}
		}
	}
	unlock()

	m.recordEngineEvents(ctx, sess, "system", events)
	if becameReady {
		m.log.Info("session ready",
			zap.String("game_id", gameID),
			zap.String("player1_id", sess.Player1ID),
			zap.String("player2_id", sess.Player2ID))
		m.system(gameID, "Two participants admitted, ready to start")
	}
	return sess, nil
}

type StartResult struct {
	GameID string            `json:"game_id"`
	URLs   map[string]string `json:"urls"`
}

func (m *Machine) Start(ctx context.Context, sid string) (StartResult, error) {
	sess, err := m.control(ctx, sid, engine.CmdStart)
	if err != nil {
		return StartResult{}, err
	}
	m.system(sess.ID, "Game started")
	return StartResult{GameID: sess.ID, URLs: m.RoleURLs(sess)}, nil
}

func (m *Machine) End(ctx context.Context, sid string) (engine.Session, error) {
	sess, err := m.control(ctx, sid, engine.CmdEnd)
	if err != nil {
		return engine.Session{}, err
	}
	m.system(sess.ID, "Game ended")
	return sess, nil
}

// Reset closes the session and clears its seats. Bindings survive, and
// players are told entry is closed until the moderator opens again.
func (m *Machine) Reset(ctx context.Context, sid string) (engine.Session, error) {
	sess, err := m.control(ctx, sid, engine.CmdReset)
	if err != nil {
		return engine.Session{}, err
	}

	unlockPointers := m.locks.Lock(pointerLockKey)
	active, err := m.store.ActiveGame(ctx)
	if err == nil && active == sess.ID {
		err = m.store.SetActiveGame(ctx, "")
	}
	unlockPointers()
	if err != nil {
		return engine.Session{}, fmt.Errorf("clear active pointer: %w", err)
	}

	m.system(sess.ID, "Session reset")
	return sess, nil
}

// RoleURLs are the links handed out when a game starts.
func (m *Machine) RoleURLs(s engine.Session) map[string]string {
	link := func(path string, q url.Values) string {
		return m.baseURL + path + "?" + q.Encode()
	}
	return map[string]string{
		string(engine.RolePlayer1):   link("/player1", url.Values{"game_id": {s.ID}, "participant_id": {s.Player1ID}}),
		string(engine.RolePlayer2):   link("/player2", url.Values{"game_id": {s.ID}, "participant_id": {s.Player2ID}}),
		string(engine.RoleModerator): link("/dashboard", url.Values{"game_id": {s.ID}}),
	}
}

// control applies a moderator command to the caller's current game.
func (m *Machine) control(ctx context.Context, sid string, cmd engine.CommandType) (engine.Session, error) {
	gameID, err := m.Current(ctx, sid)
	if err != nil {
		return engine.Session{}, err
	}
	if gameID == "" {
		return engine.Session{}, apperr.New(apperr.KindNotFound, "no active session")
	}

	unlock := m.locks.Lock(gameID)
	var events []engine.Event
	sess, err := m.store.UpdateGame(ctx, gameID, func(cur engine.Session) (engine.Session, error) {
		evts, next, err := engine.Apply(cur, engine.Command{Type: cmd, At: m.now().UTC()})
		events = evts
		return next, err
	})
	unlock()
	if err != nil {
		return engine.Session{}, m.storeErr(gameID, err)
	}

	m.log.Info("session command applied",
		zap.String("game_id", gameID),
		zap.String("command", string(cmd)),
		zap.String("state", string(sess.State)))
	m.recordEngineEvents(ctx, sess, "moderator", events)
	return sess, nil
}

var eventActions = map[engine.EventType]store.Action{
	engine.EvtSessionCreated: store.ActionSessionCreated,
	engine.EvtEntryOpened:    store.ActionEntryOpened,
	engine.EvtEntryClosed:    store.ActionEntryClosed,
	engine.EvtGameStarted:    store.ActionGameStarted,
	engine.EvtGameEnded:      store.ActionGameEnded,
	engine.EvtSessionReset:   store.ActionSessionReset,
}

func (m *Machine) recordEngineEvents(ctx context.Context, s engine.Session, role string, events []engine.Event) {
	for _, ev := range events {
		action, ok := eventActions[ev.Type]
		if !ok {
			continue
		}
		text := ev.Reason
		if ev.Player1ID != "" {
			text = strings.TrimSpace(fmt.Sprintf("%s player1=%s player2=%s", text, ev.Player1ID, ev.Player2ID))
		}
		m.record(ctx, store.Event{GameID: s.ID, Role: role, Action: action, Text: text})
	}
}

// record writes an audit row. The state change already happened, so a
// failure here is logged rather than returned.
func (m *Machine) record(ctx context.Context, e store.Event) {
	if _, err := m.rec.Record(ctx, e); err != nil {
		m.log.Error("record audit event",
			zap.String("game_id", e.GameID),
			zap.String("action", string(e.Action)),
			zap.Error(err))
	}
}
