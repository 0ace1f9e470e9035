package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/DoyleJ11/exposed-backend/internal/engine"
)

type bindingKey struct{ game, participant string }

// Memory keeps everything in process. It backs tests and the default
// single-node deployment; state is lost on restart.
type Memory struct {
	mu         sync.Mutex
	games      map[string]engine.Session
	pointers   map[string]string
	bindings   map[bindingKey]engine.Role
	tokens     map[string]Token
	eliminated map[string]map[int]time.Time
	events     map[string][]Event
	nextEvent  int64
}

func NewMemory() *Memory {
	return &Memory{
		games:      make(map[string]engine.Session),
		pointers:   make(map[string]string),
		bindings:   make(map[bindingKey]engine.Role),
		tokens:     make(map[string]Token),
		eliminated: make(map[string]map[int]time.Time),
		events:     make(map[string][]Event),
	}
}

func (m *Memory) CreateGame(_ context.Context, s engine.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Waiting = slices.Clone(s.Waiting)
	m.games[s.ID] = s
	return nil
}

func (m *Memory) Game(_ context.Context, id string) (engine.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.games[id]
	if !ok {
		return engine.Session{}, ErrNotFound
	}
	s.Waiting = slices.Clone(s.Waiting)
	return s, nil
}

func (m *Memory) UpdateGame(_ context.Context, id string, fn UpdateFunc) (engine.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.games[id]
	if !ok {
		return engine.Session{}, ErrNotFound
	}
	next, err := fn(cur)
	if err != nil {
		return cur, err
	}
	next.ID = id
	next.Waiting = slices.Clone(next.Waiting)
	m.games[id] = next
	return next, nil
}

func (m *Memory) ActiveGame(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pointers[activePointer], nil
}

func (m *Memory) SetActiveGame(_ context.Context, gameID string) error {
	m.setPointer(activePointer, gameID)
	return nil
}

func (m *Memory) ModeratorGame(_ context.Context, sid string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pointers[moderatorPointer(sid)], nil
}

func (m *Memory) SetModeratorGame(_ context.Context, sid, gameID string) error {
	m.setPointer(moderatorPointer(sid), gameID)
	return nil
}

func (m *Memory) setPointer(name, gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gameID == "" {
		delete(m.pointers, name)
		return
	}
	m.pointers[name] = gameID
}

func (m *Memory) BindRole(_ context.Context, gameID, participantID string, role engine.Role) (engine.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := bindingKey{gameID, participantID}
	if existing, ok := m.bindings[key]; ok {
		return existing, nil
	}
	m.bindings[key] = role
	return role, nil
}

func (m *Memory) Binding(_ context.Context, gameID, participantID string) (engine.Role, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.bindings[bindingKey{gameID, participantID}]
	return role, ok, nil
}

func (m *Memory) CreateTokens(_ context.Context, tokens []Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tokens {
		m.tokens[t.Token] = t
	}
	return nil
}

func (m *Memory) Token(_ context.Context, token string) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return Token{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) MarkTokenUsed(_ context.Context, token, participantID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[token]
	if !ok {
		return false, ErrNotFound
	}
	if t.UsedAt != nil {
		return false, nil
	}
	t.UsedAt = &at
	t.ParticipantID = participantID
	m.tokens[token] = t
	return true, nil
}

func (m *Memory) EliminateCard(_ context.Context, gameID string, card int, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.eliminated[gameID]
	if set == nil {
		set = make(map[int]time.Time)
		m.eliminated[gameID] = set
	}
	if _, ok := set[card]; ok {
		return false, nil
	}
	set[card] = at
	return true, nil
}

func (m *Memory) EliminatedCards(_ context.Context, gameID string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cards := make([]int, 0, len(m.eliminated[gameID]))
	for card := range m.eliminated[gameID] {
		cards = append(cards, card)
	}
	slices.Sort(cards)
	return cards, nil
}

func (m *Memory) AppendEvent(_ context.Context, e Event) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEvent++
	e.ID = m.nextEvent
	m.events[e.GameID] = append(m.events[e.GameID], e)
	return e, nil
}

func (m *Memory) Transcript(_ context.Context, gameID string, limit int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.events[gameID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return slices.Clone(all), nil
}

func (m *Memory) JoinedRoles(_ context.Context, gameID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var roles []string
	for _, e := range m.events[gameID] {
		if e.Action == ActionJoin && !slices.Contains(roles, e.Role) {
			roles = append(roles, e.Role)
		}
	}
	return roles, nil
}

func (m *Memory) Close() error { return nil }
