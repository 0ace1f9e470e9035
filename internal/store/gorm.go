package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DoyleJ11/exposed-backend/internal/engine"
)

type gameRow struct {
	ID                  string           `gorm:"primaryKey;type:varchar(64)"`
	CreatedAt           time.Time        `gorm:"not null"`
	UpdatedAt           time.Time
	ChosenCard          int              `gorm:"not null"`
	State               string           `gorm:"type:varchar(16);not null;index"`
	WaitingParticipants []engine.Arrival `gorm:"serializer:json"`
	Player1ID           string           `gorm:"type:varchar(64)"`
	Player2ID           string           `gorm:"type:varchar(64)"`
}

func (gameRow) TableName() string { return "games" }

type eventRow struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	GameID        string    `gorm:"type:varchar(64);not null;index"`
	Role          string    `gorm:"type:varchar(16);not null"`
	Action        string    `gorm:"type:varchar(32);not null"`
	Text          string    `gorm:"type:text"`
	Card          *int
	ParticipantID string    `gorm:"type:varchar(64)"`
	Timestamp     time.Time `gorm:"not null;index"`
}

func (eventRow) TableName() string { return "events" }

type eliminatedCardRow struct {
	GameID       string `gorm:"primaryKey;type:varchar(64)"`
	CardID       int    `gorm:"primaryKey;autoIncrement:false"`
	EliminatedAt time.Time
}

func (eliminatedCardRow) TableName() string { return "eliminated_cards" }

type bindingRow struct {
	GameID        string `gorm:"primaryKey;type:varchar(64)"`
	ParticipantID string `gorm:"primaryKey;type:varchar(64)"`
	Role          string `gorm:"type:varchar(16);not null"`
	CreatedAt     time.Time
}

func (bindingRow) TableName() string { return "participant_bindings" }

type tokenRow struct {
	Token         string    `gorm:"primaryKey;type:varchar(128)"`
	CreatedAt     time.Time `gorm:"not null"`
	ExpiresAt     time.Time `gorm:"not null"`
	UsedAt        *time.Time
	ParticipantID *string `gorm:"type:varchar(64)"`
}

func (tokenRow) TableName() string { return "access_tokens" }

type pointerRow struct {
	Name      string `gorm:"primaryKey;type:varchar(128)"`
	GameID    string `gorm:"type:varchar(64)"`
	UpdatedAt time.Time
}

func (pointerRow) TableName() string { return "session_pointers" }

// Gorm implements Store over any gorm dialector. lockRows turns on
// SELECT ... FOR UPDATE inside UpdateGame, which only postgres needs;
// sqlite serializes writers on its own.
type Gorm struct {
	db       *gorm.DB
	lockRows bool
}

func NewGorm(ctx context.Context, db *gorm.DB, lockRows bool) (*Gorm, error) {
	err := db.WithContext(ctx).AutoMigrate(
		&gameRow{}, &eventRow{}, &eliminatedCardRow{},
		&bindingRow{}, &tokenRow{}, &pointerRow{},
	)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Gorm{db: db, lockRows: lockRows}, nil
}

func toGameRow(s engine.Session) gameRow {
	return gameRow{
		ID:                  s.ID,
		CreatedAt:           s.CreatedAt,
		ChosenCard:          s.ChosenCard,
		State:               string(s.State),
		WaitingParticipants: s.Waiting,
		Player1ID:           s.Player1ID,
		Player2ID:           s.Player2ID,
	}
}

func (r gameRow) session() engine.Session {
	return engine.Session{
		ID:         r.ID,
		State:      engine.State(r.State),
		Waiting:    r.WaitingParticipants,
		Player1ID:  r.Player1ID,
		Player2ID:  r.Player2ID,
		ChosenCard: r.ChosenCard,
		CreatedAt:  r.CreatedAt,
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (g *Gorm) CreateGame(ctx context.Context, s engine.Session) error {
	row := toGameRow(s)
	return g.db.WithContext(ctx).Create(&row).Error
}

func (g *Gorm) Game(ctx context.Context, id string) (engine.Session, error) {
	var row gameRow
	if err := g.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return engine.Session{}, notFound(err)
	}
	return row.session(), nil
}

func (g *Gorm) UpdateGame(ctx context.Context, id string, fn UpdateFunc) (engine.Session, error) {
	var out engine.Session
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if g.lockRows {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var row gameRow
		if err := q.First(&row, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		cur := row.session()
		out = cur

		next, err := fn(cur)
		if err != nil {
			return err
		}
		next.ID = id
		updated := toGameRow(next)
		updated.CreatedAt = row.CreatedAt
		if err := tx.Save(&updated).Error; err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

func (g *Gorm) pointer(ctx context.Context, name string) (string, error) {
	var row pointerRow
	err := g.db.WithContext(ctx).First(&row, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return row.GameID, err
}

func (g *Gorm) setPointer(ctx context.Context, name, gameID string) error {
	row := pointerRow{Name: name, GameID: gameID, UpdatedAt: time.Now()}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"game_id", "updated_at"}),
	}).Create(&row).Error
}

func (g *Gorm) ActiveGame(ctx context.Context) (string, error) {
	return g.pointer(ctx, activePointer)
}

func (g *Gorm) SetActiveGame(ctx context.Context, gameID string) error {
	return g.setPointer(ctx, activePointer, gameID)
}

func (g *Gorm) ModeratorGame(ctx context.Context, sid string) (string, error) {
	return g.pointer(ctx, moderatorPointer(sid))
}

func (g *Gorm) SetModeratorGame(ctx context.Context, sid, gameID string) error {
	return g.setPointer(ctx, moderatorPointer(sid), gameID)
}

func (g *Gorm) BindRole(ctx context.Context, gameID, participantID string, role engine.Role) (engine.Role, error) {
	db := g.db.WithContext(ctx)
	row := bindingRow{GameID: gameID, ParticipantID: participantID, Role: string(role), CreatedAt: time.Now()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return "", err
	}
	var stored bindingRow
	if err := db.First(&stored, "game_id = ? AND participant_id = ?", gameID, participantID).Error; err != nil {
		return "", err
	}
	return engine.Role(stored.Role), nil
}

func (g *Gorm) Binding(ctx context.Context, gameID, participantID string) (engine.Role, bool, error) {
	var row bindingRow
	err := g.db.WithContext(ctx).First(&row, "game_id = ? AND participant_id = ?", gameID, participantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return engine.Role(row.Role), true, nil
}

func (g *Gorm) CreateTokens(ctx context.Context, tokens []Token) error {
	if len(tokens) == 0 {
		return nil
	}
	rows := make([]tokenRow, 0, len(tokens))
	for _, t := range tokens {
		rows = append(rows, tokenRow{Token: t.Token, CreatedAt: t.CreatedAt, ExpiresAt: t.ExpiresAt})
	}
	return g.db.WithContext(ctx).Create(&rows).Error
}

func (g *Gorm) Token(ctx context.Context, token string) (Token, error) {
	var row tokenRow
	if err := g.db.WithContext(ctx).First(&row, "token = ?", token).Error; err != nil {
		return Token{}, notFound(err)
	}
	t := Token{Token: row.Token, CreatedAt: row.CreatedAt, ExpiresAt: row.ExpiresAt, UsedAt: row.UsedAt}
	if row.ParticipantID != nil {
		t.ParticipantID = *row.ParticipantID
	}
	return t, nil
}

func (g *Gorm) MarkTokenUsed(ctx context.Context, token, participantID string, at time.Time) (bool, error) {
	res := g.db.WithContext(ctx).Model(&tokenRow{}).
		Where("token = ? AND used_at IS NULL", token).
		Updates(map[string]any{"used_at": at, "participant_id": participantID})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	if _, err := g.Token(ctx, token); err != nil {
		return false, err
	}
	return false, nil
}

func (g *Gorm) EliminateCard(ctx context.Context, gameID string, card int, at time.Time) (bool, error) {
	row := eliminatedCardRow{GameID: gameID, CardID: card, EliminatedAt: at}
	res := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (g *Gorm) EliminatedCards(ctx context.Context, gameID string) ([]int, error) {
	var cards []int
	err := g.db.WithContext(ctx).Model(&eliminatedCardRow{}).
		Where("game_id = ?", gameID).
		Order("card_id").
		Pluck("card_id", &cards).Error
	return cards, err
}

func (g *Gorm) AppendEvent(ctx context.Context, e Event) (Event, error) {
	row := eventRow{
		GameID:        e.GameID,
		Role:          e.Role,
		Action:        string(e.Action),
		Text:          e.Text,
		Card:          e.Card,
		ParticipantID: e.ParticipantID,
		Timestamp:     e.Timestamp,
	}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Event{}, err
	}
	e.ID = row.ID
	return e, nil
}

func (g *Gorm) Transcript(ctx context.Context, gameID string, limit int) ([]Event, error) {
	q := g.db.WithContext(ctx).Where("game_id = ?", gameID).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []eventRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	slices.Reverse(rows)

	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, Event{
			ID:            r.ID,
			GameID:        r.GameID,
			Role:          r.Role,
			Action:        Action(r.Action),
			Text:          r.Text,
			Card:          r.Card,
			ParticipantID: r.ParticipantID,
			Timestamp:     r.Timestamp,
		})
	}
	return events, nil
}

func (g *Gorm) JoinedRoles(ctx context.Context, gameID string) ([]string, error) {
	var rows []struct {
		Role    string
		FirstID int64
	}
	err := g.db.WithContext(ctx).Model(&eventRow{}).
		Select("role, MIN(id) AS first_id").
		Where("game_id = ? AND action = ?", gameID, string(ActionJoin)).
		Group("role").
		Order("first_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	roles := make([]string, 0, len(rows))
	for _, r := range rows {
		roles = append(roles, r.Role)
	}
	return roles, nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
