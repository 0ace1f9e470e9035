package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"github.com/DoyleJ11/exposed-backend/internal/engine"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		opts := Options{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "exposed.db")}
		s, err := Open(context.Background(), opts, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func TestStore_GameRoundTripAndUpdate(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		sess, _ := engine.NewSession("g1", 4, now)
		require.NoError(t, s.CreateGame(ctx, sess))

		got, err := s.Game(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, engine.StateOpen, got.State)
		assert.Equal(t, 4, got.ChosenCard)

		updated, err := s.UpdateGame(ctx, "g1", func(cur engine.Session) (engine.Session, error) {
			_, next, err := engine.Apply(cur, engine.Command{Type: engine.CmdAdmit, ParticipantID: "p1", At: now})
			return next, err
		})
		require.NoError(t, err)
		require.Len(t, updated.Waiting, 1)

		got, err = s.Game(ctx, "g1")
		require.NoError(t, err)
		require.Len(t, got.Waiting, 1)
		assert.Equal(t, "p1", got.Waiting[0].ParticipantID)
	})
}

func TestStore_UpdateGameErrorLeavesRowUntouched(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		sess, _ := engine.NewSession("g1", 4, now)
		require.NoError(t, s.CreateGame(ctx, sess))

		boom := errors.New("boom")
		_, err := s.UpdateGame(ctx, "g1", func(cur engine.Session) (engine.Session, error) {
			cur.State = engine.StateEnded
			return cur, boom
		})
		require.ErrorIs(t, err, boom)

		got, err := s.Game(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, engine.StateOpen, got.State)
	})
}

func TestStore_MissingGame(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		_, err := s.Game(context.Background(), "nope")
		require.ErrorIs(t, err, ErrNotFound)

		_, err = s.UpdateGame(context.Background(), "nope", func(cur engine.Session) (engine.Session, error) {
			return cur, nil
		})
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_Pointers(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		active, err := s.ActiveGame(ctx)
		require.NoError(t, err)
		assert.Empty(t, active)

		require.NoError(t, s.SetActiveGame(ctx, "g1"))
		require.NoError(t, s.SetActiveGame(ctx, "g2"))
		require.NoError(t, s.SetModeratorGame(ctx, "sid-a", "g1"))

		active, _ = s.ActiveGame(ctx)
		assert.Equal(t, "g2", active)
		mod, _ := s.ModeratorGame(ctx, "sid-a")
		assert.Equal(t, "g1", mod)
		other, _ := s.ModeratorGame(ctx, "sid-b")
		assert.Empty(t, other)

		require.NoError(t, s.SetActiveGame(ctx, ""))
		active, _ = s.ActiveGame(ctx)
		assert.Empty(t, active)
	})
}

func TestStore_BindRoleFirstWriterWins(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		role, err := s.BindRole(ctx, "g1", "p1", engine.RolePlayer1)
		require.NoError(t, err)
		assert.Equal(t, engine.RolePlayer1, role)

		role, err = s.BindRole(ctx, "g1", "p1", engine.RolePlayer2)
		require.NoError(t, err)
		assert.Equal(t, engine.RolePlayer1, role, "existing binding must not be overwritten")

		role, ok, err := s.Binding(ctx, "g1", "p1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, engine.RolePlayer1, role)

		_, ok, err = s.Binding(ctx, "g2", "p1")
		require.NoError(t, err)
		assert.False(t, ok, "bindings are scoped per game")
	})
}

func TestStore_MarkTokenUsedOnce(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateTokens(ctx, []Token{
			{Token: "tok-a", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		}))

		tok, err := s.Token(ctx, "tok-a")
		require.NoError(t, err)
		assert.False(t, tok.Used())

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.MarkTokenUsed(ctx, "tok-a", "p", now)
				if err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())

		tok, err = s.Token(ctx, "tok-a")
		require.NoError(t, err)
		assert.True(t, tok.Used())
		assert.Equal(t, "p", tok.ParticipantID)

		_, err = s.MarkTokenUsed(ctx, "missing", "p", now)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_EliminateCardIsSetUnion(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		added, err := s.EliminateCard(ctx, "g1", 5, now)
		require.NoError(t, err)
		assert.True(t, added)

		added, err = s.EliminateCard(ctx, "g1", 5, now)
		require.NoError(t, err)
		assert.False(t, added)

		_, err = s.EliminateCard(ctx, "g1", 2, now)
		require.NoError(t, err)

		cards, err := s.EliminatedCards(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, []int{2, 5}, cards)
	})
}

func TestStore_TranscriptKeepsMostRecentOldestFirst(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i, text := range []string{"a", "b", "c", "d"} {
			_, err := s.AppendEvent(ctx, Event{
				GameID: "g1", Role: "player1", Action: ActionChat,
				Text: text, Timestamp: now.Add(time.Duration(i) * time.Second),
			})
			require.NoError(t, err)
		}
		_, err := s.AppendEvent(ctx, Event{GameID: "other", Role: "player1", Action: ActionChat, Text: "x", Timestamp: now})
		require.NoError(t, err)

		events, err := s.Transcript(ctx, "g1", 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "c", events[0].Text)
		assert.Equal(t, "d", events[1].Text)
		assert.Less(t, events[0].ID, events[1].ID)

		all, err := s.Transcript(ctx, "g1", 0)
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})
}

func TestStore_JoinedRolesDistinctInFirstSeenOrder(t *testing.T) {
	backends(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, role := range []string{"moderator", "player2", "moderator", "player1"} {
			_, err := s.AppendEvent(ctx, Event{GameID: "g1", Role: role, Action: ActionJoin, Timestamp: now})
			require.NoError(t, err)
		}
		_, err := s.AppendEvent(ctx, Event{GameID: "g1", Role: "player1", Action: ActionChat, Timestamp: now})
		require.NoError(t, err)

		roles, err := s.JoinedRoles(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, []string{"moderator", "player2", "player1"}, roles)
	})
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "mongo"}, zap.NewNop())
	require.Error(t, err)
}

func TestOpen_SQLGoesThroughZap(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		core, logs := observer.New(zap.DebugLevel)
		opts := Options{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "exposed.db"), Verbose: verbose}
		s, err := Open(context.Background(), opts, zap.New(core))
		require.NoError(t, err)

		_, err = s.Game(context.Background(), "missing")
		require.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, s.Close())

		queries := logs.FilterLoggerName("store.sql").FilterMessage("query")
		if verbose {
			assert.NotZero(t, queries.Len())
			assert.NotEmpty(t, queries.All()[0].ContextMap()["sql"])
		} else {
			assert.Zero(t, queries.Len())
		}
		assert.Zero(t, logs.FilterMessage("query failed").Len(), "record-not-found is not a failure")
	}
}

func TestOpenGorm_ClosesDBWhenMigrationFails(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "exposed.db")), &gorm.Config{Logger: newGormLogger(zap.NewNop(), false)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = openGorm(ctx, db, false)
	require.Error(t, err)
	assert.ErrorContains(t, sqlDB.Ping(), "closed")
}
