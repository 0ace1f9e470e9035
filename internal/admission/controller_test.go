package admission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/apperr"
	"github.com/DoyleJ11/exposed-backend/internal/binding"
	"github.com/DoyleJ11/exposed-backend/internal/engine"
	"github.com/DoyleJ11/exposed-backend/internal/session"
	"github.com/DoyleJ11/exposed-backend/internal/store"
	"github.com/DoyleJ11/exposed-backend/internal/tokens"
	"github.com/DoyleJ11/exposed-backend/internal/transcript"
)

type fixture struct {
	st     *store.Memory
	m      *session.Machine
	issuer *tokens.Issuer
	c      *Controller
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	log := zap.NewNop()
	st := store.NewMemory()
	m := session.NewMachine(st, binding.NewGuard(st, log), transcript.NewRecorder(st, nil, log), "http://localhost:8080", log)
	return fixture{
		st:     st,
		m:      m,
		issuer: tokens.NewIssuer(st, "http://localhost:8080", 0, log),
		c:      NewController(st, m, log),
	}
}

func (f fixture) tokens(t *testing.T, n int) []string {
	t.Helper()
	invites, err := f.issuer.Generate(context.Background(), n)
	require.NoError(t, err)
	out := make([]string, 0, n)
	for _, inv := range invites {
		out = append(out, inv.Token)
	}
	return out
}

func TestValidateToken_Ordering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	require.NoError(t, f.st.CreateTokens(ctx, []store.Token{
		{Token: "expired-and-used", CreatedAt: past.Add(-time.Hour), ExpiresAt: past},
		{Token: "used", CreatedAt: past, ExpiresAt: time.Now().Add(time.Hour)},
	}))
	_, err := f.st.MarkTokenUsed(ctx, "expired-and-used", "x", past)
	require.NoError(t, err)
	_, err = f.st.MarkTokenUsed(ctx, "used", "x", past)
	require.NoError(t, err)

	cases := []struct {
		token string
		want  error
		text  string
	}{
		{"", apperr.ErrValidation, "token is required"},
		{"nope", apperr.ErrTokenNotFound, "invalid token"},
		{"expired-and-used", apperr.ErrTokenExpired, "token has expired"},
		{"used", apperr.ErrTokenUsed, "token has already been used"},
	}
	for _, tc := range cases {
		_, err := f.c.ValidateToken(ctx, tc.token)
		require.ErrorIs(t, err, tc.want, "token %q", tc.token)
		assert.Contains(t, err.Error(), tc.text)
	}
}

func TestEnter_TokenWorksOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.m.Open(ctx, "sid")
	require.NoError(t, err)
	tok := f.tokens(t, 1)[0]

	res, err := f.c.Enter(ctx, tok)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ParticipantID)
	assert.Equal(t, 1, res.WaitingCount)

	_, err = f.c.Enter(ctx, tok)
	require.ErrorIs(t, err, apperr.ErrTokenUsed)
}

func TestEnter_ConcurrentSameToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.m.Open(ctx, "sid")
	require.NoError(t, err)
	tok := f.tokens(t, 1)[0]

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.c.Enter(ctx, tok); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestEnter_ClosedEntrySpendsToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := f.tokens(t, 1)[0]

	_, err := f.c.Enter(ctx, tok)
	require.ErrorIs(t, err, apperr.ErrSessionClosed)
	assert.Contains(t, err.Error(), "entry is not open")

	stored, err := f.st.Token(ctx, tok)
	require.NoError(t, err)
	assert.True(t, stored.Used())

	_, err = f.m.Open(ctx, "sid")
	require.NoError(t, err)
	_, err = f.c.Enter(ctx, tok)
	require.ErrorIs(t, err, apperr.ErrTokenUsed)
}

func TestEnter_ThirdParticipantIsTurnedAway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.m.Open(ctx, "sid")
	require.NoError(t, err)
	toks := f.tokens(t, 3)

	_, err = f.c.Enter(ctx, toks[0])
	require.NoError(t, err)
	second, err := f.c.Enter(ctx, toks[1])
	require.NoError(t, err)
	assert.Equal(t, engine.StateReady, second.State)
	assert.Equal(t, 2, second.WaitingCount)

	_, err = f.c.Enter(ctx, toks[2])
	require.ErrorIs(t, err, apperr.ErrSessionClosed)
}

func TestStatus_FollowsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.c.Status(ctx, "")
	require.ErrorIs(t, err, apperr.ErrValidation)

	st, err := f.c.Status(ctx, "anyone")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, st.Status)

	_, err = f.m.Open(ctx, "sid")
	require.NoError(t, err)
	toks := f.tokens(t, 2)
	a, err := f.c.Enter(ctx, toks[0])
	require.NoError(t, err)

	st, err = f.c.Status(ctx, a.ParticipantID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, st.Status)
	assert.Equal(t, 1, st.WaitingCount)
	assert.Contains(t, st.Message, "1/2")

	b, err := f.c.Enter(ctx, toks[1])
	require.NoError(t, err)

	st, err = f.c.Status(ctx, b.ParticipantID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, st.Status)
	assert.Equal(t, engine.RolePlayer2, st.Role)

	st, err = f.c.Status(ctx, "stranger")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, st.Status)

	_, err = f.m.Start(ctx, "sid")
	require.NoError(t, err)
	st, err = f.c.Status(ctx, a.ParticipantID)
	require.NoError(t, err)
	assert.Equal(t, StatusInGame, st.Status)
	assert.Equal(t, engine.RolePlayer1, st.Role)
	assert.Equal(t, a.GameID, st.GameID)

	_, err = f.m.Reset(ctx, "sid")
	require.NoError(t, err)
	st, err = f.c.Status(ctx, a.ParticipantID)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, st.Status)
}

func TestSessionStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.c.SessionStatus(ctx, "", "")
	require.ErrorIs(t, err, apperr.ErrValidation)

	sess, err := f.m.Open(ctx, "sid")
	require.NoError(t, err)
	toks := f.tokens(t, 2)
	a, _ := f.c.Enter(ctx, toks[0])
	_, _ = f.c.Enter(ctx, toks[1])

	st, err := f.c.SessionStatus(ctx, sess.ID, a.ParticipantID)
	require.NoError(t, err)
	assert.Equal(t, engine.StateReady, st.State)
	assert.True(t, st.IsPlayer)

	st, err = f.c.SessionStatus(ctx, sess.ID, "stranger")
	require.NoError(t, err)
	assert.False(t, st.IsPlayer)
}
