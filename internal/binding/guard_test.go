package binding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/apperr"
	"github.com/DoyleJ11/exposed-backend/internal/engine"
	"github.com/DoyleJ11/exposed-backend/internal/store"
)

func newGuard() *Guard {
	return NewGuard(store.NewMemory(), zap.NewNop())
}

func TestCheck(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name        string
		preBind     engine.Role
		participant string
		required    engine.Role
		active      string
		want        Outcome
		wantBound   engine.Role
		wantNew     bool
	}{
		{name: "anonymous", participant: "", required: engine.RolePlayer1, active: "", want: Allowed},
		{name: "bound same role", preBind: engine.RolePlayer1, participant: "p1", required: engine.RolePlayer1, active: "other", want: Allowed, wantBound: engine.RolePlayer1},
		{name: "bound other role", preBind: engine.RolePlayer1, participant: "p1", required: engine.RolePlayer2, active: "g1", want: Forbidden, wantBound: engine.RolePlayer1},
		{name: "unbound in active game binds", participant: "p3", required: engine.RoleModerator, active: "g1", want: Allowed, wantBound: engine.RoleModerator, wantNew: true},
		{name: "unbound in stale game", participant: "p3", required: engine.RolePlayer2, active: "g2", want: Inactive},
		{name: "unbound with no active game", participant: "p3", required: engine.RolePlayer2, active: "", want: Inactive},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newGuard()
			if tc.preBind != "" {
				_, err := g.Bind(ctx, "g1", tc.participant, tc.preBind)
				require.NoError(t, err)
			}

			v, err := g.Check(ctx, "g1", tc.participant, tc.required, tc.active)
			require.NoError(t, err)
			assert.Equal(t, tc.want, v.Outcome)
			assert.Equal(t, tc.wantBound, v.BoundRole)
			assert.Equal(t, tc.wantNew, v.NewlyBound)
		})
	}
}

func TestCheck_LazyBindingSticks(t *testing.T) {
	ctx := context.Background()
	g := newGuard()

	v, err := g.Check(ctx, "g1", "p1", engine.RolePlayer2, "g1")
	require.NoError(t, err)
	require.True(t, v.Allowed())

	v, err = g.Check(ctx, "g1", "p1", engine.RolePlayer1, "g1")
	require.NoError(t, err)
	assert.Equal(t, Forbidden, v.Outcome)
	assert.Equal(t, engine.RolePlayer2, v.BoundRole)
}

func TestBind_NeverOverwrites(t *testing.T) {
	ctx := context.Background()
	g := newGuard()

	role, err := g.Bind(ctx, "g1", "p1", engine.RolePlayer1)
	require.NoError(t, err)
	assert.Equal(t, engine.RolePlayer1, role)

	role, err = g.Bind(ctx, "g1", "p1", engine.RoleModerator)
	require.NoError(t, err)
	assert.Equal(t, engine.RolePlayer1, role)
}

func TestVerdictErr(t *testing.T) {
	err := Verdict{Outcome: Forbidden, BoundRole: engine.RolePlayer1}.Err()
	require.ErrorIs(t, err, apperr.ErrRoleBinding)
	assert.Contains(t, err.Error(), "participant is bound to role player1")

	err = Verdict{Outcome: Inactive}.Err()
	require.ErrorIs(t, err, apperr.ErrRoleBinding)
	assert.Contains(t, err.Error(), "session is no longer active")

	assert.NoError(t, Verdict{Outcome: Allowed}.Err())
}

func TestRequire(t *testing.T) {
	ctx := context.Background()
	g := newGuard()
	_, _ = g.Bind(ctx, "g1", "p1", engine.RolePlayer1)

	require.NoError(t, g.Require(ctx, "g1", "p1", engine.RolePlayer1, ""))
	require.ErrorIs(t, g.Require(ctx, "g1", "p1", engine.RolePlayer2, "g1"), apperr.ErrRoleBinding)
}
