// Package binding pins a participant to one role per game. The first role
// a participant touches is the only one they can ever use in that game.
package binding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/apperr"
	"github.com/DoyleJ11/exposed-backend/internal/engine"
)

type Store interface {
	BindRole(ctx context.Context, gameID, participantID string, role engine.Role) (engine.Role, error)
	Binding(ctx context.Context, gameID, participantID string) (engine.Role, bool, error)
}

type Outcome string

const (
	Allowed   Outcome = "allowed"
	Forbidden Outcome = "forbidden"
	// Inactive: unbound participant touching a game that is not the
	// caller's current one.
	Inactive Outcome = "inactive"
)

type Verdict struct {
	Outcome   Outcome
	BoundRole engine.Role
	// NewlyBound is set when this check created the binding.
	NewlyBound bool
}

func (v Verdict) Allowed() bool { return v.Outcome == Allowed }

// Err converts a refusal into a role_binding error; nil when allowed.
func (v Verdict) Err() error {
	switch v.Outcome {
	case Forbidden:
		return apperr.New(apperr.KindRoleBinding, "participant is bound to role %s", v.BoundRole)
	case Inactive:
		return apperr.New(apperr.KindRoleBinding, "session is no longer active")
	default:
		return nil
	}
}

type Guard struct {
	store Store
	log   *zap.Logger
}

func NewGuard(st Store, log *zap.Logger) *Guard {
	return &Guard{store: st, log: log.Named("binding")}
}

// Bind is insert-if-absent. It returns the role actually stored.
func (g *Guard) Bind(ctx context.Context, gameID, participantID string, role engine.Role) (engine.Role, error) {
	stored, err := g.store.BindRole(ctx, gameID, participantID, role)
	if err != nil {
		return "", fmt.Errorf("bind %s to %s: %w", participantID, role, err)
	}
	if stored != role {
		g.log.Debug("binding already present",
			zap.String("game_id", gameID),
			zap.String("participant_id", participantID),
			zap.String("requested", string(role)),
			zap.String("bound", string(stored)))
	}
	return stored, nil
}

// Check decides whether participantID may act as required in gameID.
// activeGameID is the caller's notion of the current game: the global
// pointer for players, the moderator's own pointer for the moderator.
func (g *Guard) Check(ctx context.Context, gameID, participantID string, required engine.Role, activeGameID string) (Verdict, error) {
	if participantID == "" {
		return Verdict{Outcome: Allowed}, nil
	}

	bound, ok, err := g.store.Binding(ctx, gameID, participantID)
	if err != nil {
		return Verdict{}, fmt.Errorf("load binding: %w", err)
	}
	if ok {
		if bound == required {
			return Verdict{Outcome: Allowed, BoundRole: bound}, nil
		}
		return Verdict{Outcome: Forbidden, BoundRole: bound}, nil
	}

	if activeGameID == "" || gameID != activeGameID {
		return Verdict{Outcome: Inactive}, nil
	}

	stored, err := g.Bind(ctx, gameID, participantID, required)
	if err != nil {
		return Verdict{}, err
	}
	if stored != required {
		// Lost a race with another first touch.
		return Verdict{Outcome: Forbidden, BoundRole: stored}, nil
	}
	return Verdict{Outcome: Allowed, BoundRole: stored, NewlyBound: true}, nil
}

// Require is Check for callers that treat any refusal as a hard failure.
func (g *Guard) Require(ctx context.Context, gameID, participantID string, required engine.Role, activeGameID string) error {
	v, err := g.Check(ctx, gameID, participantID, required, activeGameID)
	if err != nil {
		return err
	}
	return v.Err()
}
