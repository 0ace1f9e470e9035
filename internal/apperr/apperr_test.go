package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("enter: %w", New(KindTokenUsed, "token has already been used"))

	if !errors.Is(err, ErrTokenUsed) {
		t.Fatalf("expected errors.Is to match ErrTokenUsed, got %v", err)
	}
	if errors.Is(err, ErrTokenExpired) {
		t.Fatalf("did not expect a match on ErrTokenExpired")
	}
	if KindOf(err) != KindTokenUsed {
		t.Fatalf("KindOf: got %q", KindOf(err))
	}
}

func TestStatusAndMessage(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", Validation("card_id is required"), http.StatusBadRequest, "card_id is required"},
		{"state", StateConflict("cannot start game in state OPEN"), http.StatusBadRequest, "cannot start game in state OPEN"},
		{"auth", New(KindAuthorization, "moderator login required"), http.StatusUnauthorized, "moderator login required"},
		{"binding", New(KindRoleBinding, "participant is bound to role player1"), http.StatusForbidden, "participant is bound to role player1"},
		{"missing", New(KindNotFound, "game not found"), http.StatusNotFound, "game not found"},
		{"plain", errors.New("disk on fire"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Status(tc.err); got != tc.status {
				t.Fatalf("Status: got %d, want %d", got, tc.status)
			}
			if got := Message(tc.err); got != tc.msg {
				t.Fatalf("Message: got %q, want %q", got, tc.msg)
			}
		})
	}
}
