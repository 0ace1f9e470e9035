package httpapi

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/admission"
	"github.com/DoyleJ11/exposed-backend/internal/apperr"
	"github.com/DoyleJ11/exposed-backend/internal/engine"
	"github.com/DoyleJ11/exposed-backend/internal/relay"
	"github.com/DoyleJ11/exposed-backend/internal/store"
	"github.com/DoyleJ11/exposed-backend/internal/transcript"
)

type joinPageBody struct {
	Status    string     `json:"status"`
	Token     string     `json:"token,omitempty"`
	Valid     bool       `json:"valid"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Notice    string     `json:"notice,omitempty"`
	Kind      string     `json:"kind,omitempty"`
}

// JoinPage checks an invitation without consuming it. Token problems are
// reported inline with a 200 so the page can render them.
func JoinPage(a Admission, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		tok, err := a.ValidateToken(r.Context(), token)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				writeError(w, r, log, err)
				return
			}
			writeJSON(w, http.StatusOK, joinPageBody{
				Status: statusOK,
				Token:  token,
				Notice: apperr.Message(err),
				Kind:   string(apperr.KindOf(err)),
			})
			return
		}
		writeJSON(w, http.StatusOK, joinPageBody{
			Status:    statusOK,
			Token:     token,
			Valid:     true,
			ExpiresAt: &tok.ExpiresAt,
		})
	}
}

func EnterJoin(a Admission, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := readParams(r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		res, err := a.Enter(r.Context(), p.get("token"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Status string `json:"status"`
			admission.EnterResult
		}{statusOK, res})
	}
}

// JoinStatus polls where a participant stands. The status field carries
// the classification (closed, open, ready, in_game).
func JoinStatus(a Admission, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := a.Status(r.Context(), r.URL.Query().Get("participant_id"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func SessionStatus(a Admission, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		res, err := a.SessionStatus(r.Context(), q.Get("game_id"), q.Get("participant_id"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Status string `json:"status"`
			admission.SessionStatus
		}{statusOK, res})
	}
}

// EliminateCard accepts game_id, card_id, role and participant_id as JSON
// or form fields. A missing game_id targets the active game.
func EliminateCard(e Eliminator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := readParams(r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		card, err := p.int("card_id", 0)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		res, err := e.Eliminate(r.Context(), p.get("game_id"), card, p.get("role"), p.get("participant_id"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Status string `json:"status"`
			relay.Elimination
		}{statusOK, res})
	}
}

func Transcript(t Transcripts, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := readParams(r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		gameID := p.get("game_id")
		if gameID == "" {
			writeError(w, r, log, apperr.Validation("game_id is required"))
			return
		}
		limit, err := p.int("limit", transcript.DefaultLimit)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		if limit <= 0 {
			writeError(w, r, log, apperr.Validation("limit must be positive"))
			return
		}
		events, err := t.Transcript(r.Context(), gameID, limit)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Status string        `json:"status"`
			GameID string        `json:"game_id"`
			Events []store.Event `json:"events"`
		}{statusOK, gameID, events})
	}
}

type playerPageBody struct {
	Status        string       `json:"status"`
	Role          engine.Role  `json:"role"`
	GameID        string       `json:"game_id,omitempty"`
	ParticipantID string       `json:"participant_id,omitempty"`
	State         engine.State `json:"state,omitempty"`
	Allowed       bool         `json:"allowed"`
	Notice        string       `json:"notice,omitempty"`
}

// PlayerPage always renders: a participant using the wrong link gets a
// notice instead of an error status.
func PlayerPage(role engine.Role, sessions Sessions, guard Guard, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gameID, participantID := q.Get("game_id"), q.Get("participant_id")
		body := playerPageBody{Status: statusOK, Role: role, GameID: gameID, ParticipantID: participantID}

		active, err := sessions.ActiveFor(r.Context(), role, "")
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		if gameID == "" {
			gameID, body.GameID = active, active
		}
		if gameID == "" {
			body.Notice = "No active session"
			writeJSON(w, http.StatusOK, body)
			return
		}

		sess, err := sessions.Get(r.Context(), gameID)
		if errors.Is(err, apperr.ErrNotFound) {
			body.Notice = "Session not found"
			writeJSON(w, http.StatusOK, body)
			return
		}
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		body.State = sess.State

		verdict, err := guard.Check(r.Context(), gameID, participantID, role, active)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		body.Allowed = verdict.Allowed()
		if !body.Allowed {
			body.Notice = apperr.Message(verdict.Err())
		}
		writeJSON(w, http.StatusOK, body)
	}
}
