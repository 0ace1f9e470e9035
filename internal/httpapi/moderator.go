package httpapi

import (
	"bytes"
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/apperr"
	"github.com/DoyleJ11/exposed-backend/internal/auth"
	"github.com/DoyleJ11/exposed-backend/internal/engine"
	"github.com/DoyleJ11/exposed-backend/internal/tokens"
)

type sessionBody struct {
	Status       string       `json:"status"`
	GameID       string       `json:"game_id"`
	State        engine.State `json:"state"`
	WaitingCount int          `json:"waiting_count"`
}

// Control runs one lifecycle command against the moderator's current game.
func Control(sessions Sessions, cmd func(Sessions, context.Context, string) (engine.Session, error), log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := cmd(sessions, r.Context(), auth.SessionIDFrom(r.Context()))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionBody{
			Status:       statusOK,
			GameID:       sess.ID,
			State:        sess.State,
			WaitingCount: len(sess.Waiting),
		})
	}
}

func StartGame(sessions Sessions, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := sessions.Start(r.Context(), auth.SessionIDFrom(r.Context()))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Status string            `json:"status"`
			GameID string            `json:"game_id"`
			URLs   map[string]string `json:"urls"`
		}{Status: statusOK, GameID: res.GameID, URLs: res.URLs})
	}
}

// GenerateTokens answers with a CSV download of join links, or with JSON
// when format=json.
func GenerateTokens(t Tokens, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := readParams(r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		count, err := tokens.ParseCount(p.get("count"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		invites, err := t.Generate(r.Context(), count)
		if err != nil {
			writeError(w, r, log, err)
			return
		}

		if p.get("format") == "json" {
			writeJSON(w, http.StatusOK, struct {
				Status  string          `json:"status"`
				Invites []tokens.Invite `json:"invites"`
			}{Status: statusOK, Invites: invites})
			return
		}

		var buf bytes.Buffer
		if err := tokens.WriteCSV(&buf, invites); err != nil {
			writeError(w, r, log, err)
			return
		}
		attachment(w, "text/csv; charset=utf-8", tokens.CSVFilename)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

// TokenQR renders the join link for token as a PNG.
func TokenQR(t Tokens, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := readParams(r)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		token := p.get("token")
		if token == "" {
			writeError(w, r, log, apperr.Validation("token is required"))
			return
		}
		size, err := p.int("size", tokens.QRSize)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		if size < 64 || size > 1024 {
			writeError(w, r, log, apperr.Validation("size must be between 64 and 1024"))
			return
		}
		png, err := tokens.QRCode(t.JoinURL(token), size)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	}
}
