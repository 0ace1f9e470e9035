package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/engine"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	writeOK(w)
}

// Index tells clients where to go next.
func Index(a SessionAuth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, struct {
			Status    string `json:"status"`
			Moderator bool   `json:"moderator"`
			Login     string `json:"login,omitempty"`
		}{Status: statusOK, Moderator: a.SessionID(r) != "", Login: "/login"})
	}
}

// Login answers 200 with a notice on a bad password so the login form can
// show it in place.
func Login(a SessionAuth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := readParams(r)
		if err != nil {
			writeJSON(w, http.StatusOK, errorBody{Status: "error", Message: "Invalid password", Kind: "authorization"})
			return
		}
		if _, err := a.Login(w, p["password"]); err != nil {
			writeJSON(w, http.StatusOK, errorBody{Status: "error", Message: "Invalid password", Kind: "authorization"})
			return
		}
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	}
}

func Logout(a SessionAuth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.Logout(w)
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

type dashboardBody struct {
	Status       string            `json:"status"`
	GameID       string            `json:"game_id"`
	State        engine.State      `json:"state"`
	WaitingCount int               `json:"waiting_count"`
	Player1ID    string            `json:"player1_id,omitempty"`
	Player2ID    string            `json:"player2_id,omitempty"`
	ChosenCard   int               `json:"chosen_card,omitempty"`
	Eliminated   []int             `json:"eliminated"`
	URLs         map[string]string `json:"urls,omitempty"`
}

// Dashboard summarises the moderator's current game, or the one named by
// game_id. Anonymous visitors are sent back to the index.
func Dashboard(a SessionAuth, sessions Sessions, cards Cards, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid := a.SessionID(r)
		if sid == "" {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}

		gameID := r.URL.Query().Get("game_id")
		if gameID == "" {
			var err error
			if gameID, err = sessions.Current(r.Context(), sid); err != nil {
				writeError(w, r, log, err)
				return
			}
		}
		if gameID == "" {
			writeJSON(w, http.StatusOK, dashboardBody{Status: statusOK, State: engine.StateClosed, Eliminated: []int{}})
			return
		}

		sess, err := sessions.Get(r.Context(), gameID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		eliminated, err := cards.EliminatedCards(r.Context(), gameID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		if eliminated == nil {
			eliminated = []int{}
		}
		body := dashboardBody{
			Status:       statusOK,
			GameID:       sess.ID,
			State:        sess.State,
			WaitingCount: len(sess.Waiting),
			Player1ID:    sess.Player1ID,
			Player2ID:    sess.Player2ID,
			ChosenCard:   sess.ChosenCard,
			Eliminated:   eliminated,
		}
		if sess.Player1ID != "" && sess.Player2ID != "" {
			body.URLs = sessions.RoleURLs(sess)
		}
		writeJSON(w, http.StatusOK, body)
	}
}
