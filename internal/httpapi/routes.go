package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/admission"
	"github.com/DoyleJ11/exposed-backend/internal/binding"
	"github.com/DoyleJ11/exposed-backend/internal/engine"
	"github.com/DoyleJ11/exposed-backend/internal/relay"
	"github.com/DoyleJ11/exposed-backend/internal/session"
	"github.com/DoyleJ11/exposed-backend/internal/store"
	"github.com/DoyleJ11/exposed-backend/internal/tokens"
)

type Sessions interface {
	Current(ctx context.Context, sid string) (string, error)
	ActiveFor(ctx context.Context, role engine.Role, sid string) (string, error)
	Get(ctx context.Context, gameID string) (engine.Session, error)
	Open(ctx context.Context, sid string) (engine.Session, error)
	Close(ctx context.Context, sid string) (engine.Session, error)
	Start(ctx context.Context, sid string) (session.StartResult, error)
	End(ctx context.Context, sid string) (engine.Session, error)
	Reset(ctx context.Context, sid string) (engine.Session, error)
	RoleURLs(s engine.Session) map[string]string
}

type Admission interface {
	ValidateToken(ctx context.Context, token string) (store.Token, error)
	Enter(ctx context.Context, token string) (admission.EnterResult, error)
	Status(ctx context.Context, participantID string) (admission.StatusResult, error)
	SessionStatus(ctx context.Context, gameID, participantID string) (admission.SessionStatus, error)
}

type Tokens interface {
	Generate(ctx context.Context, count int) ([]tokens.Invite, error)
	JoinURL(token string) string
}

type Eliminator interface {
	Eliminate(ctx context.Context, gameID string, card int, role, participantID string) (relay.Elimination, error)
}

type Transcripts interface {
	Transcript(ctx context.Context, gameID string, limit int) ([]store.Event, error)
}

type Guard interface {
	Check(ctx context.Context, gameID, participantID string, required engine.Role, activeGameID string) (binding.Verdict, error)
}

type Cards interface {
	EliminatedCards(ctx context.Context, gameID string) ([]int, error)
}

type SessionAuth interface {
	SessionID(r *http.Request) string
	Login(w http.ResponseWriter, password string) (string, error)
	Logout(w http.ResponseWriter)
}

type Deps struct {
	Sessions    Sessions
	Admission   Admission
	Tokens      Tokens
	Eliminator  Eliminator
	Transcripts Transcripts
	Guard       Guard
	Cards       Cards
	Auth        SessionAuth
	// WS serves /ws. Nil leaves the route out.
	WS http.Handler

	Log            *zap.Logger
	RateLimit      int
	AllowedOrigins []string
}

func SetupRoutes(d Deps) http.Handler {
	log := d.Log.Named("http")
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	if len(d.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   d.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	if d.RateLimit > 0 {
		r.Use(httprate.LimitByIP(d.RateLimit, time.Minute))
	}

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/", Index(d.Auth))
	r.Post("/login", Login(d.Auth))
	r.Post("/logout", Logout(d.Auth))
	r.Get("/dashboard", Dashboard(d.Auth, d.Sessions, d.Cards, log))

	r.Get("/join", JoinPage(d.Admission, log))
	r.Post("/join/enter", EnterJoin(d.Admission, log))
	r.Get("/join/status", JoinStatus(d.Admission, log))
	r.Get("/session/status", SessionStatus(d.Admission, log))
	r.Post("/eliminate_card", EliminateCard(d.Eliminator, log))
	r.Get("/transcript", Transcript(d.Transcripts, log))
	r.Get("/player1", PlayerPage(engine.RolePlayer1, d.Sessions, d.Guard, log))
	r.Get("/player2", PlayerPage(engine.RolePlayer2, d.Sessions, d.Guard, log))
	if d.WS != nil {
		r.Get("/ws", d.WS.ServeHTTP)
	}

	// Moderator routes
	r.Route("/moderator", func(r chi.Router) {
		r.Use(requireModerator(d.Auth, log))
		r.Use(middleware.Timeout(30 * time.Second))

		r.Post("/control/open", Control(d.Sessions, Sessions.Open, log))
		r.Post("/control/close", Control(d.Sessions, Sessions.Close, log))
		r.Post("/control/start", StartGame(d.Sessions, log))
		r.Post("/control/end", Control(d.Sessions, Sessions.End, log))
		r.Post("/control/reset", Control(d.Sessions, Sessions.Reset, log))
		r.Post("/tokens/generate", GenerateTokens(d.Tokens, log))
		r.Get("/tokens/qr", TokenQR(d.Tokens, log))
	})
	return r
}
