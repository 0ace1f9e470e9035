package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/exposed-backend/internal/admission"
	"github.com/DoyleJ11/exposed-backend/internal/auth"
	"github.com/DoyleJ11/exposed-backend/internal/binding"
	"github.com/DoyleJ11/exposed-backend/internal/bus"
	"github.com/DoyleJ11/exposed-backend/internal/config"
	"github.com/DoyleJ11/exposed-backend/internal/httpapi"
	"github.com/DoyleJ11/exposed-backend/internal/hub"
	"github.com/DoyleJ11/exposed-backend/internal/relay"
	"github.com/DoyleJ11/exposed-backend/internal/session"
	"github.com/DoyleJ11/exposed-backend/internal/store"
	"github.com/DoyleJ11/exposed-backend/internal/tokens"
	"github.com/DoyleJ11/exposed-backend/internal/transcript"
	"github.com/DoyleJ11/exposed-backend/internal/ws"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server (default).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*envFile)
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			log, err := config.NewLogger(cfg.LogLevel, cfg.LogDev)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	st, err := store.Open(ctx, cfg.StoreOptions(), log)
	if err != nil {
		return err
	}
	defer st.Close()

	// A nil *bus.Publisher must not reach the recorder as a non-nil interface.
	var pub transcript.Publisher
	if cfg.NATSURL != "" {
		nc, err := bus.Connect(cfg.NATSURL, cfg.NATSToken, log)
		if err != nil {
			return err
		}
		defer nc.Drain()
		pub = bus.NewPublisher(nc, cfg.NATSSubject)
		log.Info("publishing transcript events", zap.String("subject", cfg.NATSSubject+".<game_id>"))
	}

	am, err := auth.NewManager(cfg.ModeratorPassword, cfg.SecretKey, cfg.SessionTTL, cfg.SecureCookies, log)
	if err != nil {
		return err
	}

	rec := transcript.NewRecorder(st, pub, log)
	guard := binding.NewGuard(st, log)
	machine := session.NewMachine(st, guard, rec, cfg.BaseURL, log)
	h := hub.NewHub(ctx, log)
	rl := relay.New(h, guard, machine, st, rec, log)
	machine.SetNotifier(rl)

	handler := httpapi.SetupRoutes(httpapi.Deps{
		Sessions:    machine,
		Admission:   admission.NewController(st, machine, log),
		Tokens:      tokens.NewIssuer(st, cfg.BaseURL, cfg.TokenTTL, log),
		Eliminator:  rl,
		Transcripts: rec,
		Guard:       guard,
		Cards:       st,
		Auth:        am,
		WS: ws.Handler(rl, am.SessionID, ws.Options{
			OriginPatterns: originPatterns(cfg.AllowedOrigins),
			IdleTimeout:    cfg.WSIdleTimeout,
		}, log),
		Log:            log,
		RateLimit:      cfg.RateLimit,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Websocket handlers outlive Shutdown; tie them to ctx instead.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		h.Shutdown()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		log.Info("server stopped")
		return nil
	})
	return g.Wait()
}

// originPatterns turns CORS origins into the host patterns the websocket
// upgrader matches against.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if o == "*" {
			out = append(out, "*")
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			out = append(out, o)
			continue
		}
		out = append(out, u.Host)
	}
	return out
}
