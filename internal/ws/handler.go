package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/apperr"
	"github.com/DoyleJ11/exposed-backend/internal/relay"
	"github.com/DoyleJ11/exposed-backend/internal/types"
)

type Relay interface {
	Join(ctx context.Context, c *relay.Client, gameID, role, participantID string) error
	Chat(ctx context.Context, c *relay.Client, gameID, role, participantID, text string) error
	VoiceJoin(ctx context.Context, c *relay.Client, gameID, role, participantID, clientID string) ([]types.Peer, error)
	Signal(ctx context.Context, c *relay.Client, gameID, role, participantID, from, to string, payload json.RawMessage) error
	Leave(c *relay.Client)
}

type Options struct {
	// OriginPatterns are passed to websocket.Accept; empty means same-origin only.
	OriginPatterns []string
	OutboxSize     int
	// IdleTimeout closes connections that send nothing for this long. Zero disables it.
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.OutboxSize <= 0 {
		o.OutboxSize = 32
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	return o
}

// Handler upgrades the request and pumps messages between the socket and
// the relay. sessionID resolves the moderator session behind the request,
// if any.
func Handler(rl Relay, sessionID func(*http.Request) string, opts Options, log *zap.Logger) http.HandlerFunc {
	opts = opts.withDefaults()
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// Cancelling ctx tears the connection down. The room calls evict when
		// this client cannot keep up.
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan types.ServerMessage, opts.OutboxSize)
		client := relay.NewClient(sessionID(r), out, cancel)
		defer rl.Leave(client)

		clog := log.With(zap.String("client_id", client.ID))
		clog.Debug("connection opened")

		// Writer goroutine
		go func() {
			defer cancel()
			for {
				select {
				case msg := <-out:
					wctx, wcancel := context.WithTimeout(ctx, opts.WriteTimeout)
					err := wsjson.Write(wctx, conn, msg)
					wcancel()
					if err != nil {
						clog.Debug("write failed", zap.Error(err))
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		// Reader loop
		for {
			rctx, rcancel := ctx, context.CancelFunc(func() {})
			if opts.IdleTimeout > 0 {
				rctx, rcancel = context.WithTimeout(ctx, opts.IdleTimeout)
			}
			_, data, err := conn.Read(rctx)
			rcancel()
			if err != nil {
				switch {
				case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
					websocket.CloseStatus(err) == websocket.StatusGoingAway:
					clog.Debug("connection closed by client")
				case ctx.Err() != nil && r.Context().Err() == nil:
					clog.Warn("connection evicted")
				default:
					clog.Debug("read failed", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				deliver(ctx, out, errorMessage(apperr.Validation("bad json")))
				continue
			}
			if err := dispatch(ctx, rl, client, out, cm); err != nil {
				if apperr.KindOf(err) == apperr.KindInternal {
					clog.Error("message failed", zap.String("type", cm.Type), zap.Error(err))
				}
				deliver(ctx, out, errorMessage(err))
			}
		}
	}
}

func dispatch(ctx context.Context, rl Relay, c *relay.Client, out chan<- types.ServerMessage, m types.ClientMessage) error {
	switch m.Type {
	case types.ClientJoin:
		return rl.Join(ctx, c, m.GameID, m.Role, m.ParticipantID)
	case types.ClientChat:
		return rl.Chat(ctx, c, m.GameID, m.Role, m.ParticipantID, m.Text)
	case types.ClientVoiceJoin:
		peers, err := rl.VoiceJoin(ctx, c, m.GameID, m.Role, m.ParticipantID, m.ClientID)
		if err != nil {
			return err
		}
		deliver(ctx, out, types.ServerMessage{Type: types.ServerPeersList, GameID: m.GameID, Peers: peers})
		return nil
	case types.ClientWebRTCSignal:
		return rl.Signal(ctx, c, m.GameID, m.Role, m.ParticipantID, m.From, m.To, m.Payload)
	default:
		return apperr.Validation("unknown message type %q", m.Type)
	}
}

// deliver queues a reply behind anything the room already sent.
func deliver(ctx context.Context, out chan<- types.ServerMessage, msg types.ServerMessage) {
	select {
	case out <- msg:
	case <-ctx.Done():
	}
}

func errorMessage(err error) types.ServerMessage {
	if errors.Is(err, relay.ErrStopped) {
		return types.ServerMessage{Type: types.ServerError, Error: "server is shutting down", Kind: string(apperr.KindInternal)}
	}
	return types.ServerMessage{Type: types.ServerError, Error: apperr.Message(err), Kind: string(apperr.KindOf(err))}
}
