package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/binding"
	"github.com/DoyleJ11/exposed-backend/internal/hub"
	"github.com/DoyleJ11/exposed-backend/internal/relay"
	"github.com/DoyleJ11/exposed-backend/internal/session"
	"github.com/DoyleJ11/exposed-backend/internal/store"
	"github.com/DoyleJ11/exposed-backend/internal/transcript"
	"github.com/DoyleJ11/exposed-backend/internal/types"
)

func newServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := zap.NewNop()
	st := store.NewMemory()
	guard := binding.NewGuard(st, log)
	rec := transcript.NewRecorder(st, nil, log)
	m := session.NewMachine(st, guard, rec, "http://example.test", log)
	rl := relay.New(hub.NewHub(ctx, log), guard, m, st, rec, log)
	m.SetNotifier(rl)

	sess, err := m.Open(ctx, "sid")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	sid := func(*http.Request) string { return "sid" }
	srv := httptest.NewServer(Handler(rl, sid, Options{}, log))
	t.Cleanup(srv.Close)
	return srv, sess.ID
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.CloseNow() })
	return c
}

func send(t *testing.T, c *websocket.Conn, msg types.ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c, msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read(t *testing.T, c *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var msg types.ServerMessage
	if err := wsjson.Read(ctx, c, &msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestJoinAndChat(t *testing.T) {
	srv, gameID := newServer(t)
	a, b := dial(t, srv), dial(t, srv)

	send(t, a, types.ClientMessage{Type: types.ClientJoin, GameID: gameID, Role: "player1"})
	if got := read(t, a); got.Type != types.ServerJoin || got.Role != "player1" {
		t.Fatalf("expected own join, got %+v", got)
	}

	send(t, b, types.ClientMessage{Type: types.ClientJoin, GameID: gameID, Role: "player2"})
	read(t, b) // live join
	if got := read(t, b); !got.Replay || got.Role != "player1" {
		t.Fatalf("expected player1 replay, got %+v", got)
	}
	read(t, a) // player2 joined

	send(t, a, types.ClientMessage{Type: types.ClientChat, GameID: gameID, Role: "player1", Text: "hello"})
	got := read(t, b)
	if got.Type != types.ServerChat || got.Text != "hello" || got.Role != "player1" {
		t.Fatalf("unexpected chat %+v", got)
	}
}

func TestErrorsAreReportedInline(t *testing.T) {
	srv, gameID := newServer(t)
	c := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := read(t, c); got.Type != types.ServerError || got.Kind != "validation" {
		t.Fatalf("expected validation error, got %+v", got)
	}

	send(t, c, types.ClientMessage{Type: "dance", GameID: gameID})
	if got := read(t, c); got.Type != types.ServerError || !strings.Contains(got.Error, "dance") {
		t.Fatalf("expected unknown type error, got %+v", got)
	}

	send(t, c, types.ClientMessage{Type: types.ClientChat, Role: "player1", Text: "hi"})
	if got := read(t, c); got.Type != types.ServerError || !strings.Contains(got.Error, "game_id") {
		t.Fatalf("expected game_id error, got %+v", got)
	}

	// The connection survives errors.
	send(t, c, types.ClientMessage{Type: types.ClientJoin, GameID: gameID, Role: "moderator"})
	if got := read(t, c); got.Type != types.ServerJoin {
		t.Fatalf("expected join after errors, got %+v", got)
	}
}

func TestRoleSpoofingRejected(t *testing.T) {
	srv, gameID := newServer(t)
	c := dial(t, srv)

	send(t, c, types.ClientMessage{Type: types.ClientJoin, GameID: gameID, Role: "player1", ParticipantID: "p-1"})
	read(t, c)
	send(t, c, types.ClientMessage{Type: types.ClientChat, GameID: gameID, Role: "player2", ParticipantID: "p-1", Text: "x"})
	got := read(t, c)
	if got.Type != types.ServerError || got.Kind != "role_binding" {
		t.Fatalf("expected role_binding error, got %+v", got)
	}
}

func TestVoicePeersAndDisconnect(t *testing.T) {
	srv, gameID := newServer(t)
	a, b := dial(t, srv), dial(t, srv)

	send(t, a, types.ClientMessage{Type: types.ClientVoiceJoin, GameID: gameID, Role: "player1", ClientID: "va"})
	if got := read(t, a); got.Type != types.ServerPeersList || len(got.Peers) != 0 {
		t.Fatalf("expected empty peers list, got %+v", got)
	}

	send(t, b, types.ClientMessage{Type: types.ClientVoiceJoin, GameID: gameID, Role: "player2", ClientID: "vb"})
	got := read(t, b)
	if got.Type != types.ServerPeersList || len(got.Peers) != 1 || got.Peers[0].ClientID != "va" {
		t.Fatalf("expected va in peers list, got %+v", got)
	}
	if got := read(t, a); got.Type != types.ServerNewPeerJoined || got.ClientID != "vb" {
		t.Fatalf("expected new_peer_joined vb, got %+v", got)
	}

	send(t, a, types.ClientMessage{
		Type: types.ClientWebRTCSignal, GameID: gameID, Role: "player1",
		From: "va", To: "vb", Payload: []byte(`{"type":"offer","sdp":"v=0"}`),
	})
	if got := read(t, b); got.Type != types.ServerWebRTCSignal || got.From != "va" {
		t.Fatalf("expected signal from va, got %+v", got)
	}

	a.Close(websocket.StatusNormalClosure, "")
	if got := read(t, b); got.Type != types.ServerPeerLeft || got.ClientID != "va" {
		t.Fatalf("expected peer_left va, got %+v", got)
	}
}
