package room

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/types"
)

type Msg interface{ isRoomMsg() }

type Join struct {
	ClientID string
	Role     string
	Outbox   chan types.ServerMessage // where this client wants to receive messages
	// Evict is called when the room gives up on the client (slow outbox or
	// shutdown). Outboxes are never closed by the room: a connection's
	// outbox outlives any single room membership.
	Evict func()
	// Announce goes to every member, the joiner included. A zero Announce
	// subscribes silently.
	Announce types.ServerMessage
	// Replay goes to the joiner only, after Announce.
	Replay []types.ServerMessage
}

func (Join) isRoomMsg() {}

type Leave struct{ ClientID string }

func (Leave) isRoomMsg() {}

type Broadcast struct {
	Msg types.ServerMessage
	// Except skips one member, usually the sender.
	Except string
}

func (Broadcast) isRoomMsg() {}

// VoiceJoin registers PeerID as a voice peer reachable through ClientID's
// outbox. Reply receives every other peer.
type VoiceJoin struct {
	ClientID string
	PeerID   string
	Role     string
	Reply    chan []types.Peer
}

func (VoiceJoin) isRoomMsg() {}

// Signal routes Msg to the connection behind voice peer To. Reply reports
// whether it was handed over.
type Signal struct {
	To    string
	Msg   types.ServerMessage
	Reply chan bool
}

func (Signal) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type View struct {
	NumClients int
	Peers      []types.Peer
}

type member struct {
	role   string
	outbox chan types.ServerMessage
	evict  func()
}

func (m member) kick() {
	if m.evict != nil {
		m.evict()
	}
}

type peer struct {
	clientID string
	role     string
}

type Room struct {
	gameID  string
	inbox   chan Msg
	clients map[string]member
	peers   map[string]peer // keyed by voice peer id
	order   []string        // peer ids in join order
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewRoom(parent context.Context, gameID string, log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		gameID:  gameID,
		inbox:   make(chan Msg, 64),
		clients: make(map[string]member),
		peers:   make(map[string]peer),
		log:     log.Named("room").With(zap.String("game_id", gameID)),
		ctx:     ctx,
		cancel:  cancel,
	}

	go r.loop()
	return r
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.clients[msg.ClientID] = member{role: msg.Role, outbox: msg.Outbox, evict: msg.Evict}
				if msg.Announce.Type != "" {
					r.broadcast(msg.Announce, "")
				}
				for _, replay := range msg.Replay {
					r.sendTo(msg.ClientID, replay)
				}

			case Leave:
				r.remove(msg.ClientID, false)

			case Broadcast:
				r.broadcast(msg.Msg, msg.Except)

			case VoiceJoin:
				r.peers[msg.PeerID] = peer{clientID: msg.ClientID, role: msg.Role}
				if !slices.Contains(r.order, msg.PeerID) {
					r.order = append(r.order, msg.PeerID)
				}
				msg.Reply <- r.peerList(msg.PeerID)
				r.broadcast(types.ServerMessage{
					Type:     types.ServerNewPeerJoined,
					GameID:   r.gameID,
					ClientID: msg.PeerID,
					Role:     msg.Role,
				}, msg.ClientID)

			case Signal:
				p, ok := r.peers[msg.To]
				if !ok {
					msg.Reply <- false
					break
				}
				msg.Reply <- r.sendTo(p.clientID, msg.Msg)

			case GetState:
				// test-only: reflect internal state without data races
				msg.Reply <- View{
					NumClients: len(r.clients),
					Peers:      r.peerList(""),
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) shutdown() {
	for id, m := range r.clients {
		m.kick() // Tell client no more messages
		delete(r.clients, id)
	}
	clear(r.peers)
	r.order = nil
	r.cancel()
}

func (r *Room) broadcast(msg types.ServerMessage, except string) {
	var slow []string
	for id, m := range r.clients {
		if id == except {
			continue
		}
		select {
		case m.outbox <- msg:
			//ok
		default:
			slow = append(slow, id)
		}
	}
	for _, id := range slow {
		r.log.Warn("dropping slow client", zap.String("client_id", id))
		r.remove(id, true)
	}
}

func (r *Room) sendTo(clientID string, msg types.ServerMessage) bool {
	m, ok := r.clients[clientID]
	if !ok {
		return false
	}
	select {
	case m.outbox <- msg:
		return true
	default:
		r.log.Warn("dropping slow client", zap.String("client_id", clientID))
		r.remove(clientID, true)
		return false
	}
}

// remove unsubscribes a client and retires any voice peers it carried,
// telling the rest of the room they are gone.
func (r *Room) remove(clientID string, evict bool) {
	m, ok := r.clients[clientID]
	if !ok {
		return
	}
	delete(r.clients, clientID)
	if evict {
		m.kick()
	}

	var gone []string
	for peerID, p := range r.peers {
		if p.clientID == clientID {
			gone = append(gone, peerID)
		}
	}
	for _, peerID := range gone {
		delete(r.peers, peerID)
		r.order = slices.DeleteFunc(r.order, func(id string) bool { return id == peerID })
	}
	for _, peerID := range gone {
		r.broadcast(types.ServerMessage{Type: types.ServerPeerLeft, GameID: r.gameID, ClientID: peerID}, "")
	}
}

func (r *Room) peerList(except string) []types.Peer {
	out := make([]types.Peer, 0, len(r.order))
	for _, id := range r.order {
		if id == except {
			continue
		}
		out = append(out, types.Peer{ClientID: id, Role: r.peers[id].role})
	}
	return out
}

// Inbox is exposed so tests can drive the room directly.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Send delivers m unless the room has stopped.
func (r *Room) Send(m Msg) bool {
	if r.ctx.Err() != nil {
		return false
	}
	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

func (r *Room) Stopped() bool { return r.ctx.Err() != nil }
