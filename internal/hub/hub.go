package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/room"
)

type HubMsg interface{ isHubMsg() }

type GetRoom struct {
	GameID string
	Reply  chan *room.Room
}

type EnsureRoom struct {
	GameID string
	Reply  chan *room.Room
}

type CountRooms struct {
	Reply chan int
}

type ShutdownHub struct{}

func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (CountRooms) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// Hub owns one room per game id.
type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetRoom:
				rm := h.rooms[msg.GameID]
				if rm != nil && rm.Stopped() {
					delete(h.rooms, msg.GameID)
					rm = nil
				}
				msg.Reply <- rm // May be nil

			case EnsureRoom:
				if rm := h.rooms[msg.GameID]; rm != nil && !rm.Stopped() {
					msg.Reply <- rm
					break
				}
				rm := room.NewRoom(h.ctx, msg.GameID, h.log)
				h.rooms[msg.GameID] = rm
				msg.Reply <- rm

			case CountRooms:
				msg.Reply <- len(h.rooms)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		rm.Send(room.Shutdown{})
	}
	clear(h.rooms)
	h.cancel()
}

// Ensure returns the room for gameID, creating it on first use. It returns
// nil once the hub or ctx is done.
func (h *Hub) Ensure(ctx context.Context, gameID string) *room.Room {
	return h.ask(ctx, func(reply chan *room.Room) HubMsg { return EnsureRoom{GameID: gameID, Reply: reply} })
}

// Get returns the room for gameID or nil if nobody has joined it.
func (h *Hub) Get(ctx context.Context, gameID string) *room.Room {
	return h.ask(ctx, func(reply chan *room.Room) HubMsg { return GetRoom{GameID: gameID, Reply: reply} })
}

func (h *Hub) ask(ctx context.Context, build func(chan *room.Room) HubMsg) *room.Room {
	reply := make(chan *room.Room, 1)
	select {
	case h.inbox <- build(reply):
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
	select {
	case rm := <-reply:
		return rm
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
}

// Shutdown stops every room and the hub loop.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
}
