package hub

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/room"
)

func newHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, zap.NewNop())
}

func TestHub_Ensure_Get_SamePointer(t *testing.T) {
	h := newHub(t)
	reply := make(chan *room.Room, 1)

	h.Inbox() <- EnsureRoom{GameID: "g1", Reply: reply}
	rm1 := <-reply

	h.Inbox() <- GetRoom{GameID: "g1", Reply: reply}
	rm2 := <-reply

	if rm1 == nil || rm2 == nil || rm1 != rm2 {
		t.Fatalf("expected same room pointer")
	}
}

func TestHub_GetUnknownIsNil(t *testing.T) {
	h := newHub(t)

	if rm := h.Get(context.Background(), "nope"); rm != nil {
		t.Fatalf("expected nil room for unknown game")
	}
}

func TestHub_RoomsAreScopedPerGame(t *testing.T) {
	h := newHub(t)
	ctx := context.Background()

	a := h.Ensure(ctx, "g1")
	b := h.Ensure(ctx, "g2")
	if a == nil || b == nil || a == b {
		t.Fatalf("expected two distinct rooms")
	}

	count := make(chan int, 1)
	h.Inbox() <- CountRooms{Reply: count}
	if n := <-count; n != 2 {
		t.Fatalf("want 2 rooms, got %d", n)
	}
}

func TestHub_ShutdownStopsRooms(t *testing.T) {
	h := newHub(t)
	rm := h.Ensure(context.Background(), "g1")

	h.Shutdown()

	select {
	case <-rm.Done():
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("room still running after hub shutdown")
	}
	if got := h.Ensure(context.Background(), "g2"); got != nil {
		t.Fatalf("hub should refuse new rooms after shutdown")
	}
}
