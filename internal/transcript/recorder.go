// Package transcript appends events to a game's record and mirrors them
// to an optional publisher.
package transcript

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/store"
)

const DefaultLimit = 200

type Appender interface {
	AppendEvent(ctx context.Context, e store.Event) (store.Event, error)
	Transcript(ctx context.Context, gameID string, limit int) ([]store.Event, error)
}

type Publisher interface {
	Publish(ctx context.Context, e store.Event) error
}

type Recorder struct {
	store Appender
	pub   Publisher
	log   *zap.Logger
	now   func() time.Time
}

// NewRecorder builds a recorder. pub may be nil.
func NewRecorder(st Appender, pub Publisher, log *zap.Logger) *Recorder {
	return &Recorder{store: st, pub: pub, log: log.Named("transcript"), now: time.Now}
}

// Record persists e. A failed publish is logged, never returned: the stored
// row is the record of truth.
func (r *Recorder) Record(ctx context.Context, e store.Event) (store.Event, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now().UTC()
	}
	saved, err := r.store.AppendEvent(ctx, e)
	if err != nil {
		return store.Event{}, fmt.Errorf("append %s event: %w", e.Action, err)
	}
	if r.pub != nil {
		if err := r.pub.Publish(ctx, saved); err != nil {
			r.log.Warn("publish transcript event",
				zap.String("game_id", saved.GameID),
				zap.Int64("event_id", saved.ID),
				zap.Error(err))
		}
	}
	return saved, nil
}

func (r *Recorder) Transcript(ctx context.Context, gameID string, limit int) ([]store.Event, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	events, err := r.store.Transcript(ctx, gameID, limit)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	if events == nil {
		events = []store.Event{}
	}
	return events, nil
}
