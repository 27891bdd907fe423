package delivery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"digestbot/internal/model"
)

// Store persists delivery records.
type Store interface {
	SaveDelivery(ctx context.Context, d *model.Delivery) error
}

// Recorder sends a post once and records it when the send succeeds.
//
// A post that was sent but could not be recorded is kept in memory. The
// next Deliver on the same UTC day retries the record instead of sending
// again; on a later day it records the old post and sends the new one.
type Recorder struct {
	sender Sender
	store  Store
	log    *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending *model.Delivery
}

// NewRecorder creates a Recorder.
func NewRecorder(sender Sender, store Store, log *slog.Logger) *Recorder {
	return &Recorder{sender: sender, store: store, log: log, now: time.Now}
}

// SetClock overrides the clock used for delivery timestamps.
func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
}

// Deliver sends text. A send error is returned as is and nothing is
// recorded.
func (r *Recorder) Deliver(ctx context.Context, text string) (*model.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	if p := r.pending; p != nil {
		if err := r.store.SaveDelivery(ctx, p); err != nil {
			return nil, fmt.Errorf("save unrecorded delivery %s: %w", p.MessageID, err)
		}
		r.pending = nil
		r.log.Info("recorded earlier delivery", "message_id", p.MessageID, "delivery_id", p.ID)
		if sameDay(p.DeliveredAt, now) {
			return p, nil
		}
	}

	id, err := r.sender.Send(ctx, text)
	if err != nil {
		return nil, err
	}

	d := &model.Delivery{
		DeliveredAt: now,
		Content:     text,
		MessageID:   id,
	}
	if err := r.store.SaveDelivery(ctx, d); err != nil {
		r.pending = d
		r.log.Error("post sent but not recorded", "message_id", id, "content_sha256", contentHash(text), "error", err)
		return nil, fmt.Errorf("save delivery: %w", err)
	}
	r.log.Info("delivered post", "message_id", id, "delivery_id", d.ID)
	return d, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}
