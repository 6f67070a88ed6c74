package webhooks

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"evrptw/internal/model"
	"evrptw/internal/store"
)

// Publisher fans run events out to the configured subscriptions through the delivery queue.
type Publisher struct {
	Store store.Store
	Subs  []model.Subscription
	log   zerolog.Logger
}

func NewPublisher(s store.Store, subs []model.Subscription, log zerolog.Logger) *Publisher {
	return &Publisher{Store: s, Subs: subs, log: log.With().Str("component", "webhooks").Logger()}
}

// Matches reports whether sub wants eventType; an empty event list means every event.
func Matches(sub model.Subscription, eventType string) bool {
	return len(sub.Events) == 0 || slices.Contains(sub.Events, eventType) || slices.Contains(sub.Events, "*")
}

// Emit enqueues one delivery per matching subscription and returns how many were queued.
func (p *Publisher) Emit(ctx context.Context, ev model.RunEvent) int {
	payload := map[string]any{
		"id":    "evt_" + uuid.NewString(),
		"type":  ev.Type,
		"runId": ev.RunID,
		"ts":    ev.TS.UTC().Format(time.RFC3339),
		"data":  ev.Data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		p.log.Error().Err(err).Str("event_type", ev.Type).Msg("encode webhook payload")
		return 0
	}
	n := 0
	for _, s := range p.Subs {
		if !Matches(s, ev.Type) {
			continue
		}
		if _, err := p.Store.EnqueueWebhook(ctx, s.ID, ev.Type, s.URL, s.Secret, body); err != nil {
			p.log.Error().Err(err).Str("url", s.URL).Str("event_type", ev.Type).Msg("enqueue webhook")
			continue
		}
		n++
	}
	return n
}
