package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"evrptw/internal/metrics"
	"evrptw/internal/store"
)

// Worker polls the delivery queue and POSTs due deliveries with exponential backoff.
type Worker struct {
	Store        store.Store
	HTTP         *http.Client
	MaxAttempts  int
	PollInterval time.Duration
	BatchSize    int
	log          zerolog.Logger
}

func NewWorker(s store.Store, poll time.Duration, batch int, log zerolog.Logger) *Worker {
	if poll <= 0 {
		poll = time.Second
	}
	if batch <= 0 {
		batch = 50
	}
	return &Worker{
		Store:        s,
		HTTP:         &http.Client{Timeout: 5 * time.Second},
		MaxAttempts:  10,
		PollInterval: poll,
		BatchSize:    batch,
		log:          log.With().Str("component", "webhook_worker").Logger(),
	}
}

// Run processes the queue until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOnce(ctx)
		}
	}
}

func (w *Worker) processOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	items, err := w.Store.FetchDueWebhookDeliveries(ctx, w.BatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("fetch due deliveries")
		return
	}
	for _, it := range items {
		w.deliver(ctx, it)
	}
}

func (w *Worker) deliver(ctx context.Context, it store.WebhookDelivery) {
	code, latency, err := w.post(ctx, it)
	success := err == nil && code >= 200 && code < 300
	status := "ok"
	if !success {
		status = "error"
	}
	metrics.WebhookDeliveries.WithLabelValues(it.EventType, status).Inc()
	metrics.WebhookLatency.WithLabelValues(it.EventType, status).Observe(float64(latency))

	lastErr := ""
	if err != nil {
		lastErr = err.Error()
	} else if !success {
		lastErr = "unexpected status " + strconv.Itoa(code)
	}
	if !success && it.Attempts+1 >= w.MaxAttempts {
		w.log.Warn().Str("delivery_id", it.ID).Str("url", it.URL).Int("attempts", it.Attempts+1).Str("error", lastErr).Msg("webhook delivery failed permanently")
		if err := w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency); err != nil {
			w.log.Error().Err(err).Str("delivery_id", it.ID).Msg("fail delivery")
		}
		return
	}
	next := time.Now().Add(nextBackoff(it.Attempts))
	if err := w.Store.MarkWebhookDelivery(ctx, it.ID, success, &next, lastErr, code, latency); err != nil {
		w.log.Error().Err(err).Str("delivery_id", it.ID).Msg("mark delivery")
	}
}

func (w *Worker) post(ctx context.Context, it store.WebhookDelivery) (int, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventType, it.EventType)
	if it.Secret != "" {
		req.Header.Set(HeaderSignature, SignHMAC(it.Secret, it.Payload))
	}
	start := time.Now()
	resp, err := w.HTTP.Do(req)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return 0, latency, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, latency, nil
}

func nextBackoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		attempts = 10
	}
	base := time.Second * time.Duration(1<<attempts)
	if base > time.Hour {
		base = time.Hour
	}
	return base
}
