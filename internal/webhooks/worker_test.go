package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evrptw/internal/model"
	"evrptw/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []markRec
	fails []string
}

type markRec struct {
	ID      string
	Success bool
	Code    int
	LastErr string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, markRec{ID: id, Success: success, Code: responseCode, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}

func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, id)
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func newWorker(rs *recordStore, c *http.Client, maxAttempts int) *Worker {
	w := NewWorker(rs, time.Millisecond, 10, zerolog.Nop())
	w.HTTP = c
	w.MaxAttempts = maxAttempts
	return w
}

func TestWorkerDeliversSignedEvent(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotType = r.Header.Get(HeaderEventType)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	pub := NewPublisher(rs, []model.Subscription{
		{ID: "s1", URL: srv.URL, Secret: "secret", Events: []string{model.EventRunCompleted}},
		{ID: "s2", URL: srv.URL + "/failed", Events: []string{model.EventRunFailed}},
	}, zerolog.Nop())
	n := pub.Emit(context.Background(), model.RunEvent{
		Type: model.EventRunCompleted, RunID: "run-1", TS: time.Now(), Data: map[string]any{"bestCost": 812.5},
	})
	require.Equal(t, 1, n)

	newWorker(rs, srv.Client(), 3).processOnce(context.Background())

	assert.Equal(t, model.EventRunCompleted, gotType)
	assert.True(t, VerifyHMAC("secret", gotBody, gotSig))
	var payload map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "run-1", payload["runId"])
	require.Len(t, rs.marks, 1)
	assert.True(t, rs.marks[0].Success)
	assert.Equal(t, http.StatusNoContent, rs.marks[0].Code)
}

func TestWorkerRetriesThenFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "", model.EventRunFailed, srv.URL, "", []byte(`{"id":"evt_2"}`))
	require.NoError(t, err)

	w := newWorker(rs, srv.Client(), 2)
	w.processOnce(context.Background())
	require.Len(t, rs.marks, 1)
	assert.False(t, rs.marks[0].Success)
	assert.Equal(t, "unexpected status 500", rs.marks[0].LastErr)
	assert.Empty(t, rs.fails)

	// the retry is scheduled a second out; the next pass finds nothing due
	w.processOnce(context.Background())
	assert.Len(t, rs.marks, 1)

	past := time.Now().Add(-time.Second)
	require.NoError(t, rs.Memory.MarkWebhookDelivery(context.Background(), id, false, &past, "", 500, 0))
	// attempts is now 2, which reaches the limit on the next failure
	rs.marks = nil
	w.MaxAttempts = 3
	w.processOnce(context.Background())
	assert.Equal(t, []string{id}, rs.fails)
	d, ok := rs.Memory.Delivery(id)
	require.True(t, ok)
	assert.Equal(t, store.DeliveryFailed, d.Status)
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches(model.Subscription{}, model.EventRunFailed))
	assert.True(t, Matches(model.Subscription{Events: []string{"*"}}, model.EventRunFailed))
	assert.False(t, Matches(model.Subscription{Events: []string{model.EventRunCompleted}}, model.EventRunFailed))
}

func TestNextBackoffCaps(t *testing.T) {
	assert.Equal(t, time.Second, nextBackoff(-1))
	assert.Equal(t, 8*time.Second, nextBackoff(3))
	assert.Equal(t, 1024*time.Second, nextBackoff(50))
}

func TestWorkerRunStopsWithContext(t *testing.T) {
	rs := &recordStore{Memory: store.NewMemory()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newWorker(rs, http.DefaultClient, 3).Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
