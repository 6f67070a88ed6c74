package store

import (
	"context"
	"time"

	"evrptw/internal/apperr"
	"evrptw/internal/model"
)

// Store is the persistence interface used by the API server and the webhook worker.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.Run) error
	UpdateRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, id string) (model.Run, error)
	ListRuns(ctx context.Context, status model.RunStatus, cursor string, limit int) (items []model.Run, nextCursor string, err error)

	// Operator weight samples
	SaveSnapshots(ctx context.Context, runID string, snaps []model.WeightSnapshot) error
	ListSnapshots(ctx context.Context, runID string) ([]model.WeightSnapshot, error)

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error

	Ping(ctx context.Context) error
	Close() error
}

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return defaultListLimit
	}
	return limit
}

// Open returns the store for driver: memory, postgres or sqlite.
func Open(ctx context.Context, driver, databaseURL, sqlitePath string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "postgres":
		return NewPostgres(ctx, databaseURL)
	case "sqlite":
		return NewSQLite(ctx, sqlitePath)
	default:
		return nil, apperr.InvalidConfig("store.driver", "unknown driver "+driver)
	}
}
