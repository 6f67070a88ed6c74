package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"evrptw/internal/apperr"
	"evrptw/internal/model"
)

// dialect covers what differs between the SQL backends: placeholders and column types.
type dialect struct {
	name     string
	numbered bool // $1, $2 ... instead of ?
	blobType string
}

// sqlStore implements Store over database/sql. Times are stored as unix nanoseconds
// so both backends scan them the same way.
type sqlStore struct {
	db *sql.DB
	d  dialect
}

func (s *sqlStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			instance TEXT NOT NULL,
			seed BIGINT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at BIGINT NOT NULL,
			started_at BIGINT,
			finished_at BIGINT,
			report TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS runs_created_idx ON runs (created_at, id)`,
		`CREATE TABLE IF NOT EXISTS weight_snapshots (
			run_id TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			weights TEXT NOT NULL,
			PRIMARY KEY (run_id, iteration)
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id TEXT PRIMARY KEY,
			subscription_id TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT NOT NULL DEFAULT '',
			payload ` + s.d.blobType + ` NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			next_attempt_at BIGINT NOT NULL,
			last_error TEXT NOT NULL DEFAULT '',
			response_code INTEGER NOT NULL DEFAULT 0,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			delivered_at BIGINT,
			dedup_key TEXT NOT NULL,
			UNIQUE (event_type, url, dedup_key)
		)`,
		`CREATE INDEX IF NOT EXISTS webhook_due_idx ON webhook_deliveries (status, next_attempt_at)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return apperr.Wrap(err, apperr.CodeDatabase, s.d.name+" migrate")
		}
	}
	return nil
}

// rebind rewrites ? placeholders for dialects with numbered parameters.
func (s *sqlStore) rebind(q string) string {
	if !s.d.numbered {
		return q
	}
	var b strings.Builder
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (s *sqlStore) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeDatabase, s.d.name+" exec")
	}
	return res, nil
}

func nanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func fromNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func encodeReport(r *model.RunReport) (any, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *sqlStore) CreateRun(ctx context.Context, run model.Run) error {
	report, err := encodeReport(run.Report)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "encode report")
	}
	_, err = s.exec(ctx, `INSERT INTO runs (id, instance, seed, status, error, created_at, started_at, finished_at, report)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Instance, run.Seed, string(run.Status), run.Error, run.CreatedAt.UnixNano(), nanos(run.StartedAt), nanos(run.FinishedAt), report)
	return err
}

func (s *sqlStore) UpdateRun(ctx context.Context, run model.Run) error {
	report, err := encodeReport(run.Report)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "encode report")
	}
	res, err := s.exec(ctx, `UPDATE runs SET status=?, error=?, started_at=?, finished_at=?, report=? WHERE id=?`,
		string(run.Status), run.Error, nanos(run.StartedAt), nanos(run.FinishedAt), report, run.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("run", run.ID)
	}
	return nil
}

const runColumns = `id, instance, seed, status, error, created_at, started_at, finished_at, report`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (model.Run, error) {
	var (
		r                 model.Run
		status            string
		created           int64
		started, finished sql.NullInt64
		report            sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Instance, &r.Seed, &status, &r.Error, &created, &started, &finished, &report); err != nil {
		return model.Run{}, err
	}
	r.Status = model.RunStatus(status)
	r.CreatedAt = time.Unix(0, created).UTC()
	r.StartedAt = fromNanos(started)
	r.FinishedAt = fromNanos(finished)
	if report.Valid && report.String != "" {
		var rep model.RunReport
		if err := json.Unmarshal([]byte(report.String), &rep); err != nil {
			return model.Run{}, err
		}
		r.Report = &rep
	}
	return r, nil
}

func (s *sqlStore) GetRun(ctx context.Context, id string) (model.Run, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+runColumns+` FROM runs WHERE id=?`), id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, apperr.NotFound("run", id)
	}
	if err != nil {
		return model.Run{}, apperr.Wrap(err, apperr.CodeDatabase, s.d.name+" get run")
	}
	return r, nil
}

// ListRuns pages by (created_at, id); the cursor is the last id of the previous page.
func (s *sqlStore) ListRuns(ctx context.Context, status model.RunStatus, cursor string, limit int) ([]model.Run, string, error) {
	limit = clampLimit(limit)
	q := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	args := []any{}
	if status != "" {
		q += ` AND status=?`
		args = append(args, string(status))
	}
	if cursor != "" {
		q += ` AND (created_at, id) > (SELECT created_at, id FROM runs WHERE id=?)`
		args = append(args, cursor)
	}
	q += ` ORDER BY created_at, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, "", apperr.Wrap(err, apperr.CodeDatabase, s.d.name+" list runs")
	}
	defer rows.Close()
	out := []model.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, "", apperr.Wrap(err, apperr.CodeDatabase, s.d.name+" scan run")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", apperr.Wrap(err, apperr.CodeDatabase, s.d.name+" list runs")
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (s *sqlStore) SaveSnapshots(ctx context.Context, runID string, snaps []model.WeightSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeDatabase, s.d.name+" begin")
	}
	defer func() { _ = tx.Rollback() }()
	q := s.rebind(`INSERT INTO weight_snapshots (run_id, iteration, weights) VALUES (?,?,?)`)
	for _, snap := range snaps {
		w, err := json.Marshal(snap.Weights)
		if err != nil {
			return apperr.Wrap(err, apperr.CodeInternal, "encode weights")
		}
		if _, err := tx.ExecContext(ctx, q, runID, snap.Iteration, string(w)); err != nil {
			return apperr.Wrap(err, apperr.CodeDatabase, s.d.name+" save snapshot")
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(err, apperr.CodeDatabase, s.d.name+" commit")
	}
	return nil
}

func (s *sqlStore) ListSnapshots(ctx context.Context, runID string) ([]model.WeightSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT iteration, weights FROM weight_snapshots WHERE run_id=? ORDER BY iteration`), runID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeDatabase, s.d.name+" list snapshots")
	}
	defer rows.Close()
	out := []model.WeightSnapshot{}
	for rows.Next() {
		snap := model.WeightSnapshot{RunID: runID}
		var w string
		if err := rows.Scan(&snap.Iteration, &w); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeDatabase, s.d.name+" scan snapshot")
		}
		if err := json.Unmarshal([]byte(w), &snap.Weights); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "decode weights")
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Webhook deliveries
func (s *sqlStore) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	dk := computeDedupKey(payload)
	_, err := s.exec(ctx, `INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
		VALUES (?,?,?,?,?,?,?,0,?,?)
		ON CONFLICT (event_type, url, dedup_key) DO NOTHING`,
		id, subscriptionID, eventType, url, secret, payload, DeliveryPending, time.Now().UnixNano(), dk)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *sqlStore) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, subscription_id, event_type, url, secret, payload, status, attempts
		FROM webhook_deliveries WHERE status IN (?,?) AND next_attempt_at <= ? ORDER BY next_attempt_at ASC LIMIT ?`),
		DeliveryPending, DeliveryRetry, time.Now().UnixNano(), limit)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeDatabase, s.d.name+" fetch deliveries")
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeDatabase, s.d.name+" scan delivery")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqlStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status=?, delivered_at=?, response_code=?, latency_ms=? WHERE id=?`,
			DeliveryDelivered, time.Now().UnixNano(), responseCode, latencyMs, id)
		return err
	}
	if nextAttemptAt == nil {
		t := time.Now().Add(time.Minute)
		nextAttemptAt = &t
	}
	_, err := s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status=?, last_error=?, next_attempt_at=?, response_code=?, latency_ms=? WHERE id=?`,
		DeliveryRetry, lastError, nextAttemptAt.UnixNano(), responseCode, latencyMs, id)
	return err
}

func (s *sqlStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status=?, last_error=?, response_code=?, latency_ms=? WHERE id=?`,
		DeliveryFailed, lastError, responseCode, latencyMs, id)
	return err
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
