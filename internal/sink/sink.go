// Package sink implements the write-through relational archival store of
// spec.md §6.4: durable Postgres copies of tasks, subtasks, attachments,
// and assignment history, read-through on an attachment cache miss.
// Grounded on the teacher's pkg/database connection/migration wiring
// (NewClient, embedded golang-migrate sources), adapted from the
// teacher's ent-backed driver onto a plain github.com/jackc/pgx/v5
// pool — this module has no generated ORM layer, so the schema is a
// handful of hand-written tables addressed with pgx directly.
package sink

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/coordinator/swarmd/pkg/swarmtypes"
)

//go:embed migrations
var migrationsFS embed.FS

// Sink wraps a pooled Postgres connection for the archival store.
type Sink struct {
	pool *pgxpool.Pool
}

// New connects to dsn, runs pending migrations, and returns a ready Sink.
func New(ctx context.Context, dsn string) (*Sink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sink pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping sink: %w", err)
	}
	if err := runMigrations(dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate sink: %w", err)
	}
	return &Sink{pool: pool}, nil
}

// NewWithPool wraps an already-connected pool, skipping migration —
// used by tests that migrate the schema themselves against a schema-scoped
// connection string.
func NewWithPool(pool *pgxpool.Pool) *Sink {
	return &Sink{pool: pool}
}

// Close releases the underlying connection pool.
func (s *Sink) Close() {
	s.pool.Close()
}

func runMigrations(dsn string) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	defer sourceDriver.Close()

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return fmt.Errorf("build migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// PutTask upserts a task's durable copy.
func (s *Sink) PutTask(ctx context.Context, t swarmtypes.Task) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tasks (id, text, priority, status, labels, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			priority = EXCLUDED.priority,
			status = EXCLUDED.status,
			labels = EXCLUDED.labels,
			updated_at = EXCLUDED.updated_at
	`, t.ID, t.Text, t.Priority, string(t.Status), t.Labels, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put task %s: %w", t.ID, err)
	}
	return nil
}

// PutSubtask upserts a subtask's durable copy.
func (s *Sink) PutSubtask(ctx context.Context, st swarmtypes.Subtask) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subtasks (id, task_id, description, kind, status, priority, external_ref, assigned_instance, output, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (task_id, id) DO UPDATE SET
			description = EXCLUDED.description,
			kind = EXCLUDED.kind,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			external_ref = EXCLUDED.external_ref,
			assigned_instance = EXCLUDED.assigned_instance,
			output = EXCLUDED.output,
			updated_at = EXCLUDED.updated_at
	`, st.ID, st.ParentID, st.Description, string(st.Kind), string(st.Status), st.Priority,
		nullableString(st.ExternalRef), nullableString(st.AssignedTo), nullableString(st.Output),
		st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put subtask %s/%s: %w", st.ParentID, st.ID, err)
	}
	return nil
}

// PutAttachment writes the durable copy of an attachment. This is the
// slow, write-through leg of the attachment write: per spec.md §4.5's
// shared-resource policy, its failure must fail the attachment write as
// a whole, so callers run this before (or within the same logical unit
// as) the in-store write and propagate any error unchanged.
func (s *Sink) PutAttachment(ctx context.Context, att swarmtypes.Attachment) error {
	var valueJSON []byte
	if att.Value != nil {
		raw, err := json.Marshal(att.Value)
		if err != nil {
			return fmt.Errorf("marshal attachment value: %w", err)
		}
		valueJSON = raw
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO attachments (task_id, key, kind, value_json, content, url, bytes, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (task_id, key) DO UPDATE SET
			kind = EXCLUDED.kind,
			value_json = EXCLUDED.value_json,
			content = EXCLUDED.content,
			url = EXCLUDED.url,
			bytes = EXCLUDED.bytes,
			created_at = EXCLUDED.created_at,
			created_by = EXCLUDED.created_by
	`, att.TaskID, att.Key, string(att.Type), valueJSON, nullableString(att.Content),
		nullableString(att.URL), att.Bytes, att.CreatedAt, nullableString(att.CreatedBy))
	if err != nil {
		return fmt.Errorf("put attachment %s/%s: %w", att.TaskID, att.Key, err)
	}
	return nil
}

// GetAttachment reads an attachment back, used as the read-through path
// when the in-store (Redis) copy has been evicted.
func (s *Sink) GetAttachment(ctx context.Context, taskID, key string) (*swarmtypes.Attachment, error) {
	var (
		att       swarmtypes.Attachment
		kind      string
		valueJSON []byte
		content   *string
		url       *string
		createdBy *string
	)

	row := s.pool.QueryRow(ctx, `
		SELECT task_id, key, kind, value_json, content, url, bytes, created_at, created_by
		FROM attachments WHERE task_id = $1 AND key = $2
	`, taskID, key)

	if err := row.Scan(&att.TaskID, &att.Key, &kind, &valueJSON, &content, &url, &att.Bytes, &att.CreatedAt, &createdBy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get attachment %s/%s: %w", taskID, key, err)
	}

	att.Type = swarmtypes.AttachmentType(kind)
	if content != nil {
		att.Content = *content
	}
	if url != nil {
		att.URL = *url
	}
	if createdBy != nil {
		att.CreatedBy = *createdBy
	}
	if len(valueJSON) > 0 {
		var v any
		if err := json.Unmarshal(valueJSON, &v); err != nil {
			return nil, fmt.Errorf("decode attachment value %s/%s: %w", taskID, key, err)
		}
		att.Value = v
	}
	return &att, nil
}

// RecordAssignment appends one assignment-history row, e.g.
// "assigned"/"completed"/"reassigned" events for a subtask.
func (s *Sink) RecordAssignment(ctx context.Context, taskID, subtaskID, instanceID, event string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO assignment_history (task_id, subtask_id, instance_id, event, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, taskID, subtaskID, instanceID, event, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record assignment %s/%s: %w", taskID, subtaskID, err)
	}
	return nil
}

// PersistMethodResult mirrors a registry.MethodConfig{Persist:true}
// method's successful result into the relational store, invoked from
// registry.Registry.OnPersist. Only methods whose result shape carries a
// full domain record are handled; everything else is a silent no-op, the
// same tolerance the teacher's storage layer gives unrecognized event
// kinds in internal/eventbus/bus.go's default switch case.
func (s *Sink) PersistMethodResult(ctx context.Context, method string, result any) error {
	switch method {
	case "task.create", "task.update":
		m, ok := result.(map[string]any)
		if !ok {
			return nil
		}
		switch task := m["task"].(type) {
		case swarmtypes.Task:
			return s.PutTask(ctx, task)
		case *swarmtypes.Task:
			if task != nil {
				return s.PutTask(ctx, *task)
			}
		}
		return nil
	default:
		return nil
	}
}

// ListTables returns the public-schema table names visible to the sink
// connection, backing `system.postgres.tables` operator introspection.
// Grounded on the teacher's information_schema probes in
// internal/storage/dolt/migrations/helpers.go.
func (s *Sink) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// RunReadOnlyQuery executes an operator-submitted query inside a
// read-only transaction, per spec.md §6.5's "introspection, not a general
// SQL gateway" admin-surface scoping, and returns each row as a
// column-name-keyed map.
func (s *Sink) RunReadOnlyQuery(ctx context.Context, sql string, args []any) ([]map[string]any, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin read-only tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	defer rows.Close()

	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("collect rows: %w", err)
	}
	return out, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
