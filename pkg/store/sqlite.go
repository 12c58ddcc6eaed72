package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/goliatone/go-formbuilder/pkg/model"
)

const sqliteDriver = "sqlite"

// DefaultDatabaseName is the database file used when OpenSQLite receives a
// directory.
const DefaultDatabaseName = "formBuilder_forms.db"

const sqliteDDL = `
CREATE TABLE IF NOT EXISTS forms (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	document    TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS submissions (
	id           TEXT PRIMARY KEY,
	form_id      TEXT NOT NULL REFERENCES forms(id) ON DELETE CASCADE,
	data         TEXT NOT NULL,
	submitted_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS submissions_form_id ON submissions(form_id);
`

type sqliteRepository struct {
	db *sql.DB
}

// OpenSQLite returns a store backed by the sqlite database at path, creating
// the schema when missing. path may name a directory, in which case
// DefaultDatabaseName is used. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string, options ...Option) (*FormStore, error) {
	if path == "" {
		return nil, errors.New("store: sqlite path is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if path != ":memory:" {
		resolved, err := resolvePath(path, DefaultDatabaseName)
		if err != nil {
			return nil, err
		}
		path = resolved
	}

	dsn := path
	pragmas := "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	if strings.Contains(dsn, "?") {
		dsn += "&" + pragmas
	} else {
		dsn += "?" + pragmas
	}
	db, err := sql.Open(sqliteDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises
	// writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode=WAL;")

	return newFormStore(&sqliteRepository{db: db}, options...), nil
}

func (r *sqliteRepository) list(ctx context.Context) ([]model.FormDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT document FROM forms ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("store: list forms: %w", err)
	}
	defer rows.Close()

	forms := make([]model.FormDefinition, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan form: %w", err)
		}
		form, err := decodeForm(raw)
		if err != nil {
			return nil, err
		}
		forms = append(forms, form)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list forms: %w", err)
	}
	return forms, nil
}

func (r *sqliteRepository) get(ctx context.Context, id string) (model.FormDefinition, error) {
	return getForm(ctx, r.db, id)
}

func (r *sqliteRepository) insert(ctx context.Context, form model.FormDefinition) error {
	raw, err := json.Marshal(form)
	if err != nil {
		return fmt.Errorf("store: encode form: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO forms (id, name, description, document, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		form.ID, form.Name, form.Description, string(raw), formatTime(form.CreatedAt), formatTime(form.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert form %q: %w", form.ID, err)
	}
	return nil
}

func (r *sqliteRepository) update(ctx context.Context, id string, fn func(*model.FormDefinition) error) (model.FormDefinition, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.FormDefinition{}, fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	form, err := getForm(ctx, tx, id)
	if err != nil {
		return model.FormDefinition{}, err
	}
	if err := fn(&form); err != nil {
		return model.FormDefinition{}, err
	}
	raw, err := json.Marshal(form)
	if err != nil {
		return model.FormDefinition{}, fmt.Errorf("store: encode form: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE forms SET name = ?, description = ?, document = ?, updated_at = ? WHERE id = ?`,
		form.Name, form.Description, string(raw), formatTime(form.UpdatedAt), id,
	); err != nil {
		return model.FormDefinition{}, fmt.Errorf("store: update form %q: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return model.FormDefinition{}, fmt.Errorf("store: commit: %w", err)
	}
	return form, nil
}

func (r *sqliteRepository) remove(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM forms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete form %q: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(id)
	}
	return nil
}

func (r *sqliteRepository) insertSubmission(ctx context.Context, submission model.Submission) error {
	raw, err := json.Marshal(submission.Data)
	if err != nil {
		return fmt.Errorf("store: encode submission: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO submissions (id, form_id, data, submitted_at) VALUES (?, ?, ?, ?)`,
		submission.ID, submission.FormID, string(raw), formatTime(submission.SubmittedAt),
	)
	if err != nil {
		return fmt.Errorf("store: insert submission: %w", err)
	}
	return nil
}

func (r *sqliteRepository) submissions(ctx context.Context, formID string) ([]model.Submission, error) {
	if _, err := getForm(ctx, r.db, formID); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, data, submitted_at FROM submissions WHERE form_id = ? ORDER BY submitted_at, rowid`, formID)
	if err != nil {
		return nil, fmt.Errorf("store: list submissions: %w", err)
	}
	defer rows.Close()

	var out []model.Submission
	for rows.Next() {
		var (
			id, raw, submittedAt string
		)
		if err := rows.Scan(&id, &raw, &submittedAt); err != nil {
			return nil, fmt.Errorf("store: scan submission: %w", err)
		}
		submission := model.Submission{ID: id, FormID: formID}
		if err := json.Unmarshal([]byte(raw), &submission.Data); err != nil {
			return nil, fmt.Errorf("store: decode submission %q: %w", id, err)
		}
		if submission.SubmittedAt, err = parseTime(submittedAt); err != nil {
			return nil, err
		}
		out = append(out, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list submissions: %w", err)
	}
	return out, nil
}

func (r *sqliteRepository) close() error {
	return r.db.Close()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getForm(ctx context.Context, q queryRower, id string) (model.FormDefinition, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT document FROM forms WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FormDefinition{}, notFound(id)
	}
	if err != nil {
		return model.FormDefinition{}, fmt.Errorf("store: get form %q: %w", id, err)
	}
	return decodeForm(raw)
}

func decodeForm(raw string) (model.FormDefinition, error) {
	var form model.FormDefinition
	if err := json.Unmarshal([]byte(raw), &form); err != nil {
		return model.FormDefinition{}, fmt.Errorf("store: decode form: %w", err)
	}
	return form, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parse time %q: %w", raw, err)
	}
	return t, nil
}
