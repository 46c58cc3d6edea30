package refs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"bibxml/pkg/models"
)

// Repo is the Record Store: indexed bibliographic records keyed by
// (dataset, ref). Datasets are compared lowercased.
type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

const selectRefData = `SELECT r.id, r.dataset, r.ref, r.body FROM ref_data r`

func scanRefData(sc interface{ Scan(...any) error }) (models.RefData, error) {
	var (
		rd   models.RefData
		body string
	)
	if err := sc.Scan(&rd.ID, &rd.Dataset, &rd.Ref, &body); err != nil {
		return rd, err
	}
	rd.Body = json.RawMessage(body)
	return rd, nil
}

func (r *Repo) queryRefData(ctx context.Context, query string, args ...any) ([]models.RefData, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ref_data: %w", err)
	}
	defer rows.Close()

	var out []models.RefData
	for rows.Next() {
		rd, err := scanRefData(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ref_data: %w", err)
		}
		out = append(out, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// Get returns the record at (dataset, ref), or nil when absent.
func (r *Repo) Get(ctx context.Context, dataset, ref string) (*models.RefData, error) {
	row := r.DB.QueryRowContext(ctx, selectRefData+`
		WHERE r.dataset = ? AND r.ref = ?
	`, strings.ToLower(dataset), ref)

	rd, err := scanRefData(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get ref %s/%s: %w", dataset, ref, err)
	}
	return &rd, nil
}

// GetByQuery matches ref case-insensitively within dataset and requires
// exactly one hit; zero or several hits are reported as not found.
func (r *Repo) GetByQuery(ctx context.Context, dataset, ref string) (*models.RefData, error) {
	found, err := r.queryRefData(ctx, selectRefData+`
		WHERE r.dataset = ? AND LOWER(r.ref) = LOWER(?)
		LIMIT 2
	`, strings.ToLower(dataset), ref)
	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, models.NotFound("ref %s not found in dataset %s", ref, dataset)
	case 1:
		return &found[0], nil
	default:
		return nil, models.NotFound("ref %s is ambiguous in dataset %s", ref, dataset)
	}
}

// FindByDocID returns every record whose body lists id among its docids,
// restricted to doctype when it is non-empty.
func (r *Repo) FindByDocID(ctx context.Context, id, doctype string) ([]models.RefData, error) {
	return r.queryRefData(ctx, selectRefData+`
		WHERE EXISTS (
			SELECT 1 FROM json_each(r.body, '$.docid') d
			WHERE json_extract(d.value, '$.id') = ?
			  AND (? = '' OR LOWER(json_extract(d.value, '$.type')) = LOWER(?))
		)
		ORDER BY r.dataset, r.ref
	`, id, doctype, doctype)
}

// FindByAnchor returns the record in dataset carrying an anchor-scoped
// docid equal to anchor, or nil.
func (r *Repo) FindByAnchor(ctx context.Context, dataset, anchor string) (*models.RefData, error) {
	found, err := r.queryRefData(ctx, selectRefData+`
		WHERE r.dataset = ? AND EXISTS (
			SELECT 1 FROM json_each(r.body, '$.docid') d
			WHERE json_extract(d.value, '$.id') = ?
			  AND LOWER(json_extract(d.value, '$.scope')) = 'anchor'
		)
		ORDER BY r.ref
		LIMIT 1
	`, strings.ToLower(dataset), anchor)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

// Match returns records whose body contains fields, ordered by ref.
// An empty dataset searches every dataset.
//
// Top-level string and boolean fields are pushed into SQL as json_extract
// equality filters. Everything else is checked in Go against each remaining
// row, so a query made only of nested fields still decodes the whole
// dataset (or table).
func (r *Repo) Match(ctx context.Context, fields map[string]any, dataset string) ([]models.RefData, error) {
	where := []string{"json_valid(r.body)"}
	var args []any
	if dataset != "" {
		where = append(where, "r.dataset = ?")
		args = append(args, strings.ToLower(dataset))
	}
	w, a := scalarFilters(fields)
	where = append(where, w...)
	args = append(args, a...)

	query := selectRefData + " WHERE " + strings.Join(where, " AND ") + " ORDER BY r.ref, r.dataset"
	all, err := r.queryRefData(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	out := make([]models.RefData, 0)
	for _, rd := range all {
		var body any
		if err := json.Unmarshal(rd.Body, &body); err != nil {
			continue
		}
		if Contains(body, fields) {
			out = append(out, rd)
		}
	}
	return out, nil
}

// scalarFilters builds json_extract clauses for the top-level string and
// boolean values of fields. Keys that need escaping in a JSON path are left
// to the Go filter.
func scalarFilters(fields map[string]any) ([]string, []any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		where []string
		args  []any
	)
	for _, k := range keys {
		if k == "" || strings.ContainsAny(k, `"\`) {
			continue
		}
		switch v := fields[k].(type) {
		case string:
			where = append(where, "json_type(r.body, ?) = 'text' AND json_extract(r.body, ?) = ?")
			args = append(args, `$."`+k+`"`, `$."`+k+`"`, v)
		case bool:
			want := "false"
			if v {
				want = "true"
			}
			where = append(where, "json_type(r.body, ?) = ?")
			args = append(args, `$."`+k+`"`, want)
		}
	}
	return where, args
}

func (r *Repo) ListRefs(ctx context.Context, dataset string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT ref FROM ref_data WHERE dataset = ? ORDER BY ref
	`, strings.ToLower(dataset))
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan ref: %w", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// Upsert writes records in a single transaction. Ingestion proper lives
// outside this service; this is used by the import tool and tests.
func (r *Repo) Upsert(ctx context.Context, records []models.RefData) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ref_data (dataset, ref, body)
		VALUES (?, ?, ?)
		ON CONFLICT(dataset, ref) DO UPDATE SET
		  body = excluded.body
	`)
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	for _, rd := range records {
		if rd.Dataset == "" || rd.Ref == "" {
			return fmt.Errorf("upsert ref: dataset and ref required")
		}
		body := rd.Body
		if len(body) == 0 {
			body = json.RawMessage(`{}`)
		}
		if !json.Valid(body) {
			return fmt.Errorf("upsert ref %s/%s: body is not valid JSON", rd.Dataset, rd.Ref)
		}
		if _, err := stmt.ExecContext(ctx, strings.ToLower(rd.Dataset), rd.Ref, string(body)); err != nil {
			return fmt.Errorf("exec upsert for %s/%s: %w", rd.Dataset, rd.Ref, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
