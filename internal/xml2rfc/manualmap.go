package xml2rfc

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"bibxml/pkg/models"
)

// ManualMap is the administrator-curated subpath -> docid override table.
type ManualMap struct {
	DB *sql.DB
}

func NewManualMap(db *sql.DB) *ManualMap {
	return &ManualMap{DB: db}
}

// Get returns the mapping for an exact subpath, or nil.
func (m *ManualMap) Get(ctx context.Context, subpath string) (*models.ManualPathMap, error) {
	row := m.DB.QueryRowContext(ctx, `
		SELECT xml2rfc_subpath, docid, updated_at
		FROM xml2rfc_manual_map
		WHERE xml2rfc_subpath = ?
	`, subpath)

	var it models.ManualPathMap
	var updated time.Time
	if err := row.Scan(&it.Subpath, &it.DocID, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get manual map entry: %w", err)
	}
	it.UpdatedAt = updated
	return &it, nil
}

func (m *ManualMap) Upsert(ctx context.Context, item models.ManualPathMap) error {
	return m.UpsertMany(ctx, []models.ManualPathMap{item})
}

// UpsertMany writes all entries in one transaction.
func (m *ManualMap) UpsertMany(ctx context.Context, items []models.ManualPathMap) error {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO xml2rfc_manual_map (xml2rfc_subpath, docid, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(xml2rfc_subpath) DO UPDATE SET
			docid = excluded.docid,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		subpath := strings.Trim(strings.TrimSpace(it.Subpath), "/")
		docid := strings.TrimSpace(it.DocID)
		if subpath == "" || docid == "" {
			return fmt.Errorf("upsert manual map entry: subpath and docid required")
		}
		if _, err := stmt.ExecContext(ctx, subpath, docid); err != nil {
			return fmt.Errorf("upsert manual map entry %s: %w", subpath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (m *ManualMap) Delete(ctx context.Context, subpath string) (bool, error) {
	res, err := m.DB.ExecContext(ctx, `
		DELETE FROM xml2rfc_manual_map WHERE xml2rfc_subpath = ?
	`, subpath)
	if err != nil {
		return false, fmt.Errorf("delete manual map entry: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// List returns entries whose subpath starts with prefix, ordered by subpath.
func (m *ManualMap) List(ctx context.Context, prefix string) ([]models.ManualPathMap, error) {
	rows, err := m.DB.QueryContext(ctx, `
		SELECT xml2rfc_subpath, docid, updated_at
		FROM xml2rfc_manual_map
		WHERE xml2rfc_subpath LIKE ? ESCAPE '\'
		ORDER BY xml2rfc_subpath
	`, escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("list manual map: %w", err)
	}
	defer rows.Close()

	out := make([]models.ManualPathMap, 0)
	for rows.Next() {
		var it models.ManualPathMap
		var updated time.Time
		if err := rows.Scan(&it.Subpath, &it.DocID, &updated); err != nil {
			return nil, fmt.Errorf("scan manual map row: %w", err)
		}
		it.UpdatedAt = updated
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
