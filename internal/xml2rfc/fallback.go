package xml2rfc

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"bibxml/pkg/models"
)

// Snapshots stores previously rendered XML keyed by canonical subpath.
type Snapshots struct {
	DB *sql.DB
}

func NewSnapshots(db *sql.DB) *Snapshots {
	return &Snapshots{DB: db}
}

// Get returns the snapshot at subpath, or nil.
func (s *Snapshots) Get(ctx context.Context, subpath string) (*models.Snapshot, error) {
	var snap models.Snapshot
	err := s.DB.QueryRowContext(ctx, `
		SELECT subpath, xml_repr FROM xml2rfc_items WHERE subpath = ?
	`, subpath).Scan(&snap.Subpath, &snap.XMLRepr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return &snap, nil
}

func (s *Snapshots) Upsert(ctx context.Context, snaps []models.Snapshot) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO xml2rfc_items (subpath, xml_repr)
		VALUES (?, ?)
		ON CONFLICT(subpath) DO UPDATE SET xml_repr = excluded.xml_repr
	`)
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	for _, snap := range snaps {
		if snap.Subpath == "" {
			return fmt.Errorf("upsert snapshot: subpath required")
		}
		if _, err := stmt.ExecContext(ctx, snap.Subpath, snap.XMLRepr); err != nil {
			return fmt.Errorf("upsert snapshot %s: %w", snap.Subpath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// CanonicalSubpath replaces the directory segment of subpath (the one
// before the file name) with its canonical dataset name.
func CanonicalSubpath(aliases *Aliases, subpath string) (string, error) {
	parts := strings.Split(subpath, "/")
	if len(parts) < 2 {
		return "", fmt.Errorf("subpath %q has no directory", subpath)
	}
	requested := parts[len(parts)-2]
	actual, err := aliases.Unalias(requested)
	if err != nil {
		return "", err
	}
	return strings.Replace(subpath, requested, actual, 1), nil
}

var anchorAttr = regexp.MustCompile(`anchor="([^"]*)"`)

// ReplaceAnchor rewrites the first anchor attribute in xmlRepr. It does not
// add a missing attribute and does not parse the document.
func ReplaceAnchor(xmlRepr, anchor string) string {
	loc := anchorAttr.FindStringIndex(xmlRepr)
	if loc == nil {
		return xmlRepr
	}
	return xmlRepr[:loc[0]] + `anchor="` + anchor + `"` + xmlRepr[loc[1]:]
}
