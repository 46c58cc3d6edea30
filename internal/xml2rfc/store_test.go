package xml2rfc

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibxml/pkg/database"
	"bibxml/pkg/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "xml2rfc.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func TestManualMap_CRUD(t *testing.T) {
	m := NewManualMap(openTestDB(t))
	ctx := context.Background()

	got, err := m.Get(ctx, "bibxml/reference.RFC1.xml")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, m.UpsertMany(ctx, []models.ManualPathMap{
		{Subpath: "bibxml/reference.RFC1.xml", DocID: "RFC1"},
		{Subpath: "/bibxml3/reference.I-D.foo.xml/", DocID: "I-D.foo"},
		{Subpath: "bibxml_x/reference.Y.xml", DocID: "Y"},
	}))

	got, err = m.Get(ctx, "bibxml/reference.RFC1.xml")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "RFC1", got.DocID)
	assert.False(t, got.UpdatedAt.IsZero())

	require.NoError(t, m.Upsert(ctx, models.ManualPathMap{Subpath: "bibxml/reference.RFC1.xml", DocID: "RFC2"}))
	got, err = m.Get(ctx, "bibxml/reference.RFC1.xml")
	require.NoError(t, err)
	assert.Equal(t, "RFC2", got.DocID)

	all, err := m.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// "_" in the prefix is literal, not a LIKE wildcard
	scoped, err := m.List(ctx, "bibxml_")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "bibxml_x/reference.Y.xml", scoped[0].Subpath)

	ok, err := m.Delete(ctx, "bibxml3/reference.I-D.foo.xml")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Delete(ctx, "bibxml3/reference.I-D.foo.xml")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManualMap_RejectsEmpty(t *testing.T) {
	m := NewManualMap(openTestDB(t))
	err := m.Upsert(context.Background(), models.ManualPathMap{Subpath: "bibxml/reference.RFC1.xml"})
	assert.Error(t, err)
}

func TestSnapshots(t *testing.T) {
	s := NewSnapshots(openTestDB(t))
	ctx := context.Background()

	got, err := s.Get(ctx, "rfcs/reference.RFC1.xml")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Upsert(ctx, []models.Snapshot{
		{Subpath: "rfcs/reference.RFC1.xml", XMLRepr: `<reference anchor="RFC1"/>`},
	}))
	require.NoError(t, s.Upsert(ctx, []models.Snapshot{
		{Subpath: "rfcs/reference.RFC1.xml", XMLRepr: `<reference anchor="RFC0001"/>`},
	}))

	got, err = s.Get(ctx, "rfcs/reference.RFC1.xml")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, `<reference anchor="RFC0001"/>`, got.XMLRepr)
}
