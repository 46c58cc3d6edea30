package refs

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibxml/pkg/database"
	"bibxml/pkg/models"
)

const rfc1234Body = `{
	"docid": [
		{"id": "RFC1234", "type": "IETF", "scope": "anchor"},
		{"id": "10.17487/RFC1234", "type": "DOI"}
	],
	"title": [{"content": "Tunneling IPX traffic through IP networks"}],
	"date": [{"type": "published", "value": "1991-06"}]
}`

const draftBody = `{
	"docid": [{"id": "I-D.ietf-foo-bar", "type": "Internet-Draft", "scope": "anchor"}],
	"title": [{"content": "Foo over Bar"}]
}`

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "refs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db))

	repo := NewRepo(db)
	require.NoError(t, repo.Upsert(context.Background(), []models.RefData{
		{Dataset: "RFCs", Ref: "RFC1234", Body: json.RawMessage(rfc1234Body)},
		{Dataset: "internet-drafts", Ref: "draft-ietf-foo-bar", Body: json.RawMessage(draftBody)},
		{Dataset: "misc", Ref: "RFC1234", Body: json.RawMessage(`{"docid":[{"id":"RFC1234","type":"IETF"}],"title":[{"content":"misc copy"}]}`)},
	}))
	return repo
}

func TestRepo_GetLowercasesDataset(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rd, err := repo.Get(ctx, "RFCS", "RFC1234")
	require.NoError(t, err)
	require.NotNil(t, rd)
	assert.Equal(t, "rfcs", rd.Dataset)

	rd, err = repo.Get(ctx, "rfcs", "RFC9999")
	require.NoError(t, err)
	assert.Nil(t, rd)
}

func TestRepo_GetIsDatasetScoped(t *testing.T) {
	repo := newTestRepo(t)

	rd, err := repo.Get(context.Background(), "misc", "RFC1234")
	require.NoError(t, err)
	require.NotNil(t, rd)
	assert.Contains(t, string(rd.Body), "misc copy")
}

func TestRepo_GetByQuery(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rd, err := repo.GetByQuery(ctx, "rfcs", "rfc1234")
	require.NoError(t, err)
	assert.Equal(t, "RFC1234", rd.Ref)

	_, err = repo.GetByQuery(ctx, "NONEXISTING_DATASET", "NONEXISTING_REF")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRepo_FindByDocID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	found, err := repo.FindByDocID(ctx, "RFC1234", "")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "misc", found[0].Dataset)
	assert.Equal(t, "rfcs", found[1].Dataset)

	found, err = repo.FindByDocID(ctx, "10.17487/RFC1234", "doi")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "rfcs", found[0].Dataset)

	found, err = repo.FindByDocID(ctx, "NONEXISTENTID", "NONEXISTENTTYPE")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestRepo_FindByAnchor(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rd, err := repo.FindByAnchor(ctx, "internet-drafts", "I-D.ietf-foo-bar")
	require.NoError(t, err)
	require.NotNil(t, rd)
	assert.Equal(t, "draft-ietf-foo-bar", rd.Ref)

	// misc has the id but not anchor-scoped
	rd, err = repo.FindByAnchor(ctx, "misc", "RFC1234")
	require.NoError(t, err)
	assert.Nil(t, rd)
}

func TestRepo_Match(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	fields := map[string]any{"docid": []any{map[string]any{"id": "RFC1234"}}}

	all, err := repo.Match(ctx, fields, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := repo.Match(ctx, fields, "RFCS")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "rfcs", scoped[0].Dataset)
}

func TestRepo_MatchTopLevelScalars(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, []models.RefData{
		{Dataset: "w3c", Ref: "xml", Body: json.RawMessage(`{"doctype":"rec","obsolete":false,"docid":[{"id":"W3C.xml"}]}`)},
		{Dataset: "w3c", Ref: "html", Body: json.RawMessage(`{"doctype":"rec","obsolete":true,"docid":[{"id":"W3C.html"}]}`)},
		{Dataset: "w3c", Ref: "note", Body: json.RawMessage(`{"doctype":"note","obsolete":false}`)},
		{Dataset: "w3c", Ref: "typed", Body: json.RawMessage(`{"doctype":["rec"],"obsolete":"false"}`)},
	}))

	got, err := repo.Match(ctx, map[string]any{"doctype": "rec"}, "w3c")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "html", got[0].Ref)
	assert.Equal(t, "xml", got[1].Ref)

	got, err = repo.Match(ctx, map[string]any{"doctype": "rec", "obsolete": false}, "w3c")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "xml", got[0].Ref)

	// scalar and nested fields combine
	got, err = repo.Match(ctx, map[string]any{
		"obsolete": true,
		"docid":    []any{map[string]any{"id": "W3C.html"}},
	}, "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "html", got[0].Ref)
}

func TestScalarFilters(t *testing.T) {
	where, args := scalarFilters(map[string]any{
		"b":      true,
		"a":      "x",
		"nested": map[string]any{"k": "v"},
		`we"ird`: "skip",
		"n":      1.0,
	})
	assert.Len(t, where, 2)
	assert.Equal(t, []any{`$."a"`, `$."a"`, "x", `$."b"`, "true"}, args)
}

func TestRepo_ListRefs(t *testing.T) {
	repo := newTestRepo(t)

	refs, err := repo.ListRefs(context.Background(), "rfcs")
	require.NoError(t, err)
	assert.Equal(t, []string{"RFC1234"}, refs)
}

func TestRepo_UpsertRejectsBadBody(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.Upsert(context.Background(), []models.RefData{
		{Dataset: "rfcs", Ref: "RFC1", Body: json.RawMessage(`{not json`)},
	})
	assert.Error(t, err)
}
