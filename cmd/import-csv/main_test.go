package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibxml/internal/xml2rfc"
	"bibxml/pkg/models"
	"bibxml/pkg/utils"
)

type recorder struct {
	maps  []models.ManualPathMap
	refs  []models.RefData
	calls int
}

func (r *recorder) UpsertMany(ctx context.Context, items []models.ManualPathMap) error {
	r.maps = append(r.maps, items...)
	return nil
}

func (r *recorder) Upsert(ctx context.Context, records []models.RefData) error {
	r.calls++
	r.refs = append(r.refs, records...)
	return nil
}

type snapRecorder struct{ snaps []models.Snapshot }

func (r *snapRecorder) Upsert(ctx context.Context, snaps []models.Snapshot) error {
	r.snaps = append(r.snaps, snaps...)
	return nil
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestImportManualMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.csv")
	writeFile(t, path, "xml2rfc_subpath,docid\nbibxml/reference.RFC.1.xml,RFC0001\n,RFC0002\nbibxml3/reference.I-D.x.xml, draft-x \n")

	rec := &recorder{}
	n, err := importManualMap(context.Background(), rec, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "draft-x", rec.maps[1].DocID)
}

func TestImportRefs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refs.jsonl")
	writeFile(t, path, `{"dataset":"rfcs","ref":"RFC1","body":{"title":[]}}

{"dataset":"rfcs","ref":"RFC2","body":{}}
`)
	rec := &recorder{}
	n, err := importRefs(context.Background(), rec, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, "RFC2", rec.refs[1].Ref)

	writeFile(t, path, "{not json}\n")
	_, err = importRefs(context.Background(), rec, path)
	assert.ErrorContains(t, err, "decode line 1")
}

func TestImportSnapshots(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bibxml", "reference.RFC.1.xml"), `<reference anchor="RFC0001"/>`)
	writeFile(t, filepath.Join(dir, "rfcs", "reference.RFC.2.xml"), `<reference anchor="RFC0002"/>`)
	writeFile(t, filepath.Join(dir, "unknown", "reference.X.xml"), `<reference anchor="X"/>`)
	writeFile(t, filepath.Join(dir, "rfcs", "README"), "ignored")

	aliases := xml2rfc.NewAliases(utils.DefaultXml2rfcConfig().Aliases)
	rec := &snapRecorder{}
	n, err := importSnapshots(context.Background(), rec, aliases, dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var subpaths []string
	for _, s := range rec.snaps {
		subpaths = append(subpaths, s.Subpath)
	}
	assert.ElementsMatch(t, []string{"rfcs/reference.RFC.1.xml", "rfcs/reference.RFC.2.xml"}, subpaths)
}
