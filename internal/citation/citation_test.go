package citation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibxml/pkg/models"
)

type memStore struct {
	rows []models.RefData
}

func (m *memStore) Get(ctx context.Context, dataset, ref string) (*models.RefData, error) {
	for _, rd := range m.rows {
		if rd.Dataset == dataset && rd.Ref == ref {
			rd := rd
			return &rd, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindByDocID(ctx context.Context, id, doctype string) ([]models.RefData, error) {
	var out []models.RefData
	for _, rd := range m.rows {
		var item models.BibliographicItem
		if err := json.Unmarshal(rd.Body, &item); err != nil {
			// keep malformed rows reachable by id for the decode tests
			if id == rd.Ref {
				out = append(out, rd)
			}
			continue
		}
		if item.HasDocID(id, doctype) {
			out = append(out, rd)
		}
	}
	return out, nil
}

func newStore() *memStore {
	return &memStore{rows: []models.RefData{
		{Dataset: "misc", Ref: "RFC1234", Body: json.RawMessage(`{
			"docid": [{"id": "RFC1234", "type": "IETF"}],
			"title": [{"content": "Tunneling IPX traffic"}],
			"keyword": ["ipx"]
		}`)},
		{Dataset: "rfcs", Ref: "RFC1234", Body: json.RawMessage(`{
			"docid": [{"id": "RFC1234", "type": "IETF", "scope": "anchor"}, {"id": "10.17487/RFC1234", "type": "DOI"}],
			"title": [{"content": "Tunneling IPX traffic through IP networks"}],
			"date": [{"type": "published", "value": "1991-06"}],
			"keyword": ["ipx", "tunneling"]
		}`)},
		{Dataset: "rfcs", Ref: "RFC4035", Body: json.RawMessage(`{
			"docid": [{"id": "RFC4035", "type": "IETF"}],
			"title": []
		}`)},
		{Dataset: "rfcs", Ref: "BROKEN", Body: json.RawMessage(`{"docid": "not a list"}`)},
	}}
}

func TestBuildCitationForDocID_Merges(t *testing.T) {
	b := NewBuilder(newStore(), nil)

	item, err := b.BuildCitationForDocID(context.Background(), "RFC1234", "IETF")
	require.NoError(t, err)

	assert.Equal(t, "RFC1234", item.ID)
	assert.Equal(t, "Tunneling IPX traffic", item.Title[0].Content)
	assert.Equal(t, []string{"misc", "rfcs"}, item.Sources)
	assert.Equal(t, []string{"ipx", "tunneling"}, item.Keyword)
	assert.Len(t, item.Date, 1)
	assert.True(t, item.HasDocID("10.17487/RFC1234", "DOI"))
}

func TestBuildCitationForDocID_NotFound(t *testing.T) {
	b := NewBuilder(newStore(), nil)

	_, err := b.BuildCitationForDocID(context.Background(), "NONEXISTENTID", "NONEXISTENTTYPE")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, models.KindNotFound, models.KindOf(err))
}

func TestBuildCitationForDocID_Invalid(t *testing.T) {
	b := NewBuilder(newStore(), nil)

	_, err := b.BuildCitationForDocID(context.Background(), "RFC4035", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalid)
}

func TestBuild_NonStrictSkipsValidation(t *testing.T) {
	b := NewBuilder(newStore(), nil)

	item, err := b.Build(context.Background(), "RFC4035", "", false)
	require.NoError(t, err)
	assert.Equal(t, "RFC4035", item.ID)
	assert.Empty(t, item.Title)
}

func TestBuild_MalformedBody(t *testing.T) {
	b := NewBuilder(newStore(), nil)

	_, err := b.Build(context.Background(), "BROKEN", "", true)
	assert.ErrorIs(t, err, models.ErrInvalid)

	_, err = b.Build(context.Background(), "BROKEN", "", false)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetIndexedItem(t *testing.T) {
	b := NewBuilder(newStore(), nil)
	ctx := context.Background()

	item, err := b.GetIndexedItem(ctx, "rfcs", "RFC1234", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"rfcs"}, item.Sources)

	_, err = b.GetIndexedItem(ctx, "rfcs", "RFC4035", true)
	assert.ErrorIs(t, err, models.ErrInvalid)

	item, err = b.GetIndexedItem(ctx, "rfcs", "RFC4035", false)
	require.NoError(t, err)
	assert.Equal(t, "RFC4035", item.ID)

	_, err = b.GetIndexedItem(ctx, "rfcs", "RFC9999", true)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
