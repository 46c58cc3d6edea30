package sources

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibxml/internal/xml2rfc"
	"bibxml/pkg/models"
)

type memRefs struct {
	byRef    map[string]models.RefData
	byAnchor map[string]models.RefData
	err      error
}

func (m memRefs) GetByQuery(ctx context.Context, dataset, ref string) (*models.RefData, error) {
	if m.err != nil {
		return nil, m.err
	}
	rd, ok := m.byRef[dataset+"/"+ref]
	if !ok {
		return nil, models.NotFound("ref %s not found in dataset %s", ref, dataset)
	}
	return &rd, nil
}

func (m memRefs) FindByAnchor(ctx context.Context, dataset, anchor string) (*models.RefData, error) {
	if m.err != nil {
		return nil, m.err
	}
	rd, ok := m.byAnchor[dataset+"/"+anchor]
	if !ok {
		return nil, nil
	}
	return &rd, nil
}

const validBody = `{"docid":[{"id":"X","type":"T","scope":"anchor"}],"title":[{"content":"Valid"}]}`

func TestRFCRef(t *testing.T) {
	for in, want := range map[string]string{
		"RFC1234":  "RFC1234",
		"RFC.1234": "RFC1234",
		"rfc1234":  "RFC1234",
		"RFC":      "",
		"RFCabc":   "",
		"1234":     "RFC1234",
	} {
		assert.Equal(t, want, RFCRef(in), in)
	}
}

func TestDraftRef(t *testing.T) {
	assert.Equal(t, "draft-ietf-foo-bar", DraftRef("I-D.ietf-foo-bar"))
	assert.Equal(t, "draft-ietf-foo-bar", DraftRef("draft-ietf-foo-bar"))
	assert.Equal(t, "draft-ietf-foo-bar", DraftRef("ietf-foo-bar"))
	assert.Equal(t, "", DraftRef("I-D."))
}

func TestIndexedFetcher(t *testing.T) {
	refs := memRefs{byRef: map[string]models.RefData{
		"rfcs/RFC1234": {Dataset: "rfcs", Ref: "RFC1234", Body: json.RawMessage(validBody)},
		"rfcs/RFC4035": {Dataset: "rfcs", Ref: "RFC4035", Body: json.RawMessage(`{"docid":[],"title":[]}`)},
	}}
	f := NewIndexedFetcher("rfcs_fetcher", "rfcs", RFCRef, refs)
	assert.Equal(t, "rfcs_fetcher", f.Name())
	assert.Equal(t, "rfcs", f.Dataset())

	item, err := f.Resolve(context.Background(), "RFC.1234")
	require.NoError(t, err)
	assert.Equal(t, "Valid", item.Title[0].Content)

	_, err = f.Resolve(context.Background(), "RFC4035")
	assert.ErrorIs(t, err, models.ErrInvalid)

	_, err = f.Resolve(context.Background(), "RFC9999")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.Resolve(context.Background(), "not-an-rfc")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAnchorFetcher(t *testing.T) {
	refs := memRefs{byAnchor: map[string]models.RefData{
		"ieee/IEEE.802-3.2018": {Dataset: "ieee", Ref: "IEEE 802.3-2018", Body: json.RawMessage(validBody)},
	}}
	f := NewAnchorFetcher("ieee_fetcher", "ieee", refs)

	item, err := f.Resolve(context.Background(), "IEEE.802-3.2018")
	require.NoError(t, err)
	assert.Equal(t, []string{"ieee"}, item.Sources)

	_, err = f.Resolve(context.Background(), "IEEE.nope")
	assert.ErrorIs(t, err, models.ErrNotFound)

	broken := NewAnchorFetcher("ieee_fetcher", "ieee", memRefs{err: errors.New("disk gone")})
	_, err = broken.Resolve(context.Background(), "IEEE.802-3.2018")
	require.Error(t, err)
	assert.Equal(t, models.KindNotFound, models.KindOf(err))
}

func TestDefaultFetchers(t *testing.T) {
	reg, err := xml2rfc.NewRegistry(DefaultFetchers(memRefs{}, nil)...)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"rfcs", "misc", "internet-drafts", "w3c", "3gpp", "ieee", "iana", "rfcsubseries", "nist",
	}, reg.Datasets())

	reg, err = xml2rfc.NewRegistry(DefaultFetchers(memRefs{}, NewDOIFetcher("", nil, nil))...)
	require.NoError(t, err)
	f, ok := reg.Get("doi")
	require.True(t, ok)
	assert.Equal(t, "doi_fetcher", f.Name())
}
