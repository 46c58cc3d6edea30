// Package sources holds the fetchers registered for each xml2rfc
// directory. Every fetcher maps an anchor to a bibliographic item and
// reports failures as tagged not-found or validation errors.
package sources

import (
	"context"
	"fmt"
	"strings"

	"bibxml/internal/citation"
	"bibxml/internal/xml2rfc"
	"bibxml/pkg/models"
)

// RefStore is the Record Store surface the indexed fetchers need.
type RefStore interface {
	GetByQuery(ctx context.Context, dataset, ref string) (*models.RefData, error)
	FindByAnchor(ctx context.Context, dataset, anchor string) (*models.RefData, error)
}

// IndexedFetcher resolves an anchor by turning it into a ref within one
// dataset of the Record Store.
type IndexedFetcher struct {
	name    string
	dataset string
	toRef   func(anchor string) string
	store   RefStore
}

func NewIndexedFetcher(name, dataset string, toRef func(string) string, store RefStore) *IndexedFetcher {
	if toRef == nil {
		toRef = func(a string) string { return a }
	}
	return &IndexedFetcher{name: name, dataset: dataset, toRef: toRef, store: store}
}

func (f *IndexedFetcher) Name() string    { return f.name }
func (f *IndexedFetcher) Dataset() string { return f.dataset }

func (f *IndexedFetcher) Resolve(ctx context.Context, anchor string) (*models.BibliographicItem, error) {
	ref := f.toRef(anchor)
	if ref == "" {
		return nil, models.NotFound("anchor %q does not name a %s ref", anchor, f.dataset)
	}
	rd, err := f.store.GetByQuery(ctx, f.dataset, ref)
	if err != nil {
		return nil, err
	}
	return citation.FromRecord(*rd, true)
}

// AnchorFetcher resolves an anchor through the anchor-scoped docid of a
// record in its dataset.
type AnchorFetcher struct {
	name    string
	dataset string
	store   RefStore
}

func NewAnchorFetcher(name, dataset string, store RefStore) *AnchorFetcher {
	return &AnchorFetcher{name: name, dataset: dataset, store: store}
}

func (f *AnchorFetcher) Name() string    { return f.name }
func (f *AnchorFetcher) Dataset() string { return f.dataset }

func (f *AnchorFetcher) Resolve(ctx context.Context, anchor string) (*models.BibliographicItem, error) {
	rd, err := f.store.FindByAnchor(ctx, f.dataset, anchor)
	if err != nil {
		return nil, fmt.Errorf("%s: find by anchor: %w", f.name, err)
	}
	if rd == nil {
		return nil, models.NotFound("no %s item with anchor %s", f.dataset, anchor)
	}
	return citation.FromRecord(*rd, true)
}

// DefaultFetchers lists one fetcher per canonical dataset, in the order
// their compat routes are registered. doi may be nil, in which case the
// doi directory is not served.
func DefaultFetchers(store RefStore, doi *DOIFetcher) []xml2rfc.Fetcher {
	fetchers := []xml2rfc.Fetcher{
		NewIndexedFetcher("rfcs_fetcher", "rfcs", RFCRef, store),
		NewIndexedFetcher("misc_fetcher", "misc", nil, store),
		NewIndexedFetcher("internet_drafts_fetcher", "internet-drafts", DraftRef, store),
		NewIndexedFetcher("w3c_fetcher", "w3c", trimPrefixFold("W3C."), store),
		NewAnchorFetcher("threegpp_fetcher", "3gpp", store),
		NewAnchorFetcher("ieee_fetcher", "ieee", store),
		NewAnchorFetcher("iana_fetcher", "iana", store),
		NewAnchorFetcher("rfcsubseries_fetcher", "rfcsubseries", store),
		NewAnchorFetcher("nist_fetcher", "nist", store),
	}
	if doi != nil {
		fetchers = append(fetchers, doi)
	}
	return fetchers
}

// RFCRef normalizes "RFC1234", "RFC.1234" and "rfc1234" to "RFC1234".
func RFCRef(anchor string) string {
	num := strings.TrimPrefix(strings.ToUpper(anchor), "RFC")
	num = strings.TrimPrefix(num, ".")
	if num == "" {
		return ""
	}
	for _, r := range num {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return "RFC" + num
}

// DraftRef maps "I-D.ietf-foo-bar" and "draft-ietf-foo-bar" to the
// draft-prefixed ref.
func DraftRef(anchor string) string {
	name := anchor
	for _, p := range []string{"I-D.", "draft-"} {
		if len(name) >= len(p) && strings.EqualFold(name[:len(p)], p) {
			name = name[len(p):]
			break
		}
	}
	if name == "" {
		return ""
	}
	return "draft-" + name
}

func trimPrefixFold(prefix string) func(string) string {
	return func(anchor string) string {
		if len(anchor) >= len(prefix) && strings.EqualFold(anchor[:len(prefix)], prefix) {
			return anchor[len(prefix):]
		}
		return anchor
	}
}
