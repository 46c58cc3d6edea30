package citation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"bibxml/pkg/models"
)

// Store is the part of the Record Store citation building reads from.
type Store interface {
	Get(ctx context.Context, dataset, ref string) (*models.RefData, error)
	FindByDocID(ctx context.Context, id, doctype string) ([]models.RefData, error)
}

// Builder turns indexed records into normalized bibliographic items.
type Builder struct {
	Store  Store
	Logger *slog.Logger
}

func NewBuilder(store Store, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{Store: store, Logger: logger}
}

// BuildCitationForDocID builds a validated item from every record that
// lists the given docid.
func (b *Builder) BuildCitationForDocID(ctx context.Context, id, doctype string) (*models.BibliographicItem, error) {
	return b.Build(ctx, id, doctype, true)
}

// Build merges all records carrying id (and doctype, when set) into one
// item. The first record in (dataset, ref) order is the base; the rest
// fill in missing fields. With strict unset the result is not validated.
func (b *Builder) Build(ctx context.Context, id, doctype string, strict bool) (*models.BibliographicItem, error) {
	found, err := b.Store.FindByDocID(ctx, id, doctype)
	if err != nil {
		return nil, fmt.Errorf("find by docid %s: %w", id, err)
	}
	if len(found) == 0 {
		if doctype != "" {
			return nil, models.NotFound("no item with docid %s of type %s", id, doctype)
		}
		return nil, models.NotFound("no item with docid %s", id)
	}

	var merged *models.BibliographicItem
	for _, rd := range found {
		item, err := decodeBody(rd)
		if err != nil {
			if strict {
				return nil, err
			}
			b.Logger.Warn("skipping undecodable record", "dataset", rd.Dataset, "ref", rd.Ref, "error", err)
			continue
		}
		if merged == nil {
			merged = item
			merged.Sources = []string{rd.Dataset}
			continue
		}
		mergeItem(merged, item, rd.Dataset)
	}
	if merged == nil {
		return nil, models.NotFound("no decodable item with docid %s", id)
	}

	if strict {
		if err := merged.Validate(); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// GetIndexedItem returns the item stored at (dataset, ref).
func (b *Builder) GetIndexedItem(ctx context.Context, dataset, ref string, strict bool) (*models.BibliographicItem, error) {
	rd, err := b.Store.Get(ctx, dataset, ref)
	if err != nil {
		return nil, fmt.Errorf("get indexed item: %w", err)
	}
	if rd == nil {
		return nil, models.NotFound("ref %s not found in dataset %s", ref, dataset)
	}
	return FromRecord(*rd, strict)
}

// FromRecord decodes one record body, validating it when strict is set.
func FromRecord(rd models.RefData, strict bool) (*models.BibliographicItem, error) {
	item, err := decodeBody(rd)
	if err != nil {
		return nil, err
	}
	item.Sources = []string{rd.Dataset}
	if strict {
		if err := item.Validate(); err != nil {
			return nil, err
		}
	}
	return item, nil
}

func decodeBody(rd models.RefData) (*models.BibliographicItem, error) {
	var item models.BibliographicItem
	if err := json.Unmarshal(rd.Body, &item); err != nil {
		return nil, models.Invalid(err, fmt.Sprintf("record %s/%s is malformed", rd.Dataset, rd.Ref))
	}
	if item.ID == "" {
		item.ID = rd.Ref
	}
	return &item, nil
}

// mergeItem fills base from incoming. Identifiers and keywords are
// unioned; every other field is taken from incoming only when base lacks it.
func mergeItem(base, incoming *models.BibliographicItem, dataset string) {
	for _, d := range incoming.DocID {
		if !base.HasDocID(d.ID, d.Type) {
			base.DocID = append(base.DocID, d)
		}
	}
	if len(base.Title) == 0 {
		base.Title = incoming.Title
	}
	if len(base.Date) == 0 {
		base.Date = incoming.Date
	}
	if len(base.Contributor) == 0 {
		base.Contributor = incoming.Contributor
	}
	if len(base.Abstract) == 0 {
		base.Abstract = incoming.Abstract
	}
	if len(base.Link) == 0 {
		base.Link = incoming.Link
	}
	if len(base.Series) == 0 {
		base.Series = incoming.Series
	}
	if base.DocType == "" {
		base.DocType = incoming.DocType
	}
	base.Keyword = mergeStrings(base.Keyword, incoming.Keyword)
	base.Sources = mergeStrings(base.Sources, []string{dataset})
}

func mergeStrings(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	for _, v := range b {
		missing := true
		for _, x := range out {
			if x == v {
				missing = false
				break
			}
		}
		if missing {
			out = append(out, v)
		}
	}
	return out
}
