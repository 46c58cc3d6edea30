package models

import (
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// DocID is one identifier of a bibliographic item. Scope "anchor" marks
// the identifier used as the xml2rfc anchor.
type DocID struct {
	ID      string `json:"id" validate:"required"`
	Type    string `json:"type" validate:"required"`
	Scope   string `json:"scope,omitempty"`
	Primary bool   `json:"primary,omitempty"`
}

type Title struct {
	Content  string `json:"content" validate:"required"`
	Type     string `json:"type,omitempty"`
	Language string `json:"language,omitempty"`
}

type BibDate struct {
	Type  string `json:"type" validate:"required"`
	Value string `json:"value" validate:"required"`
}

type Contributor struct {
	Role         string `json:"role,omitempty"`
	Name         string `json:"name,omitempty"`
	Initials     string `json:"initials,omitempty"`
	Surname      string `json:"surname,omitempty"`
	Organization string `json:"organization,omitempty"`
}

type Link struct {
	Type    string `json:"type,omitempty"`
	Content string `json:"content" validate:"required"`
}

type Series struct {
	Title  string `json:"title" validate:"required"`
	Number string `json:"number,omitempty"`
}

// BibliographicItem is the normalized citation record built from an
// indexed body or an external source. Values are constructed per request
// and never written back.
type BibliographicItem struct {
	ID          string        `json:"id,omitempty"`
	DocID       []DocID       `json:"docid" validate:"required,min=1,dive"`
	Title       []Title       `json:"title" validate:"required,min=1,dive"`
	Date        []BibDate     `json:"date,omitempty" validate:"omitempty,dive"`
	Contributor []Contributor `json:"contributor,omitempty"`
	Abstract    []string      `json:"abstract,omitempty"`
	Link        []Link        `json:"link,omitempty" validate:"omitempty,dive"`
	Series      []Series      `json:"series,omitempty" validate:"omitempty,dive"`
	DocType     string        `json:"doctype,omitempty"`
	Keyword     []string      `json:"keyword,omitempty"`
	Sources     []string      `json:"sources,omitempty"`
}

var (
	itemValidateOnce sync.Once
	itemValidate     *validator.Validate
)

func itemValidator() *validator.Validate {
	itemValidateOnce.Do(func() {
		itemValidate = validator.New(validator.WithRequiredStructEnabled())
	})
	return itemValidate
}

// Validate checks the item against its schema and returns a ResolveError of
// kind KindInvalid describing the first failing fields.
func (b *BibliographicItem) Validate() error {
	if b == nil {
		return Invalid(nil, "empty item")
	}
	if err := itemValidator().Struct(b); err != nil {
		return Invalid(err, "item failed validation")
	}
	return nil
}

// AnchorDocID returns the identifier scoped as "anchor", if any.
func (b *BibliographicItem) AnchorDocID() (DocID, bool) {
	for _, d := range b.DocID {
		if strings.EqualFold(d.Scope, "anchor") {
			return d, true
		}
	}
	return DocID{}, false
}

// PrimaryDocID returns the primary identifier, falling back to the first one.
func (b *BibliographicItem) PrimaryDocID() (DocID, bool) {
	if len(b.DocID) == 0 {
		return DocID{}, false
	}
	for _, d := range b.DocID {
		if d.Primary {
			return d, true
		}
	}
	return b.DocID[0], true
}

// HasDocID reports whether the item carries id (and doctype, when non-empty).
func (b *BibliographicItem) HasDocID(id, doctype string) bool {
	for _, d := range b.DocID {
		if d.ID != id {
			continue
		}
		if doctype == "" || strings.EqualFold(d.Type, doctype) {
			return true
		}
	}
	return false
}
