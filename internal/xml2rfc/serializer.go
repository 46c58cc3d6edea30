package xml2rfc

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bibxml/pkg/models"
)

type xmlReference struct {
	XMLName    xml.Name        `xml:"reference"`
	Anchor     string          `xml:"anchor,attr"`
	Target     string          `xml:"target,attr,omitempty"`
	Front      xmlFront        `xml:"front"`
	SeriesInfo []xmlSeriesInfo `xml:"seriesInfo"`
}

type xmlFront struct {
	Title    string       `xml:"title"`
	Authors  []xmlAuthor  `xml:"author"`
	Date     *xmlDate     `xml:"date"`
	Keywords []string     `xml:"keyword"`
	Abstract *xmlAbstract `xml:"abstract"`
}

type xmlAuthor struct {
	Fullname     string `xml:"fullname,attr,omitempty"`
	Initials     string `xml:"initials,attr,omitempty"`
	Surname      string `xml:"surname,attr,omitempty"`
	Organization string `xml:"organization,omitempty"`
}

type xmlDate struct {
	Year  string `xml:"year,attr,omitempty"`
	Month string `xml:"month,attr,omitempty"`
	Day   string `xml:"day,attr,omitempty"`
}

type xmlAbstract struct {
	T []string `xml:"t"`
}

type xmlSeriesInfo struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// XMLSerializer renders items as xml2rfc <reference> elements.
type XMLSerializer struct{}

// Serialize renders item. A non-empty anchor overrides the anchor derived
// from the item.
func (XMLSerializer) Serialize(item *models.BibliographicItem, anchor string) (string, error) {
	return ToXMLString(item, anchor)
}

func ToXMLString(item *models.BibliographicItem, anchor string) (string, error) {
	if item == nil {
		return "", fmt.Errorf("serialize: nil item")
	}
	if anchor == "" {
		anchor = DeriveAnchor(item)
	}

	ref := xmlReference{Anchor: anchor}
	if len(item.Title) > 0 {
		ref.Front.Title = item.Title[0].Content
	}
	for _, l := range item.Link {
		if l.Type == "" || l.Type == "src" {
			ref.Target = l.Content
			break
		}
	}
	for _, c := range item.Contributor {
		if c.Role != "" && c.Role != "author" && c.Role != "editor" {
			continue
		}
		ref.Front.Authors = append(ref.Front.Authors, xmlAuthor{
			Fullname:     c.Name,
			Initials:     c.Initials,
			Surname:      c.Surname,
			Organization: c.Organization,
		})
	}
	if d := pickDate(item.Date); d != nil {
		ref.Front.Date = d
	}
	ref.Front.Keywords = item.Keyword
	if len(item.Abstract) > 0 {
		ref.Front.Abstract = &xmlAbstract{T: item.Abstract}
	}
	ref.SeriesInfo = seriesInfo(item)

	out, err := xml.MarshalIndent(ref, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serialize %s: %w", anchor, err)
	}
	return string(out), nil
}

// DeriveAnchor picks the anchor-scoped docid, then the item id, then the
// primary docid.
func DeriveAnchor(item *models.BibliographicItem) string {
	if d, ok := item.AnchorDocID(); ok {
		return d.ID
	}
	if item.ID != "" {
		return item.ID
	}
	if d, ok := item.PrimaryDocID(); ok {
		return d.ID
	}
	return ""
}

func pickDate(dates []models.BibDate) *xmlDate {
	if len(dates) == 0 {
		return nil
	}
	chosen := dates[0]
	for _, d := range dates {
		if d.Type == "published" {
			chosen = d
			break
		}
	}

	parts := strings.SplitN(chosen.Value, "-", 3)
	out := &xmlDate{Year: parts[0]}
	if len(parts) > 1 {
		if m, err := strconv.Atoi(parts[1]); err == nil && m >= 1 && m <= 12 {
			out.Month = time.Month(m).String()
		}
	}
	if len(parts) > 2 {
		out.Day = strings.TrimLeft(parts[2], "0")
	}
	return out
}

func seriesInfo(item *models.BibliographicItem) []xmlSeriesInfo {
	var out []xmlSeriesInfo
	for _, d := range item.DocID {
		switch {
		case strings.EqualFold(d.Type, "IETF") && strings.HasPrefix(strings.ToUpper(d.ID), "RFC"):
			num := strings.TrimPrefix(strings.TrimPrefix(strings.ToUpper(d.ID), "RFC"), ".")
			out = append(out, xmlSeriesInfo{Name: "RFC", Value: strings.TrimSpace(num)})
		case strings.EqualFold(d.Type, "IETF") && strings.HasPrefix(d.ID, "I-D."):
			out = append(out, xmlSeriesInfo{Name: "Internet-Draft", Value: strings.TrimPrefix(d.ID, "I-D.")})
		default:
			out = append(out, xmlSeriesInfo{Name: d.Type, Value: d.ID})
		}
	}
	for _, s := range item.Series {
		if s.Number == "" {
			continue
		}
		out = append(out, xmlSeriesInfo{Name: s.Title, Value: s.Number})
	}
	return out
}
