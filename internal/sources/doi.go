package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bibxml/pkg/models"
)

const (
	crossrefBase    = "https://api.crossref.org"
	maxCrossrefBody = 4 << 20
)

// ResponseCache stores raw upstream bodies keyed by DOI.
type ResponseCache interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
}

// DOIFetcher looks DOIs up in Crossref. It serves the doi directory and
// the JSON API's doi dataset.
type DOIFetcher struct {
	Client  *http.Client
	BaseURL string
	Cache   ResponseCache
	Logger  *slog.Logger
}

func NewDOIFetcher(baseURL string, cache ResponseCache, logger *slog.Logger) *DOIFetcher {
	if baseURL == "" {
		baseURL = crossrefBase
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DOIFetcher{
		Client:  &http.Client{Timeout: 10 * time.Second},
		BaseURL: strings.TrimRight(baseURL, "/"),
		Cache:   cache,
		Logger:  logger,
	}
}

func (f *DOIFetcher) Name() string    { return "doi_fetcher" }
func (f *DOIFetcher) Dataset() string { return "doi" }

// Resolve accepts a bare DOI or an xml2rfc anchor such as
// "DOI.10.1109_5.771073". Only responses that decode into a valid item
// are cached.
func (f *DOIFetcher) Resolve(ctx context.Context, anchor string) (*models.BibliographicItem, error) {
	doi := AnchorToDOI(anchor)
	if !strings.HasPrefix(doi, "10.") {
		return nil, models.NotFound("%q is not a DOI", anchor)
	}

	key := "crossref:" + strings.ToLower(doi)
	if body, ok := f.cached(key, doi); ok {
		item, err := decodeWork(body, doi)
		if err == nil {
			return item, nil
		}
		f.Logger.Warn("discarding unusable cached doi response", "doi", doi, "error", err)
	}

	body, err := f.fetch(ctx, doi)
	if err != nil {
		return nil, err
	}
	item, err := decodeWork(body, doi)
	if err != nil {
		return nil, err
	}

	if f.Cache != nil {
		if err := f.Cache.Set(key, body); err != nil {
			f.Logger.Warn("doi cache write failed", "doi", doi, "error", err)
		}
	}
	return item, nil
}

func (f *DOIFetcher) cached(key, doi string) ([]byte, bool) {
	if f.Cache == nil {
		return nil, false
	}
	body, ok, err := f.Cache.Get(key)
	if err != nil {
		f.Logger.Warn("doi cache read failed", "doi", doi, "error", err)
		return nil, false
	}
	return body, ok
}

func decodeWork(body []byte, doi string) (*models.BibliographicItem, error) {
	var cr crossrefResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, models.Invalid(err, "crossref: decode "+doi)
	}
	item := cr.Message.toItem(doi)
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

func (f *DOIFetcher) fetch(ctx context.Context, doi string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/works/"+url.PathEscape(doi), nil)
	if err != nil {
		return nil, fmt.Errorf("crossref: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, models.NotFound("crossref: request %s: %v", doi, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, models.NotFound("doi %s not found in crossref", doi)
	case resp.StatusCode != http.StatusOK:
		return nil, models.NotFound("crossref: status %d for %s", resp.StatusCode, doi)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCrossrefBody+1))
	if err != nil {
		return nil, models.NotFound("crossref: read %s: %v", doi, err)
	}
	if len(body) > maxCrossrefBody {
		return nil, models.NotFound("crossref: response for %s exceeds %d bytes", doi, maxCrossrefBody)
	}
	return body, nil
}

// AnchorToDOI strips the "DOI." anchor prefix and restores the first
// slash, which xml2rfc file names carry as an underscore.
func AnchorToDOI(anchor string) string {
	doi := anchor
	if len(doi) >= 4 && strings.EqualFold(doi[:4], "DOI.") {
		doi = doi[4:]
	}
	if !strings.Contains(doi, "/") {
		doi = strings.Replace(doi, "_", "/", 1)
	}
	return doi
}

type crossrefResponse struct {
	Status  string       `json:"status"`
	Message crossrefWork `json:"message"`
}

type crossrefWork struct {
	DOI            string   `json:"DOI"`
	Title          []string `json:"title"`
	Type           string   `json:"type"`
	URL            string   `json:"URL"`
	Abstract       string   `json:"abstract"`
	ContainerTitle []string `json:"container-title"`
	Volume         string   `json:"volume"`
	Author         []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
		Name   string `json:"name"`
	} `json:"author"`
	Issued struct {
		DateParts [][]int `json:"date-parts"`
	} `json:"issued"`
}

func (w crossrefWork) toItem(doi string) *models.BibliographicItem {
	if w.DOI != "" {
		doi = w.DOI
	}
	item := &models.BibliographicItem{
		ID:      "DOI." + doi,
		DocID:   []models.DocID{{ID: doi, Type: "DOI", Primary: true}},
		DocType: w.Type,
		Sources: []string{"crossref"},
	}
	for _, t := range w.Title {
		if t = strings.TrimSpace(t); t != "" {
			item.Title = append(item.Title, models.Title{Content: t, Type: "main"})
		}
	}
	for _, a := range w.Author {
		c := models.Contributor{Role: "author", Surname: a.Family, Name: a.Name}
		if a.Given != "" {
			c.Initials = initials(a.Given)
			if c.Name == "" {
				c.Name = strings.TrimSpace(a.Given + " " + a.Family)
			}
		}
		item.Contributor = append(item.Contributor, c)
	}
	if len(w.Issued.DateParts) > 0 {
		if v := formatDateParts(w.Issued.DateParts[0]); v != "" {
			item.Date = []models.BibDate{{Type: "published", Value: v}}
		}
	}
	if w.URL != "" {
		item.Link = []models.Link{{Type: "src", Content: w.URL}}
	}
	if w.Abstract != "" {
		item.Abstract = []string{w.Abstract}
	}
	if len(w.ContainerTitle) > 0 && w.ContainerTitle[0] != "" {
		item.Series = []models.Series{{Title: w.ContainerTitle[0], Number: w.Volume}}
	}
	return item
}

func initials(given string) string {
	var b strings.Builder
	for _, part := range strings.Fields(given) {
		b.WriteRune([]rune(part)[0])
		b.WriteString(".")
	}
	return b.String()
}

func formatDateParts(parts []int) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%04d", parts[0])
	case 2:
		return fmt.Sprintf("%04d-%02d", parts[0], parts[1])
	default:
		return fmt.Sprintf("%04d-%02d-%02d", parts[0], parts[1], parts[2])
	}
}
