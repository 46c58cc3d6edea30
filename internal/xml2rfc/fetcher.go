package xml2rfc

import (
	"context"
	"fmt"

	"bibxml/pkg/models"
)

// Fetcher resolves an anchor within one dataset. Name is reported in
// resolution outcomes; Dataset is the registry key.
type Fetcher interface {
	Name() string
	Dataset() string
	Resolve(ctx context.Context, anchor string) (*models.BibliographicItem, error)
}

// Registry is an immutable dataset -> fetcher mapping.
type Registry struct {
	order     []string
	byDataset map[string]Fetcher
}

// NewRegistry registers fetchers in order. Every dataset may be claimed by
// one fetcher only.
func NewRegistry(fetchers ...Fetcher) (*Registry, error) {
	r := &Registry{byDataset: make(map[string]Fetcher, len(fetchers))}
	for _, f := range fetchers {
		if f == nil {
			continue
		}
		ds := f.Dataset()
		if ds == "" {
			return nil, fmt.Errorf("register fetcher %s: empty dataset", f.Name())
		}
		if prev, ok := r.byDataset[ds]; ok {
			return nil, fmt.Errorf("register fetcher %s: dataset %s already served by %s", f.Name(), ds, prev.Name())
		}
		r.byDataset[ds] = f
		r.order = append(r.order, ds)
	}
	return r, nil
}

func (r *Registry) Get(dataset string) (Fetcher, bool) {
	f, ok := r.byDataset[dataset]
	return f, ok
}

// Datasets lists registered datasets in registration order.
func (r *Registry) Datasets() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
