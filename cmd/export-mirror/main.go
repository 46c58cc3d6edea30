package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"bibxml/internal/citation"
	"bibxml/internal/refs"
	"bibxml/internal/sources"
	"bibxml/internal/xml2rfc"
	"bibxml/pkg/database"
	"bibxml/pkg/models"
	"bibxml/pkg/utils"
)

// exports the indexed datasets as an xml2rfc directory tree that
// import-csv -snapshots can load back as fallback snapshots.
func main() {
	var (
		outDir  = flag.String("out", "data/mirror", "output directory")
		only    = flag.String("dataset", "", "export one dataset only")
		workers = flag.Int("workers", 4, "datasets rendered in parallel")
	)
	flag.Parse()

	logger := utils.NewLogger(os.Stderr, os.Getenv("BIBXML_LOG_LEVEL"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	dbCfg := database.DefaultConfig()
	dbCfg.ReadOnly = true
	db := database.MustOpen(dbCfg)
	defer db.Close()

	repo := refs.NewRepo(db)
	registry, err := xml2rfc.NewRegistry(sources.DefaultFetchers(repo, nil)...)
	if err != nil {
		logger.Error("build registry failed", "error", err)
		os.Exit(1)
	}
	datasets := registry.Datasets()
	if *only != "" {
		datasets = []string{*only}
	}

	m := &mirror{
		Refs:    repo,
		Items:   citation.NewBuilder(repo, logger),
		OutDir:  *outDir,
		Workers: *workers,
		Logger:  logger,
	}
	n, err := m.Export(ctx, datasets)
	if err != nil {
		logger.Error("export mirror failed", "error", err)
		os.Exit(1)
	}
	logger.Info("exported mirror", "dir", *outDir, "files", n)
}

type refLister interface {
	ListRefs(ctx context.Context, dataset string) ([]string, error)
}

type itemGetter interface {
	GetIndexedItem(ctx context.Context, dataset, ref string, strict bool) (*models.BibliographicItem, error)
}

type mirror struct {
	Refs    refLister
	Items   itemGetter
	OutDir  string
	Workers int
	Logger  *slog.Logger
}

// Export writes <OutDir>/<dataset>/reference.<anchor>.xml for every
// record. Records that cannot be decoded are skipped with a warning.
func (m *mirror) Export(ctx context.Context, datasets []string) (int, error) {
	var written atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	if m.Workers > 0 {
		g.SetLimit(m.Workers)
	}
	for _, ds := range datasets {
		g.Go(func() error {
			n, err := m.exportDataset(gctx, ds)
			written.Add(int64(n))
			return err
		})
	}
	err := g.Wait()
	return int(written.Load()), err
}

func (m *mirror) exportDataset(ctx context.Context, dataset string) (int, error) {
	refList, err := m.Refs.ListRefs(ctx, dataset)
	if err != nil {
		return 0, err
	}
	if len(refList) == 0 {
		return 0, nil
	}

	dir := filepath.Join(m.OutDir, dataset)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	written := 0
	for _, ref := range refList {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		item, err := m.Items.GetIndexedItem(ctx, dataset, ref, false)
		if err != nil {
			m.Logger.Warn("skipping record", "dataset", dataset, "ref", ref, "error", err)
			continue
		}
		anchor := xml2rfc.DeriveAnchor(item)
		xmlRepr, err := xml2rfc.ToXMLString(item, anchor)
		if err != nil {
			m.Logger.Warn("skipping record", "dataset", dataset, "ref", ref, "error", err)
			continue
		}
		name := "reference." + strings.ReplaceAll(anchor, "/", "_") + ".xml"
		if err := os.WriteFile(filepath.Join(dir, name), []byte(xmlRepr), 0o644); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}
