package main

import (
	"context"
	"encoding/csv"
	"flag"
	"io"
	"os"
	"path/filepath"
	"time"

	"bibxml/internal/xml2rfc"
	"bibxml/pkg/database"
	"bibxml/pkg/models"
	"bibxml/pkg/utils"
)

func main() {
	var (
		mapOut = flag.String("map", "data/manual_map.csv", "output CSV path for the manual map")
		prefix = flag.String("prefix", "", "only export subpaths starting with prefix")
	)
	flag.Parse()

	logger := utils.NewLogger(os.Stderr, os.Getenv("BIBXML_LOG_LEVEL"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbCfg := database.DefaultConfig()
	dbCfg.ReadOnly = true
	db := database.MustOpen(dbCfg)
	defer db.Close()

	items, err := xml2rfc.NewManualMap(db).List(ctx, *prefix)
	if err != nil {
		logger.Error("read manual map failed", "error", err)
		os.Exit(1)
	}
	if err := exportManualMap(items, *mapOut); err != nil {
		logger.Error("export manual map failed", "path", *mapOut, "error", err)
		os.Exit(1)
	}
	logger.Info("exported manual map", "path", *mapOut, "count", len(items))
}

func exportManualMap(items []models.ManualPathMap, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return writeManualMap(f, items)
}

func writeManualMap(out io.Writer, items []models.ManualPathMap) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"xml2rfc_subpath", "docid", "updated_at"}); err != nil {
		return err
	}
	for _, it := range items {
		updated := ""
		if !it.UpdatedAt.IsZero() {
			updated = it.UpdatedAt.UTC().Format(time.RFC3339)
		}
		if err := w.Write([]string{it.Subpath, it.DocID, updated}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
