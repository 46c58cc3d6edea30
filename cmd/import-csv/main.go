package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bibxml/internal/refs"
	"bibxml/internal/xml2rfc"
	"bibxml/pkg/database"
	"bibxml/pkg/models"
	"bibxml/pkg/utils"
)

const refsBatchSize = 500

func main() {
	var (
		mapIn       = flag.String("map", "", "manual map CSV (xml2rfc_subpath,docid)")
		refsIn      = flag.String("refs", "", "indexed records, one JSON object per line")
		snapshotDir = flag.String("snapshots", "", "directory of <dirname>/<file>.xml snapshots")
		timeout     = flag.Duration("timeout", 5*time.Minute, "overall import timeout")
	)
	flag.Parse()

	logger := utils.NewLogger(os.Stderr, os.Getenv("BIBXML_LOG_LEVEL"))
	if *mapIn == "" && *refsIn == "" && *snapshotDir == "" {
		fmt.Fprintln(os.Stderr, "nothing to import: pass -map, -refs or -snapshots")
		flag.Usage()
		os.Exit(2)
	}

	xcfg, err := utils.LoadXml2rfcConfig()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db := database.MustOpen(database.DefaultConfig())
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logger.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	if *refsIn != "" {
		n, err := importRefs(ctx, refs.NewRepo(db), *refsIn)
		if err != nil {
			logger.Error("import refs failed", "path", *refsIn, "error", err)
			os.Exit(1)
		}
		logger.Info("imported indexed records", "path", *refsIn, "count", n)
	}
	if *mapIn != "" {
		n, err := importManualMap(ctx, xml2rfc.NewManualMap(db), *mapIn)
		if err != nil {
			logger.Error("import manual map failed", "path", *mapIn, "error", err)
			os.Exit(1)
		}
		logger.Info("imported manual map", "path", *mapIn, "count", n)
	}
	if *snapshotDir != "" {
		aliases := xml2rfc.NewAliases(xcfg.Aliases)
		n, err := importSnapshots(ctx, xml2rfc.NewSnapshots(db), aliases, *snapshotDir, logger)
		if err != nil {
			logger.Error("import snapshots failed", "dir", *snapshotDir, "error", err)
			os.Exit(1)
		}
		logger.Info("imported fallback snapshots", "dir", *snapshotDir, "count", n)
	}
}

type manualMapWriter interface {
	UpsertMany(ctx context.Context, items []models.ManualPathMap) error
}

func importManualMap(ctx context.Context, store manualMapWriter, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := readHeader(r)
	if err != nil {
		return 0, err
	}
	subpathCol := "xml2rfc_subpath"
	if _, ok := header[subpathCol]; !ok {
		subpathCol = "subpath"
	}

	var items []models.ManualPathMap
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		subpath := valueAt(header, row, subpathCol)
		docid := valueAt(header, row, "docid")
		if subpath == "" || docid == "" {
			continue
		}
		items = append(items, models.ManualPathMap{Subpath: subpath, DocID: docid})
	}
	if len(items) == 0 {
		return 0, nil
	}
	if err := store.UpsertMany(ctx, items); err != nil {
		return 0, err
	}
	return len(items), nil
}

type refWriter interface {
	Upsert(ctx context.Context, records []models.RefData) error
}

func importRefs(ctx context.Context, store refWriter, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		batch []models.RefData
		total int
		line  int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := store.Upsert(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rd models.RefData
		if err := json.Unmarshal([]byte(raw), &rd); err != nil {
			return total, fmt.Errorf("decode line %d: %w", line, err)
		}
		batch = append(batch, rd)
		if len(batch) >= refsBatchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return total, err
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

type snapshotWriter interface {
	Upsert(ctx context.Context, snaps []models.Snapshot) error
}

// importSnapshots stores every <dirname>/<file>.xml under dir, keyed by
// its canonical subpath. Files in unknown directories are skipped.
func importSnapshots(ctx context.Context, store snapshotWriter, aliases *xml2rfc.Aliases, dir string, logger *slog.Logger) (int, error) {
	var snaps []models.Snapshot
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".xml") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		subpath, err := xml2rfc.CanonicalSubpath(aliases, filepath.ToSlash(rel))
		if err != nil {
			logger.Warn("skipping snapshot", "path", rel, "error", err)
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		snaps = append(snaps, models.Snapshot{Subpath: subpath, XMLRepr: string(b)})
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(snaps) == 0 {
		return 0, nil
	}
	if err := store.Upsert(ctx, snaps); err != nil {
		return 0, err
	}
	return len(snaps), nil
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
