// Package builder runs the offline batch build: walk the spreadsheet folder,
// extract metadata for every file, persist the inventory artifact, then build
// and persist the vector index from it. Builds are full rebuilds; there is no
// incremental mode.
package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotaeru/internal/extract"
	"github.com/hyperjump/kotaeru/internal/inventory"
	"github.com/hyperjump/kotaeru/internal/vector"
)

// lockTimeout bounds how long a build waits for a concurrent build to finish.
const lockTimeout = 30 * time.Second

// Builder produces the inventory and vector index artifacts.
type Builder struct {
	spreadsheetDir string
	inventoryPath  string
	indexPath      string
	extractor      *extract.Extractor
	logger         *zap.Logger
}

// New creates a builder writing the inventory and index artifacts from the
// spreadsheets under dir.
func New(dir, inventoryPath, indexPath string, extractor *extract.Extractor, logger *zap.Logger) *Builder {
	return &Builder{
		spreadsheetDir: dir,
		inventoryPath:  inventoryPath,
		indexPath:      indexPath,
		extractor:      extractor,
		logger:         logger,
	}
}

// Build runs one full rebuild of both artifacts and returns the number of
// records in the new inventory. Individual file failures are logged and
// skipped; the build fails only when no file could be processed, when an
// artifact cannot be written, or when no record has an embedding (the index
// is then not written at all).
//
// The whole build holds a file lock so concurrent builders serialize, and
// each artifact is replaced atomically, so online readers always see a
// self-consistent pair.
func (b *Builder) Build(ctx context.Context) (int, error) {
	release, err := inventory.AcquireBuildLock(b.inventoryPath, lockTimeout)
	if err != nil {
		return 0, err
	}
	defer release()

	files, err := listSpreadsheets(b.spreadsheetDir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no spreadsheet files found in %s", b.spreadsheetDir)
	}
	b.logger.Info("starting build", zap.Int("files", len(files)), zap.String("dir", b.spreadsheetDir))

	inv := make(inventory.Inventory, 0, len(files))
	for _, path := range files {
		rec, err := b.extractor.Extract(ctx, path)
		if err != nil {
			b.logger.Error("file extraction failed, skipping", zap.String("path", path), zap.Error(err))
			continue
		}
		b.logger.Info("extracted",
			zap.String("file", rec.FileName),
			zap.Int("sheets", len(rec.SheetNames)),
			zap.Bool("embedded", rec.HasEmbedding()))
		inv = append(inv, rec)
	}
	if len(inv) == 0 {
		return 0, fmt.Errorf("no files could be processed in %s", b.spreadsheetDir)
	}

	if err := inventory.Save(b.inventoryPath, inv); err != nil {
		return 0, fmt.Errorf("save inventory: %w", err)
	}
	b.logger.Info("inventory saved", zap.String("path", b.inventoryPath), zap.Int("records", len(inv)))

	embedded := inv.Embedded()
	vectors := make([][]float32, len(embedded))
	for i, rec := range embedded {
		vectors[i] = rec.EmbeddingVector
	}
	idx, err := vector.NewFlatIndex(vectors, inv.Checksum())
	if err != nil {
		return 0, fmt.Errorf("build index: %w", err)
	}
	if err := idx.Save(b.indexPath); err != nil {
		return 0, fmt.Errorf("save index: %w", err)
	}
	b.logger.Info("vector index saved",
		zap.String("path", b.indexPath),
		zap.Int("vectors", idx.Size()),
		zap.Int("dimensions", idx.Dimensions()))

	return len(inv), nil
}

// listSpreadsheets returns the spreadsheet files directly under dir in sorted
// order, skipping Office lock files ("~$...").
func listSpreadsheets(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "~$") {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".xlsx", ".xlsm":
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}
