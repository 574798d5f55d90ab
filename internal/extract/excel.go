// Package extract reads one spreadsheet file and produces a FileMetadataRecord:
// structure, sample rows, a language-model summary, and the summary's embedding.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/kotaeru/internal/inventory"
	"github.com/hyperjump/kotaeru/internal/llm"
)

// Extractor produces metadata records for spreadsheet files.
type Extractor struct {
	client llm.Client
	logger *zap.Logger // optional; when set, logs per-sheet and collaborator failures
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithLogger sets a logger for failure reporting during extraction.
func WithLogger(l *zap.Logger) ExtractorOption {
	return func(e *Extractor) { e.logger = l }
}

// NewExtractor creates an extractor using client for summary and embedding calls.
func NewExtractor(client llm.Client, opts ...ExtractorOption) *Extractor {
	e := &Extractor{client: client}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads the spreadsheet at path and returns its metadata record.
// A sheet that cannot be parsed empties that sheet's fields and marks the
// record, but the remaining sheets are still processed. Summary and embedding
// failures are recorded on the record and never abort extraction.
// Only a file that cannot be opened at all fails the whole call.
func (e *Extractor) Extract(ctx context.Context, path string) (*inventory.FileMetadataRecord, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	f, err := excelize.OpenFile(abs)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	rec := &inventory.FileMetadataRecord{
		FileName:     filepath.Base(abs),
		FilePath:     abs,
		FileSize:     info.Size(),
		SheetNames:   f.GetSheetList(),
		Columns:      make(map[string][]string),
		Dtypes:       make(map[string]map[string]string),
		SampleValues: make(map[string][]map[string]string),
	}

	for _, sheet := range rec.SheetNames {
		cols, dtypes, samples, err := readSheet(f, sheet)
		if err != nil {
			rec.Columns[sheet] = []string{}
			rec.Dtypes[sheet] = map[string]string{}
			rec.SampleValues[sheet] = []map[string]string{}
			rec.Error = err.Error()
			if e.logger != nil {
				e.logger.Error("sheet extraction failed",
					zap.String("file", rec.FileName),
					zap.String("sheet", sheet),
					zap.Error(err))
			}
			continue
		}
		rec.Columns[sheet] = cols
		rec.Dtypes[sheet] = dtypes
		rec.SampleValues[sheet] = samples
	}

	summary, err := e.client.Complete(ctx, llm.SummaryRequest(rec.FileName, rec.SheetNames, rec.Columns))
	if err != nil {
		summary = fmt.Sprintf("Summary generation failed: %v", err)
		if e.logger != nil {
			e.logger.Error("summary generation failed", zap.String("file", rec.FileName), zap.Error(err))
		}
	}
	rec.Summary = summary

	vec, err := e.client.Embed(ctx, summary)
	if err != nil {
		rec.EmbeddingVector = nil
		rec.EmbeddingError = err.Error()
		if e.logger != nil {
			e.logger.Error("embedding failed", zap.String("file", rec.FileName), zap.Error(err))
		}
	} else {
		rec.EmbeddingVector = vec
	}

	return rec, nil
}

// readSheet returns ordered column labels from the header row, inferred
// per-column dtypes, and up to MaxSampleRows stringified data rows.
func readSheet(f *excelize.File, sheet string) ([]string, map[string]string, []map[string]string, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return []string{}, map[string]string{}, []map[string]string{}, nil
	}

	// Header labels are preserved byte-for-byte; empty header cells get a
	// pandas-style placeholder so labels stay unique context for the model.
	header := rows[0]
	cols := make([]string, len(header))
	for i, label := range header {
		if label == "" {
			label = fmt.Sprintf("Unnamed: %d", i)
		}
		cols[i] = label
	}

	data := rows[1:]
	if len(data) > inventory.MaxSampleRows {
		data = data[:inventory.MaxSampleRows]
	}
	samples := make([]map[string]string, 0, len(data))
	cells := make(map[string][]string, len(cols))
	for _, row := range data {
		sample := make(map[string]string, len(cols))
		for i, col := range cols {
			// excelize omits trailing empty cells; pad to the header width.
			v := ""
			if i < len(row) {
				v = row[i]
			}
			sample[col] = v
			cells[col] = append(cells[col], v)
		}
		samples = append(samples, sample)
	}

	dtypes := make(map[string]string, len(cols))
	for _, col := range cols {
		dtypes[col] = inferDtype(cells[col])
	}
	return cols, dtypes, samples, nil
}

// inferDtype maps sampled cell values to a pandas-style scalar type tag.
// All-integer samples are int64, numeric samples float64, booleans bool,
// anything else (including no samples) object.
func inferDtype(values []string) string {
	if len(values) == 0 {
		return "object"
	}
	allInt, allFloat, allBool := true, true, true
	seen := false
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		seen = true
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			allInt = false
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			allFloat = false
		}
		switch strings.ToLower(v) {
		case "true", "false":
		default:
			allBool = false
		}
	}
	switch {
	case !seen:
		return "object"
	case allInt:
		return "int64"
	case allFloat:
		return "float64"
	case allBool:
		return "bool"
	default:
		return "object"
	}
}
