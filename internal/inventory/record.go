// Package inventory defines the per-file metadata records and the persisted
// inventory artifact that retrieval is served from.
package inventory

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// MaxSampleRows is the cap on sample rows per sheet, both at extraction time
// and again when building the description handed to code generation.
const MaxSampleRows = 2

// FileMetadataRecord describes one spreadsheet file: structure, a short
// language-model summary, and the embedding of that summary. A record with an
// empty EmbeddingVector is retained in the inventory but excluded from the
// vector index.
type FileMetadataRecord struct {
	FileName       string                         `json:"file_name"`
	FilePath       string                         `json:"file_path"`
	FileSize       int64                          `json:"file_size"`
	SheetNames     []string                       `json:"sheet_names"`
	Columns        map[string][]string            `json:"columns"`
	Dtypes         map[string]map[string]string   `json:"dtypes"`
	SampleValues   map[string][]map[string]string `json:"sample_values"`
	Summary        string                         `json:"summary"`
	EmbeddingVector []float32                     `json:"embedding_vector"`
	Error          string                         `json:"error,omitempty"`
	EmbeddingError string                         `json:"embedding_error,omitempty"`
}

// HasEmbedding reports whether the record carries a non-empty embedding.
func (r *FileMetadataRecord) HasEmbedding() bool {
	return len(r.EmbeddingVector) > 0
}

// Description assembles the textual context handed to the code-generation
// collaborator: name, summary, resolved path, sheet names, per-sheet column
// lists (sheets with zero columns omitted), and up to MaxSampleRows sample
// rows per sheet regardless of how many were stored.
func (r *FileMetadataRecord) Description() string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n", r.FileName)
	fmt.Fprintf(&b, "Summary: %s\n", r.Summary)
	fmt.Fprintf(&b, "File path: %s\n", r.FilePath)
	fmt.Fprintf(&b, "Sheet names: %s\n", strings.Join(r.SheetNames, ", "))
	for _, sheet := range r.SheetNames {
		if cols := r.Columns[sheet]; len(cols) > 0 {
			fmt.Fprintf(&b, "Sheet '%s' columns: %s\n", sheet, strings.Join(cols, ", "))
		}
	}
	for _, sheet := range r.SheetNames {
		samples := r.SampleValues[sheet]
		if len(samples) == 0 {
			continue
		}
		if len(samples) > MaxSampleRows {
			samples = samples[:MaxSampleRows]
		}
		enc, err := json.Marshal(samples)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "Sample data from sheet '%s': %s\n", sheet, enc)
	}
	return b.String()
}

// Inventory is the ordered collection of records. Ordering is insertion order
// from the build pass and must stay stable between the build that produces
// embeddings and the build that produces the vector index.
type Inventory []*FileMetadataRecord

// Embedded returns the records with non-empty embeddings, preserving relative
// order. Row i of the vector index corresponds to Embedded()[i].
func (inv Inventory) Embedded() []*FileMetadataRecord {
	out := make([]*FileMetadataRecord, 0, len(inv))
	for _, r := range inv {
		if r.HasEmbedding() {
			out = append(out, r)
		}
	}
	return out
}

// Checksum returns a SHA-256 digest binding the identity and vector bytes of
// every embedded record, in order. The index artifact stores this digest so
// retrieval can detect an inventory/index pair rebuilt out of step.
func (inv Inventory) Checksum() [sha256.Size]byte {
	h := sha256.New()
	buf := make([]byte, 4)
	for _, r := range inv.Embedded() {
		h.Write([]byte(r.FileName))
		h.Write([]byte{0})
		for _, v := range r.EmbeddingVector {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			h.Write(buf)
		}
	}
	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
