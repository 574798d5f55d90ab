// Package vector provides a flat exact nearest-neighbor index over embedding
// vectors, with binary persistence. Rows are positionally aligned with the
// embedded records of the inventory the index was built from; an alignment
// checksum stored in the artifact lets readers detect a stale pair.
package vector

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// ErrEmptyIndex is returned when an index build has no vectors to index.
var ErrEmptyIndex = errors.New("vector: no embeddings to index")

var magic = [4]byte{'K', 'V', 'I', '1'}

// FlatIndex is an exact nearest-neighbor structure using brute-force squared
// Euclidean distance. It is immutable after construction and safe for
// unlimited concurrent readers.
type FlatIndex struct {
	dimensions int
	vectors    [][]float32
	checksum   [sha256.Size]byte
}

// Result is a single search hit. Ordinal is the row position in the index,
// which maps back to the i-th embedded record of the source inventory.
type Result struct {
	Ordinal  int
	Distance float64
}

// NewFlatIndex builds an index over vectors, preserving their order.
// checksum binds the index to the inventory it was built from.
// Returns ErrEmptyIndex when vectors is empty, and an error when the vectors
// do not share one dimension.
func NewFlatIndex(vectors [][]float32, checksum [sha256.Size]byte) (*FlatIndex, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyIndex
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, fmt.Errorf("vector: zero-dimension vector at row 0")
	}
	copied := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector: dimension mismatch at row %d: got %d, expected %d", i, len(v), dim)
		}
		vec := make([]float32, dim)
		copy(vec, v)
		copied[i] = vec
	}
	return &FlatIndex{dimensions: dim, vectors: copied, checksum: checksum}, nil
}

// Search returns the k nearest rows to query by squared Euclidean distance,
// nearest first. Fewer than k results are returned when the index is smaller.
func (x *FlatIndex) Search(query []float32, k int) ([]Result, error) {
	if len(query) != x.dimensions {
		return nil, fmt.Errorf("vector: query dimension mismatch: got %d, expected %d", len(query), x.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	results := make([]Result, len(x.vectors))
	for i, vec := range x.vectors {
		results[i] = Result{Ordinal: i, Distance: SquaredL2(query, vec)}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Size returns the number of vectors in the index.
func (x *FlatIndex) Size() int { return len(x.vectors) }

// Dimensions returns the vector dimensionality.
func (x *FlatIndex) Dimensions() int { return x.dimensions }

// Checksum returns the alignment checksum stored with the index.
func (x *FlatIndex) Checksum() [sha256.Size]byte { return x.checksum }

// Save persists the index to path atomically (temp file then rename).
// Format: magic (4), dimensions (4), count (4), checksum (32), then
// count*dimensions little-endian float32 values.
func (x *FlatIndex) Save(path string) error {
	var buf bytes.Buffer
	buf.Write(magic[:])
	if err := binary.Write(&buf, binary.LittleEndian, uint32(x.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(x.vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	buf.Write(x.checksum[:])
	scratch := make([]byte, 4)
	for _, vec := range x.vectors {
		for _, v := range vec {
			binary.LittleEndian.PutUint32(scratch, math.Float32bits(v))
			buf.Write(scratch)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

// Load reads an index artifact from path.
func Load(path string) (*FlatIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	const headerLen = 4 + 4 + 4 + sha256.Size
	if len(data) < headerLen {
		return nil, fmt.Errorf("index file too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return nil, fmt.Errorf("not a vector index file (bad magic)")
	}
	dim := int(binary.LittleEndian.Uint32(data[4:8]))
	count := int(binary.LittleEndian.Uint32(data[8:12]))
	if dim <= 0 || count <= 0 {
		return nil, fmt.Errorf("invalid index header: dimensions=%d count=%d", dim, count)
	}
	var checksum [sha256.Size]byte
	copy(checksum[:], data[12:12+sha256.Size])
	body := data[headerLen:]
	if len(body) != count*dim*4 {
		return nil, fmt.Errorf("index body size mismatch: got %d bytes, expected %d", len(body), count*dim*4)
	}
	vectors := make([][]float32, count)
	off := 0
	for i := 0; i < count; i++ {
		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(body[off : off+4]))
			off += 4
		}
		vectors[i] = vec
	}
	return &FlatIndex{dimensions: dim, vectors: vectors, checksum: checksum}, nil
}

// SquaredL2 returns the squared Euclidean distance between two vectors of
// equal length.
func SquaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
