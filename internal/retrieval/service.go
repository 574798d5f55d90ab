// Package retrieval answers "which files are relevant to this question" by
// embedding the question and querying the vector index, then mapping index
// rows back to inventory records.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kotaeru/internal/inventory"
	"github.com/hyperjump/kotaeru/internal/llm"
	"github.com/hyperjump/kotaeru/internal/vector"
)

// ErrIndexOutOfSync is returned when the loaded index does not match the
// loaded inventory (count or checksum mismatch). The pair must be rebuilt;
// serving from it would silently return wrong files.
var ErrIndexOutOfSync = errors.New("retrieval: vector index out of sync with inventory, rebuild required")

// DefaultTopK is the number of candidates returned per query.
const DefaultTopK = 2

// Service serves similarity queries over the read-only artifact pair.
// Artifacts are cached; Reload swaps both under a write lock after a rebuild.
type Service struct {
	client        llm.Client
	inventoryPath string
	indexPath     string
	topK          int
	logger        *zap.Logger

	mu       sync.RWMutex
	embedded []*inventory.FileMetadataRecord
	records  int
	index    *vector.FlatIndex
}

// NewService creates the service and loads both artifacts. client embeds
// incoming questions and must match the dimensionality the index was built with.
func NewService(client llm.Client, inventoryPath, indexPath string, topK int, logger *zap.Logger) (*Service, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	s := &Service{
		client:        client,
		inventoryPath: inventoryPath,
		indexPath:     indexPath,
		topK:          topK,
		logger:        logger,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the inventory and index artifacts and verifies their
// alignment: the index must hold exactly one row per embedded record, in
// order, and carry the inventory's checksum. On any mismatch the previous
// artifacts stay in service and ErrIndexOutOfSync is returned.
func (s *Service) Reload() error {
	inv, err := inventory.Load(s.inventoryPath)
	if err != nil {
		return err
	}
	embedded := inv.Embedded()

	idx, err := vector.Load(s.indexPath)
	if err != nil {
		// A missing index is valid only when nothing was embeddable: the
		// index build refuses to write an empty artifact.
		if errors.Is(err, os.ErrNotExist) && len(embedded) == 0 {
			s.mu.Lock()
			s.embedded = embedded
			s.records = len(inv)
			s.index = nil
			s.mu.Unlock()
			return nil
		}
		return err
	}

	if idx.Size() != len(embedded) {
		return fmt.Errorf("%w: index has %d vectors, inventory has %d embedded records",
			ErrIndexOutOfSync, idx.Size(), len(embedded))
	}
	if idx.Checksum() != inv.Checksum() {
		return fmt.Errorf("%w: checksum mismatch", ErrIndexOutOfSync)
	}

	s.mu.Lock()
	s.embedded = embedded
	s.records = len(inv)
	s.index = idx
	s.mu.Unlock()
	s.logger.Info("retrieval artifacts loaded",
		zap.Int("records", len(inv)),
		zap.Int("indexed", len(embedded)),
		zap.Int("dimensions", idx.Dimensions()))
	return nil
}

// Search embeds question and returns up to topK records, nearest first.
// An embedding failure propagates as a retrieval failure; an empty index
// returns an empty result with no error.
func (s *Service) Search(ctx context.Context, question string) ([]*inventory.FileMetadataRecord, error) {
	qvec, err := s.client.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil || s.index.Size() == 0 {
		return nil, nil
	}
	hits, err := s.index.Search(qvec, s.topK)
	if err != nil {
		return nil, err
	}
	out := make([]*inventory.FileMetadataRecord, len(hits))
	for i, hit := range hits {
		// Row ordinal i of the index is the i-th embedded record, by the
		// build-time filtering invariant.
		out[i] = s.embedded[hit.Ordinal]
	}
	return out, nil
}

// Records returns the number of records in the loaded inventory.
func (s *Service) Records() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records
}

// IndexSize returns the number of indexed vectors (0 when no index is loaded).
func (s *Service) IndexSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return 0
	}
	return s.index.Size()
}

// Dimensions returns the index vector dimensionality (0 when no index is loaded).
func (s *Service) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return 0
	}
	return s.index.Dimensions()
}
