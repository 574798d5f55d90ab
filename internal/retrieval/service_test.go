package retrieval

import (
	"context"
	"crypto/sha256"
	"errors"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotaeru/internal/inventory"
	"github.com/hyperjump/kotaeru/internal/llm"
	"github.com/hyperjump/kotaeru/internal/vector"
)

// embeddedRecord builds a record whose vector is the mock client's embedding
// of its summary, so a question equal to the summary retrieves it at distance 0.
func embeddedRecord(t *testing.T, client *llm.MockClient, name, summary string) *inventory.FileMetadataRecord {
	t.Helper()
	vec, err := client.Embed(context.Background(), summary)
	if err != nil {
		t.Fatal(err)
	}
	return &inventory.FileMetadataRecord{
		FileName:        name,
		FilePath:        "/data/" + name,
		Summary:         summary,
		EmbeddingVector: vec,
	}
}

// writeArtifacts saves the inventory and a matching index into dir and
// returns both paths.
func writeArtifacts(t *testing.T, dir string, inv inventory.Inventory) (string, string) {
	t.Helper()
	invPath := filepath.Join(dir, "inventory.json")
	idxPath := filepath.Join(dir, "index.bin")
	if err := inventory.Save(invPath, inv); err != nil {
		t.Fatal(err)
	}
	embedded := inv.Embedded()
	if len(embedded) == 0 {
		return invPath, idxPath
	}
	vectors := make([][]float32, len(embedded))
	for i, rec := range embedded {
		vectors[i] = rec.EmbeddingVector
	}
	idx, err := vector.NewFlatIndex(vectors, inv.Checksum())
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Save(idxPath); err != nil {
		t.Fatal(err)
	}
	return invPath, idxPath
}

func TestSearch_SkipsUnembeddedRecords(t *testing.T) {
	client := llm.NewMockClient(8)
	inv := inventory.Inventory{
		embeddedRecord(t, client, "alpha.xlsx", "alpha: quarterly budget"),
		{FileName: "broken.xlsx", EmbeddingError: "quota exceeded"},
		embeddedRecord(t, client, "gamma.xlsx", "gamma: shipping manifests"),
	}
	invPath, idxPath := writeArtifacts(t, t.TempDir(), inv)

	svc, err := NewService(client, invPath, idxPath, 2, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if svc.Records() != 3 || svc.IndexSize() != 2 {
		t.Fatalf("records = %d, indexed = %d", svc.Records(), svc.IndexSize())
	}

	// The question is gamma's exact summary; the unembedded record between
	// alpha and gamma must not shift the ordinal mapping.
	got, err := svc.Search(context.Background(), "gamma: shipping manifests")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].FileName != "gamma.xlsx" {
		t.Errorf("nearest = %q, want gamma.xlsx", got[0].FileName)
	}
	if got[1].FileName != "alpha.xlsx" {
		t.Errorf("second = %q, want alpha.xlsx", got[1].FileName)
	}
}

func TestSearch_TopKCapped(t *testing.T) {
	client := llm.NewMockClient(8)
	inv := inventory.Inventory{
		embeddedRecord(t, client, "a.xlsx", "summary a"),
		embeddedRecord(t, client, "b.xlsx", "summary b"),
		embeddedRecord(t, client, "c.xlsx", "summary c"),
	}
	invPath, idxPath := writeArtifacts(t, t.TempDir(), inv)

	svc, err := NewService(client, invPath, idxPath, 2, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	got, err := svc.Search(context.Background(), "summary a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d results, want topK=2", len(got))
	}
	if got[0].FileName != "a.xlsx" {
		t.Errorf("nearest = %q, want a.xlsx", got[0].FileName)
	}
}

func TestSearch_EmbedFailurePropagates(t *testing.T) {
	client := llm.NewMockClient(8)
	inv := inventory.Inventory{embeddedRecord(t, client, "a.xlsx", "summary a")}
	invPath, idxPath := writeArtifacts(t, t.TempDir(), inv)

	svc, err := NewService(client, invPath, idxPath, 2, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	client.EmbedErr = errors.New("quota exceeded")
	if _, err := svc.Search(context.Background(), "question"); err == nil {
		t.Error("expected embed failure to propagate")
	}
}

func TestNewService_NoEmbeddableRecords(t *testing.T) {
	client := llm.NewMockClient(8)
	inv := inventory.Inventory{
		{FileName: "broken.xlsx", EmbeddingError: "quota exceeded"},
	}
	invPath, idxPath := writeArtifacts(t, t.TempDir(), inv)

	// No index file was written; that is valid when nothing was embeddable.
	svc, err := NewService(client, invPath, idxPath, 2, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if svc.IndexSize() != 0 || svc.Dimensions() != 0 {
		t.Errorf("indexed = %d, dims = %d", svc.IndexSize(), svc.Dimensions())
	}
	got, err := svc.Search(context.Background(), "question")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d results from empty index", len(got))
	}
}

func TestNewService_MissingIndexWithEmbeddedRecords(t *testing.T) {
	client := llm.NewMockClient(8)
	dir := t.TempDir()
	inv := inventory.Inventory{embeddedRecord(t, client, "a.xlsx", "summary a")}
	invPath := filepath.Join(dir, "inventory.json")
	if err := inventory.Save(invPath, inv); err != nil {
		t.Fatal(err)
	}
	if _, err := NewService(client, invPath, filepath.Join(dir, "index.bin"), 2, zap.NewNop()); err == nil {
		t.Error("expected failure when index is missing but records are embedded")
	}
}

func TestNewService_CountMismatch(t *testing.T) {
	client := llm.NewMockClient(8)
	dir := t.TempDir()
	inv := inventory.Inventory{
		embeddedRecord(t, client, "a.xlsx", "summary a"),
		embeddedRecord(t, client, "b.xlsx", "summary b"),
	}
	invPath := filepath.Join(dir, "inventory.json")
	if err := inventory.Save(invPath, inv); err != nil {
		t.Fatal(err)
	}
	// Index built from only the first record.
	idx, err := vector.NewFlatIndex([][]float32{inv[0].EmbeddingVector}, inv.Checksum())
	if err != nil {
		t.Fatal(err)
	}
	idxPath := filepath.Join(dir, "index.bin")
	if err := idx.Save(idxPath); err != nil {
		t.Fatal(err)
	}

	_, err = NewService(client, invPath, idxPath, 2, zap.NewNop())
	if !errors.Is(err, ErrIndexOutOfSync) {
		t.Errorf("err = %v, want ErrIndexOutOfSync", err)
	}
}

func TestNewService_ChecksumMismatch(t *testing.T) {
	client := llm.NewMockClient(8)
	dir := t.TempDir()
	inv := inventory.Inventory{embeddedRecord(t, client, "a.xlsx", "summary a")}
	invPath := filepath.Join(dir, "inventory.json")
	if err := inventory.Save(invPath, inv); err != nil {
		t.Fatal(err)
	}
	stale := sha256.Sum256([]byte("artifacts from an older build"))
	idx, err := vector.NewFlatIndex([][]float32{inv[0].EmbeddingVector}, stale)
	if err != nil {
		t.Fatal(err)
	}
	idxPath := filepath.Join(dir, "index.bin")
	if err := idx.Save(idxPath); err != nil {
		t.Fatal(err)
	}

	_, err = NewService(client, invPath, idxPath, 2, zap.NewNop())
	if !errors.Is(err, ErrIndexOutOfSync) {
		t.Errorf("err = %v, want ErrIndexOutOfSync", err)
	}
}

func TestReload_MismatchKeepsPreviousArtifacts(t *testing.T) {
	client := llm.NewMockClient(8)
	dir := t.TempDir()
	inv := inventory.Inventory{embeddedRecord(t, client, "a.xlsx", "summary a")}
	invPath, idxPath := writeArtifacts(t, dir, inv)

	svc, err := NewService(client, invPath, idxPath, 2, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	// Rewrite the inventory without rebuilding the index.
	grown := append(inv, embeddedRecord(t, client, "b.xlsx", "summary b"))
	if err := inventory.Save(invPath, grown); err != nil {
		t.Fatal(err)
	}
	if err := svc.Reload(); !errors.Is(err, ErrIndexOutOfSync) {
		t.Fatalf("Reload err = %v, want ErrIndexOutOfSync", err)
	}

	// The service still answers from the last good pair.
	got, err := svc.Search(context.Background(), "summary a")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].FileName != "a.xlsx" {
		t.Errorf("results after failed reload = %v", got)
	}
}
