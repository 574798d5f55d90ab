package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/kotaeru/internal/extract"
	"github.com/hyperjump/kotaeru/internal/inventory"
	"github.com/hyperjump/kotaeru/internal/llm"
	"github.com/hyperjump/kotaeru/internal/vector"
)

func writeXLSX(t *testing.T, dir, name string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetRow("Sheet1", "A1", &[]interface{}{"ID", "Value"}); err != nil {
		t.Fatal(err)
	}
	if err := f.SetSheetRow("Sheet1", "A2", &[]interface{}{1, 10}); err != nil {
		t.Fatal(err)
	}
	if err := f.SaveAs(filepath.Join(dir, name)); err != nil {
		t.Fatal(err)
	}
}

func newTestBuilder(t *testing.T, dir string) (*Builder, string, string) {
	t.Helper()
	client := llm.NewMockClient(8)
	client.CompleteResponse = "test summary"
	artifacts := t.TempDir()
	invPath := filepath.Join(artifacts, "inventory.json")
	idxPath := filepath.Join(artifacts, "index.bin")
	b := New(dir, invPath, idxPath, extract.NewExtractor(client), zap.NewNop())
	return b, invPath, idxPath
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	writeXLSX(t, dir, "b.xlsx")
	writeXLSX(t, dir, "a.xlsx")

	b, invPath, idxPath := newTestBuilder(t, dir)
	n, err := b.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("records = %d, want 2", n)
	}

	inv, err := inventory.Load(invPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(inv) != 2 {
		t.Fatalf("inventory has %d records", len(inv))
	}
	// Directory listing order is sorted, not creation order.
	if inv[0].FileName != "a.xlsx" || inv[1].FileName != "b.xlsx" {
		t.Errorf("record order = %s, %s", inv[0].FileName, inv[1].FileName)
	}

	idx, err := vector.Load(idxPath)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 2 {
		t.Errorf("index size = %d, want 2", idx.Size())
	}
	if idx.Checksum() != inv.Checksum() {
		t.Error("index checksum does not match inventory")
	}
}

func TestBuild_SkipsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	writeXLSX(t, dir, "good.xlsx")
	if err := os.WriteFile(filepath.Join(dir, "bad.xlsx"), []byte("not a workbook"), 0600); err != nil {
		t.Fatal(err)
	}

	b, invPath, _ := newTestBuilder(t, dir)
	n, err := b.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("records = %d, want 1", n)
	}
	inv, err := inventory.Load(invPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(inv) != 1 || inv[0].FileName != "good.xlsx" {
		t.Errorf("inventory = %v", inv)
	}
}

func TestBuild_IgnoresLockFilesAndOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	writeXLSX(t, dir, "data.xlsx")
	for _, name := range []string{"~$data.xlsx", "notes.txt", "legacy.xls"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	b, _, _ := newTestBuilder(t, dir)
	n, err := b.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("records = %d, want 1", n)
	}
}

func TestBuild_EmptyDir(t *testing.T) {
	b, _, _ := newTestBuilder(t, t.TempDir())
	if _, err := b.Build(context.Background()); err == nil {
		t.Error("expected error for directory without spreadsheets")
	}
}

func TestBuild_AllFilesUnreadable(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.xlsx"), []byte("not a workbook"), 0600); err != nil {
		t.Fatal(err)
	}
	b, _, _ := newTestBuilder(t, dir)
	if _, err := b.Build(context.Background()); err == nil {
		t.Error("expected error when no file could be processed")
	}
}
