package memory

import (
	"context"
	"testing"

	"finos/internal/core"
	"finos/internal/sheets"
)

func TestStore_Export(t *testing.T) {
	s := New(core.NewConverter())
	if _, ok := s.Last(); ok {
		t.Error("expected no export yet")
	}

	ref, err := s.Export(context.Background(), sheets.Report{Account: "a@x.io", Currency: "EUR"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if ref != "mem:1" {
		t.Errorf("unexpected ref %q", ref)
	}
	if got := s.Reports(); len(got) != 1 || got[0].Account != "a@x.io" {
		t.Errorf("unexpected reports %+v", got)
	}
	grid, ok := s.Last()
	if !ok || grid[0][1] != "a@x.io" {
		t.Errorf("unexpected grid %v", grid)
	}
}
