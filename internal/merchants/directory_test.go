package merchants

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClassifyUsesTableNotSubstrings(t *testing.T) {
	dir := NewDirectory([]Merchant{
		{ID: "1", Name: "ECCO GB", Region: "europe"},
		{ID: "2", Name: "ECCO US", Region: "global"},
	})
	records := []Status{
		{Name: "ECCO GB"},
		{Name: "ECCO US"},
		{Name: "CATWALK AT"}, // contains "AT", unknown, kept
		{Name: "renamed", AccountID: "2"},
	}

	got := dir.Classify("europe", records)
	if len(got) != 2 {
		t.Fatalf("expected 2 europe records, got %d: %+v", len(got), got)
	}
	if got[0].Name != "ECCO GB" || got[1].Name != "CATWALK AT" {
		t.Fatalf("unexpected classification: %+v", got)
	}

	global := dir.Classify("GLOBAL", records)
	if len(global) != 3 {
		t.Fatalf("expected 3 global records, got %d: %+v", len(global), global)
	}
}

func TestClassifyPlacesByAccountIDAlone(t *testing.T) {
	dir := DefaultDirectory()
	records := []Status{
		{Name: "ECCO GB", AccountID: "X"},         // name is european, id is unknown
		{Name: "ECCO US", AccountID: "115079344"}, // id is ECCO GB
	}

	got := dir.Classify("global", records)
	if len(got) != 1 || got[0].AccountID != "X" {
		t.Fatalf("expected only the unknown id in global, got %+v", got)
	}
	got = dir.Classify("europe", records)
	if len(got) != 2 {
		t.Fatalf("expected both records in europe, got %+v", got)
	}
}

func TestClassifyKeepsEverythingWhenNothingMatches(t *testing.T) {
	dir := DefaultDirectory()
	records := []Status{{Name: "ECCO GB", AccountID: "115079344"}, {Name: "ECCO DE", AccountID: "117076029"}}

	got := dir.Classify("global", records)
	if len(got) != 2 {
		t.Fatalf("expected unfiltered records, got %+v", got)
	}
	if got := dir.Classify("global", nil); len(got) != 0 {
		t.Fatalf("expected no records, got %+v", got)
	}
}

func TestDefaultDirectory(t *testing.T) {
	dir := DefaultDirectory()
	if got := dir.Regions(); len(got) != 2 || got[0] != "global" || got[1] != "europe" {
		t.Fatalf("unexpected regions: %v", got)
	}
	if got := len(dir.InRegion("europe")); got != 5 {
		t.Fatalf("expected 5 europe merchants, got %d", got)
	}
	m, ok := dir.ByID("115079344")
	if !ok || m.Name != "ECCO GB" || m.Parent != europeMCA {
		t.Fatalf("unexpected GB merchant: %+v %v", m, ok)
	}
	if _, ok := dir.ByID(""); ok {
		t.Fatal("empty id must not match")
	}
}

func TestLoadDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merchants.json")
	if err := os.WriteFile(path, []byte(`[{"id":"9","name":"ECCO JP","region":"apac","country":"JP"}]`), 0644); err != nil {
		t.Fatal(err)
	}
	dir, err := LoadDirectory(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m, ok := dir.ByName("ecco jp"); !ok || m.Region != "apac" {
		t.Fatalf("unexpected lookup: %+v %v", m, ok)
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`[{"id":"9"}]`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDirectory(bad); err == nil {
		t.Fatal("expected error for entry without name and region")
	}

	if dir, err := LoadDirectory(""); err != nil || len(dir.InRegion("global")) != 3 {
		t.Fatalf("empty path should give defaults: %v", err)
	}
}
