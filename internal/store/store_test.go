package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestParseSection(t *testing.T) {
	tests := []struct {
		in   string
		want Section
	}{
		{"props", SectionProps},
		{"api", SectionAPI},
		{"usage", SectionUsage},
		{"styling", SectionStyling},
		{"plan", SectionPlan},
		{"rules", SectionRules},
		{"", SectionUnknown},
		{"v1_component", SectionUnknown},
	}

	for _, tt := range tests {
		if got := ParseSection(tt.in); got != tt.want {
			t.Errorf("ParseSection(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVectorCodec_RoundTrip(t *testing.T) {
	v := []float32{0.1, -2.5, 3.75, 0}
	decoded, err := decodeVector(encodeVector(v))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(v) {
		t.Fatalf("expected %d floats, got %d", len(v), len(decoded))
	}
	for i := range v {
		if decoded[i] != v[i] {
			t.Errorf("element %d: got %v, want %v", i, decoded[i], v[i])
		}
	}
}

func TestVectorCodec_Empty(t *testing.T) {
	if b := encodeVector(nil); b != nil {
		t.Errorf("expected nil blob for nil vector, got %v", b)
	}
	v, err := decodeVector(nil)
	if err != nil || v != nil {
		t.Errorf("expected nil vector for nil blob, got %v, %v", v, err)
	}
}

func TestVectorCodec_CorruptBlob(t *testing.T) {
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for blob length not divisible by 4")
	}
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_PutReplacesExisting(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Put(ctx, &Record{ID: "r1", Repository: "modus-v1", Section: SectionProps, Text: "stale"}); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := s.Put(ctx, &Record{ID: "r1", Repository: "modus-v1", Section: SectionProps, Text: "fresh"}); err != nil {
		t.Fatalf("second put: %v", err)
	}

	out, err := s.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Text != "fresh" {
		t.Errorf("expected replaced text, got %q", out.Text)
	}
	recs, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("expected single record after replace, got %d", len(recs))
	}
}

func TestMemoryStore_ListAllOrdered(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		if err := s.Put(ctx, &Record{ID: id, Section: SectionUsage}); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}

	recs, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(recs) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(recs))
	}
	for i, id := range want {
		if recs[i].ID != id {
			t.Errorf("position %d: got %q, want %q", i, recs[i].ID, id)
		}
	}
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "context.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	in := Record{
		ID:         "alert-props-0",
		Repository: "modus-v1",
		Section:    SectionProps,
		Text:       "PROPS - modus-alert:\nmessage: the alert text",
		TokenCount: 12,
		Embedding:  []float32{0.25, -0.5, 1},
	}
	if err := s.Put(ctx, &in); err != nil {
		t.Fatalf("put: %v", err)
	}

	out, err := s.Get(ctx, in.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Repository != in.Repository || out.Section != in.Section || out.Text != in.Text || out.TokenCount != in.TokenCount {
		t.Errorf("record mismatch: got %+v", out)
	}
	if len(out.Embedding) != 3 || out.Embedding[2] != 1 {
		t.Errorf("embedding mismatch: got %v", out.Embedding)
	}

	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_PutBatchAndListAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "context.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	batch := []Record{
		{ID: "b", Section: SectionUsage, Text: "two"},
		{ID: "a", Section: SectionAPI, Text: "one"},
	}
	if err := s.PutBatch(ctx, batch); err != nil {
		t.Fatalf("put batch: %v", err)
	}

	recs, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "a" || recs[1].ID != "b" {
		t.Errorf("expected ordered [a b], got %+v", recs)
	}
}

func TestSQLiteStore_PutBatchReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "context.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	first := []Record{{ID: "modus-v2/modus-alert/usage/000", Repository: "modus-v2", Section: SectionUsage, Text: "alert usage", TokenCount: 3}}
	if err := s.PutBatch(ctx, first); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	second := []Record{{ID: "modus-v2/modus-alert/usage/000", Repository: "modus-v2", Section: SectionUsage, Text: "alert usage, revised", TokenCount: 5}}
	if err := s.PutBatch(ctx, second); err != nil {
		t.Fatalf("second batch: %v", err)
	}

	recs, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected single record after replace, got %d", len(recs))
	}
	if recs[0].Text != "alert usage, revised" || recs[0].TokenCount != 5 {
		t.Errorf("expected replaced record, got %+v", recs[0])
	}
}

func TestSQLiteStore_MigrationIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "context.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	s.Close()

	// Reopening must not re-run applied migrations.
	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	s.Close()
}
