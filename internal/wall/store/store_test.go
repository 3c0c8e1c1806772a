package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/louisbranch/tagwall/internal/wall"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "wall.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func textDraft(text string) wall.Draft {
	return wall.Draft{
		Kind:     wall.KindText,
		Position: wall.Position{X: 10, Y: 10},
		Opacity:  1,
		Text:     text,
		Font:     "Impact, sans-serif",
		Color:    "#111111",
		Size:     42,
	}
}

func TestAppendThenListRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.Append(ctx, textDraft("first"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected assigned id")
	}
	if first.CreatedAt.IsZero() {
		t.Fatal("expected assigned creation timestamp")
	}

	second, err := s.Append(ctx, textDraft("second"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("expected distinct ids, both %q", first.ID)
	}

	items, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != first.ID || items[1].ID != second.ID {
		t.Fatalf("expected append order preserved, got %q then %q", items[0].ID, items[1].ID)
	}
	if items[0].Text != "first" || items[1].Text != "second" {
		t.Fatalf("expected stored fields to round trip, got %+v", items)
	}
}

func TestAppendRejectsInvalidDraft(t *testing.T) {
	s := openTestStore(t)

	draft := textDraft("hi")
	draft.Opacity = 2
	if _, err := s.Append(context.Background(), draft); !errors.Is(err, wall.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	items, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected rejected draft not persisted, got %d items", len(items))
	}
}

func TestConcurrentAppendsLoseNothing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Append(ctx, textDraft("tag")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent append: %v", err)
	}

	items, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != n {
		t.Fatalf("expected %d items, got %d", n, len(items))
	}
	seen := make(map[string]struct{}, n)
	for _, item := range items {
		if _, ok := seen[item.ID]; ok {
			t.Fatalf("duplicate id %q", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
}

func TestMissingDocumentInitializesEmpty(t *testing.T) {
	s := openTestStore(t)
	items, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty store, got %d items", len(items))
	}
}

func TestCorruptDocumentFailsWithCorruptStoreError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wall.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	if _, err := s.List(context.Background()); !errors.Is(err, ErrCorruptStore) {
		t.Fatalf("expected ErrCorruptStore from list, got %v", err)
	}
	if _, err := s.Append(context.Background(), textDraft("hi")); !errors.Is(err, ErrCorruptStore) {
		t.Fatalf("expected ErrCorruptStore from append, got %v", err)
	}
}

func TestPersistedDocumentIsHumanReadableJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wall.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := s.Append(context.Background(), textDraft("hi")); err != nil {
		t.Fatalf("append: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	var decoded []wall.Item
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Text != "hi" {
		t.Fatalf("unexpected document contents: %+v", decoded)
	}
}

func TestAppendAndListEmitSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	s := openTestStore(t)
	ctx := context.Background()
	if _, err := s.Append(ctx, textDraft("hi")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := s.List(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}

	names := make(map[string]bool)
	for _, span := range recorder.Ended() {
		names[span.Name()] = true
	}
	for _, want := range []string{"store.Append", "store.List"} {
		if !names[want] {
			t.Fatalf("expected span %q, got %v", want, names)
		}
	}
}
