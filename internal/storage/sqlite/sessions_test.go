package sqlite

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/yegors/telegate/pkg/logger"
)

func newTestStorage(t *testing.T) *SessionStorage {
	t.Helper()
	storage, err := NewSessionStorage(filepath.Join(t.TempDir(), "sessions.db"), logger.NewNop())
	if err != nil {
		t.Fatalf("NewSessionStorage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestSessionRoundTrip(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	if _, err := storage.Load(ctx, "a1b2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load on empty storage: %v", err)
	}

	if err := storage.Store(ctx, "a1b2", []byte(`{"Version":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := storage.Store(ctx, "a1b2", []byte(`{"Version":2}`)); err != nil {
		t.Fatal(err)
	}

	data, err := storage.Load(ctx, "a1b2")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte(`{"Version":2}`)) {
		t.Errorf("Load = %s", data)
	}

	records, err := storage.Records(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Key != "a1b2" || records[0].Size != len(data) {
		t.Errorf("records = %+v", records)
	}
}

func TestSessionDelete(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	if err := storage.Store(ctx, "k", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := storage.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if err := storage.Delete(ctx, "k"); err != nil {
		t.Errorf("second delete: %v", err)
	}
	if _, err := storage.Load(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after delete: %v", err)
	}
}

func TestSessionsPersistAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	first, err := NewSessionStorage(path, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Store(ctx, "fp", []byte("blob")); err != nil {
		t.Fatal(err)
	}
	first.Close()

	second, err := NewSessionStorage(path, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	data, err := second.Load(ctx, "fp")
	if err != nil || string(data) != "blob" {
		t.Errorf("Load after reopen = %q, %v", data, err)
	}
}
