package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"parking-fines-service/internal/db"
	"parking-fines-service/internal/repository"
)

func openSQLite(t *testing.T, path string) *repository.SQLiteBlobStore {
	t.Helper()
	sqlDB, err := db.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return repository.NewSQLiteBlobStore(sqlDB)
}

func blobStores(t *testing.T) map[string]repository.BlobStore {
	return map[string]repository.BlobStore{
		"memory": repository.NewMemoryBlobStore(),
		"sqlite": openSQLite(t, ":memory:"),
	}
}

func TestBlobStore_GetMissing(t *testing.T) {
	for name, store := range blobStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "missing")
			if !errors.Is(err, repository.ErrBlobNotFound) {
				t.Errorf("got err %v, want ErrBlobNotFound", err)
			}
		})
	}
}

func TestBlobStore_PutReplaces(t *testing.T) {
	ctx := context.Background()
	for name, store := range blobStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Put(ctx, "k", []byte(`[1]`)); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			if err := store.Put(ctx, "k", []byte(`[1,2]`)); err != nil {
				t.Fatalf("second Put failed: %v", err)
			}
			if err := store.Put(ctx, "other", []byte(`[]`)); err != nil {
				t.Fatalf("Put other failed: %v", err)
			}

			got, err := store.Get(ctx, "k")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if string(got) != `[1,2]` {
				t.Errorf("value: got %s, want [1,2]", got)
			}
		})
	}
}

func TestMemoryBlobStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryBlobStore()

	value := []byte("abc")
	store.Put(ctx, "k", value)
	value[0] = 'x'

	got, _ := store.Get(ctx, "k")
	got[1] = 'y'

	again, _ := store.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value leaked: got %s, want abc", again)
	}
}

func TestSQLiteBlobStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "fines.db")

	sqlDB, err := db.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	if err := repository.NewSQLiteBlobStore(sqlDB).Put(ctx, "auto-fines-v1", []byte(`[{"id":"a"}]`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	sqlDB.Close()

	reopened := openSQLite(t, path)
	got, err := reopened.Get(ctx, "auto-fines-v1")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(got) != `[{"id":"a"}]` {
		t.Errorf("value: got %s", got)
	}
}
