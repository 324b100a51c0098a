package registry

import (
	"errors"
	"testing"

	"github.com/leengari/recordb"
	"github.com/leengari/recordb/internal/schemaidl"
)

func newTestDatabase(t *testing.T, name string) *recordb.Database {
	t.Helper()
	schema := schemaidl.NewDatabaseSchema(name)
	db, err := recordb.NewDatabase(*schema)
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	return db
}

func TestGetOpensOnceAndCaches(t *testing.T) {
	opens := 0
	r := New(func(name string) (*recordb.Database, error) {
		opens++
		return newTestDatabase(t, name), nil
	})

	first, err := r.Get("orders")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := r.Get("orders")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first != second {
		t.Fatal("expected the same *Database on a cache hit")
	}
	if opens != 1 {
		t.Fatalf("expected OpenFunc called once, got %d", opens)
	}
}

func TestGetPropagatesOpenError(t *testing.T) {
	wantErr := errors.New("boom")
	r := New(func(name string) (*recordb.Database, error) {
		return nil, wantErr
	})

	if _, err := r.Get("broken"); !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped %v, got %v", wantErr, err)
	}
}

func TestNamesAndClose(t *testing.T) {
	r := New(func(name string) (*recordb.Database, error) {
		return newTestDatabase(t, name), nil
	})
	if _, err := r.Get("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get("b"); err != nil {
		t.Fatal(err)
	}

	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(r.Names()) != 0 {
		t.Fatal("expected registry empty after Close")
	}
}
