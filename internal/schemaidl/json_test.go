package schemaidl

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromFileBuildsSchema(t *testing.T) {
	doc := `{
		"name": "shop",
		"tables": {
			"orders": [
				{"name": "id", "type": "int64", "primary_key": true},
				{"name": "amount", "type": "float64", "indexed": true},
				{"name": "note", "type": "string", "nullable": true}
			]
		}
	}`
	path := filepath.Join(t.TempDir(), "schema.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	schema, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if schema.Name != "shop" {
		t.Fatalf("expected name shop, got %q", schema.Name)
	}

	orders, ok := schema.Tables["orders"]
	if !ok {
		t.Fatal("expected an orders table")
	}
	if len(orders.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(orders.Columns))
	}
	idCol, ok := orders.Column("id")
	if !ok || !idCol.PrimaryKey || idCol.Type != TypeInt64 {
		t.Fatalf("expected id to be a primary-key int64 column, got %+v (found=%v)", idCol, ok)
	}
	if len(orders.PrimaryKeyColumns) != 1 || orders.PrimaryKeyColumns[0] != "id" {
		t.Fatalf("expected PrimaryKeyColumns=[id], got %v", orders.PrimaryKeyColumns)
	}
	noteCol, _ := orders.Column("note")
	if !noteCol.Nullable {
		t.Fatal("expected note to be nullable")
	}
}

func TestLoadFromFileRejectsMissingPath(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected an error for a missing schema file")
	}
}
