package rtable

import (
	"errors"
	"testing"

	"github.com/leengari/recordb/internal/recordlog"
	"github.com/leengari/recordb/internal/rindex"
	"github.com/leengari/recordb/internal/schemaidl"
)

func userTableDef() schemaidl.TableDef {
	return schemaidl.TableDef{
		Name: "users",
		Columns: []schemaidl.ColumnDef{
			{Name: "id", Type: schemaidl.TypeInt64, PrimaryKey: true, Indexed: true},
			{Name: "age", Type: schemaidl.TypeInt64, Indexed: true},
			{Name: "name", Type: schemaidl.TypeString},
		},
		PrimaryKeyColumns: []string{"id"},
	}
}

// fixedWidthExtractor reads id from body[0] and age from body[1], one
// byte each; name is not modeled and reads as null.
func fixedWidthExtractor(body []byte, column string) rindex.Value {
	switch column {
	case "id":
		return rindex.Int64(int64(body[0]))
	case "age":
		return rindex.Int64(int64(body[1]))
	default:
		return rindex.Null()
	}
}

func TestOnIngestIndexesConfiguredColumns(t *testing.T) {
	log := recordlog.New()
	store := NewStore(userTableDef(), log)
	store.SetExtractors(fixedWidthExtractor, nil, nil)

	store.OnIngest([]byte{1, 30}, 1, 0)
	store.OnIngest([]byte{2, 40}, 2, 10)

	if store.RecordCount() != 2 {
		t.Fatalf("RecordCount = %d, want 2", store.RecordCount())
	}

	e, found, err := store.FindByIndex("id", rindex.Int64(2))
	if err != nil {
		t.Fatalf("FindByIndex: %v", err)
	}
	if !found || e.Sequence != 2 {
		t.Fatalf("FindByIndex(id=2) = %+v, found=%v", e, found)
	}

	entries, err := store.FindByRange("age", rindex.Int64(25), rindex.Int64(35))
	if err != nil {
		t.Fatalf("FindByRange: %v", err)
	}
	if len(entries) != 1 || entries[0].Sequence != 1 {
		t.Fatalf("FindByRange(age in [25,35]) = %+v", entries)
	}
}

func TestOnIngestWithNoExtractorLeavesIndexesEmpty(t *testing.T) {
	log := recordlog.New()
	store := NewStore(userTableDef(), log)

	store.OnIngest([]byte{1, 30}, 1, 0)

	if store.RecordCount() != 1 {
		t.Fatalf("RecordCount = %d, want 1", store.RecordCount())
	}
	idx, ok := store.Index("id")
	if !ok {
		t.Fatalf("expected an id index to exist")
	}
	if idx.Count() != 0 {
		t.Fatalf("idx.Count() = %d, want 0 with no extractor configured", idx.Count())
	}
}

func TestFindByIndexOnUnindexedColumnReturnsNotIndexedError(t *testing.T) {
	log := recordlog.New()
	store := NewStore(userTableDef(), log)

	_, _, err := store.FindByIndex("name", rindex.String("alice"))
	var notIndexed *NotIndexedError
	if !errors.As(err, &notIndexed) {
		t.Fatalf("expected *NotIndexedError, got %T: %v", err, err)
	}
}

func TestCloneForSourceSnapshotsFileIDAndExtractors(t *testing.T) {
	log := recordlog.New()
	base := NewStore(userTableDef(), log)
	base.SetFileID(recordlog.FileID{'U', 'S', 'E', 'R'})
	base.SetExtractors(fixedWidthExtractor, nil, nil)

	sibling := base.cloneForSource("east")

	if sibling.SourceName() != "east" {
		t.Fatalf("SourceName() = %q, want east", sibling.SourceName())
	}
	if sibling.FileID() != base.FileID() {
		t.Fatalf("sibling FileID = %v, want %v", sibling.FileID(), base.FileID())
	}
	if sibling.FieldExtractor() == nil {
		t.Fatalf("sibling should inherit the base store's field extractor")
	}

	// Changing the base's file identifier after cloning must not
	// retroactively affect the already-cloned sibling.
	base.SetFileID(recordlog.FileID{'O', 'T', 'H', 'R'})
	if sibling.FileID() == base.FileID() {
		t.Fatalf("sibling FileID changed after base was re-bound post-clone")
	}
}
