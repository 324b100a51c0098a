package rindex

import (
	"math"
	"testing"
)

func TestSearchReturnsExactMatchesInInsertionOrder(t *testing.T) {
	idx := New()
	if err := idx.Insert(Int64(5), 0, 10, 1); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := idx.Insert(Int64(5), 10, 10, 2); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := idx.Insert(Int64(7), 20, 10, 3); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got := idx.Search(Int64(5))
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].Sequence != 1 || got[1].Sequence != 2 {
		t.Fatalf("got = %+v, want sequences [1 2]", got)
	}
}

func TestSearchFirstSpecializations(t *testing.T) {
	idx := New()
	idx.Insert(Int64(42), 0, 4, 1)
	idx.Insert(String("hello"), 4, 5, 2)

	if e, ok := idx.SearchFirstInt64(42); !ok || e.Sequence != 1 {
		t.Fatalf("SearchFirstInt64 = %+v, %v", e, ok)
	}
	if e, ok := idx.SearchFirstString("hello"); !ok || e.Sequence != 2 {
		t.Fatalf("SearchFirstString = %+v, %v", e, ok)
	}
	if _, ok := idx.SearchFirstInt64(99); ok {
		t.Fatalf("expected no match for missing key")
	}
}

func TestRangeInclusiveBothEnds(t *testing.T) {
	idx := New()
	for i, v := range []int64{10, 20, 30, 40, 50} {
		idx.Insert(Int64(v), uint64(i), 1, uint64(i+1))
	}

	got := idx.Range(Int64(20), Int64(40))
	if len(got) != 3 {
		t.Fatalf("len(got) = %d, want 3", len(got))
	}
	for i, want := range []int64{20, 30, 40} {
		if got[i].Key.Int() != want {
			t.Fatalf("got[%d].Key = %d, want %d", i, got[i].Key.Int(), want)
		}
	}
}

func TestInsertRejectsNaN(t *testing.T) {
	idx := New()
	if err := idx.Insert(Float64(math.NaN()), 0, 0, 1); err == nil {
		t.Fatalf("expected CoercionError for NaN key")
	}
}

func TestCrossTagOrderingAndNullEquality(t *testing.T) {
	idx := New()
	idx.Insert(Null(), 0, 0, 1)
	idx.Insert(Bool(true), 1, 0, 2)
	idx.Insert(String("a"), 2, 0, 3)

	all := idx.All()
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	if all[0].Key.Kind() != KindNull {
		t.Fatalf("first entry should be null, got kind %v", all[0].Key.Kind())
	}

	nulls := idx.Search(Null())
	if len(nulls) != 1 {
		t.Fatalf("null search = %d, want 1", len(nulls))
	}
}

func TestClearEmptiesIndex(t *testing.T) {
	idx := New()
	idx.Insert(Int64(1), 0, 0, 1)
	idx.Clear()
	if idx.Count() != 0 {
		t.Fatalf("count = %d, want 0 after clear", idx.Count())
	}
}
