package rquery

import "testing"

func TestBestIndexRowidEqualityWins(t *testing.T) {
	constraints := []Constraint{
		{Ref: ColumnRef{IsRowid: true}, Usable: true, Op: OpEqual},
		{Ref: ColumnRef{Column: "age"}, Usable: true, Op: OpEqual, Indexed: true},
	}
	plan := BestIndex(constraints, 1000)
	if plan.ScanType != RowidLookup || plan.Cost != 1 || plan.Rows != 1 {
		t.Fatalf("plan = %+v, want RowidLookup cost=1 rows=1", plan)
	}
}

func TestBestIndexPrimaryKeyEqualityIsSingleLookup(t *testing.T) {
	constraints := []Constraint{
		{Ref: ColumnRef{Column: "id"}, Usable: true, Op: OpEqual, Indexed: true, PrimaryKey: true},
	}
	plan := BestIndex(constraints, 1000)
	if plan.ScanType != IndexSingleLookup || plan.Cost != 10 {
		t.Fatalf("plan = %+v, want IndexSingleLookup cost=10", plan)
	}
}

func TestBestIndexNonUniqueEqualityIsIndexEquality(t *testing.T) {
	constraints := []Constraint{
		{Ref: ColumnRef{Column: "age"}, Usable: true, Op: OpEqual, Indexed: true},
	}
	plan := BestIndex(constraints, 1000)
	if plan.ScanType != IndexEquality || plan.Cost != 10 {
		t.Fatalf("plan = %+v, want IndexEquality cost=10", plan)
	}
}

func TestBestIndexRangeBeatsFullScanButNotEquality(t *testing.T) {
	twoSided := []Constraint{
		{Ref: ColumnRef{Column: "age"}, Usable: true, Op: OpGreaterEqual, Indexed: true},
		{Ref: ColumnRef{Column: "age"}, Usable: true, Op: OpLessEqual, Indexed: true},
	}
	plan := BestIndex(twoSided, 1000)
	if plan.ScanType != IndexRange || plan.Cost != 100 {
		t.Fatalf("plan = %+v, want IndexRange cost=100", plan)
	}
	if plan.RangeLowerIndex != 0 || plan.RangeUpperIndex != 1 {
		t.Fatalf("plan = %+v, want RangeLowerIndex=0 RangeUpperIndex=1", plan)
	}

	oneSided := []Constraint{
		{Ref: ColumnRef{Column: "age"}, Usable: true, Op: OpGreaterEqual, Indexed: true},
	}
	plan = BestIndex(oneSided, 1000)
	if plan.ScanType != FullScan {
		t.Fatalf("an open-ended bound has no matching upper constraint, want FullScan, got %v", plan.ScanType)
	}

	mixed := []Constraint{
		{Ref: ColumnRef{Column: "age"}, Usable: true, Op: OpGreaterEqual, Indexed: true},
		{Ref: ColumnRef{Column: "age"}, Usable: true, Op: OpLessEqual, Indexed: true},
		{Ref: ColumnRef{Column: "id"}, Usable: true, Op: OpEqual, Indexed: true, PrimaryKey: true},
	}
	plan = BestIndex(mixed, 1000)
	if plan.ScanType != IndexSingleLookup {
		t.Fatalf("equality constraint should win over a range constraint, got %v", plan.ScanType)
	}
}

func TestBestIndexUnindexedConstraintFallsBackToFullScan(t *testing.T) {
	constraints := []Constraint{
		{Ref: ColumnRef{Column: "name"}, Usable: true, Op: OpEqual, Indexed: false},
	}
	plan := BestIndex(constraints, 500)
	if plan.ScanType != FullScan || plan.Cost != 500 || plan.Rows != 500 {
		t.Fatalf("plan = %+v, want FullScan cost=500 rows=500", plan)
	}
}

func TestBestIndexSkipsUnusableConstraints(t *testing.T) {
	constraints := []Constraint{
		{Ref: ColumnRef{IsRowid: true}, Op: OpEqual, Usable: false},
		{Ref: ColumnRef{Column: "id"}, Op: OpEqual, Indexed: true, PrimaryKey: true, Usable: false},
	}
	plan := BestIndex(constraints, 200)
	if plan.ScanType != FullScan {
		t.Fatalf("unusable constraints must not drive the plan, got %v", plan.ScanType)
	}
}

func TestBestIndexSourceEqualityIsCostNeutral(t *testing.T) {
	constraints := []Constraint{
		{Ref: ColumnRef{IsSource: true}, Usable: true, Op: OpEqual},
	}
	plan := BestIndex(constraints, 500)
	if plan.ScanType != FullScan {
		t.Fatalf("a bare _source constraint should not change the scan type, got %v", plan.ScanType)
	}
	if plan.SourceConstraintIndex != 0 {
		t.Fatalf("SourceConstraintIndex = %d, want 0", plan.SourceConstraintIndex)
	}
}
