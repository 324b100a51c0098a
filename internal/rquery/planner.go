package rquery

// ConstraintOp is the operator a SQL constraint applies to one
// column, mirroring what an embedded engine's BestIndex callback
// reports.
type ConstraintOp int

const (
	OpEqual ConstraintOp = iota
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
)

// ColumnRef identifies which column a constraint applies to: either
// a real TableDef column by name, the hidden rowid, or the virtual
// `_source` column.
type ColumnRef struct {
	IsRowid  bool
	IsSource bool
	Column   string
}

// Constraint is one WHERE-clause term the planner considers.
type Constraint struct {
	Ref ColumnRef
	Op  ConstraintOp
	// Usable mirrors the engine's usability flag; an unusable
	// constraint must not contribute to the chosen plan.
	Usable bool
	// Indexed reports whether Ref.Column (when not rowid/source) has a
	// secondary index; the planner cannot pick IndexEquality/IndexRange
	// without one.
	Indexed bool
	// PrimaryKey reports whether Ref.Column is the table's primary key,
	// selecting IndexSingleLookup over IndexEquality for an equality
	// constraint.
	PrimaryKey bool
}

// Plan is the planner's verdict: a scan strategy plus the SQLite-style
// cost and estimated-row-count pair the engine uses to compare plans
// across virtual tables.
type Plan struct {
	ScanType ScanType
	Cost     float64
	Rows     int64
	// ConstraintIndex names which input Constraint (by slice index)
	// the Filter call must bind for RowidLookup/IndexEquality/
	// IndexSingleLookup, or -1 otherwise.
	ConstraintIndex int
	// RangeLowerIndex/RangeUpperIndex name the >=/> and <=/< input
	// Constraints an IndexRange plan must bind, or -1 if that side is
	// open-ended (in which case the planner never picks IndexRange:
	// Index.Range needs both bounds).
	RangeLowerIndex int
	RangeUpperIndex int
	// SourceConstraintIndex records the `_source = ?` constraint, if one
	// was present; -1 if none. It does not change the plan, and the
	// cursor performs no early termination on it.
	SourceConstraintIndex int
}

// BestIndex picks a scan strategy for constraints against a table
// with totalRecords records, following the tie-break table: equality
// beats range, range beats full scan, and a strategy is never
// replaced by a less selective one.
func BestIndex(constraints []Constraint, totalRecords int64) Plan {
	best := Plan{
		ScanType: FullScan, Cost: float64(totalRecords), Rows: totalRecords,
		ConstraintIndex: -1, RangeLowerIndex: -1, RangeUpperIndex: -1, SourceConstraintIndex: -1,
	}

	for i, c := range constraints {
		if c.Usable && c.Ref.IsSource && c.Op == OpEqual {
			best.SourceConstraintIndex = i
		}
	}

	lowerByCol := make(map[string]int)
	upperByCol := make(map[string]int)

	for i, c := range constraints {
		if !c.Usable {
			continue
		}
		switch {
		case c.Ref.IsRowid && c.Op == OpEqual:
			// Cost 1 is maximally selective; nothing beats it.
			best.ScanType = RowidLookup
			best.Cost = 1
			best.Rows = 1
			best.ConstraintIndex = i
			return best

		case !c.Ref.IsRowid && !c.Ref.IsSource && c.Op == OpEqual && c.Indexed:
			scanType := IndexEquality
			if c.PrimaryKey {
				scanType = IndexSingleLookup
			}
			if better(scanType, 10, best.ScanType) {
				best.ScanType = scanType
				best.Cost = 10
				best.Rows = estimateRows(10, totalRecords)
				best.ConstraintIndex = i
				best.RangeLowerIndex, best.RangeUpperIndex = -1, -1
			}

		case !c.Ref.IsRowid && !c.Ref.IsSource && c.Indexed && isLowerBound(c.Op):
			lowerByCol[c.Ref.Column] = i

		case !c.Ref.IsRowid && !c.Ref.IsSource && c.Indexed && isUpperBound(c.Op):
			upperByCol[c.Ref.Column] = i
		}
	}

	for col, lowerIdx := range lowerByCol {
		upperIdx, ok := upperByCol[col]
		if !ok {
			continue // Index.Range needs both ends; an open-ended bound stays a full scan.
		}
		if better(IndexRange, 100, best.ScanType) {
			best.ScanType = IndexRange
			best.Cost = 100
			best.Rows = estimateRows(100, totalRecords)
			best.ConstraintIndex = -1
			best.RangeLowerIndex = lowerIdx
			best.RangeUpperIndex = upperIdx
		}
	}

	return best
}

func isLowerBound(op ConstraintOp) bool {
	return op == OpGreater || op == OpGreaterEqual
}

func isUpperBound(op ConstraintOp) bool {
	return op == OpLess || op == OpLessEqual
}

// selectivityRank orders scan types from most to least selective, so
// better() never lets a less selective strategy replace a more
// selective one already chosen.
func selectivityRank(s ScanType) int {
	switch s {
	case RowidLookup:
		return 0
	case IndexSingleLookup, IndexEquality:
		return 1
	case IndexRange:
		return 2
	default: // FullScan
		return 3
	}
}

func better(candidate ScanType, candidateCost float64, current ScanType) bool {
	return selectivityRank(candidate) < selectivityRank(current)
}

func estimateRows(cost float64, totalRecords int64) int64 {
	if cost == 10 {
		if totalRecords < 10 {
			return totalRecords
		}
		return 10
	}
	if cost == 100 {
		est := totalRecords / 10
		if est < 1 {
			est = 1
		}
		return est
	}
	return totalRecords
}
