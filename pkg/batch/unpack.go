package batch

// ResultKind tags the shape of an unpacked query result
type ResultKind int

const (
	// ResultEmpty is a query that returned no rows
	ResultEmpty ResultKind = iota
	// ResultScalar is exactly one row with exactly one column
	ResultScalar
	// ResultRow is exactly one row with several columns
	ResultRow
	// ResultRowSet is more than one row
	ResultRowSet
)

func (k ResultKind) String() string {
	switch k {
	case ResultEmpty:
		return "empty"
	case ResultScalar:
		return "scalar"
	case ResultRow:
		return "row"
	case ResultRowSet:
		return "rowset"
	default:
		return "unknown"
	}
}

// TabularResult is a query result reduced to the shape downstream renderers use
type TabularResult struct {
	Kind   ResultKind
	Scalar any
	Row    map[string]any
	Rows   []map[string]any
}

// Unpack reduces rows to a TabularResult. The rules decide whether a
// placeholder renders as a single value or as a table, so they must not change.
func Unpack(rows []map[string]any) TabularResult {
	switch {
	case len(rows) == 0:
		return TabularResult{Kind: ResultEmpty}
	case len(rows) > 1:
		return TabularResult{Kind: ResultRowSet, Rows: rows}
	case len(rows[0]) == 1:
		for _, v := range rows[0] {
			return TabularResult{Kind: ResultScalar, Scalar: v}
		}
	}

	return TabularResult{Kind: ResultRow, Row: rows[0]}
}

// Value returns nil, the scalar, the row or the row set
func (r TabularResult) Value() any {
	switch r.Kind {
	case ResultScalar:
		return r.Scalar
	case ResultRow:
		return r.Row
	case ResultRowSet:
		return r.Rows
	default:
		return nil
	}
}
