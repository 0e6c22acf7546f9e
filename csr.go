package distspmv

// CommPlan is the communication plan spec.md §3/§4.E attaches to a
// DistCSR once ReconcileCommunications has run. It stays valid until the
// sparsity pattern changes.
type CommPlan struct {
	// NumSendInds[r] / SendDisps: how many of this rank's own row values
	// rank r will fetch, and the prefix-sum displacement into
	// RHSSendInds for rank r's chunk. SendDisps has length RankCount+1.
	NumSendInds []int
	SendDisps   []int
	// RHSSendInds holds, per remote rank in rank order, the global row
	// indices of this rank's own rows that rank wants (concatenated).
	RHSSendInds []int

	// NumRecInds[r] / RecDisps: how many values this rank must receive
	// from rank r, and the prefix-sum displacement of rank r's chunk
	// inside the extended operand buffer's received region. RecDisps has
	// length RankCount+1.
	NumRecInds   []int
	RecDisps     []int
	TotalRecInds int

	// LocalColInds is parallel to DistCSR.ColIndexes: LocalColInds[k] is
	// the position in the extended operand buffer (one-based; values in
	// [localRowLo, localRowHi] address owned rows directly, values in
	// (localRowHi, localRowHi+TotalRecInds] address received entries)
	// where ColIndexes[k]'s value will be found at product time.
	LocalColInds []int
}

// productCache holds the iterated product kernel's reusable buffers.
// spec.md §9 prefers attaching this cache to the matrix handle over
// hidden process-wide state; SpMVSeries does exactly that via
// DistCSR.cache. SpMM does not use this cache and allocates its buffers
// on every call.
type productCache struct {
	uResize  []complex128
	sendVals []complex128
}

// DistCSR is the distributed CSR representation spec.md §3 describes: the
// subset of rows this rank owns, as three parallel arrays plus the
// communication plan attached by ReconcileCommunications. Fields mirror
// the teacher's Matrix struct (model.go in edp1096-sparse) generalized
// from linked-list Element chains to flat CSR arrays, keeping the
// teacher's one-based row/column addressing convention throughout.
type DistCSR struct {
	Rows, Cols int
	Tag        string
	Config     Config

	// RowStarts has length LocalRowCount()+1. RowStarts[0] is the
	// one-based global position of this rank's first local nonzero in
	// the concatenated global value stream; RowStarts[i]-RowStarts[i-1]
	// is local row i's nonzero count.
	RowStarts []int
	// ColIndexes holds the one-based global column index of each local
	// nonzero; Values holds the matching complex128 entry.
	ColIndexes []int
	Values     []complex128

	Plan *CommPlan

	localRowLo, localRowHi int
	cache                  *productCache
}

// LocalRowRange returns the inclusive, one-based [lo, hi] global row range
// this rank owns.
func (m *DistCSR) LocalRowRange() (lo, hi int) { return m.localRowLo, m.localRowHi }

// LocalRowCount returns the number of rows this rank owns.
func (m *DistCSR) LocalRowCount() int {
	n := m.localRowHi - m.localRowLo + 1
	if n < 0 {
		return 0
	}
	return n
}

// LocalNonzeroCount returns the number of nonzeros this rank holds.
func (m *DistCSR) LocalNonzeroCount() int { return len(m.ColIndexes) }

// ExtendedBufferSize returns the size of the per-rank extended operand
// buffer (owned rows plus every entry this rank will receive), valid only
// after ReconcileCommunications has run.
func (m *DistCSR) ExtendedBufferSize() int {
	if m.Plan == nil {
		return m.LocalRowCount()
	}
	return m.LocalRowCount() + m.Plan.TotalRecInds
}

// ResetIterationCache discards the iterated product kernel's cached
// buffers, mirroring the sentinel call spec.md §4.F defines
// (start_it==0 && max_it==0).
func (m *DistCSR) ResetIterationCache() { m.cache = nil }

// rowLocalOffsets returns the zero-based physical slice bounds
// [start, end) into ColIndexes/Values for local row i (zero-based).
func (m *DistCSR) rowLocalOffsets(i int) (start, end int) {
	base := m.RowStarts[0]
	return m.RowStarts[i] - base, m.RowStarts[i+1] - base
}

func validateSortedColumns(m *DistCSR) error {
	for i := 0; i < m.LocalRowCount(); i++ {
		start, end := m.rowLocalOffsets(i)
		for j := start + 1; j < end; j++ {
			if m.ColIndexes[j] <= m.ColIndexes[j-1] {
				return &OrderingViolation{LocalRow: m.localRowLo + i}
			}
		}
	}
	return nil
}

// GlobalCSR is the whole, unpartitioned matrix as held (conceptually) by a
// root rank before DistributeCSR scatters it. RowStarts has length
// Rows+1, one-based positions; ColIndexes/Values have length
// RowStarts[Rows]-1.
type GlobalCSR struct {
	Rows, Cols int
	Tag        string
	RowStarts  []int
	ColIndexes []int
	Values     []complex128
}

// GlobalMatrix is a dense row-major matrix, used only for the
// distribute/gather primitives' input/output on the root rank and for
// reference computations in tests.
type GlobalMatrix struct {
	Rows, Cols int
	Data       []complex128
}

// At returns the one-based (row, col) entry.
func (g *GlobalMatrix) At(row, col int) complex128 {
	return g.Data[(row-1)*g.Cols+(col-1)]
}

// Triple is a single (row, column, value) nonzero, one-based, used to
// build a GlobalCSR the way other_examples/vladimir-ch-iterative__triplet.go
// accumulates a sparse matrix before converting it to a compressed form.
type Triple struct {
	Row, Col int
	Value    complex128
}

// CSRFromTriples assembles a set of (row, col, value) triples into a
// GlobalCSR, sorting each row's columns ascending. Triples are expected to
// name distinct (row, col) pairs; duplicates are kept as separate
// nonzeros in row order rather than summed, which is sufficient for the
// construction needs of tests and the demo command.
func CSRFromTriples(rows, cols int, triples []Triple) *GlobalCSR {
	rowCounts := make([]int, rows+1)
	for _, t := range triples {
		rowCounts[t.Row]++
	}

	rowStarts := make([]int, rows+1)
	rowStarts[0] = 1
	for r := 1; r <= rows; r++ {
		rowStarts[r] = rowStarts[r-1] + rowCounts[r]
	}
	total := rowStarts[rows] - 1

	colIndexes := make([]int, total)
	values := make([]complex128, total)
	cursor := append([]int(nil), rowStarts[:rows]...)
	for _, t := range triples {
		slot := cursor[t.Row-1] - 1
		colIndexes[slot] = t.Col
		values[slot] = t.Value
		cursor[t.Row-1]++
	}

	for r := 0; r < rows; r++ {
		start, end := rowStarts[r]-1, rowStarts[r+1]-1
		sortColumnValues(colIndexes[start:end], values[start:end])
	}

	return &GlobalCSR{
		Rows: rows, Cols: cols,
		RowStarts:  rowStarts,
		ColIndexes: colIndexes,
		Values:     values,
	}
}
