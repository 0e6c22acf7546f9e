package distspmv

import (
	"context"
	"math/cmplx"
)

// CSRDagger implements the distributed conjugate-transpose of spec.md
// §4.G: every local nonzero (row, col, value) is reinterpreted as a
// triple (newRow=col, newCol=row, value=conj(value)), routed to whichever
// rank owns newRow under table, globally sorted by newRow, and rebuilt
// into a fresh DistCSR with freshly computed RowStarts. m must be square;
// a non-square matrix returns UnsquareDagger.
func CSRDagger(ctx context.Context, comm Comm, m *DistCSR, table PartitionTable) (*DistCSR, error) {
	if m.Rows != m.Cols {
		return nil, &UnsquareDagger{Rows: m.Rows, Cols: m.Cols}
	}

	localRows := m.LocalRowCount()
	n := len(m.ColIndexes)
	newRows := make([]int, n)
	newCols := make([]int, n)
	vals := make([]complex128, n)
	for i := 0; i < localRows; i++ {
		start, end := m.rowLocalOffsets(i)
		oldRow := m.localRowLo + i
		for j := start; j < end; j++ {
			newRows[j] = m.ColIndexes[j]
			newCols[j] = oldRow
			vals[j] = cmplx.Conj(m.Values[j])
		}
	}

	rankCount := table.RankCount()
	sendRowsByRank := make([][]int, rankCount)
	sendColsByRank := make([][]int, rankCount)
	sendValsByRank := make([][]complex128, rankCount)
	for k := range newRows {
		r := ownerRank(table, newRows[k])
		sendRowsByRank[r] = append(sendRowsByRank[r], newRows[k])
		sendColsByRank[r] = append(sendColsByRank[r], newCols[k])
		sendValsByRank[r] = append(sendValsByRank[r], vals[k])
	}

	type triplePayload struct {
		rows []int
		cols []int
		vals []complex128
	}
	payloads := make([]any, rankCount)
	for r := 0; r < rankCount; r++ {
		payloads[r] = triplePayload{rows: sendRowsByRank[r], cols: sendColsByRank[r], vals: sendValsByRank[r]}
	}
	results, err := comm.Alltoallv(ctx, payloads)
	if err != nil {
		return nil, &TransportError{Op: "csr_dagger:alltoallv", Err: err}
	}

	var recRows, recCols []int
	var recVals []complex128
	for _, v := range results {
		tp, ok := v.(triplePayload)
		if !ok {
			return nil, &ShapeMismatch{Detail: "csr_dagger: malformed triple payload from a peer rank"}
		}
		recRows = append(recRows, tp.rows...)
		recCols = append(recCols, tp.cols...)
		recVals = append(recVals, tp.vals...)
	}

	sortTriplesByNewRow(recRows, recCols, recVals)

	lo, hi := m.localRowLo, m.localRowHi
	localCount := len(recRows)

	countsAny, err := comm.Allreduce(ctx, localCount, []int{}, func(acc, val any) any {
		return append(acc.([]int), val.(int))
	})
	if err != nil {
		return nil, &TransportError{Op: "csr_dagger:allreduce", Err: err}
	}
	counts := countsAny.([]int)
	base := 1
	for r := 0; r < comm.Rank(); r++ {
		base += counts[r]
	}

	localRowCount := hi - lo + 1
	rowHist := make([]int, localRowCount+1)
	for _, rr := range recRows {
		rowHist[rr-lo]++
	}
	rowStarts := make([]int, localRowCount+1)
	rowStarts[0] = base
	for i := 0; i < localRowCount; i++ {
		rowStarts[i+1] = rowStarts[i] + rowHist[i]
	}

	out := &DistCSR{
		Rows: m.Rows, Cols: m.Cols, Tag: m.Tag, Config: m.Config,
		RowStarts:  rowStarts,
		ColIndexes: recCols,
		Values:     recVals,
		localRowLo: lo,
		localRowHi: hi,
	}
	if err := SortCSR(out); err != nil {
		return nil, err
	}
	return out, nil
}
