package distspmv

// sortMergeThreshold is the span length at or below which the hybrid sort
// falls back to insertion sort, per spec.md §4.D.
const sortMergeThreshold = 512

// sortColumnValues stably sorts a CSR row's (column, value) pairs by
// ascending column index: a recursive merge sort down to spans of
// sortMergeThreshold, insertion sort below, with a scratch buffer of the
// subrange on every merge. Used by SortCSR.
func sortColumnValues(cols []int, vals []complex128) {
	n := len(cols)
	if n < 2 {
		return
	}
	scratchCols := make([]int, n)
	scratchVals := make([]complex128, n)
	mergeSortPairs(cols, vals, scratchCols, scratchVals, 0, n)
}

func mergeSortPairs(cols []int, vals []complex128, scratchCols []int, scratchVals []complex128, lo, hi int) {
	if hi-lo <= sortMergeThreshold {
		insertionSortPairs(cols, vals, lo, hi)
		return
	}
	mid := lo + (hi-lo)/2
	mergeSortPairs(cols, vals, scratchCols, scratchVals, lo, mid)
	mergeSortPairs(cols, vals, scratchCols, scratchVals, mid, hi)
	mergePairs(cols, vals, scratchCols, scratchVals, lo, mid, hi)
}

func insertionSortPairs(cols []int, vals []complex128, lo, hi int) {
	for i := lo + 1; i < hi; i++ {
		c, v := cols[i], vals[i]
		j := i - 1
		for j >= lo && cols[j] > c {
			cols[j+1] = cols[j]
			vals[j+1] = vals[j]
			j--
		}
		cols[j+1] = c
		vals[j+1] = v
	}
}

func mergePairs(cols []int, vals []complex128, scratchCols []int, scratchVals []complex128, lo, mid, hi int) {
	copy(scratchCols[lo:hi], cols[lo:hi])
	copy(scratchVals[lo:hi], vals[lo:hi])

	i, j, k := lo, mid, lo
	for i < mid && j < hi {
		if scratchCols[i] <= scratchCols[j] {
			cols[k], vals[k] = scratchCols[i], scratchVals[i]
			i++
		} else {
			cols[k], vals[k] = scratchCols[j], scratchVals[j]
			j++
		}
		k++
	}
	for i < mid {
		cols[k], vals[k] = scratchCols[i], scratchVals[i]
		i, k = i+1, k+1
	}
	for j < hi {
		cols[k], vals[k] = scratchCols[j], scratchVals[j]
		j, k = j+1, k+1
	}
}

// sortTriplesByNewRow stably sorts the dagger's redistributed triples
// (newRow, oldRow, value) by ascending newRow, using the same
// merge/insertion hybrid as sortColumnValues. This groups each new row's
// nonzeros together; columns within a new row are not further ordered
// here (spec.md §4.G step 6 — SortCSR must run afterward).
func sortTriplesByNewRow(newRows []int, oldRows []int, vals []complex128) {
	n := len(newRows)
	if n < 2 {
		return
	}
	scratchNew := make([]int, n)
	scratchOld := make([]int, n)
	scratchVals := make([]complex128, n)
	mergeSortTriples(newRows, oldRows, vals, scratchNew, scratchOld, scratchVals, 0, n)
}

func mergeSortTriples(newRows, oldRows []int, vals []complex128, scratchNew, scratchOld []int, scratchVals []complex128, lo, hi int) {
	if hi-lo <= sortMergeThreshold {
		insertionSortTriples(newRows, oldRows, vals, lo, hi)
		return
	}
	mid := lo + (hi-lo)/2
	mergeSortTriples(newRows, oldRows, vals, scratchNew, scratchOld, scratchVals, lo, mid)
	mergeSortTriples(newRows, oldRows, vals, scratchNew, scratchOld, scratchVals, mid, hi)
	mergeTriples(newRows, oldRows, vals, scratchNew, scratchOld, scratchVals, lo, mid, hi)
}

func insertionSortTriples(newRows, oldRows []int, vals []complex128, lo, hi int) {
	for i := lo + 1; i < hi; i++ {
		nr, or, v := newRows[i], oldRows[i], vals[i]
		j := i - 1
		for j >= lo && newRows[j] > nr {
			newRows[j+1] = newRows[j]
			oldRows[j+1] = oldRows[j]
			vals[j+1] = vals[j]
			j--
		}
		newRows[j+1] = nr
		oldRows[j+1] = or
		vals[j+1] = v
	}
}

func mergeTriples(newRows, oldRows []int, vals []complex128, scratchNew, scratchOld []int, scratchVals []complex128, lo, mid, hi int) {
	copy(scratchNew[lo:hi], newRows[lo:hi])
	copy(scratchOld[lo:hi], oldRows[lo:hi])
	copy(scratchVals[lo:hi], vals[lo:hi])

	i, j, k := lo, mid, lo
	for i < mid && j < hi {
		if scratchNew[i] <= scratchNew[j] {
			newRows[k], oldRows[k], vals[k] = scratchNew[i], scratchOld[i], scratchVals[i]
			i++
		} else {
			newRows[k], oldRows[k], vals[k] = scratchNew[j], scratchOld[j], scratchVals[j]
			j++
		}
		k++
	}
	for i < mid {
		newRows[k], oldRows[k], vals[k] = scratchNew[i], scratchOld[i], scratchVals[i]
		i, k = i+1, k+1
	}
	for j < hi {
		newRows[k], oldRows[k], vals[k] = scratchNew[j], scratchOld[j], scratchVals[j]
		j, k = j+1, k+1
	}
}

// SortCSR walks this rank's local rows and sorts each row's columns
// (with their values) independently. Must be called once after
// construction, before ReconcileCommunications or any product kernel.
// CSRDagger already runs it on the matrix it returns.
func SortCSR(m *DistCSR) error {
	for i := 0; i < m.LocalRowCount(); i++ {
		start, end := m.rowLocalOffsets(i)
		sortColumnValues(m.ColIndexes[start:end], m.Values[start:end])
	}
	return nil
}
