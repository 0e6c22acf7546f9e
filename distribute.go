package distspmv

import "context"

// DistributeDenseVector implements spec.md §4.C's point-to-point variant:
// root sends each rank its contiguous slice of a dense vector using
// Send/Recv, then every rank meets at a Barrier. global is only read on
// root; local must already be sized to this rank's row count.
func DistributeDenseVector(ctx context.Context, comm Comm, table PartitionTable, root int, global []complex128, local []complex128) error {
	rank := comm.Rank()
	if rank == root {
		for r := 0; r < comm.Size(); r++ {
			lo, hi := table.RowRange(r)
			chunk := append([]complex128(nil), global[lo-1:hi]...)
			if r == root {
				copy(local, chunk)
				continue
			}
			if err := comm.Send(ctx, r, chunk); err != nil {
				return &TransportError{Op: "distribute_dense_vector:send", Err: err}
			}
		}
	} else {
		payload, err := comm.Recv(ctx, root)
		if err != nil {
			return &TransportError{Op: "distribute_dense_vector:recv", Err: err}
		}
		chunk, ok := payload.([]complex128)
		if !ok {
			return &ShapeMismatch{Detail: "distribute_dense_vector: malformed payload from root"}
		}
		copy(local, chunk)
	}
	return comm.Barrier(ctx)
}

// GatherDenseVector is DistributeDenseVector's inverse: every rank's local
// slice is collected into global on root via Gatherv. global is only
// written on root.
func GatherDenseVector(ctx context.Context, comm Comm, table PartitionTable, root int, local []complex128, global []complex128) error {
	payload := append([]complex128(nil), local...)
	results, err := comm.Gatherv(ctx, root, payload)
	if err != nil {
		return &TransportError{Op: "gather_dense_vector", Err: err}
	}
	if comm.Rank() != root {
		return nil
	}
	for r, v := range results {
		chunk, ok := v.([]complex128)
		if !ok {
			return &ShapeMismatch{Detail: "gather_dense_vector: malformed chunk from a peer rank"}
		}
		lo, hi := table.RowRange(r)
		copy(global[lo-1:hi], chunk)
	}
	return nil
}

// DistributeCSR implements spec.md §4.C's CSR scatter: root broadcasts the
// partition table implicitly via the already-shared table argument, then
// Bcasts the full row-pointer array and Scatterv's each rank's nonzero
// span. global is only read on root.
func DistributeCSR(ctx context.Context, comm Comm, table PartitionTable, root int, global *GlobalCSR, tag string) (*DistCSR, error) {
	rank := comm.Rank()
	rows, cols := 0, 0
	if rank == root {
		rows, cols = global.Rows, global.Cols
	}
	rowsAny, err := comm.Bcast(ctx, root, [2]int{rows, cols})
	if err != nil {
		return nil, &TransportError{Op: "distribute_csr:bcast_shape", Err: err}
	}
	shape := rowsAny.([2]int)
	rows, cols = shape[0], shape[1]

	var rowStartsAny any
	if rank == root {
		rowStartsAny, err = comm.Bcast(ctx, root, global.RowStarts)
	} else {
		rowStartsAny, err = comm.Bcast(ctx, root, nil)
	}
	if err != nil {
		return nil, &TransportError{Op: "distribute_csr:bcast_rowstarts", Err: err}
	}
	rowStarts, ok := rowStartsAny.([]int)
	if !ok {
		return nil, &ShapeMismatch{Detail: "distribute_csr: malformed row_starts broadcast"}
	}

	lo, hi := table.RowRange(rank)

	var colPayloads, valPayloads []any
	if rank == root {
		colPayloads = make([]any, table.RankCount())
		valPayloads = make([]any, table.RankCount())
		for r := 0; r < table.RankCount(); r++ {
			rlo, rhi := table.RowRange(r)
			start, end := rowStarts[rlo-1]-1, rowStarts[rhi]-1
			colPayloads[r] = append([]int(nil), global.ColIndexes[start:end]...)
			valPayloads[r] = append([]complex128(nil), global.Values[start:end]...)
		}
	}
	colAny, err := comm.Scatterv(ctx, root, colPayloads)
	if err != nil {
		return nil, &TransportError{Op: "distribute_csr:scatterv_cols", Err: err}
	}
	valAny, err := comm.Scatterv(ctx, root, valPayloads)
	if err != nil {
		return nil, &TransportError{Op: "distribute_csr:scatterv_vals", Err: err}
	}
	colIndexes, ok := colAny.([]int)
	if !ok {
		return nil, &ShapeMismatch{Detail: "distribute_csr: malformed column scatter"}
	}
	values, ok := valAny.([]complex128)
	if !ok {
		return nil, &ShapeMismatch{Detail: "distribute_csr: malformed value scatter"}
	}

	localRowCount := hi - lo + 1
	localRowStarts := make([]int, localRowCount+1)
	base := rowStarts[lo-1]
	for i := 0; i <= localRowCount; i++ {
		localRowStarts[i] = rowStarts[lo-1+i] - base + rowStarts[lo-1]
	}

	if err := comm.Barrier(ctx); err != nil {
		return nil, err
	}

	return &DistCSR{
		Rows: rows, Cols: cols, Tag: tag,
		RowStarts:  localRowStarts,
		ColIndexes: colIndexes,
		Values:     values,
		localRowLo: lo,
		localRowHi: hi,
	}, nil
}

// DistributeDenseMatrix scatters a row-major dense matrix's row blocks,
// per spec.md §4.C. globalMat is only read on root; localOut need not be
// presized: its Rows, Cols and Data are overwritten with this rank's block.
func DistributeDenseMatrix(ctx context.Context, comm Comm, table PartitionTable, root int, globalMat *GlobalMatrix, localOut *GlobalMatrix) error {
	rank := comm.Rank()
	cols := 0
	if rank == root {
		cols = globalMat.Cols
	}
	colsAny, err := comm.Bcast(ctx, root, cols)
	if err != nil {
		return &TransportError{Op: "distribute_dense_matrix:bcast_cols", Err: err}
	}
	cols = colsAny.(int)

	var payloads []any
	if rank == root {
		payloads = make([]any, table.RankCount())
		for r := 0; r < table.RankCount(); r++ {
			lo, hi := table.RowRange(r)
			payloads[r] = append([]complex128(nil), globalMat.Data[(lo-1)*cols:hi*cols]...)
		}
	}
	res, err := comm.Scatterv(ctx, root, payloads)
	if err != nil {
		return &TransportError{Op: "distribute_dense_matrix:scatterv", Err: err}
	}
	chunk, ok := res.([]complex128)
	if !ok {
		return &ShapeMismatch{Detail: "distribute_dense_matrix: malformed scatter payload"}
	}
	lo, hi := table.RowRange(rank)
	localOut.Rows, localOut.Cols = hi-lo+1, cols
	localOut.Data = chunk
	return comm.Barrier(ctx)
}

// GatherDenseMatrix is DistributeDenseMatrix's inverse, via Gatherv.
// globalMat is only written on root.
func GatherDenseMatrix(ctx context.Context, comm Comm, table PartitionTable, root int, localMat *GlobalMatrix, globalMat *GlobalMatrix) error {
	payload := append([]complex128(nil), localMat.Data...)
	results, err := comm.Gatherv(ctx, root, payload)
	if err != nil {
		return &TransportError{Op: "gather_dense_matrix", Err: err}
	}
	if comm.Rank() != root {
		return nil
	}
	cols := localMat.Cols
	globalMat.Cols = cols
	if globalMat.Rows == 0 {
		globalMat.Rows = table[table.RankCount()] - 1
	}
	if len(globalMat.Data) < globalMat.Rows*cols {
		globalMat.Data = make([]complex128, globalMat.Rows*cols)
	}
	for r, v := range results {
		chunk, ok := v.([]complex128)
		if !ok {
			return &ShapeMismatch{Detail: "gather_dense_matrix: malformed chunk from a peer rank"}
		}
		lo, hi := table.RowRange(r)
		copy(globalMat.Data[(lo-1)*cols:hi*cols], chunk)
	}
	return nil
}
