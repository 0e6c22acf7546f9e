package distspmv

import "context"

// bufferIndex converts a one-based extended-buffer address (as stored in
// CommPlan.LocalColInds) into a zero-based index into a
// localRowCount-or-larger extended buffer for this rank.
func (m *DistCSR) bufferIndex(addr int) int {
	lo, hi := m.localRowLo, m.localRowHi
	if addr >= lo && addr <= hi {
		return addr - lo
	}
	return m.LocalRowCount() + (addr - hi - 1)
}

// SpMVSeries implements the iterated SpMV kernel of spec.md §4.F: each
// call performs exactly one product step (v_local = A * u_local) against
// the cached communication buffers attached to m, following the
// three-phase lifecycle spec.md §4.F and §9 describe:
//   - current_it == start_it: the cache is (re)allocated fresh.
//   - start_it < current_it < max_it: the cache is reused across calls.
//   - current_it == max_it: the cache is freed after the product runs.
//   - the sentinel start_it == 0 && max_it == 0 frees the cache and
//     returns immediately, from any state, and always succeeds.
func SpMVSeries(ctx context.Context, comm Comm, m *DistCSR, table PartitionTable, startIt, currentIt, maxIt int, uLocal, vLocal []complex128) error {
	if startIt == 0 && maxIt == 0 {
		m.ResetIterationCache()
		return nil
	}
	if currentIt < startIt || currentIt > maxIt {
		return &StateMisuse{Detail: "current_it must lie within [start_it, max_it]"}
	}
	if m.Plan == nil {
		return &ShapeMismatch{Detail: "spmv_series: matrix has no communication plan; call ReconcileCommunications first"}
	}
	localRows := m.LocalRowCount()
	if len(uLocal) < localRows || len(vLocal) < localRows {
		return &ShapeMismatch{Detail: "spmv_series: u_local/v_local shorter than this rank's row count"}
	}

	if currentIt == startIt || m.cache == nil {
		m.cache = &productCache{}
	}

	if err := spmvOneIteration(ctx, comm, m, uLocal, vLocal); err != nil {
		return err
	}

	if currentIt == maxIt {
		m.ResetIterationCache()
	}
	return nil
}

func spmvOneIteration(ctx context.Context, comm Comm, m *DistCSR, uLocal, vLocal []complex128) error {
	plan := m.Plan
	localRows := m.LocalRowCount()
	lo := m.localRowLo
	cache := m.cache

	extSize := localRows + plan.TotalRecInds
	if len(cache.uResize) != extSize {
		cache.uResize = make([]complex128, extSize)
	}
	copy(cache.uResize[:localRows], uLocal[:localRows])

	sendTotal := plan.SendDisps[len(plan.SendDisps)-1]
	if len(cache.sendVals) != sendTotal {
		cache.sendVals = make([]complex128, sendTotal)
	}
	for i, globalRow := range plan.RHSSendInds {
		cache.sendVals[i] = cache.uResize[globalRow-lo]
	}

	recAny, err := comm.Alltoallv(ctx, chunkComplexAny(cache.sendVals, plan.SendDisps))
	if err != nil {
		return &TransportError{Op: "spmv_series:alltoallv", Err: err}
	}
	recValues, err := concatComplexResults(recAny, plan.NumRecInds, plan.RecDisps)
	if err != nil {
		return err
	}
	copy(cache.uResize[localRows:], recValues)
	m.Debugf(comm.Rank(), "spmv: received %d remote operands", len(recValues))

	for i := 0; i < localRows; i++ {
		vLocal[i] = 0
	}
	for i := 0; i < localRows; i++ {
		start, end := m.rowLocalOffsets(i)
		var acc complex128
		for j := start; j < end; j++ {
			acc += m.Values[j] * cache.uResize[m.bufferIndex(plan.LocalColInds[j])]
		}
		vLocal[i] = acc
	}
	return nil
}

// SpMM implements the powered dense-matrix product kernel of spec.md
// §4.F: C_local = A^n * B_local. BLocal/CLocal are row-major local slices
// of BCols columns, sized localRows*BCols. One alltoallv runs per column
// of B per iteration, matching the spec's description of the receive
// structure; between iterations the result is copied back into the
// owned rows of the extended buffer so the next power can be applied
// in place.
func SpMM(ctx context.Context, comm Comm, m *DistCSR, table PartitionTable, n int, BLocal []complex128, BCols int, CLocal []complex128) error {
	if n < 1 {
		return &StateMisuse{Detail: "spmm power must be >= 1"}
	}
	if m.Plan == nil {
		return &ShapeMismatch{Detail: "spmm: matrix has no communication plan; call ReconcileCommunications first"}
	}
	localRows := m.LocalRowCount()
	if len(BLocal) < localRows*BCols || len(CLocal) < localRows*BCols {
		return &ShapeMismatch{Detail: "spmm: B_local/C_local shorter than this rank's row count times B_col"}
	}

	plan := m.Plan
	extRows := localRows + plan.TotalRecInds
	extBuf := make([]complex128, extRows*BCols)
	copy(extBuf[:localRows*BCols], BLocal[:localRows*BCols])

	sendTotal := plan.SendDisps[len(plan.SendDisps)-1]
	sendVals := make([]complex128, sendTotal)

	for iter := 0; iter < n; iter++ {
		for col := 0; col < BCols; col++ {
			for i, globalRow := range plan.RHSSendInds {
				sendVals[i] = extBuf[(globalRow-m.localRowLo)*BCols+col]
			}
			recAny, err := comm.Alltoallv(ctx, chunkComplexAny(sendVals, plan.SendDisps))
			if err != nil {
				return &TransportError{Op: "spmm:alltoallv", Err: err}
			}
			recValues, err := concatComplexResults(recAny, plan.NumRecInds, plan.RecDisps)
			if err != nil {
				return err
			}
			for k, v := range recValues {
				extBuf[(localRows+k)*BCols+col] = v
			}
		}

		for i := 0; i < localRows*BCols; i++ {
			CLocal[i] = 0
		}
		for i := 0; i < localRows; i++ {
			start, end := m.rowLocalOffsets(i)
			for j := start; j < end; j++ {
				bufRow := m.bufferIndex(plan.LocalColInds[j])
				val := m.Values[j]
				for col := 0; col < BCols; col++ {
					CLocal[i*BCols+col] += val * extBuf[bufRow*BCols+col]
				}
			}
		}

		if iter < n-1 {
			copy(extBuf[:localRows*BCols], CLocal[:localRows*BCols])
		}
	}
	return nil
}
