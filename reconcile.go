package distspmv

import "context"

// planCounts is the purely local result of the reconciliation builder's
// classification phase (spec.md §4.E steps 1-3): no communication is
// required to produce it, which is what lets PreparePlan/FinishPlan
// amortise the count-exchange phase across many matrices sharing one
// partition table (the "Reconcile_Communications_A then _B" variant).
type planCounts struct {
	numRecInds   []int
	recDisps     []int
	rhsRecInds   []int
	localColInds []int
	totalRecInds int
}

// PreparePlan implements Reconcile_Communications_A: it classifies every
// non-local column reference by owning rank, builds the receive
// displacements, and computes the extended-buffer address of every
// ColIndexes entry (ColIndexes itself is left unchanged).
// No collective is issued. The returned value must be passed to
// FinishPlan to attach the completed CommPlan.
func PreparePlan(m *DistCSR, table PartitionTable) (planCounts, error) {
	if err := validateSortedColumns(m); err != nil {
		return planCounts{}, err
	}

	lo, hi := m.localRowLo, m.localRowHi
	rankCount := table.RankCount()
	dedupe := m.Config.DeduplicateRemoteColumns

	// Pass 1: classify each column's owning rank (-1 for local) and count
	// how many distinct extended-buffer slots rank r must be asked to
	// fill. Without dedup every non-local occurrence gets its own slot,
	// matching spec.md §4.E's documented default ("does not deduplicate
	// repeated column references"); with Config.DeduplicateRemoteColumns
	// set, repeated references to the same remote column collapse to one
	// slot.
	numRec := make([]int, rankCount)
	ownerOf := make([]int, len(m.ColIndexes))
	var seenPass1 []map[int]bool
	if dedupe {
		seenPass1 = make([]map[int]bool, rankCount)
	}
	for k, c := range m.ColIndexes {
		if c >= lo && c <= hi {
			ownerOf[k] = -1
			continue
		}
		r := ownerRank(table, c)
		ownerOf[k] = r
		if dedupe {
			if seenPass1[r] == nil {
				seenPass1[r] = make(map[int]bool)
			}
			if seenPass1[r][c] {
				continue
			}
			seenPass1[r][c] = true
		}
		numRec[r]++
	}

	recDisps := prefixSum(numRec)
	total := recDisps[rankCount]

	// Pass 2: assign each distinct remote column a slot (extended-buffer
	// address hi+slot+1) and record each entry's remapped address in
	// localColInds, per spec.md §4.E step 3; ColIndexes is not modified.
	localColInds := make([]int, len(m.ColIndexes))
	rhsRecInds := make([]int, total)
	offset := make([]int, rankCount)
	var addrOf []map[int]int
	if dedupe {
		addrOf = make([]map[int]int, rankCount)
	}
	for k, c := range m.ColIndexes {
		r := ownerOf[k]
		if r == -1 {
			localColInds[k] = c
			continue
		}
		if dedupe {
			if addrOf[r] == nil {
				addrOf[r] = make(map[int]int)
			}
			if addr, ok := addrOf[r][c]; ok {
				localColInds[k] = addr
				continue
			}
		}
		slot := recDisps[r] + offset[r]
		addr := hi + slot + 1
		rhsRecInds[slot] = c
		localColInds[k] = addr
		offset[r]++
		if dedupe {
			addrOf[r][c] = addr
		}
	}

	return planCounts{
		numRecInds:   numRec,
		recDisps:     recDisps,
		rhsRecInds:   rhsRecInds,
		localColInds: localColInds,
		totalRecInds: total,
	}, nil
}

// FinishPlan implements Reconcile_Communications_B: it exchanges receive
// counts to learn each peer's send counts (spec.md §4.E step 4), exchanges
// the requested remote row-index lists (step 6), and attaches the
// resulting CommPlan to m.
func FinishPlan(ctx context.Context, comm Comm, m *DistCSR, table PartitionTable, pc planCounts) error {
	rankCount := comm.Size()
	if table.RankCount() != rankCount {
		return &ShapeMismatch{Detail: "partition table rank count does not match communicator size"}
	}

	countResults, err := comm.Alltoallv(ctx, intsToAny(pc.numRecInds))
	if err != nil {
		return &TransportError{Op: "reconcile:counts", Err: err}
	}
	numSendInds := make([]int, rankCount)
	for r, v := range countResults {
		n, ok := v.(int)
		if !ok {
			return &ShapeMismatch{Detail: "reconcile: malformed count from a peer rank"}
		}
		numSendInds[r] = n
	}
	sendDisps := prefixSum(numSendInds)

	idxResults, err := comm.Alltoallv(ctx, chunkIntsAny(pc.rhsRecInds, pc.recDisps))
	if err != nil {
		return &TransportError{Op: "reconcile:indices", Err: err}
	}
	rhsSendInds, err := concatIntResults(idxResults, numSendInds, sendDisps)
	if err != nil {
		return err
	}

	m.Plan = &CommPlan{
		NumSendInds:  numSendInds,
		SendDisps:    sendDisps,
		RHSSendInds:  rhsSendInds,
		NumRecInds:   pc.numRecInds,
		RecDisps:     pc.recDisps,
		TotalRecInds: pc.totalRecInds,
		LocalColInds: pc.localColInds,
	}
	m.Debugf(comm.Rank(), "reconcile: %d values to send, %d to receive", sendDisps[rankCount], pc.totalRecInds)
	return nil
}

// ReconcileCommunications runs PreparePlan immediately followed by
// FinishPlan; behaviour is identical to running the two-phase variant by
// hand, per spec.md §4.E.
func ReconcileCommunications(ctx context.Context, comm Comm, m *DistCSR, table PartitionTable) error {
	pc, err := PreparePlan(m, table)
	if err != nil {
		return err
	}
	return FinishPlan(ctx, comm, m, table, pc)
}

func intsToAny(data []int) []any {
	out := make([]any, len(data))
	for i, v := range data {
		out[i] = v
	}
	return out
}
