package distspmv

import "sort"

// ownerRank returns the rank whose partition range contains the one-based
// global column/row index c, via a binary search over the partition
// table (spec.md §4.E step 1 permits either a binary or a linear
// scan-from-top; binary search is used here).
func ownerRank(table PartitionTable, c int) int {
	rankCount := table.RankCount()
	return sort.Search(rankCount, func(r int) bool { return table[r+1] > c })
}

// prefixSum returns a slice of length len(counts)+1 where result[i] is the
// sum of counts[:i]; result[len(counts)] is the grand total. Used for the
// send/receive displacement arrays throughout the communication-plan
// builder and the dagger.
func prefixSum(counts []int) []int {
	disps := make([]int, len(counts)+1)
	for i, c := range counts {
		disps[i+1] = disps[i] + c
	}
	return disps
}

// chunksAny slices data into len(disps)-1 []any payloads, one per rank,
// bounded by disps - the shape Alltoallv expects.
func chunkIntsAny(data []int, disps []int) []any {
	rankCount := len(disps) - 1
	out := make([]any, rankCount)
	for r := 0; r < rankCount; r++ {
		out[r] = append([]int(nil), data[disps[r]:disps[r+1]]...)
	}
	return out
}

func chunkComplexAny(data []complex128, disps []int) []any {
	rankCount := len(disps) - 1
	out := make([]any, rankCount)
	for r := 0; r < rankCount; r++ {
		out[r] = append([]complex128(nil), data[disps[r]:disps[r+1]]...)
	}
	return out
}

// concatIntResults concatenates an Alltoallv result of []int payloads into
// a single slice laid out per disps/counts, validating each chunk's
// length against the expected count.
func concatIntResults(results []any, counts []int, disps []int) ([]int, error) {
	total := disps[len(disps)-1]
	out := make([]int, total)
	for r, want := range counts {
		chunk, ok := results[r].([]int)
		if !ok || len(chunk) != want {
			return nil, &ShapeMismatch{Detail: "alltoallv: mismatched []int chunk length from a peer rank"}
		}
		copy(out[disps[r]:disps[r+1]], chunk)
	}
	return out, nil
}

func concatComplexResults(results []any, counts []int, disps []int) ([]complex128, error) {
	total := disps[len(disps)-1]
	out := make([]complex128, total)
	for r, want := range counts {
		chunk, ok := results[r].([]complex128)
		if !ok || len(chunk) != want {
			return nil, &ShapeMismatch{Detail: "alltoallv: mismatched []complex128 chunk length from a peer rank"}
		}
		copy(out[disps[r]:disps[r+1]], chunk)
	}
	return out, nil
}
