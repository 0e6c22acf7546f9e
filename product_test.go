package distspmv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSpMVSeries_IdentityMatrixIsNoOp(t *testing.T) {
	table, err := GeneratePartitionTable(4, 2)
	require.NoError(t, err)

	triples := []Triple{
		{Row: 1, Col: 1, Value: 1}, {Row: 2, Col: 2, Value: 1},
		{Row: 3, Col: 3, Value: 1}, {Row: 4, Col: 4, Value: 1},
	}
	global := CSRFromTriples(4, 4, triples)
	u0 := []complex128{1, 2, 3, 4}
	var gathered []complex128

	err = RunOnRanks(context.Background(), 2, func(ctx context.Context, comm Comm) error {
		dist, derr := DistributeCSR(ctx, comm, table, 0, global, "identity")
		if derr != nil {
			return derr
		}
		if rerr := ReconcileCommunications(ctx, comm, dist, table); rerr != nil {
			return rerr
		}
		uLocal := make([]complex128, dist.LocalRowCount())
		if derr := DistributeDenseVector(ctx, comm, table, 0, u0, uLocal); derr != nil {
			return derr
		}
		vLocal := make([]complex128, dist.LocalRowCount())
		if serr := SpMVSeries(ctx, comm, dist, table, 1, 1, 1, uLocal, vLocal); serr != nil {
			return serr
		}
		out := make([]complex128, 4)
		if gerr := GatherDenseVector(ctx, comm, table, 0, vLocal, out); gerr != nil {
			return gerr
		}
		if comm.Rank() == 0 {
			gathered = out
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, u0, gathered)
}

func TestSpMVSeries_MatchesDenseReference(t *testing.T) {
	table, err := GeneratePartitionTable(3, 3)
	require.NoError(t, err)

	// A small non-symmetric complex matrix spanning every rank boundary.
	denseData := []complex128{
		complex(1, 1), complex(0, 0), complex(2, -1),
		complex(0, 1), complex(3, 0), complex(0, 0),
		complex(1, 0), complex(1, 1), complex(2, 0),
	}
	var triples []Triple
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			v := denseData[r*3+c]
			if v != 0 {
				triples = append(triples, Triple{Row: r + 1, Col: c + 1, Value: v})
			}
		}
	}
	global := CSRFromTriples(3, 3, triples)
	u0 := []complex128{complex(1, 0), complex(0, 1), complex(2, 0)}

	refMat := mat.NewCDense(3, 3, denseData)
	uVec := mat.NewCDense(3, 1, u0)
	var vVec mat.CDense
	vVec.Mul(refMat, uVec)

	var gathered []complex128
	err = RunOnRanks(context.Background(), 3, func(ctx context.Context, comm Comm) error {
		dist, derr := DistributeCSR(ctx, comm, table, 0, global, "dense-ref")
		if derr != nil {
			return derr
		}
		if rerr := ReconcileCommunications(ctx, comm, dist, table); rerr != nil {
			return rerr
		}
		uLocal := make([]complex128, dist.LocalRowCount())
		if derr := DistributeDenseVector(ctx, comm, table, 0, u0, uLocal); derr != nil {
			return derr
		}
		vLocal := make([]complex128, dist.LocalRowCount())
		if serr := SpMVSeries(ctx, comm, dist, table, 1, 1, 1, uLocal, vLocal); serr != nil {
			return serr
		}
		out := make([]complex128, 3)
		if gerr := GatherDenseVector(ctx, comm, table, 0, vLocal, out); gerr != nil {
			return gerr
		}
		if comm.Rank() == 0 {
			gathered = out
		}
		return nil
	})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.InDelta(t, real(vVec.At(i, 0)), real(gathered[i]), 1e-9)
		require.InDelta(t, imag(vVec.At(i, 0)), imag(gathered[i]), 1e-9)
	}
}

func TestSpMM_PowerOneMatchesDenseReference(t *testing.T) {
	table, err := GeneratePartitionTable(4, 2)
	require.NoError(t, err)

	denseData := []complex128{
		complex(1, 1), complex(0, 0), complex(2, -1), complex(0, 0),
		complex(0, 1), complex(3, 0), complex(0, 0), complex(1, 0),
		complex(1, 0), complex(1, 1), complex(2, 0), complex(0, 0),
		complex(0, 0), complex(0, -1), complex(1, 0), complex(4, 0),
	}
	var triples []Triple
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			if v := denseData[r*4+c]; v != 0 {
				triples = append(triples, Triple{Row: r + 1, Col: c + 1, Value: v})
			}
		}
	}
	global := CSRFromTriples(4, 4, triples)

	const bCols = 2
	bData := []complex128{
		complex(1, 0), complex(0, 1),
		complex(2, 0), complex(1, 0),
		complex(0, 1), complex(0, 0),
		complex(1, 1), complex(2, 0),
	}

	refA := mat.NewCDense(4, 4, denseData)
	refB := mat.NewCDense(4, bCols, bData)
	var refC mat.CDense
	refC.Mul(refA, refB)

	gathered := runSpMMAcrossRanks(t, table, global, bData, bCols, 1)
	for i := 0; i < 4; i++ {
		for c := 0; c < bCols; c++ {
			require.InDelta(t, real(refC.At(i, c)), real(gathered[i*bCols+c]), 1e-9)
			require.InDelta(t, imag(refC.At(i, c)), imag(gathered[i*bCols+c]), 1e-9)
		}
	}
}

func TestSpMM_PowerTwoOfDiagonalMatchesDenseReference(t *testing.T) {
	table, err := GeneratePartitionTable(4, 2)
	require.NoError(t, err)

	diag := []complex128{complex(2, 0), complex(0, 1), complex(1, -1), complex(3, 0)}
	denseData := make([]complex128, 16)
	triples := make([]Triple, 4)
	for i, v := range diag {
		denseData[i*4+i] = v
		triples[i] = Triple{Row: i + 1, Col: i + 1, Value: v}
	}
	global := CSRFromTriples(4, 4, triples)

	const bCols = 1
	bData := []complex128{complex(1, 0), complex(1, 0), complex(1, 0), complex(1, 0)}

	refA := mat.NewCDense(4, 4, denseData)
	refB := mat.NewCDense(4, bCols, bData)
	var refA2 mat.CDense
	refA2.Mul(refA, refA)
	var refC mat.CDense
	refC.Mul(&refA2, refB)

	gathered := runSpMMAcrossRanks(t, table, global, bData, bCols, 2)
	for i := 0; i < 4; i++ {
		require.InDelta(t, real(refC.At(i, 0)), real(gathered[i]), 1e-9)
		require.InDelta(t, imag(refC.At(i, 0)), imag(gathered[i]), 1e-9)
	}
}

// runSpMMAcrossRanks distributes global/bData across table's ranks, runs
// SpMM with the given power, and gathers the row-major result back to a
// single slice on rank 0.
func runSpMMAcrossRanks(t *testing.T, table PartitionTable, global *GlobalCSR, bData []complex128, bCols, power int) []complex128 {
	t.Helper()
	var gathered []complex128
	err := RunOnRanks(context.Background(), table.RankCount(), func(ctx context.Context, comm Comm) error {
		dist, derr := DistributeCSR(ctx, comm, table, 0, global, "spmm")
		if derr != nil {
			return derr
		}
		if rerr := ReconcileCommunications(ctx, comm, dist, table); rerr != nil {
			return rerr
		}
		bGlobal := &GlobalMatrix{Rows: global.Rows, Cols: bCols, Data: bData}
		var bLocal GlobalMatrix
		if derr := DistributeDenseMatrix(ctx, comm, table, 0, bGlobal, &bLocal); derr != nil {
			return derr
		}
		cLocal := make([]complex128, len(bLocal.Data))
		if serr := SpMM(ctx, comm, dist, table, power, bLocal.Data, bCols, cLocal); serr != nil {
			return serr
		}
		cGlobal := &GlobalMatrix{}
		if gerr := GatherDenseMatrix(ctx, comm, table, 0, &GlobalMatrix{Rows: bLocal.Rows, Cols: bCols, Data: cLocal}, cGlobal); gerr != nil {
			return gerr
		}
		if comm.Rank() == 0 {
			gathered = cGlobal.Data
		}
		return nil
	})
	require.NoError(t, err)
	return gathered
}

func TestSpMVSeries_ResetSentinelAlwaysSucceeds(t *testing.T) {
	m := &DistCSR{localRowLo: 1, localRowHi: 1}
	err := SpMVSeries(context.Background(), nil, m, nil, 0, 0, 0, nil, nil)
	require.NoError(t, err)
}

func TestSpMVSeries_RejectsOutOfRangeIteration(t *testing.T) {
	table, err := GeneratePartitionTable(2, 1)
	require.NoError(t, err)
	err = RunOnRanks(context.Background(), 1, func(ctx context.Context, comm Comm) error {
		global := CSRFromTriples(2, 2, []Triple{{Row: 1, Col: 1, Value: 1}, {Row: 2, Col: 2, Value: 1}})
		dist, derr := DistributeCSR(ctx, comm, table, 0, global, "t")
		if derr != nil {
			return derr
		}
		if rerr := ReconcileCommunications(ctx, comm, dist, table); rerr != nil {
			return rerr
		}
		u := make([]complex128, 2)
		v := make([]complex128, 2)
		serr := SpMVSeries(ctx, comm, dist, table, 1, 5, 3, u, v)
		require.Error(t, serr)
		return nil
	})
	require.NoError(t, err)
}
