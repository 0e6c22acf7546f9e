package distspmv

import (
	"context"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCSRDagger_RejectsNonSquare(t *testing.T) {
	table, err := GeneratePartitionTable(2, 1)
	require.NoError(t, err)
	err = RunOnRanks(context.Background(), 1, func(ctx context.Context, comm Comm) error {
		m := &DistCSR{Rows: 2, Cols: 3, localRowLo: 1, localRowHi: 2}
		_, derr := CSRDagger(ctx, comm, m, table)
		require.Error(t, derr)
		var ue *UnsquareDagger
		require.ErrorAs(t, derr, &ue)
		return nil
	})
	require.NoError(t, err)
}

func TestCSRDagger_ConjugateTransposeMatchesManualComputation(t *testing.T) {
	table, err := GeneratePartitionTable(3, 3)
	require.NoError(t, err)

	triples := []Triple{
		{Row: 1, Col: 1, Value: complex(1, 1)},
		{Row: 1, Col: 3, Value: complex(2, -1)},
		{Row: 2, Col: 2, Value: complex(0, 3)},
		{Row: 3, Col: 1, Value: complex(1, 0)},
		{Row: 3, Col: 2, Value: complex(1, 1)},
	}
	global := CSRFromTriples(3, 3, triples)

	want := map[[2]int]complex128{}
	for _, tr := range triples {
		want[[2]int{tr.Col, tr.Row}] = cmplx.Conj(tr.Value)
	}

	err = RunOnRanks(context.Background(), 3, func(ctx context.Context, comm Comm) error {
		dist, derr := DistributeCSR(ctx, comm, table, 0, global, "dagger-src")
		if derr != nil {
			return derr
		}
		daggered, derr := CSRDagger(ctx, comm, dist, table)
		if derr != nil {
			return derr
		}
		for i := 0; i < daggered.LocalRowCount(); i++ {
			start, end := daggered.rowLocalOffsets(i)
			row := daggered.localRowLo + i
			for j := start; j < end; j++ {
				col := daggered.ColIndexes[j]
				val := daggered.Values[j]
				wantVal, ok := want[[2]int{row, col}]
				require.True(t, ok, "unexpected nonzero at (%d,%d)", row, col)
				require.InDelta(t, real(wantVal), real(val), 1e-9)
				require.InDelta(t, imag(wantVal), imag(val), 1e-9)
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestCSRDagger_DoubleDaggerRoundTripsExactly(t *testing.T) {
	table, err := GeneratePartitionTable(3, 3)
	require.NoError(t, err)

	triples := []Triple{
		{Row: 1, Col: 1, Value: complex(1, 1)},
		{Row: 1, Col: 3, Value: complex(2, -1)},
		{Row: 2, Col: 2, Value: complex(0, 3)},
		{Row: 3, Col: 1, Value: complex(1, 0)},
		{Row: 3, Col: 2, Value: complex(1, 1)},
	}
	global := CSRFromTriples(3, 3, triples)

	err = RunOnRanks(context.Background(), 3, func(ctx context.Context, comm Comm) error {
		dist, derr := DistributeCSR(ctx, comm, table, 0, global, "dagger-roundtrip")
		if derr != nil {
			return derr
		}
		once, derr := CSRDagger(ctx, comm, dist, table)
		if derr != nil {
			return derr
		}
		twice, derr := CSRDagger(ctx, comm, once, table)
		if derr != nil {
			return derr
		}

		require.Equal(t, dist.LocalRowCount(), twice.LocalRowCount())
		require.Equal(t, dist.LocalNonzeroCount(), twice.LocalNonzeroCount())
		for i := 0; i < dist.LocalRowCount(); i++ {
			s1, e1 := dist.rowLocalOffsets(i)
			s2, e2 := twice.rowLocalOffsets(i)
			require.Equal(t, e1-s1, e2-s2, "row %d nonzero count differs", dist.localRowLo+i)
			for k := 0; k < e1-s1; k++ {
				require.Equal(t, dist.ColIndexes[s1+k], twice.ColIndexes[s2+k], "row %d column %d differs", dist.localRowLo+i, k)
				require.Equal(t, dist.Values[s1+k], twice.Values[s2+k], "row %d value %d differs", dist.localRowLo+i, k)
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestCSRDagger_HermitianMatrixEqualsItself(t *testing.T) {
	table, err := GeneratePartitionTable(2, 2)
	require.NoError(t, err)

	// Hermitian: A[1][2] = conj(A[2][1]), diagonal real.
	triples := []Triple{
		{Row: 1, Col: 1, Value: complex(2, 0)},
		{Row: 1, Col: 2, Value: complex(1, 1)},
		{Row: 2, Col: 1, Value: complex(1, -1)},
		{Row: 2, Col: 2, Value: complex(3, 0)},
	}
	global := CSRFromTriples(2, 2, triples)

	err = RunOnRanks(context.Background(), 2, func(ctx context.Context, comm Comm) error {
		dist, derr := DistributeCSR(ctx, comm, table, 0, global, "herm")
		if derr != nil {
			return derr
		}
		daggered, derr := CSRDagger(ctx, comm, dist, table)
		if derr != nil {
			return derr
		}
		require.Equal(t, dist.LocalNonzeroCount(), daggered.LocalNonzeroCount())
		for i := 0; i < dist.LocalRowCount(); i++ {
			s1, e1 := dist.rowLocalOffsets(i)
			s2, e2 := daggered.rowLocalOffsets(i)
			require.Equal(t, e1-s1, e2-s2)
			for k := 0; k < e1-s1; k++ {
				require.Equal(t, dist.ColIndexes[s1+k], daggered.ColIndexes[s2+k])
				require.InDelta(t, real(dist.Values[s1+k]), real(daggered.Values[s2+k]), 1e-9)
				require.InDelta(t, imag(dist.Values[s1+k]), imag(daggered.Values[s2+k]), 1e-9)
			}
		}
		return nil
	})
	require.NoError(t, err)
}
