// Package distspmv implements a distributed-memory sparse matrix engine
// for repeated complex-valued CSR-by-dense products across a
// message-passing cluster of simulated ranks, the computational core of
// a quantum-stochastic-walk simulator.
//
// The public surface breaks into five groups:
//
//   - Partitioning: GeneratePartitionTable, PartitionTable.RowRange.
//   - Distribution: DistributeCSR, DistributeDenseVector,
//     DistributeDenseMatrix, GatherDenseVector, GatherDenseMatrix.
//   - Communication-plan construction: ReconcileCommunications (and its
//     two phases PreparePlan/FinishPlan).
//   - Product kernels: SpMVSeries, SpMM.
//   - Structural transforms: CSRDagger, SortCSR, CSRFromTriples.
//
// Comm (see comm.go) is the message-passing abstraction every collective
// runs against; RunOnRanks drives a group of in-process ranks through a
// worker function for tests, the demo command, and single-process use.
package distspmv
