package distspmv

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Comm is the message-passing handle one rank of a group uses to
// participate in the collectives the core kernels rely on: Send/Recv for
// the bilateral non-blocking-send/blocking-receive pairs spec.md §4.C
// describes, and Barrier/Bcast/Scatterv/Gatherv/Alltoallv/Allreduce for
// the collectives §4.C through §4.G name. All participating ranks must
// invoke the same sequence of collectives with the same shapes; a
// mismatch is the ShapeMismatch or TransportError spec.md §7 describes.
//
// The production implementation here (group/rankComm) simulates a
// message-passing group with goroutines-per-rank and a rendezvous
// barrier, grounded on the goroutine+channel process simulations in
// other_examples/sanderblue-algorithms__ring_all_reduce.go and
// other_examples/QColeman97-Distributed-NMF-Sim__node.go. A caller that
// wires this package to a real communicator (MPI via cgo, gRPC, etc.)
// need only satisfy this interface.
type Comm interface {
	Rank() int
	Size() int

	// Send deposits payload for dest and returns without waiting for the
	// matching Recv (spec.md §4.C's "non-blocking send"). A second Send to
	// the same destination before the first is received is a protocol
	// violation and returns a TransportError.
	Send(ctx context.Context, dest int, payload any) error
	// Recv blocks until a matching Send from src has been deposited.
	Recv(ctx context.Context, src int) (any, error)

	Barrier(ctx context.Context) error
	// Bcast: only root's payload is observed; every rank (including root)
	// receives the broadcast value back.
	Bcast(ctx context.Context, root int, payload any) (any, error)
	// Scatterv: root supplies one payload per rank (length Size()); every
	// rank, including root, receives its own share.
	Scatterv(ctx context.Context, root int, payloads []any) (any, error)
	// Gatherv: every rank supplies a payload; root receives the full
	// slice indexed by rank, non-root ranks receive nil.
	Gatherv(ctx context.Context, root int, payload any) ([]any, error)
	// Alltoallv: payloads[r] is what this rank sends to rank r. The
	// returned slice's entry r is what rank r sent to this rank.
	Alltoallv(ctx context.Context, payloads []any) ([]any, error)
	// Allreduce folds every rank's payload (in rank order, starting from
	// initial) into a single value, identical on every rank.
	Allreduce(ctx context.Context, payload any, initial any, reduce func(acc, val any) any) (any, error)
}

// group is the shared rendezvous point behind an in-process communicator.
// Every collective is a barrier: it blocks until all `size` ranks have
// deposited a contribution for the in-flight round, then hands the same
// snapshot back to every rank - mirroring the synchronous, globally
// ordered semantics spec.md §5 requires of real collectives.
type group struct {
	size int

	mu         sync.Mutex
	cond       *sync.Cond
	round      int
	arrived    int
	slots      []any
	lastResult []any
	failed     error

	p2pMu sync.Mutex
	p2p   map[[2]int]chan any
}

func newGroup(size int) *group {
	g := &group{
		size: size,
		slots: make([]any, size),
		p2p:   make(map[[2]int]chan any),
	}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// NewLocalGroup builds `size` in-process Comm handles that rendezvous with
// each other, one per simulated rank; rank identity is the slice index.
func NewLocalGroup(size int) []Comm {
	if size <= 0 {
		panic("distspmv: group size must be positive")
	}
	g := newGroup(size)
	comms := make([]Comm, size)
	for r := 0; r < size; r++ {
		comms[r] = &rankComm{rank: r, g: g}
	}
	return comms
}

// Abort fails every pending and future collective on the group with err.
// RunOnRanks calls this the moment any rank's worker function returns an
// error, so peers blocked in a rendezvous do not hang forever.
func (g *group) Abort(err error) {
	g.mu.Lock()
	if g.failed == nil {
		g.failed = err
	}
	g.cond.Broadcast()
	g.mu.Unlock()
}

func (g *group) enter(rank int, payload any) ([]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failed != nil {
		return nil, g.failed
	}

	myRound := g.round
	g.slots[rank] = payload
	g.arrived++

	if g.arrived == g.size {
		snapshot := g.slots
		g.slots = make([]any, g.size)
		g.arrived = 0
		g.lastResult = snapshot
		g.round++
		g.cond.Broadcast()
		return snapshot, nil
	}

	for g.round == myRound && g.failed == nil {
		g.cond.Wait()
	}
	if g.failed != nil {
		return nil, g.failed
	}
	return g.lastResult, nil
}

type rankComm struct {
	rank int
	g    *group
}

func (c *rankComm) Rank() int { return c.rank }
func (c *rankComm) Size() int { return c.g.size }

func (c *rankComm) channel(src, dst int) chan any {
	key := [2]int{src, dst}
	c.g.p2pMu.Lock()
	defer c.g.p2pMu.Unlock()
	ch, ok := c.g.p2p[key]
	if !ok {
		ch = make(chan any, 1)
		c.g.p2p[key] = ch
	}
	return ch
}

func (c *rankComm) Send(ctx context.Context, dest int, payload any) error {
	ch := c.channel(c.rank, dest)
	select {
	case ch <- payload:
		return nil
	default:
		return &TransportError{Op: "send", Err: fmt.Errorf("rank %d -> rank %d: prior message not yet received", c.rank, dest)}
	}
}

func (c *rankComm) Recv(ctx context.Context, src int) (any, error) {
	ch := c.channel(src, c.rank)
	select {
	case payload := <-ch:
		return payload, nil
	case <-ctx.Done():
		return nil, &TransportError{Op: "recv", Err: ctx.Err()}
	}
}

func (c *rankComm) Barrier(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Op: "barrier", Err: err}
	}
	_, err := c.g.enter(c.rank, nil)
	if err != nil {
		return &TransportError{Op: "barrier", Err: err}
	}
	return nil
}

func (c *rankComm) Bcast(ctx context.Context, root int, payload any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "bcast", Err: err}
	}
	var send any
	if c.rank == root {
		send = payload
	}
	result, err := c.g.enter(c.rank, send)
	if err != nil {
		return nil, &TransportError{Op: "bcast", Err: err}
	}
	return result[root], nil
}

func (c *rankComm) Scatterv(ctx context.Context, root int, payloads []any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "scatterv", Err: err}
	}
	var send any
	if c.rank == root {
		if len(payloads) != c.g.size {
			return nil, &ShapeMismatch{Detail: fmt.Sprintf("scatterv: root supplied %d payloads for %d ranks", len(payloads), c.g.size)}
		}
		send = payloads
	}
	result, err := c.g.enter(c.rank, send)
	if err != nil {
		return nil, &TransportError{Op: "scatterv", Err: err}
	}
	rootPayloads, ok := result[root].([]any)
	if !ok || len(rootPayloads) != c.g.size {
		return nil, &ShapeMismatch{Detail: "scatterv: malformed root payload"}
	}
	return rootPayloads[c.rank], nil
}

func (c *rankComm) Gatherv(ctx context.Context, root int, payload any) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "gatherv", Err: err}
	}
	result, err := c.g.enter(c.rank, payload)
	if err != nil {
		return nil, &TransportError{Op: "gatherv", Err: err}
	}
	if c.rank != root {
		return nil, nil
	}
	out := make([]any, len(result))
	copy(out, result)
	return out, nil
}

func (c *rankComm) Alltoallv(ctx context.Context, payloads []any) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "alltoallv", Err: err}
	}
	if len(payloads) != c.g.size {
		return nil, &ShapeMismatch{Detail: fmt.Sprintf("alltoallv: rank %d supplied %d payloads for %d ranks", c.rank, len(payloads), c.g.size)}
	}
	result, err := c.g.enter(c.rank, payloads)
	if err != nil {
		return nil, &TransportError{Op: "alltoallv", Err: err}
	}
	out := make([]any, c.g.size)
	for s := 0; s < c.g.size; s++ {
		row, ok := result[s].([]any)
		if !ok || len(row) != c.g.size {
			return nil, &ShapeMismatch{Detail: fmt.Sprintf("alltoallv: malformed payload from rank %d", s)}
		}
		out[s] = row[c.rank]
	}
	return out, nil
}

func (c *rankComm) Allreduce(ctx context.Context, payload any, initial any, reduce func(acc, val any) any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "allreduce", Err: err}
	}
	result, err := c.g.enter(c.rank, payload)
	if err != nil {
		return nil, &TransportError{Op: "allreduce", Err: err}
	}
	acc := initial
	for _, v := range result {
		acc = reduce(acc, v)
	}
	return acc, nil
}

// RunOnRanks spawns one goroutine per rank of a fresh in-process group and
// runs fn on each, using an errgroup (golang.org/x/sync/errgroup) to
// supervise them: if any rank's fn returns an error, the group is aborted
// so peers blocked in a collective unwind instead of deadlocking, matching
// spec.md §5's "a failed collective aborts the run".
func RunOnRanks(ctx context.Context, size int, fn func(ctx context.Context, comm Comm) error) error {
	comms := NewLocalGroup(size)
	g, gctx := errgroup.WithContext(ctx)
	group := comms[0].(*rankComm).g
	for _, c := range comms {
		c := c
		g.Go(func() error {
			err := fn(gctx, c)
			if err != nil {
				group.Abort(err)
			}
			return err
		})
	}
	return g.Wait()
}
