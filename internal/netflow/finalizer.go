package netflow

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/6529-Collections/netflow/internal/metrics"
	"github.com/6529-Collections/netflow/pkg/netflow/models"
	"go.uber.org/zap"
)

var (
	ErrBlockAlreadyReleased = errors.New("block already released")
	ErrPendingSpanExceeded  = errors.New("pending block span exceeded")
)

type pendingBlock struct {
	hash      string
	transfers map[uint64]models.ClassifiedTransfer
}

// FinalizedBlock is a block that reached the confirmation depth, with its
// transfers in ascending log index order.
type FinalizedBlock struct {
	Ref       models.BlockRef
	Transfers []models.ClassifiedTransfer
}

// Release is the result of one Ready call. Through is the new finalized
// watermark; it is set even when no block carried transfers.
type Release struct {
	Blocks     []FinalizedBlock
	Through    models.BlockRef
	HasThrough bool
}

// Finalizer buffers classified transfers until their block is buried under
// the configured number of confirmations. Reorgs inside that window are
// absorbed by replacing or discarding buffered blocks.
type Finalizer struct {
	mu            sync.Mutex
	confirmations uint64
	maxSpan       uint64

	head    models.BlockRef
	hasHead bool

	released    uint64
	hasReleased bool

	pending map[uint64]*pendingBlock
	headers map[uint64]models.BlockRef
}

func NewFinalizer(confirmations, maxSpan uint64) *Finalizer {
	return &Finalizer{
		confirmations: confirmations,
		maxSpan:       maxSpan,
		pending:       make(map[uint64]*pendingBlock),
		headers:       make(map[uint64]models.BlockRef),
	}
}

// ObserveHead records a new header. A header whose hash differs from a
// buffered block at the same height supersedes that block.
func (f *Finalizer) ObserveHead(ref models.BlockRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.advanceHead(ref)
	if ref.Hash != "" && (!f.hasReleased || ref.Number > f.released) {
		f.headers[ref.Number] = ref
		if pb, ok := f.pending[ref.Number]; ok && pb.hash != "" && pb.hash != ref.Hash {
			zap.L().Warn("Reorg inside confirmation window, dropping buffered block",
				zap.Uint64("block", ref.Number),
				zap.String("oldHash", pb.hash),
				zap.String("newHash", ref.Hash),
			)
			delete(f.pending, ref.Number)
			metrics.DiscardedBlocks.Inc()
		}
	}
	return f.checkSpan()
}

// Add buffers a transfer. Delivering the same log twice is harmless. A
// transfer carrying a different block hash than the buffered one replaces the
// whole block.
func (f *Finalizer) Add(ct models.ClassifiedTransfer) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	ev := ct.Transfer
	if f.hasReleased && ev.BlockNumber <= f.released {
		return fmt.Errorf("%w: block %d, watermark %d", ErrBlockAlreadyReleased, ev.BlockNumber, f.released)
	}

	pb, ok := f.pending[ev.BlockNumber]
	if ok && pb.hash != ev.BlockHash {
		zap.L().Warn("Block delivered with a new hash, replacing buffered transfers",
			zap.Uint64("block", ev.BlockNumber),
			zap.String("oldHash", pb.hash),
			zap.String("newHash", ev.BlockHash),
		)
		metrics.DiscardedBlocks.Inc()
		ok = false
	}
	if !ok {
		pb = &pendingBlock{hash: ev.BlockHash, transfers: make(map[uint64]models.ClassifiedTransfer)}
		f.pending[ev.BlockNumber] = pb
	}
	pb.transfers[ev.LogIndex] = ct

	f.advanceHead(models.BlockRef{Number: ev.BlockNumber, Hash: ev.BlockHash})
	metrics.PendingBlocks.Set(float64(len(f.pending)))
	return f.checkSpan()
}

// Discard drops a buffered block the node reported as removed. An empty hash
// matches any buffered hash.
func (f *Finalizer) Discard(number uint64, hash string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	pb, ok := f.pending[number]
	if !ok || (hash != "" && pb.hash != hash) {
		return false
	}
	delete(f.pending, number)
	metrics.DiscardedBlocks.Inc()
	metrics.PendingBlocks.Set(float64(len(f.pending)))
	return true
}

// Ready pops every buffered block with head - number >= confirmations, in
// ascending block order, and advances the watermark.
func (f *Finalizer) Ready() Release {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.hasHead || f.head.Number < f.confirmations {
		return Release{}
	}
	through := f.head.Number - f.confirmations
	if f.hasReleased && through <= f.released {
		return Release{}
	}

	var numbers []uint64
	for n := range f.pending {
		if n <= through {
			numbers = append(numbers, n)
		}
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })

	release := Release{HasThrough: true, Through: f.refFor(through, "")}
	for _, n := range numbers {
		pb := f.pending[n]
		delete(f.pending, n)
		block := FinalizedBlock{Ref: f.refFor(n, pb.hash)}
		for _, ct := range pb.transfers {
			block.Transfers = append(block.Transfers, ct)
		}
		sort.Slice(block.Transfers, func(i, j int) bool {
			return block.Transfers[i].Transfer.LogIndex < block.Transfers[j].Transfer.LogIndex
		})
		release.Blocks = append(release.Blocks, block)
	}

	for n := range f.headers {
		if n < through {
			delete(f.headers, n)
		}
	}
	f.released = through
	f.hasReleased = true
	metrics.PendingBlocks.Set(float64(len(f.pending)))
	metrics.FinalizedBlock.Set(float64(through))
	return release
}

// Overflowing reports whether the buffer spans more than the allowed number
// of blocks below head.
func (f *Finalizer) Overflowing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkSpan() != nil
}

func (f *Finalizer) Head() (models.BlockRef, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, f.hasHead
}

func (f *Finalizer) PendingBlocks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *Finalizer) advanceHead(ref models.BlockRef) {
	if !f.hasHead || ref.Number > f.head.Number {
		f.head = ref
		f.hasHead = true
		metrics.ObservedHead.Set(float64(ref.Number))
	} else if ref.Number == f.head.Number && ref.Hash != "" {
		f.head = ref
	}
}

func (f *Finalizer) refFor(number uint64, hash string) models.BlockRef {
	ref, ok := f.headers[number]
	if !ok {
		return models.BlockRef{Number: number, Hash: hash}
	}
	if hash != "" && ref.Hash != hash {
		return models.BlockRef{Number: number, Hash: hash}
	}
	return ref
}

func (f *Finalizer) checkSpan() error {
	if !f.hasHead || len(f.pending) == 0 {
		return nil
	}
	lowest := f.head.Number
	for n := range f.pending {
		if n < lowest {
			lowest = n
		}
	}
	if f.head.Number-lowest > f.maxSpan {
		return fmt.Errorf("%w: head %d, oldest pending block %d, limit %d",
			ErrPendingSpanExceeded, f.head.Number, lowest, f.maxSpan)
	}
	return nil
}
