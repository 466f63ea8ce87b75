package epochlinearizer

import (
	"container/heap"

	"github.com/treegraph/tgraphd/domain/consensus/model"
)

// readyHeap orders blocks whose in-epoch predecessors were all emitted by
// (height, hash) ascending
type readyHeap struct {
	blockArena model.BlockArena
	indexes    []model.BlockIndex
}

func (h readyHeap) Len() int      { return len(h.indexes) }
func (h readyHeap) Swap(i, j int) { h.indexes[i], h.indexes[j] = h.indexes[j], h.indexes[i] }

func (h readyHeap) Less(i, j int) bool {
	heightI, heightJ := h.blockArena.Height(h.indexes[i]), h.blockArena.Height(h.indexes[j])
	if heightI != heightJ {
		return heightI < heightJ
	}
	return h.blockArena.Hash(h.indexes[i]).Less(h.blockArena.Hash(h.indexes[j]))
}

func (h *readyHeap) Push(x interface{}) {
	h.indexes = append(h.indexes, x.(model.BlockIndex))
}

func (h *readyHeap) Pop() interface{} {
	oldIndexes := h.indexes
	oldLength := len(oldIndexes)
	popped := oldIndexes[oldLength-1]
	h.indexes = oldIndexes[0 : oldLength-1]
	return popped
}

func newReadyHeap(blockArena model.BlockArena) *readyHeap {
	h := &readyHeap{blockArena: blockArena}
	heap.Init(h)
	return h
}

func (h *readyHeap) push(index model.BlockIndex) {
	heap.Push(h, index)
}

func (h *readyHeap) pop() model.BlockIndex {
	return heap.Pop(h).(model.BlockIndex)
}
