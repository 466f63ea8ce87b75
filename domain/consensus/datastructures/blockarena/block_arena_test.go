package blockarena

import (
	"testing"

	"github.com/treegraph/tgraphd/domain/consensus/model"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

func hashOf(b byte) *externalapi.DomainHash {
	return externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{b})
}

func TestBlockArenaEdges(t *testing.T) {
	arena := New()
	genesisHash := hashOf(1)
	aHash := hashOf(2)
	bHash := hashOf(3)

	genesis := arena.Insert(genesisHash, 0, model.NoBlockIndex, nil)
	a := arena.Insert(aHash, 1, genesis, nil)
	b := arena.Insert(bHash, 1, genesis, []model.BlockIndex{a})

	if arena.Len() != 3 {
		t.Fatalf("TestBlockArenaEdges: expected 3 blocks, got %d", arena.Len())
	}
	children := arena.Children(genesis)
	if len(children) != 2 || children[0] != a || children[1] != b {
		t.Fatalf("TestBlockArenaEdges: unexpected children of genesis: %v", children)
	}
	if len(arena.Referees(b)) != 1 || arena.Referees(b)[0] != a {
		t.Fatalf("TestBlockArenaEdges: unexpected referees of b: %v", arena.Referees(b))
	}
	if arena.Parent(genesis) != model.NoBlockIndex {
		t.Fatalf("TestBlockArenaEdges: genesis must not have a parent")
	}
	if arena.Weight(a) != 1 {
		t.Fatalf("TestBlockArenaEdges: a new block must start with weight 1, got %d", arena.Weight(a))
	}

	again := arena.Insert(aHash, 1, genesis, nil)
	if again != a || arena.Len() != 3 {
		t.Fatalf("TestBlockArenaEdges: inserting a known hash must not add a block")
	}
	index, ok := arena.Index(bHash)
	if !ok || index != b {
		t.Fatalf("TestBlockArenaEdges: Index(b) returned %d, %t", index, ok)
	}
}

func TestBlockArenaRemoveLast(t *testing.T) {
	arena := New()
	genesis := arena.Insert(hashOf(1), 0, model.NoBlockIndex, nil)
	a := arena.Insert(hashOf(2), 1, genesis, nil)
	side := arena.Insert(hashOf(3), 1, genesis, nil)
	high := arena.Insert(hashOf(4), 2, a, nil)
	b := arena.Insert(hashOf(5), 2, side, []model.BlockIndex{high})

	if arena.MaxPastHeight(b) != 2 || arena.MaxPastHeight(side) != 1 {
		t.Fatalf("TestBlockArenaRemoveLast: unexpected max past heights %d and %d",
			arena.MaxPastHeight(b), arena.MaxPastHeight(side))
	}

	arena.RemoveLast()
	if arena.Len() != 4 {
		t.Fatalf("TestBlockArenaRemoveLast: expected 4 blocks, got %d", arena.Len())
	}
	if _, ok := arena.Index(hashOf(5)); ok {
		t.Fatalf("TestBlockArenaRemoveLast: the removed block is still indexed")
	}
	if len(arena.Children(side)) != 0 {
		t.Fatalf("TestBlockArenaRemoveLast: the removed block is still a child of its parent")
	}

	again := arena.Insert(hashOf(5), 2, side, nil)
	if again != b {
		t.Fatalf("TestBlockArenaRemoveLast: expected the re-inserted block to reuse index %d, got %d", b, again)
	}
}
