package lrucache

import (
	"testing"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

func TestLRUCacheCapacity(t *testing.T) {
	cache := New(2, true)
	for i := byte(0); i < 5; i++ {
		cache.Add(externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{i}), i)
	}
	if len(cache.cache) != 2 {
		t.Fatalf("TestLRUCacheCapacity: expected 2 entries, got %d", len(cache.cache))
	}

	last := externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{4})
	cache.Remove(last)
	if cache.Has(last) {
		t.Fatalf("TestLRUCacheCapacity: removed entry is still present")
	}
}
