package hashes

import (
	"sort"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

// SortHashes sorts hashes in ascending lexicographical order
func SortHashes(hashes []*externalapi.DomainHash) {
	sort.Slice(hashes, func(i, j int) bool {
		return hashes[i].Less(hashes[j])
	})
}
