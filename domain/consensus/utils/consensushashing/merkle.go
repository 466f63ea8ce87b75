package consensushashing

import (
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/utils/hashes"
)

var zeroHash = &externalapi.DomainHash{}

func hashMerkleBranches(left, right *externalapi.DomainHash) *externalapi.DomainHash {
	writer := hashes.NewMerkleBranchHashWriter()
	writer.InfallibleWrite(left.ByteSlice())
	writer.InfallibleWrite(right.ByteSlice())
	return writer.Finalize()
}

// merkleRoot builds the tree bottom-up. A node with no right sibling is
// paired with the zero hash. The root of an empty tree is the zero hash.
func merkleRoot(leaves []*externalapi.DomainHash) *externalapi.DomainHash {
	if len(leaves) == 0 {
		return zeroHash
	}
	level := leaves
	for len(level) > 1 {
		nextLevel := make([]*externalapi.DomainHash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := zeroHash
			if i+1 < len(level) {
				right = level[i+1]
			}
			nextLevel = append(nextLevel, hashMerkleBranches(level[i], right))
		}
		level = nextLevel
	}
	return level[0]
}
