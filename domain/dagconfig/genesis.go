package dagconfig

import (
	"github.com/holiman/uint256"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/utils/consensushashing"
)

func newGenesisBlock(timeInMilliseconds int64, nonce uint64) externalapi.DomainBlock {
	return externalapi.DomainBlock{
		Header: &externalapi.DomainBlockHeader{
			ParentHash:         nil,
			RefereeHashes:      []*externalapi.DomainHash{},
			Height:             0,
			Difficulty:         0,
			TimeInMilliseconds: timeInMilliseconds,
			Nonce:              nonce,
			TransactionsRoot:   consensushashing.TransactionsRoot(nil),
			DeferredStateRoot:  &externalapi.DomainHash{},
		},
		Transactions: []*externalapi.DomainTransaction{},
	}
}

// genesisBlock defines the genesis block of the block DAG for the main network.
var genesisBlock = newGenesisBlock(0x18c6a2a1c00, 0)

// genesisHash is the hash of the first block in the block DAG for the main
// network (genesis block).
var genesisHash = consensushashing.BlockHash(&genesisBlock)

var testnetGenesisBlock = newGenesisBlock(0x18c6a2a1c00, 1)

var testnetGenesisHash = consensushashing.BlockHash(&testnetGenesisBlock)

var devnetGenesisBlock = newGenesisBlock(0x18c6a2a1c00, 2)

var devnetGenesisHash = consensushashing.BlockHash(&devnetGenesisBlock)

// DevnetFaucetAddress is funded in the devnet genesis state.
var DevnetFaucetAddress = externalapi.DomainAddress{0xfa, 0x0c, 0xe7}

var devnetGenesisAllocations = []GenesisAllocation{
	{Address: DevnetFaucetAddress, Balance: uint256.NewInt(1_000_000_000_000)},
}
