package externalapi

// DomainBlock represents a block in the Tree-Graph
type DomainBlock struct {
	Header       *DomainBlockHeader
	Transactions []*DomainTransaction
}

// Clone returns a clone of DomainBlock
func (block *DomainBlock) Clone() *DomainBlock {
	transactionClone := make([]*DomainTransaction, len(block.Transactions))
	for i, tx := range block.Transactions {
		transactionClone[i] = tx.Clone()
	}

	return &DomainBlock{
		Header:       block.Header.Clone(),
		Transactions: transactionClone,
	}
}

// Equal returns whether block equals to other
func (block *DomainBlock) Equal(other *DomainBlock) bool {
	if block == nil || other == nil {
		return block == other
	}
	if len(block.Transactions) != len(other.Transactions) {
		return false
	}
	if !block.Header.Equal(other.Header) {
		return false
	}
	for i, tx := range block.Transactions {
		if !tx.Equal(other.Transactions[i]) {
			return false
		}
	}
	return true
}

// DomainBlockHeader represents the header part of a block.
// Every block except genesis has exactly one parent.
type DomainBlockHeader struct {
	ParentHash         *DomainHash
	RefereeHashes      []*DomainHash
	Height             uint64
	Difficulty         uint64
	TimeInMilliseconds int64
	Nonce              uint64
	Miner              DomainAddress
	TransactionsRoot   *DomainHash
	DeferredStateRoot  *DomainHash
}

// IsGenesis returns whether the header has no parent
func (header *DomainBlockHeader) IsGenesis() bool {
	return header.ParentHash == nil
}

// Clone returns a clone of DomainBlockHeader
func (header *DomainBlockHeader) Clone() *DomainBlockHeader {
	return &DomainBlockHeader{
		ParentHash:         header.ParentHash,
		RefereeHashes:      CloneHashes(header.RefereeHashes),
		Height:             header.Height,
		Difficulty:         header.Difficulty,
		TimeInMilliseconds: header.TimeInMilliseconds,
		Nonce:              header.Nonce,
		Miner:              header.Miner,
		TransactionsRoot:   header.TransactionsRoot,
		DeferredStateRoot:  header.DeferredStateRoot,
	}
}

// If this doesn't compile, it means the type definition has been changed, so it's
// an indication to update Equal and Clone accordingly.
var _ = DomainBlockHeader{&DomainHash{}, []*DomainHash{}, 0, 0, 0, 0,
	DomainAddress{}, &DomainHash{}, &DomainHash{}}

// Equal returns whether header equals to other
func (header *DomainBlockHeader) Equal(other *DomainBlockHeader) bool {
	if header == nil || other == nil {
		return header == other
	}
	return header.ParentHash.Equal(other.ParentHash) &&
		HashesEqual(header.RefereeHashes, other.RefereeHashes) &&
		header.Height == other.Height &&
		header.Difficulty == other.Difficulty &&
		header.TimeInMilliseconds == other.TimeInMilliseconds &&
		header.Nonce == other.Nonce &&
		header.Miner == other.Miner &&
		header.TransactionsRoot.Equal(other.TransactionsRoot) &&
		header.DeferredStateRoot.Equal(other.DeferredStateRoot)
}
