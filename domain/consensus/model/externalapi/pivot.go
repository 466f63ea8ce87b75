package externalapi

// PivotChainChanges is the set of changes made to the pivot chain as a
// result of a block insertion or a checkpoint update. Removed is ordered
// from the old tip downwards and Added from the common ancestor upwards.
type PivotChainChanges struct {
	Added                []*DomainHash
	Removed              []*DomainHash
	CommonAncestorHeight uint64
}

// IsReorg returns whether blocks were removed from the pivot chain
func (c *PivotChainChanges) IsReorg() bool {
	return len(c.Removed) > 0
}

// Clone returns a clone of PivotChainChanges
func (c *PivotChainChanges) Clone() *PivotChainChanges {
	if c == nil {
		return nil
	}
	return &PivotChainChanges{
		Added:                CloneHashes(c.Added),
		Removed:              CloneHashes(c.Removed),
		CommonAncestorHeight: c.CommonAncestorHeight,
	}
}

// Checkpoint is a finalized position on the pivot chain
type Checkpoint struct {
	Hash   *DomainHash
	Height uint64
}

// Clone returns a clone of Checkpoint
func (c *Checkpoint) Clone() *Checkpoint {
	return &Checkpoint{Hash: c.Hash, Height: c.Height}
}

// BlockInsertionResult is returned from ValidateAndInsertBlock
type BlockInsertionResult struct {
	PivotTip          *DomainHash
	PivotChainChanges *PivotChainChanges
}
