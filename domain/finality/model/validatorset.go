package model

import (
	"bytes"
	"sort"
)

// ValidatorSet is the set of validators of a range of rounds, sorted by
// public key
type ValidatorSet struct {
	validators []*Validator
	indexes    map[PublicKey]int
	totalStake uint64
}

// NewValidatorSet returns a ValidatorSet of the given validators
func NewValidatorSet(validators []*Validator) *ValidatorSet {
	sorted := make([]*Validator, len(validators))
	copy(sorted, validators)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].PublicKey[:], sorted[j].PublicKey[:]) < 0
	})

	set := &ValidatorSet{
		validators: sorted,
		indexes:    make(map[PublicKey]int, len(sorted)),
	}
	for i, validator := range sorted {
		set.indexes[validator.PublicKey] = i
		set.totalStake += validator.Stake
	}
	return set
}

// Validators returns the validators of the set sorted by public key
func (set *ValidatorSet) Validators() []*Validator {
	return set.validators
}

// Len returns the number of validators in the set
func (set *ValidatorSet) Len() int {
	return len(set.validators)
}

// TotalStake returns the sum of the stakes of all validators in the set
func (set *ValidatorSet) TotalStake() uint64 {
	return set.totalStake
}

// Stake returns the stake of the given validator and whether it is a member
// of the set
func (set *ValidatorSet) Stake(publicKey PublicKey) (uint64, bool) {
	index, ok := set.indexes[publicKey]
	if !ok {
		return 0, false
	}
	return set.validators[index].Stake, true
}

// Contains returns whether the given key belongs to a member of the set
func (set *ValidatorSet) Contains(publicKey PublicKey) bool {
	_, ok := set.indexes[publicKey]
	return ok
}

// Leader returns the proposer of the given round
func (set *ValidatorSet) Leader(round uint64) *Validator {
	return set.validators[round%uint64(len(set.validators))]
}
