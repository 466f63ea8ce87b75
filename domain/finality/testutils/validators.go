// Package testutils provides helpers shared by the finality tests.
package testutils

import (
	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/finality/model"
	"github.com/treegraph/tgraphd/domain/finality/signer"
	"github.com/treegraph/tgraphd/domain/finality/validatorset"
)

// GenerateValidators generates count validators of the given stake and a
// schedule in which they are active in every round
func GenerateValidators(count int, stake uint64) ([]*signer.Signer, *validatorset.Schedule, error) {
	signers := make([]*signer.Signer, count)
	validators := make([]*model.Validator, count)
	for i := range signers {
		s, err := signer.Generate()
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed generating validator %d", i)
		}
		signers[i] = s
		validators[i] = &model.Validator{PublicKey: s.PublicKey(), Stake: stake}
	}
	schedule, err := validatorset.Static(validators)
	if err != nil {
		return nil, nil, err
	}
	return signers, schedule, nil
}

// Candidate returns a candidate whose hash is derived from height and salt
func Candidate(height uint64, salt byte) *model.Candidate {
	var hash [externalapi.DomainHashSize]byte
	hash[0] = salt
	hash[1] = byte(height)
	hash[2] = byte(height >> 8)
	return &model.Candidate{Hash: externalapi.NewDomainHashFromByteArray(&hash), Height: height}
}
