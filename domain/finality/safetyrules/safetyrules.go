// Package safetyrules guarantees that a validator never signs two
// conflicting votes, even across restarts.
package safetyrules

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/finality/model"
	"github.com/treegraph/tgraphd/domain/finality/signer"
)

// Storage persists a validator's SafetyData
type Storage interface {
	SafetyData() (*model.SafetyData, error)
	StoreSafetyData(safetyData *model.SafetyData) error
}

// SafetyRules signs votes and timeouts only when doing so cannot conflict
// with anything the validator signed before. Safety data is persisted
// before the signature is returned.
type SafetyRules struct {
	lock    sync.Mutex
	signer  *signer.Signer
	storage Storage
	data    *model.SafetyData
}

// New loads the persisted safety data from storage
func New(signer *signer.Signer, storage Storage) (*SafetyRules, error) {
	data, err := storage.SafetyData()
	if err != nil {
		return nil, err
	}
	return &SafetyRules{signer: signer, storage: storage, data: data}, nil
}

// SafetyData returns a copy of the current safety data
func (sr *SafetyRules) SafetyData() model.SafetyData {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	return *sr.data
}

// SignVote signs a vote for candidate in round. Signing the very same vote
// twice is allowed so that it can be re-broadcast.
func (sr *SafetyRules) SignVote(round uint64, candidate *model.Candidate) (*model.Vote, error) {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	data := sr.data
	if round < data.LastVotedRound {
		return nil, errors.Wrapf(model.ErrUnsafeVote, "round %d is below the last voted round %d",
			round, data.LastVotedRound)
	}
	if round == data.LastVotedRound && data.LastVotedCandidate != nil &&
		!data.LastVotedCandidate.Equal(candidate) {
		return nil, errors.Wrapf(model.ErrUnsafeVote, "already voted for %s in round %d",
			data.LastVotedCandidate.Hash, round)
	}
	if round <= data.LastTimeoutRound && data.LastTimeoutRound != 0 {
		return nil, errors.Wrapf(model.ErrUnsafeVote, "round %d already timed out", round)
	}

	updated := *data
	updated.LastVotedRound = round
	updated.LastVotedCandidate = candidate
	err := sr.storage.StoreSafetyData(&updated)
	if err != nil {
		return nil, err
	}
	sr.data = &updated

	return sr.signer.SignVote(round, candidate)
}

// SignTimeout signs a timeout of round. Once signed, the validator no
// longer votes in round or any round before it.
func (sr *SafetyRules) SignTimeout(round uint64) (*model.Timeout, error) {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	if round < sr.data.LastTimeoutRound {
		return nil, errors.Wrapf(model.ErrUnsafeVote, "round %d is below the last timed out round %d",
			round, sr.data.LastTimeoutRound)
	}
	if round > sr.data.LastTimeoutRound {
		updated := *sr.data
		updated.LastTimeoutRound = round
		err := sr.storage.StoreSafetyData(&updated)
		if err != nil {
			return nil, err
		}
		sr.data = &updated
	}
	return sr.signer.SignTimeout(round)
}
