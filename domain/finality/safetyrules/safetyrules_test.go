package safetyrules

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/finality/model"
	"github.com/treegraph/tgraphd/domain/finality/signer"
)

type memoryStorage struct {
	data   *model.SafetyData
	stores int
}

func (m *memoryStorage) SafetyData() (*model.SafetyData, error) {
	if m.data == nil {
		return &model.SafetyData{}, nil
	}
	data := *m.data
	return &data, nil
}

func (m *memoryStorage) StoreSafetyData(safetyData *model.SafetyData) error {
	data := *safetyData
	m.data = &data
	m.stores++
	return nil
}

func candidate(height uint64, b byte) *model.Candidate {
	return &model.Candidate{
		Hash:   externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{b}),
		Height: height,
	}
}

func newRules(t *testing.T, storage Storage) *SafetyRules {
	s, err := signer.Generate()
	require.NoError(t, err)
	rules, err := New(s, storage)
	require.NoError(t, err)
	return rules
}

func TestNeverSignsConflictingVotes(t *testing.T) {
	storage := &memoryStorage{}
	rules := newRules(t, storage)

	vote, err := rules.SignVote(1, candidate(10, 1))
	require.NoError(t, err)
	require.NoError(t, signer.VerifyVote(vote))

	_, err = rules.SignVote(1, candidate(10, 1))
	require.NoError(t, err, "re-signing the same vote must be allowed")

	_, err = rules.SignVote(1, candidate(10, 2))
	require.True(t, errors.Is(err, model.ErrUnsafeVote))

	_, err = rules.SignVote(2, candidate(11, 2))
	require.NoError(t, err)

	_, err = rules.SignVote(1, candidate(10, 1))
	require.True(t, errors.Is(err, model.ErrUnsafeVote), "voting in an older round must be refused")
}

func TestNoVoteAfterTimeout(t *testing.T) {
	rules := newRules(t, &memoryStorage{})

	timeout, err := rules.SignTimeout(3)
	require.NoError(t, err)
	require.NoError(t, signer.VerifyTimeout(timeout))

	_, err = rules.SignVote(3, candidate(5, 1))
	require.True(t, errors.Is(err, model.ErrUnsafeVote))

	_, err = rules.SignVote(4, candidate(5, 1))
	require.NoError(t, err)

	_, err = rules.SignTimeout(2)
	require.True(t, errors.Is(err, model.ErrUnsafeVote))
}

func TestSafetyDataSurvivesRestart(t *testing.T) {
	storage := &memoryStorage{}
	s, err := signer.Generate()
	require.NoError(t, err)

	rules, err := New(s, storage)
	require.NoError(t, err)
	_, err = rules.SignVote(7, candidate(20, 1))
	require.NoError(t, err)
	require.Equal(t, 1, storage.stores)

	restarted, err := New(s, storage)
	require.NoError(t, err)
	require.Equal(t, uint64(7), restarted.SafetyData().LastVotedRound)

	_, err = restarted.SignVote(7, candidate(20, 2))
	require.True(t, errors.Is(err, model.ErrUnsafeVote))
}
