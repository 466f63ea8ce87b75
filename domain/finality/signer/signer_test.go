package signer

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/finality/model"
)

func testCandidate(height uint64) *model.Candidate {
	return &model.Candidate{
		Hash:   externalapi.NewDomainHashFromByteArray(&[externalapi.DomainHashSize]byte{byte(height)}),
		Height: height,
	}
}

func TestSignAndVerifyVote(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)

	vote, err := s.SignVote(7, testCandidate(3))
	require.NoError(t, err)
	require.Equal(t, s.PublicKey(), vote.Voter)
	require.NoError(t, VerifyVote(vote))

	tampered := *vote
	tampered.Round = 8
	require.True(t, errors.Is(VerifyVote(&tampered), model.ErrInvalidSignature))

	tampered = *vote
	tampered.Candidate = testCandidate(4)
	require.True(t, errors.Is(VerifyVote(&tampered), model.ErrInvalidSignature))

	other, err := Generate()
	require.NoError(t, err)
	tampered = *vote
	tampered.Voter = other.PublicKey()
	require.True(t, errors.Is(VerifyVote(&tampered), model.ErrInvalidSignature))
}

func TestSignaturesAreDomainSeparated(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)

	proposal, err := s.SignProposal(1, testCandidate(2))
	require.NoError(t, err)
	require.NoError(t, VerifyProposal(proposal))

	replayed := &model.Vote{Round: proposal.Round, Candidate: proposal.Candidate,
		Voter: proposal.Proposer, Signature: proposal.Signature}
	require.True(t, errors.Is(VerifyVote(replayed), model.ErrInvalidSignature))

	timeout, err := s.SignTimeout(1)
	require.NoError(t, err)
	require.NoError(t, VerifyTimeout(timeout))
}

func TestKeyFileRoundTrip(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "validator.key")
	require.NoError(t, s.SaveKeyFile(path))

	loaded, err := LoadKeyFile(path)
	require.NoError(t, err)
	require.Equal(t, s.PublicKey(), loaded.PublicKey())

	vote, err := loaded.SignVote(1, testCandidate(1))
	require.NoError(t, err)
	require.NoError(t, VerifyVote(vote))
}

func TestMalformedSignature(t *testing.T) {
	s, err := Generate()
	require.NoError(t, err)
	err = Verify(s.PublicKey(), model.TimeoutDigest(1), []byte{1, 2, 3})
	require.True(t, errors.Is(err, model.ErrInvalidSignature))
}
