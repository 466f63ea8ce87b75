package ledger

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/treegraph/tgraphd/domain/finality/model"
	"github.com/treegraph/tgraphd/domain/finality/testutils"
	"github.com/treegraph/tgraphd/infrastructure/db/database"
	"github.com/treegraph/tgraphd/infrastructure/db/ledgerdb"
)

func openLedger(t *testing.T, path string) (*Ledger, func()) {
	db, err := ledgerdb.Open(path)
	require.NoError(t, err)
	return New(db), func() {
		require.NoError(t, db.Close())
	}
}

func certificate(height uint64, salt byte) *model.QuorumCertificate {
	return &model.QuorumCertificate{Round: height, Candidate: testutils.Candidate(height, salt)}
}

func TestAppendAndQuery(t *testing.T) {
	l, teardown := openLedger(t, filepath.Join(t.TempDir(), "ledger.db"))
	defer teardown()

	_, found, err := l.Latest()
	require.NoError(t, err)
	require.False(t, found)

	first, err := l.Append(certificate(10, 1))
	require.NoError(t, err)
	require.Equal(t, uint64(1), first.Sequence)
	second, err := l.Append(certificate(20, 1))
	require.NoError(t, err)
	require.Equal(t, uint64(2), second.Sequence)

	latest, found, err := l.Latest()
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, latest.Candidate.Equal(second.Candidate))

	byHeight, err := l.ByHeight(10)
	require.NoError(t, err)
	require.True(t, byHeight.Candidate.Equal(first.Candidate))

	byHash, err := l.ByHash(second.Candidate.Hash)
	require.NoError(t, err)
	require.Equal(t, uint64(20), byHash.Candidate.Height)

	_, err = l.ByHeight(15)
	require.True(t, database.IsNotFoundError(err))

	all, err := l.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestCheckpointsNeverGoBackwards(t *testing.T) {
	l, teardown := openLedger(t, filepath.Join(t.TempDir(), "ledger.db"))
	defer teardown()

	committed, err := l.Append(certificate(10, 1))
	require.NoError(t, err)

	again, err := l.Append(certificate(10, 1))
	require.NoError(t, err)
	require.Equal(t, committed.Sequence, again.Sequence, "re-committing the latest checkpoint is a no-op")

	_, err = l.Append(certificate(10, 2))
	require.True(t, errors.Is(err, ErrNonMonotonicCheckpoint))
	_, err = l.Append(certificate(5, 1))
	require.True(t, errors.Is(err, ErrNonMonotonicCheckpoint))

	all, err := l.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	signers, _, err := testutils.GenerateValidators(1, 1)
	require.NoError(t, err)

	l, teardown := openLedger(t, path)
	_, err = l.Append(certificate(7, 1))
	require.NoError(t, err)
	require.NoError(t, l.StoreSafetyData(&model.SafetyData{
		LastVotedRound:     3,
		LastVotedCandidate: testutils.Candidate(7, 1),
		LastTimeoutRound:   2,
	}))
	first, err := signers[0].SignVote(3, testutils.Candidate(7, 1))
	require.NoError(t, err)
	second, err := signers[0].SignVote(3, testutils.Candidate(7, 2))
	require.NoError(t, err)
	require.NoError(t, l.RecordEquivocation(&model.EquivocationEvidence{
		Round: 3, Voter: signers[0].PublicKey(), First: first, Second: second,
	}))
	teardown()

	reopened, teardown := openLedger(t, path)
	defer teardown()

	latest, found, err := reopened.Latest()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(7), latest.Candidate.Height)

	data, err := reopened.SafetyData()
	require.NoError(t, err)
	require.Equal(t, uint64(3), data.LastVotedRound)
	require.Equal(t, uint64(2), data.LastTimeoutRound)
	require.True(t, data.LastVotedCandidate.Equal(testutils.Candidate(7, 1)))

	evidences, err := reopened.Equivocations()
	require.NoError(t, err)
	require.Len(t, evidences, 1)
	require.Equal(t, signers[0].PublicKey(), evidences[0].Voter)
}
