package roundstate

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/treegraph/tgraphd/domain/finality/model"
)

func TestCommitPath(t *testing.T) {
	rs := New(5)
	require.Equal(t, ProposalPending, rs.Phase())
	require.True(t, rs.IsActive())

	require.NoError(t, rs.AcceptProposal(&model.Proposal{Round: 5}))
	require.Equal(t, Voting, rs.Phase())

	qc := &model.QuorumCertificate{Round: 5}
	require.NoError(t, rs.ReachQuorum(qc))
	require.Equal(t, QuorumReached, rs.Phase())
	require.False(t, rs.IsActive())
	require.Same(t, qc, rs.QuorumCertificate())

	require.NoError(t, rs.Commit())
	require.Equal(t, Committed, rs.Phase())
	require.True(t, rs.Phase().IsFinal())
}

func TestTimeoutPath(t *testing.T) {
	rs := New(2)
	require.NoError(t, rs.TimeOut())
	require.Equal(t, TimedOut, rs.Phase())
	require.True(t, rs.IsActive(), "a timed out round still collects timeouts")

	require.NoError(t, rs.Abandon(&model.TimeoutCertificate{Round: 2}))
	require.Equal(t, NewRound, rs.Phase())
	require.False(t, rs.IsActive())
}

func TestLateQuorumAfterTimeout(t *testing.T) {
	rs := New(3)
	require.NoError(t, rs.AcceptProposal(&model.Proposal{Round: 3}))
	require.NoError(t, rs.TimeOut())
	require.NoError(t, rs.ReachQuorum(&model.QuorumCertificate{Round: 3}))
	require.NoError(t, rs.Commit())
}

func TestIllegalTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(rs *RoundState) error
		step  func(rs *RoundState) error
	}{
		{
			name:  "commit without quorum",
			setup: func(rs *RoundState) error { return nil },
			step:  func(rs *RoundState) error { return rs.Commit() },
		},
		{
			name:  "second proposal",
			setup: func(rs *RoundState) error { return rs.AcceptProposal(&model.Proposal{Round: 1}) },
			step:  func(rs *RoundState) error { return rs.AcceptProposal(&model.Proposal{Round: 1}) },
		},
		{
			name:  "abandon without timing out",
			setup: func(rs *RoundState) error { return nil },
			step:  func(rs *RoundState) error { return rs.Abandon(&model.TimeoutCertificate{Round: 1}) },
		},
		{
			name: "time out after quorum",
			setup: func(rs *RoundState) error {
				return rs.ReachQuorum(&model.QuorumCertificate{Round: 1})
			},
			step: func(rs *RoundState) error { return rs.TimeOut() },
		},
		{
			name: "quorum after abandoning",
			setup: func(rs *RoundState) error {
				err := rs.TimeOut()
				if err != nil {
					return err
				}
				return rs.Abandon(&model.TimeoutCertificate{Round: 1})
			},
			step: func(rs *RoundState) error { return rs.ReachQuorum(&model.QuorumCertificate{Round: 1}) },
		},
		{
			name:  "proposal after timing out",
			setup: func(rs *RoundState) error { return rs.TimeOut() },
			step:  func(rs *RoundState) error { return rs.AcceptProposal(&model.Proposal{Round: 1}) },
		},
	}

	for _, test := range tests {
		rs := New(1)
		require.NoError(t, test.setup(rs), test.name)
		phase := rs.Phase()
		err := test.step(rs)
		require.True(t, errors.Is(err, model.ErrIllegalTransition), "%s: unexpected error %v", test.name, err)
		require.Equal(t, phase, rs.Phase(), "%s: phase changed on an illegal transition", test.name)
	}
}

func TestMismatchedRound(t *testing.T) {
	rs := New(4)
	require.Error(t, rs.AcceptProposal(&model.Proposal{Round: 3}))
	require.Equal(t, ProposalPending, rs.Phase())
}
