package votecollector

import (
	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/finality/model"
	"github.com/treegraph/tgraphd/domain/finality/signer"
)

// VerifyQuorumCertificate verifies that qc holds valid votes of distinct
// validators for its round and candidate, and that their stake reaches the
// quorum.
func VerifyQuorumCertificate(schedule ValidatorSchedule, quorumStake QuorumStakeFunc,
	qc *model.QuorumCertificate) error {

	validators, err := schedule.ValidatorsAt(qc.Round)
	if err != nil {
		return err
	}

	seen := make(map[model.PublicKey]struct{}, len(qc.Votes))
	var stake uint64
	for _, vote := range qc.Votes {
		if vote.Round != qc.Round || !vote.Candidate.Equal(qc.Candidate) {
			return errors.Wrapf(model.ErrInvalidCertificate, "certificate of round %d holds a vote "+
				"of round %d for %s", qc.Round, vote.Round, vote.Candidate.Hash)
		}
		if _, ok := seen[vote.Voter]; ok {
			return errors.Wrapf(model.ErrInvalidCertificate, "certificate of round %d holds two votes by %s",
				qc.Round, vote.Voter)
		}
		seen[vote.Voter] = struct{}{}

		voterStake, ok := validators.Stake(vote.Voter)
		if !ok {
			return errors.Wrapf(model.ErrUnknownValidator, "vote by %s in certificate of round %d",
				vote.Voter, qc.Round)
		}
		err := signer.VerifyVote(vote)
		if err != nil {
			return err
		}
		stake += voterStake
	}

	quorum := quorumStake(validators.TotalStake())
	if stake < quorum {
		return errors.Wrapf(model.ErrInvalidCertificate, "certificate of round %d has %d stake, "+
			"expected at least %d", qc.Round, stake, quorum)
	}
	return nil
}

// VerifyTimeoutCertificate verifies that tc holds valid timeouts of distinct
// validators for its round, and that their stake reaches the quorum.
func VerifyTimeoutCertificate(schedule ValidatorSchedule, quorumStake QuorumStakeFunc,
	tc *model.TimeoutCertificate) error {

	validators, err := schedule.ValidatorsAt(tc.Round)
	if err != nil {
		return err
	}

	seen := make(map[model.PublicKey]struct{}, len(tc.Timeouts))
	var stake uint64
	for _, timeout := range tc.Timeouts {
		if timeout.Round != tc.Round {
			return errors.Wrapf(model.ErrInvalidCertificate, "timeout certificate of round %d holds "+
				"a timeout of round %d", tc.Round, timeout.Round)
		}
		if _, ok := seen[timeout.Voter]; ok {
			return errors.Wrapf(model.ErrInvalidCertificate, "timeout certificate of round %d holds "+
				"two timeouts by %s", tc.Round, timeout.Voter)
		}
		seen[timeout.Voter] = struct{}{}

		voterStake, ok := validators.Stake(timeout.Voter)
		if !ok {
			return errors.Wrapf(model.ErrUnknownValidator, "timeout by %s in certificate of round %d",
				timeout.Voter, tc.Round)
		}
		err := signer.VerifyTimeout(timeout)
		if err != nil {
			return err
		}
		stake += voterStake
	}

	quorum := quorumStake(validators.TotalStake())
	if stake < quorum {
		return errors.Wrapf(model.ErrInvalidCertificate, "timeout certificate of round %d has %d stake, "+
			"expected at least %d", tc.Round, stake, quorum)
	}
	return nil
}
