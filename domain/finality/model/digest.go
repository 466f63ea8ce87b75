package model

import (
	"github.com/treegraph/tgraphd/domain/consensus/database/binaryserialization"
	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/consensus/utils/hashes"
)

// Signed digests are domain separated by message type so that a signature
// over one message can never be replayed as another

func candidateDigest(command MessageCommand, round uint64, candidate *Candidate) *externalapi.DomainHash {
	writer := hashes.NewConsensusMessageHashWriter()
	writer.InfallibleWrite([]byte{byte(command)})
	writer.InfallibleWrite(binaryserialization.SerializeUint64(round))
	writer.InfallibleWrite(candidate.Hash.ByteSlice())
	writer.InfallibleWrite(binaryserialization.SerializeUint64(candidate.Height))
	return writer.Finalize()
}

// ProposalDigest returns the digest a proposer signs
func ProposalDigest(round uint64, candidate *Candidate) *externalapi.DomainHash {
	return candidateDigest(CmdProposal, round, candidate)
}

// VoteDigest returns the digest a voter signs
func VoteDigest(round uint64, candidate *Candidate) *externalapi.DomainHash {
	return candidateDigest(CmdVote, round, candidate)
}

// TimeoutDigest returns the digest a validator signs when a round times out
func TimeoutDigest(round uint64) *externalapi.DomainHash {
	writer := hashes.NewConsensusMessageHashWriter()
	writer.InfallibleWrite([]byte{byte(CmdTimeout)})
	writer.InfallibleWrite(binaryserialization.SerializeUint64(round))
	return writer.Finalize()
}
