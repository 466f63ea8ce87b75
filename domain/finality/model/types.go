package model

import (
	"encoding/hex"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
)

// PublicKeySize is the size of a serialized Schnorr public key
const PublicKeySize = 32

// PublicKey identifies a validator
type PublicKey [PublicKeySize]byte

func (key PublicKey) String() string {
	return hex.EncodeToString(key[:])
}

// Validator is a member of a validator set
type Validator struct {
	PublicKey PublicKey
	Stake     uint64
}

// Candidate is a pivot chain position proposed for finalization
type Candidate struct {
	Hash   *externalapi.DomainHash
	Height uint64
}

// Equal returns whether candidate equals to other
func (candidate *Candidate) Equal(other *Candidate) bool {
	if candidate == nil || other == nil {
		return candidate == other
	}
	return candidate.Height == other.Height && candidate.Hash.Equal(other.Hash)
}

// Checkpoint returns the consensus checkpoint the candidate becomes once
// committed
func (candidate *Candidate) Checkpoint() *externalapi.Checkpoint {
	return &externalapi.Checkpoint{Hash: candidate.Hash, Height: candidate.Height}
}

// Proposal is a round leader's candidate
type Proposal struct {
	Round     uint64
	Candidate *Candidate
	Proposer  PublicKey
	Signature []byte
}

// Vote is a validator's signature over a round's candidate
type Vote struct {
	Round     uint64
	Candidate *Candidate
	Voter     PublicKey
	Signature []byte
}

// Timeout is a validator's signed statement that a round ended without
// a quorum
type Timeout struct {
	Round     uint64
	Voter     PublicKey
	Signature []byte
}

// QuorumCertificate is a set of votes for the same round and candidate
// whose stake exceeds the quorum
type QuorumCertificate struct {
	Round     uint64
	Candidate *Candidate
	Votes     []*Vote
}

// TimeoutCertificate is a set of timeouts for the same round whose stake
// exceeds the quorum
type TimeoutCertificate struct {
	Round    uint64
	Timeouts []*Timeout
}

// LedgerInfo is an entry of the checkpoint ledger: a committed candidate
// and the certificate that committed it
type LedgerInfo struct {
	Sequence    uint64
	Candidate   *Candidate
	Certificate *QuorumCertificate
}

// EquivocationEvidence holds two conflicting votes signed by the same
// validator in the same round
type EquivocationEvidence struct {
	Round  uint64
	Voter  PublicKey
	First  *Vote
	Second *Vote
}

// SafetyData is what a validator must remember across restarts to never
// sign conflicting votes. Rounds start at 1, so zero values mean nothing
// was signed yet.
type SafetyData struct {
	LastVotedRound     uint64
	LastVotedCandidate *Candidate
	LastTimeoutRound   uint64
}
