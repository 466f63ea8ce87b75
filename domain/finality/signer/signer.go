// Package signer signs and verifies finality messages with Schnorr
// signatures over secp256k1.
package signer

import (
	"encoding/hex"
	"os"
	"strings"

	"github.com/kaspanet/go-secp256k1"
	"github.com/pkg/errors"

	"github.com/treegraph/tgraphd/domain/consensus/model/externalapi"
	"github.com/treegraph/tgraphd/domain/finality/model"
)

// Signer signs finality messages on behalf of a single validator
type Signer struct {
	keyPair   *secp256k1.SchnorrKeyPair
	publicKey model.PublicKey
}

// New returns a Signer for the given key pair
func New(keyPair *secp256k1.SchnorrKeyPair) (*Signer, error) {
	schnorrPublicKey, err := keyPair.SchnorrPublicKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed deriving public key")
	}
	serialized, err := schnorrPublicKey.Serialize()
	if err != nil {
		return nil, errors.Wrap(err, "failed serializing public key")
	}
	signer := &Signer{keyPair: keyPair}
	copy(signer.publicKey[:], serialized[:])
	return signer, nil
}

// Generate returns a Signer with a freshly generated key
func Generate() (*Signer, error) {
	keyPair, err := secp256k1.GenerateSchnorrKeyPair()
	if err != nil {
		return nil, errors.Wrap(err, "failed generating private key")
	}
	return New(keyPair)
}

// LoadKeyFile returns a Signer for the hex encoded private key stored at path
func LoadKeyFile(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed reading validator key file %s", path)
	}
	privateKeyBytes, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, errors.Wrapf(err, "validator key file %s is not hex encoded", path)
	}
	keyPair, err := secp256k1.DeserializeSchnorrPrivateKeyFromSlice(privateKeyBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "validator key file %s does not hold a private key", path)
	}
	return New(keyPair)
}

// SaveKeyFile writes the signer's private key to path, hex encoded
func (s *Signer) SaveKeyFile(path string) error {
	privateKey := s.keyPair.SerializePrivateKey()
	err := os.WriteFile(path, []byte(hex.EncodeToString(privateKey[:])), 0600)
	return errors.Wrapf(err, "failed writing validator key file %s", path)
}

// PublicKey returns the public key of the signer
func (s *Signer) PublicKey() model.PublicKey {
	return s.publicKey
}

func (s *Signer) sign(digest *externalapi.DomainHash) ([]byte, error) {
	secpHash := secp256k1.Hash(*digest.ByteArray())
	signature, err := s.keyPair.SchnorrSign(&secpHash)
	if err != nil {
		return nil, errors.Wrap(err, "failed signing digest")
	}
	serialized := signature.Serialize()
	return serialized[:], nil
}

// SignProposal returns a proposal of candidate for round signed by s
func (s *Signer) SignProposal(round uint64, candidate *model.Candidate) (*model.Proposal, error) {
	signature, err := s.sign(model.ProposalDigest(round, candidate))
	if err != nil {
		return nil, err
	}
	return &model.Proposal{Round: round, Candidate: candidate, Proposer: s.publicKey, Signature: signature}, nil
}

// SignVote returns a vote for candidate in round signed by s
func (s *Signer) SignVote(round uint64, candidate *model.Candidate) (*model.Vote, error) {
	signature, err := s.sign(model.VoteDigest(round, candidate))
	if err != nil {
		return nil, err
	}
	return &model.Vote{Round: round, Candidate: candidate, Voter: s.publicKey, Signature: signature}, nil
}

// SignTimeout returns a timeout of round signed by s
func (s *Signer) SignTimeout(round uint64) (*model.Timeout, error) {
	signature, err := s.sign(model.TimeoutDigest(round))
	if err != nil {
		return nil, err
	}
	return &model.Timeout{Round: round, Voter: s.publicKey, Signature: signature}, nil
}

// Verify returns model.ErrInvalidSignature unless signature is a valid
// signature of digest by publicKey
func Verify(publicKey model.PublicKey, digest *externalapi.DomainHash, signature []byte) error {
	schnorrPublicKey, err := secp256k1.DeserializeSchnorrPubKey(publicKey[:])
	if err != nil {
		return errors.Wrapf(model.ErrInvalidSignature, "malformed public key %s: %s", publicKey, err)
	}
	schnorrSignature, err := secp256k1.DeserializeSchnorrSignatureFromSlice(signature)
	if err != nil {
		return errors.Wrapf(model.ErrInvalidSignature, "malformed signature by %s: %s", publicKey, err)
	}
	secpHash := secp256k1.Hash(*digest.ByteArray())
	if !schnorrPublicKey.SchnorrVerify(&secpHash, schnorrSignature) {
		return errors.Wrapf(model.ErrInvalidSignature, "signature by %s does not verify", publicKey)
	}
	return nil
}

// VerifyProposal verifies the signature of proposal
func VerifyProposal(proposal *model.Proposal) error {
	return Verify(proposal.Proposer, model.ProposalDigest(proposal.Round, proposal.Candidate), proposal.Signature)
}

// VerifyVote verifies the signature of vote
func VerifyVote(vote *model.Vote) error {
	return Verify(vote.Voter, model.VoteDigest(vote.Round, vote.Candidate), vote.Signature)
}

// VerifyTimeout verifies the signature of timeout
func VerifyTimeout(timeout *model.Timeout) error {
	return Verify(timeout.Voter, model.TimeoutDigest(timeout.Round), timeout.Signature)
}
