// Package wire encodes finality messages and ledger records in the protobuf
// wire format.
package wire

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/treegraph/tgraphd/domain/finality/model"
)

// Field numbers are shared by every record that has the field
const (
	fieldRound       protowire.Number = 1
	fieldCandidate   protowire.Number = 2
	fieldSigner      protowire.Number = 3
	fieldSignature   protowire.Number = 4
	fieldVotes       protowire.Number = 5
	fieldTimeouts    protowire.Number = 6
	fieldHash        protowire.Number = 7
	fieldHeight      protowire.Number = 8
	fieldSequence    protowire.Number = 9
	fieldCertificate protowire.Number = 10
	fieldFirst       protowire.Number = 11
	fieldSecond      protowire.Number = 12
	fieldLastTimeout protowire.Number = 13
)

func appendCandidate(b []byte, candidate *model.Candidate) []byte {
	var encoded []byte
	encoded = appendBytesField(encoded, fieldHash, candidate.Hash.ByteSlice())
	encoded = appendVarintField(encoded, fieldHeight, candidate.Height)
	return appendBytesField(b, fieldCandidate, encoded)
}

func decodeCandidate(b []byte) (*model.Candidate, error) {
	candidate := &model.Candidate{}
	r := &fieldReader{b: b}
	for {
		ok, err := r.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch r.num {
		case fieldHash:
			candidate.Hash, err = r.hash()
		case fieldHeight:
			candidate.Height, err = r.varint()
		default:
			err = r.skip()
		}
		if err != nil {
			return nil, err
		}
	}
	if candidate.Hash == nil {
		return nil, errors.New("candidate is missing its hash")
	}
	return candidate, nil
}

func encodeSigned(round uint64, candidate *model.Candidate, signer model.PublicKey, signature []byte) []byte {
	var b []byte
	b = appendVarintField(b, fieldRound, round)
	if candidate != nil {
		b = appendCandidate(b, candidate)
	}
	b = appendBytesField(b, fieldSigner, signer[:])
	return appendBytesField(b, fieldSignature, signature)
}

type signed struct {
	round     uint64
	candidate *model.Candidate
	signer    model.PublicKey
	signature []byte
}

func decodeSigned(b []byte) (*signed, error) {
	result := &signed{}
	r := &fieldReader{b: b}
	for {
		ok, err := r.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch r.num {
		case fieldRound:
			result.round, err = r.varint()
		case fieldCandidate:
			var candidateBytes []byte
			candidateBytes, err = r.bytes()
			if err == nil {
				result.candidate, err = decodeCandidate(candidateBytes)
			}
		case fieldSigner:
			result.signer, err = r.publicKey()
		case fieldSignature:
			result.signature, err = r.bytes()
		default:
			err = r.skip()
		}
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func decodeVote(b []byte) (*model.Vote, error) {
	s, err := decodeSigned(b)
	if err != nil {
		return nil, err
	}
	if s.candidate == nil {
		return nil, errors.New("vote is missing its candidate")
	}
	return &model.Vote{Round: s.round, Candidate: s.candidate, Voter: s.signer, Signature: s.signature}, nil
}

func encodeVote(vote *model.Vote) []byte {
	return encodeSigned(vote.Round, vote.Candidate, vote.Voter, vote.Signature)
}

func encodeTimeout(timeout *model.Timeout) []byte {
	return encodeSigned(timeout.Round, nil, timeout.Voter, timeout.Signature)
}

func decodeTimeout(b []byte) (*model.Timeout, error) {
	s, err := decodeSigned(b)
	if err != nil {
		return nil, err
	}
	return &model.Timeout{Round: s.round, Voter: s.signer, Signature: s.signature}, nil
}

// EncodeQuorumCertificate serializes qc
func EncodeQuorumCertificate(qc *model.QuorumCertificate) []byte {
	var b []byte
	b = appendVarintField(b, fieldRound, qc.Round)
	b = appendCandidate(b, qc.Candidate)
	for _, vote := range qc.Votes {
		b = appendBytesField(b, fieldVotes, encodeVote(vote))
	}
	return b
}

// DecodeQuorumCertificate deserializes a QuorumCertificate
func DecodeQuorumCertificate(b []byte) (*model.QuorumCertificate, error) {
	qc := &model.QuorumCertificate{}
	r := &fieldReader{b: b}
	for {
		ok, err := r.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		var value []byte
		switch r.num {
		case fieldRound:
			qc.Round, err = r.varint()
		case fieldCandidate:
			value, err = r.bytes()
			if err == nil {
				qc.Candidate, err = decodeCandidate(value)
			}
		case fieldVotes:
			value, err = r.bytes()
			if err == nil {
				var vote *model.Vote
				vote, err = decodeVote(value)
				qc.Votes = append(qc.Votes, vote)
			}
		default:
			err = r.skip()
		}
		if err != nil {
			return nil, err
		}
	}
	if qc.Candidate == nil {
		return nil, errors.New("quorum certificate is missing its candidate")
	}
	return qc, nil
}

func encodeTimeoutCertificate(tc *model.TimeoutCertificate) []byte {
	var b []byte
	b = appendVarintField(b, fieldRound, tc.Round)
	for _, timeout := range tc.Timeouts {
		b = appendBytesField(b, fieldTimeouts, encodeTimeout(timeout))
	}
	return b
}

func decodeTimeoutCertificate(b []byte) (*model.TimeoutCertificate, error) {
	tc := &model.TimeoutCertificate{}
	r := &fieldReader{b: b}
	for {
		ok, err := r.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch r.num {
		case fieldRound:
			tc.Round, err = r.varint()
		case fieldTimeouts:
			var value []byte
			value, err = r.bytes()
			if err == nil {
				var timeout *model.Timeout
				timeout, err = decodeTimeout(value)
				tc.Timeouts = append(tc.Timeouts, timeout)
			}
		default:
			err = r.skip()
		}
		if err != nil {
			return nil, err
		}
	}
	return tc, nil
}

// EncodeMessage serializes message, prefixed by its command
func EncodeMessage(message model.Message) ([]byte, error) {
	b := []byte{byte(message.Command())}
	switch m := message.(type) {
	case *model.Proposal:
		return append(b, encodeSigned(m.Round, m.Candidate, m.Proposer, m.Signature)...), nil
	case *model.Vote:
		return append(b, encodeVote(m)...), nil
	case *model.Timeout:
		return append(b, encodeTimeout(m)...), nil
	case *model.QuorumCertificate:
		return append(b, EncodeQuorumCertificate(m)...), nil
	case *model.TimeoutCertificate:
		return append(b, encodeTimeoutCertificate(m)...), nil
	}
	return nil, errors.Errorf("unsupported message type %T", message)
}

// DecodeMessage deserializes a message encoded by EncodeMessage
func DecodeMessage(b []byte) (model.Message, error) {
	if len(b) == 0 {
		return nil, errors.New("empty message")
	}
	command, payload := model.MessageCommand(b[0]), b[1:]
	switch command {
	case model.CmdProposal:
		s, err := decodeSigned(payload)
		if err != nil {
			return nil, err
		}
		if s.candidate == nil {
			return nil, errors.New("proposal is missing its candidate")
		}
		return &model.Proposal{Round: s.round, Candidate: s.candidate, Proposer: s.signer, Signature: s.signature}, nil
	case model.CmdVote:
		return decodeVote(payload)
	case model.CmdTimeout:
		return decodeTimeout(payload)
	case model.CmdQuorumCertificate:
		return DecodeQuorumCertificate(payload)
	case model.CmdTimeoutCertificate:
		return decodeTimeoutCertificate(payload)
	}
	return nil, errors.Errorf("unknown message command %d", command)
}
